// Package cliconfig fills configuration structs from command line flags and an
// optional key=value configuration file.
//
// Struct fields are bound with tags:
//
//	cli:"name"            flag (and config file key) to read, or "arg:*" for the arguments
//	normalize:"filepath"  expand ~ and environment variables, make absolute
//	validate:"required"   comma separated rules: required, file-exists
//	label:"Name"          name used in validation errors
//
// It is intended for internal use by netbox-secrets only.
package cliconfig

import (
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/buildkite/netbox-secrets/internal/osutil"
	"github.com/buildkite/netbox-secrets/logger"
	"github.com/oleiade/reflections"
	"github.com/urfave/cli"
)

type Loader struct {
	// The context that is passed when using a urfave/cli action
	CLI *cli.Context

	// The struct that the config values will be loaded into
	Config any

	// The logger used
	Logger logger.Logger

	// A slice of paths to files that should be used as config files
	DefaultConfigFilePaths []string

	// The file that was used when loading this configuration
	File *File
}

// Load finds and reads a config file, then sets every tagged field of Config.
// A flag given on the command line (or through its environment variable)
// beats the config file, which beats the flag default.
func (l *Loader) Load() (warnings []string, err error) {
	if l.CLI.String("config") != "" {
		file := File{Path: l.CLI.String("config")}

		// A file named on the command line has to exist.
		if !file.Exists() {
			absolutePath, _ := file.AbsolutePath()
			return warnings, fmt.Errorf("a configuration file could not be found at: %q", absolutePath)
		}
		l.File = &file
	} else {
		for _, path := range l.DefaultConfigFilePaths {
			file := File{Path: path}
			if file.Exists() {
				l.File = &file
				break
			}
		}
	}

	if l.File != nil {
		if err := l.File.Load(); err != nil {
			return warnings, fmt.Errorf("loading config file: %w", err)
		}
		warnings = append(warnings, l.unknownFileKeys()...)
	}

	fields, err := reflections.FieldsDeep(l.Config)
	if err != nil {
		return warnings, fmt.Errorf("listing config fields: %w", err)
	}

	for _, fieldName := range fields {
		cliName, _ := reflections.GetFieldTag(l.Config, fieldName, "cli")
		if cliName != "" {
			if err := l.setFieldValueFromCLI(fieldName, cliName); err != nil {
				return warnings, fmt.Errorf("setting config field %s: %w", fieldName, err)
			}
		}

		normalization, _ := reflections.GetFieldTag(l.Config, fieldName, "normalize")
		if normalization != "" {
			if err := l.normalizeField(fieldName, normalization); err != nil {
				return warnings, fmt.Errorf("normalizing config field %s: %w", fieldName, err)
			}
		}

		validationRules, _ := reflections.GetFieldTag(l.Config, fieldName, "validate")
		if validationRules != "" {
			label, _ := reflections.GetFieldTag(l.Config, fieldName, "label")
			if label == "" {
				label = cliName
			}
			if label == "" {
				label = fieldName
			}

			if err := l.validateField(fieldName, label, validationRules); err != nil {
				return warnings, err
			}
		}
	}

	return warnings, nil
}

// unknownFileKeys warns about config file keys that no flag of the current
// command reads, which is usually a typo.
func (l *Loader) unknownFileKeys() []string {
	known := map[string]bool{}
	fields, _ := reflections.FieldsDeep(l.Config)
	for _, fieldName := range fields {
		if cliName, _ := reflections.GetFieldTag(l.Config, fieldName, "cli"); cliName != "" {
			known[cliName] = true
		}
	}

	var warnings []string
	for key := range l.File.Config {
		if !known[key] {
			warnings = append(warnings, fmt.Sprintf("Unknown key %q in config file %s", key, l.File.Path))
		}
	}
	slices.Sort(warnings)
	return warnings
}

func (l Loader) setFieldValueFromCLI(fieldName, cliName string) error {
	fieldKind, err := reflections.GetFieldKind(l.Config, fieldName)
	if err != nil {
		return fmt.Errorf("getting the kind of struct field %q: %w", fieldName, err)
	}
	fieldType, err := reflections.GetFieldType(l.Config, fieldName)
	if err != nil {
		return fmt.Errorf("getting the type of struct field %q: %w", fieldName, err)
	}

	var value any

	if cliName == "arg:*" {
		value = []string(l.CLI.Args())
		return reflections.SetField(l.Config, fieldName, value)
	}

	if l.File != nil {
		if configFileValue, ok := l.File.Config[cliName]; ok {
			value, err = convertFileValue(fieldKind, fieldType, configFileValue)
			if err != nil {
				return fmt.Errorf("config file value for %s: %w", cliName, err)
			}
		}
	}

	// The CLI context wins if the flag was set, and supplies the default if
	// the file had nothing.
	if value == nil || l.cliValueIsSet(cliName) {
		switch fieldKind {
		case reflect.String:
			value = l.CLI.String(cliName)
		case reflect.Slice:
			value = l.CLI.StringSlice(cliName)
		case reflect.Bool:
			value = l.CLI.Bool(cliName)
		case reflect.Int:
			value = l.CLI.Int(cliName)
		case reflect.Int64:
			switch fieldType {
			case "int64":
				value = l.CLI.Int64(cliName)
			case "time.Duration":
				value = l.CLI.Duration(cliName)
			default:
				return fmt.Errorf("unsupported field type %s for kind int64", fieldType)
			}
		default:
			return fmt.Errorf("unable to handle type: %s", fieldKind)
		}
	}

	if err := reflections.SetField(l.Config, fieldName, value); err != nil {
		return fmt.Errorf("setting value field %q to %q: %w", fieldName, value, err)
	}

	return nil
}

func convertFileValue(kind reflect.Kind, fieldType, s string) (any, error) {
	switch kind {
	case reflect.String:
		return s, nil
	case reflect.Slice:
		return strings.Split(s, ","), nil
	case reflect.Bool:
		return strconv.ParseBool(s)
	case reflect.Int:
		return strconv.Atoi(s)
	case reflect.Int64:
		switch fieldType {
		case "int64":
			return strconv.ParseInt(s, 10, 64)
		case "time.Duration":
			return time.ParseDuration(s)
		}
		return nil, fmt.Errorf("unsupported field type %s for kind int64", fieldType)
	}
	return nil, fmt.Errorf("unable to convert string to type %s", kind)
}

func (l Loader) Errorf(format string, v ...any) error {
	suffix := fmt.Sprintf(" See: `%s %s --help`", l.CLI.App.Name, l.CLI.Command.Name)

	return fmt.Errorf(format+suffix, v...)
}

func (l Loader) cliValueIsSet(cliName string) bool {
	if l.CLI.IsSet(cliName) || l.CLI.GlobalIsSet(cliName) {
		return true
	}

	// cli.Context#IsSet only checks to see if the command was set via the cli, not
	// via the environment. So look up the flag's EnvVar and check that too.
	flags := l.CLI.Command.Flags
	if l.CLI.App != nil {
		flags = append(flags[:len(flags):len(flags)], l.CLI.App.Flags...)
	}
	for _, flag := range flags {
		name, _ := reflections.GetField(flag, "Name")
		envVar, _ := reflections.GetField(flag, "EnvVar")
		if name != cliName {
			continue
		}
		envVarStr, ok := envVar.(string)
		if !ok || envVarStr == "" {
			return false
		}
		for env := range strings.SplitSeq(envVarStr, ",") {
			if os.Getenv(strings.TrimSpace(env)) != "" {
				return true
			}
		}
		return false
	}

	return false
}

func (l Loader) fieldValueIsEmpty(fieldName string) bool {
	value, _ := reflections.GetField(l.Config, fieldName)
	if value == nil {
		return true
	}
	return reflect.ValueOf(value).IsZero() ||
		(reflect.ValueOf(value).Kind() == reflect.Slice && reflect.ValueOf(value).Len() == 0)
}

func (l Loader) validateField(fieldName, label, validationRules string) error {
	for rule := range strings.SplitSeq(validationRules, ",") {
		switch rule {
		case "required":
			if l.fieldValueIsEmpty(fieldName) {
				return l.Errorf("Missing %s.", label)
			}

		case "file-exists":
			value, _ := reflections.GetField(l.Config, fieldName)
			if valueAsString, ok := value.(string); ok && valueAsString != "" {
				if _, err := os.Stat(valueAsString); err != nil {
					return fmt.Errorf("couldn't find %s located at %s: %w", label, valueAsString, err)
				}
			}

		default:
			return fmt.Errorf("unknown config validation rule %q", rule)
		}
	}

	return nil
}

func (l Loader) normalizeField(fieldName, normalization string) error {
	switch normalization {
	case "filepath":
		value, _ := reflections.GetField(l.Config, fieldName)
		valueAsString, ok := value.(string)
		if !ok {
			return fmt.Errorf("filepath normalization only works on string fields")
		}

		normalizedPath, err := osutil.NormalizeFilePath(valueAsString)
		if err != nil {
			return err
		}
		return reflections.SetField(l.Config, fieldName, normalizedPath)

	default:
		return fmt.Errorf("unknown normalization %q", normalization)
	}
}
