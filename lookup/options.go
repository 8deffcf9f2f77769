package lookup

import (
	"fmt"
	"os"
	"strings"

	"github.com/buildkite/netbox-secrets/internal/osutil"
)

// EnvPrefix is prepended to an upper-cased option name to form the
// environment variable that overrides it.
const EnvPrefix = "ANSIBLE_NETBOX"

// Option names, in the order they are reported.
const (
	OptionHost           = "host"
	OptionAPIToken       = "api_token"
	OptionPrivateKeyFile = "private_key_file"
	OptionDevice         = "device"
	OptionSecretName     = "secret_name"
)

// OptionType is the declared type of an option.
type OptionType string

const (
	TypeString OptionType = "string"
	TypePath   OptionType = "path"
)

// OptionSpec declares one option the lookup accepts.
type OptionSpec struct {
	Name        string
	Description string
	Type        OptionType
	Required    bool
	Env         string
}

// OptionSchema is the set of options the lookup accepts. Every option can be
// overridden from the environment.
var OptionSchema = []OptionSpec{
	{
		Name:        OptionHost,
		Description: "URL of the NetBox server, e.g. https://netbox.example.com",
		Type:        TypeString,
		Required:    true,
		Env:         EnvVarName(OptionHost),
	},
	{
		Name:        OptionAPIToken,
		Description: "NetBox API token",
		Type:        TypeString,
		Required:    true,
		Env:         EnvVarName(OptionAPIToken),
	},
	{
		Name:        OptionPrivateKeyFile,
		Description: "Path to the NetBox user's RSA private key",
		Type:        TypePath,
		Required:    true,
		Env:         EnvVarName(OptionPrivateKeyFile),
	},
	{
		Name:        OptionDevice,
		Description: "Name of the device the secret belongs to",
		Type:        TypeString,
		Required:    true,
		Env:         EnvVarName(OptionDevice),
	},
	{
		Name:        OptionSecretName,
		Description: "Name of the secret",
		Type:        TypeString,
		Required:    true,
		Env:         EnvVarName(OptionSecretName),
	},
}

// EnvVarName returns the environment variable that overrides option name.
func EnvVarName(name string) string {
	return EnvPrefix + "_" + strings.ToUpper(name)
}

// FlagName returns the command line flag for option name.
func FlagName(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

// Env looks up an environment variable. os.LookupEnv satisfies it.
type Env func(key string) (string, bool)

// MapEnv returns an Env backed by m.
func MapEnv(m map[string]string) Env {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

var _ Env = os.LookupEnv

// Options are the values declared for a lookup, usually at call time. Any of
// them may be empty.
type Options struct {
	Host           string
	APIToken       string
	PrivateKeyFile string
	Device         string
	SecretName     string
}

func (o Options) get(name string) string {
	switch name {
	case OptionHost:
		return o.Host
	case OptionAPIToken:
		return o.APIToken
	case OptionPrivateKeyFile:
		return o.PrivateKeyFile
	case OptionDevice:
		return o.Device
	case OptionSecretName:
		return o.SecretName
	}
	return ""
}

// Request is the fully resolved configuration for one lookup.
type Request struct {
	Host           string
	APIToken       string
	PrivateKeyFile string
	Device         string
	SecretName     string
}

// String describes the request with the API token redacted.
func (r Request) String() string {
	token := ""
	if r.APIToken != "" {
		token = "[REDACTED]"
	}
	return fmt.Sprintf("Request{Host: %q, APIToken: %q, PrivateKeyFile: %q, Device: %q, SecretName: %q}",
		r.Host, token, r.PrivateKeyFile, r.Device, r.SecretName)
}

// GoString is the same as String so %#v doesn't print the token either.
func (r Request) GoString() string {
	return r.String()
}

// ResolveOption returns the value of the environment variable for option name
// if it is set and not empty, and declared otherwise.
func ResolveOption(env Env, name, declared string) string {
	if env != nil {
		if v, ok := env(EnvVarName(name)); ok && v != "" {
			return v
		}
	}
	return declared
}

// Resolve resolves every option independently, so a request may mix values
// from the environment and declared values. Path options are expanded.
// If any option is empty after resolution, a ConfigurationError naming all of
// them is returned. A path that cannot be expanded is also a
// ConfigurationError.
func Resolve(env Env, declared Options) (Request, error) {
	values := make(map[string]string, len(OptionSchema))
	var missing []string

	for _, opt := range OptionSchema {
		v := ResolveOption(env, opt.Name, declared.get(opt.Name))
		if v == "" {
			if opt.Required {
				missing = append(missing, opt.Name)
			}
			continue
		}
		if opt.Type == TypePath {
			p, err := osutil.NormalizeFilePath(v)
			if err != nil {
				return Request{}, &ConfigurationError{Invalid: opt.Name, Err: err}
			}
			v = p
		}
		values[opt.Name] = v
	}

	if len(missing) > 0 {
		return Request{}, &ConfigurationError{Missing: missing}
	}

	return Request{
		Host:           values[OptionHost],
		APIToken:       values[OptionAPIToken],
		PrivateKeyFile: values[OptionPrivateKeyFile],
		Device:         values[OptionDevice],
		SecretName:     values[OptionSecretName],
	}, nil
}
