package clicommand

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/buildkite/netbox-secrets/api"
	"github.com/buildkite/netbox-secrets/cliconfig"
	"github.com/buildkite/netbox-secrets/internal/redact"
	"github.com/buildkite/netbox-secrets/logger"
	"github.com/oleiade/reflections"
	"github.com/urfave/cli"
)

var ConfigFlag = cli.StringFlag{
	Name:   "config",
	Value:  "",
	Usage:  "Path to a configuration file",
	EnvVar: "NETBOX_SECRETS_CONFIG",
}

var DebugFlag = cli.BoolFlag{
	Name:   "debug",
	Usage:  "Enable debug mode. Synonym for ′--log-level debug′. Takes precedence over ′--log-level′",
	EnvVar: "NETBOX_SECRETS_DEBUG",
}

var LogLevelFlag = cli.StringFlag{
	Name:   "log-level",
	Value:  "notice",
	Usage:  "Set the log level for netbox-secrets. Possible values are: \"debug\", \"info\", \"notice\", \"warn\", \"error\", \"fatal\"",
	EnvVar: "NETBOX_SECRETS_LOG_LEVEL",
}

var LogFormatFlag = cli.StringFlag{
	Name:   "log-format",
	Value:  "text",
	Usage:  "The format to use for the logger output, either \"text\" or \"json\"",
	EnvVar: "NETBOX_SECRETS_LOG_FORMAT",
}

var NoColorFlag = cli.BoolFlag{
	Name:   "no-color",
	Usage:  "Don't show colors in logging",
	EnvVar: "NETBOX_SECRETS_NO_COLOR",
}

var DebugHTTPFlag = cli.BoolFlag{
	Name:   "debug-http",
	Usage:  "Enable HTTP debug mode, which dumps request and response headers to the log. Bodies that carry keys or secrets are never dumped",
	EnvVar: "NETBOX_SECRETS_DEBUG_HTTP",
}

var TraceHTTPFlag = cli.BoolFlag{
	Name:   "trace-http",
	Usage:  "Enable HTTP trace mode, which logs timings for each HTTP request",
	EnvVar: "NETBOX_SECRETS_TRACE_HTTP",
}

var NoHTTP2Flag = cli.BoolFlag{
	Name:   "no-http2",
	Usage:  "Disable HTTP2 when communicating with NetBox",
	EnvVar: "NETBOX_SECRETS_NO_HTTP2",
}

var TracingBackendFlag = cli.StringFlag{
	Name:   "tracing-backend",
	Usage:  "Enable tracing of the lookup with the given backend, either \"opentelemetry\" or \"datadog\"",
	EnvVar: "NETBOX_SECRETS_TRACING_BACKEND",
}

var TracingServiceNameFlag = cli.StringFlag{
	Name:   "tracing-service-name",
	Value:  "netbox-secrets",
	Usage:  "Service name to use when reporting traces",
	EnvVar: "NETBOX_SECRETS_TRACING_SERVICE_NAME",
}

var MetricsDatadogFlag = cli.BoolFlag{
	Name:   "metrics-datadog",
	Usage:  "Send lookup counts and timings to a DogStatsD agent",
	EnvVar: "NETBOX_SECRETS_METRICS_DATADOG",
}

var MetricsDatadogHostFlag = cli.StringFlag{
	Name:   "metrics-datadog-host",
	Value:  "127.0.0.1:8125",
	Usage:  "The dogstatsd instance to send metrics to using udp",
	EnvVar: "NETBOX_SECRETS_METRICS_DATADOG_HOST",
}

var TimeoutFlag = cli.DurationFlag{
	Name:   "timeout",
	Value:  0,
	Usage:  "Timeout for each request to NetBox. Defaults to 60s",
	EnvVar: "NETBOX_SECRETS_TIMEOUT",
}

type GlobalConfig struct {
	Config             string `cli:"config"`
	Debug              bool   `cli:"debug"`
	LogLevel           string `cli:"log-level"`
	LogFormat          string `cli:"log-format"`
	NoColor            bool   `cli:"no-color"`
	TracingBackend     string `cli:"tracing-backend"`
	TracingServiceName string `cli:"tracing-service-name"`
	MetricsDatadog     bool   `cli:"metrics-datadog"`
	MetricsDatadogHost string `cli:"metrics-datadog-host"`
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		NoColorFlag,
		DebugFlag,
		LogLevelFlag,
		LogFormatFlag,
		TracingBackendFlag,
		TracingServiceNameFlag,
		MetricsDatadogFlag,
		MetricsDatadogHostFlag,
	}
}

type APIConfig struct {
	DebugHTTP bool          `cli:"debug-http"`
	TraceHTTP bool          `cli:"trace-http"`
	NoHTTP2   bool          `cli:"no-http2"`
	Timeout   time.Duration `cli:"timeout"`
}

func apiFlags() []cli.Flag {
	return []cli.Flag{
		NoHTTP2Flag,
		DebugHTTPFlag,
		TraceHTTPFlag,
		TimeoutFlag,
	}
}

func loadAPIClientConfig(cfg APIConfig) api.Config {
	return api.Config{
		DisableHTTP2: cfg.NoHTTP2,
		DebugHTTP:    cfg.DebugHTTP,
		TraceHTTP:    cfg.TraceHTTP,
		Timeout:      cfg.Timeout,
	}
}

func DefaultConfigFilePaths() []string {
	if runtime.GOOS == "windows" {
		return []string{
			"$USERPROFILE\\AppData\\Local\\netbox-secrets\\netbox-secrets.cfg",
		}
	}
	return []string{
		"$HOME/.netbox-secrets.cfg",
		"/etc/netbox-secrets/netbox-secrets.cfg",
	}
}

// CreateLogger builds the logger described by the LogFormat and NoColor
// fields of cfg, writing to w.
func CreateLogger(cfg any, w io.Writer) (logger.Logger, error) {
	logFormat := "text"
	if v, err := reflections.GetField(cfg, "LogFormat"); err == nil {
		if s, ok := v.(string); ok && s != "" {
			logFormat = s
		}
	}

	var printer logger.Printer
	switch logFormat {
	case "text":
		tp := logger.NewTextPrinter(w)
		if noColor, err := reflections.GetField(cfg, "NoColor"); err == nil && noColor == true {
			tp.Colors = false
		}
		printer = tp
	case "json":
		printer = logger.NewJSONPrinter(w)
	default:
		return nil, fmt.Errorf("invalid log format %q, only \"text\" or \"json\" are allowed", logFormat)
	}

	return logger.NewConsoleLogger(printer, os.Exit), nil
}

// HandleGlobalFlags applies the log level from cfg to l.
func HandleGlobalFlags(l logger.Logger, cfg any) error {
	if logLevel, err := reflections.GetField(cfg, "LogLevel"); err == nil {
		if s, ok := logLevel.(string); ok && s != "" {
			level, err := logger.LevelFromString(s)
			if err != nil {
				return err
			}
			l.SetLevel(level)
		}
	}

	// --debug wins over --log-level
	if debug, err := reflections.GetField(cfg, "Debug"); err == nil && debug == true {
		l.SetLevel(logger.DEBUG)
	}

	return nil
}

// setupLoggerAndConfig loads the command's config and returns a logger that
// writes to the app's error writer through a redactor. Secrets added to the
// redactor later are scrubbed from everything logged after that.
func setupLoggerAndConfig[T any](ctx context.Context, c *cli.Context) (context.Context, *T, logger.Logger, *redact.Redactor, error) {
	cfg := new(T)
	loader := cliconfig.Loader{
		CLI:                    c,
		Config:                 cfg,
		DefaultConfigFilePaths: DefaultConfigFilePaths(),
	}

	warnings, err := loader.Load()
	if err != nil {
		return ctx, nil, nil, nil, NewExitError(ExitCodeConfiguration, err)
	}

	redactor := redact.New()
	l, err := CreateLogger(cfg, redactor.Writer(errWriter(c)))
	if err != nil {
		return ctx, nil, nil, nil, NewExitError(ExitCodeConfiguration, err)
	}
	loader.Logger = l

	// Now that we have a logger, log out the warnings that loading config generated
	for _, warning := range warnings {
		l.Warn("%s", warning)
	}

	if err := HandleGlobalFlags(l, cfg); err != nil {
		return ctx, nil, nil, nil, NewExitError(ExitCodeConfiguration, err)
	}

	if loader.File != nil {
		l.Debug("Loaded config file %s", loader.File.Path)
	}

	return ctx, cfg, l, redactor, nil
}

func errWriter(c *cli.Context) io.Writer {
	if c.App != nil && c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

func outWriter(c *cli.Context) io.Writer {
	if c.App != nil && c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}
