package clicommand

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/buildkite/netbox-secrets/api"
	"github.com/buildkite/netbox-secrets/cliconfig"
	"github.com/buildkite/netbox-secrets/internal/redact"
	"github.com/buildkite/netbox-secrets/internal/tracing"
	"github.com/buildkite/netbox-secrets/lookup"
	"github.com/buildkite/netbox-secrets/metrics"
	"github.com/urfave/cli"
)

const lookupDescription = `Usage:

    netbox-secrets lookup [options...] [terms...]

Description:

Fetches a secret from NetBox and prints its plaintext to stdout.

The secret is identified by ′--device′ and ′--secret-name′. The NetBox server
is given with ′--host′, ′--api-token′ and ′--private-key-file′; the private
key unlocks the user's secrets for the duration of the lookup.

Every option can also be set with an ANSIBLE_NETBOX_* environment variable,
and the environment variable wins over the flag:

    --host              ANSIBLE_NETBOX_HOST
    --api-token         ANSIBLE_NETBOX_API_TOKEN
    --private-key-file  ANSIBLE_NETBOX_PRIVATE_KEY_FILE
    --device            ANSIBLE_NETBOX_DEVICE
    --secret-name       ANSIBLE_NETBOX_SECRET_NAME

Any terms are accepted and ignored.

Exit status is 0 on success, 2 if an option is missing or invalid, 3 if no
NetBox client is available, and 1 for anything else, including a secret that
doesn't exist.

Example:

    $ export ANSIBLE_NETBOX_HOST=https://netbox.example.com
    $ export ANSIBLE_NETBOX_API_TOKEN=0123456789abcdef0123456789abcdef01234567
    $ netbox-secrets lookup --private-key-file ~/.ssh/netbox_rsa \
        --device router1 --secret-name admin
    s3cr3t

    $ netbox-secrets lookup --format json --device router1 --secret-name admin
    {"_raw":"s3cr3t"}`

type LookupConfig struct {
	GlobalConfig
	APIConfig

	Terms []string `cli:"arg:*"`

	Host           string `cli:"host"`
	APIToken       string `cli:"api-token"`
	PrivateKeyFile string `cli:"private-key-file"`
	Device         string `cli:"device"`
	SecretName     string `cli:"secret-name"`

	Format  string `cli:"format"`
	EnvFile string `cli:"env-file" normalize:"filepath" validate:"file-exists"`
}

// lookupFlags are deliberately not bound to environment variables here.
// lookup.Resolve gives the ANSIBLE_NETBOX_* variables precedence over these
// flags, which is the reverse of what EnvVar would do.
func lookupFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  lookup.FlagName(lookup.OptionHost),
			Usage: "URL of the NetBox server (env " + lookup.EnvVarName(lookup.OptionHost) + ")",
		},
		cli.StringFlag{
			Name:  lookup.FlagName(lookup.OptionAPIToken),
			Usage: "NetBox API token (env " + lookup.EnvVarName(lookup.OptionAPIToken) + ")",
		},
		cli.StringFlag{
			Name:  lookup.FlagName(lookup.OptionPrivateKeyFile),
			Usage: "Path to the RSA private key that unlocks your NetBox secrets (env " + lookup.EnvVarName(lookup.OptionPrivateKeyFile) + ")",
		},
		cli.StringFlag{
			Name:  lookup.FlagName(lookup.OptionDevice),
			Usage: "Name of the device the secret belongs to (env " + lookup.EnvVarName(lookup.OptionDevice) + ")",
		},
		cli.StringFlag{
			Name:  lookup.FlagName(lookup.OptionSecretName),
			Usage: "Name of the secret (env " + lookup.EnvVarName(lookup.OptionSecretName) + ")",
		},
		cli.StringFlag{
			Name:   "format",
			Value:  "raw",
			Usage:  "The output format, either 'raw' (the plaintext) or 'json' ({\"_raw\": plaintext})",
			EnvVar: "NETBOX_SECRETS_FORMAT",
		},
		cli.StringFlag{
			Name:   "env-file",
			Usage:  "Load environment variables from a dotenv file before resolving options. Variables already set are kept",
			EnvVar: "NETBOX_SECRETS_ENV_FILE",
		},
	}
}

var LookupCommand = cli.Command{
	Name:        "lookup",
	Usage:       "Print the plaintext of a NetBox secret",
	Description: lookupDescription,
	Flags:       slices.Concat(globalFlags(), apiFlags(), lookupFlags()),
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		ctx, cfg, l, redactor, err := setupLoggerAndConfig[LookupConfig](ctx, c)
		if err != nil {
			return err
		}

		if cfg.Format != "raw" && cfg.Format != "json" {
			return NewExitError(ExitCodeConfiguration, fmt.Errorf("invalid format %q: must be either 'raw' or 'json'", cfg.Format))
		}

		if cfg.EnvFile != "" {
			if err := cliconfig.LoadEnvFile(cfg.EnvFile); err != nil {
				return NewExitError(ExitCodeConfiguration, err)
			}
			l.Debug("Loaded environment from %s", cfg.EnvFile)
		}

		declared := lookup.Options{
			Host:           cfg.Host,
			APIToken:       cfg.APIToken,
			PrivateKeyFile: cfg.PrivateKeyFile,
			Device:         cfg.Device,
			SecretName:     cfg.SecretName,
		}

		// Scrub the credentials from anything logged from here on.
		if req, err := lookup.Resolve(os.LookupEnv, declared); err == nil {
			redactCredentials(redactor, req)
		}

		ctx, tracer, stopTracing, err := tracing.Start(ctx, l, tracing.Config{
			Backend:     cfg.TracingBackend,
			ServiceName: cfg.TracingServiceName,
			Env:         os.LookupEnv,
		})
		if err != nil {
			return NewExitError(ExitCodeConfiguration, err)
		}
		defer stopTracing()

		collector := metrics.NewCollector(l, metrics.CollectorConfig{
			Datadog:     cfg.MetricsDatadog,
			DatadogHost: cfg.MetricsDatadogHost,
		})
		if err := collector.Start(); err != nil {
			return fmt.Errorf("starting metrics: %w", err)
		}
		defer collector.Stop() //nolint:errcheck // best effort on the way out

		sl, err := lookup.New(
			lookup.NetBoxClientFactory(l, loadAPIClientConfig(cfg.APIConfig)),
			lookup.WithLogger(l),
			lookup.WithTracer(tracer),
			lookup.WithMetrics(collector.Scope(metrics.Tags{})),
		)
		if err != nil {
			return withLookupExitCode(err)
		}

		plaintext, err := sl.Run(ctx, cfg.Terms, declared)
		if err != nil {
			return withLookupExitCode(err)
		}
		redactor.Add(plaintext)

		return writeLookupResult(outWriter(c), cfg.Format, plaintext)
	},
}

// redactCredentials adds the token and the private key text to r. A key that
// cannot be read is left for the lookup to report.
func redactCredentials(r *redact.Redactor, req lookup.Request) {
	r.Add(req.APIToken)
	if key, err := api.ReadPrivateKey(req.PrivateKeyFile); err == nil {
		r.Add(key)
	}
}

func writeLookupResult(w io.Writer, format, plaintext string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		return enc.Encode(map[string]string{"_raw": plaintext})
	default:
		_, err := fmt.Fprintln(w, plaintext)
		return err
	}
}
