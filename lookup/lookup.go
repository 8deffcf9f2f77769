// Package lookup fetches the plaintext of a single NetBox secret.
//
// A SecretLookup resolves its five options (host, api_token,
// private_key_file, device and secret_name), preferring ANSIBLE_NETBOX_*
// environment variables over declared values, opens a NetBox session and
// returns the plaintext of the one secret that matches.
package lookup

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/buildkite/netbox-secrets/api"
	"github.com/buildkite/netbox-secrets/logger"
	"github.com/buildkite/netbox-secrets/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// SecretsClient queries secrets on behalf of an authenticated session.
// *api.Session implements it.
type SecretsClient interface {
	GetSecret(ctx context.Context, device, name string) (*api.Secret, error)
}

// ClientFactory opens a session with the NetBox server at host.
type ClientFactory func(ctx context.Context, host, privateKeyFile, token string) (SecretsClient, error)

// SecretLookup retrieves secrets. It holds no per-lookup state and is safe for
// concurrent use.
type SecretLookup struct {
	factory ClientFactory
	logger  logger.Logger
	env     Env
	tracer  trace.Tracer
	metrics *metrics.Scope
}

// Option configures a SecretLookup.
type Option func(*SecretLookup)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(s *SecretLookup) { s.logger = l }
}

// WithEnv sets how environment variables are read. The default is
// os.LookupEnv.
func WithEnv(env Env) Option {
	return func(s *SecretLookup) { s.env = env }
}

// WithTracer records a span for every lookup.
func WithTracer(t trace.Tracer) Option {
	return func(s *SecretLookup) { s.tracer = t }
}

// WithMetrics counts and times every lookup.
func WithMetrics(scope *metrics.Scope) Option {
	return func(s *SecretLookup) { s.metrics = scope }
}

// New returns a SecretLookup that opens sessions with factory. A nil factory
// means no NetBox client is available, and New returns a DependencyError.
func New(factory ClientFactory, opts ...Option) (*SecretLookup, error) {
	if factory == nil {
		return nil, &DependencyError{Reason: "no NetBox client available"}
	}

	s := &SecretLookup{
		factory: factory,
		logger:  logger.Discard,
		env:     os.LookupEnv,
		tracer:  noop.NewTracerProvider().Tracer(""),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Run resolves the options, opens a session and returns the plaintext of the
// secret. terms are accepted for compatibility with lookup callers and
// otherwise ignored.
//
// Every call makes exactly one session and one query. Nothing is cached and
// nothing is retried.
func (s *SecretLookup) Run(ctx context.Context, terms []string, declared Options) (plaintext string, err error) {
	if s == nil || s.factory == nil {
		return "", &DependencyError{Reason: "lookup was not constructed with New"}
	}

	ctx, span := s.tracer.Start(ctx, "netbox_secrets.lookup", trace.WithSpanKind(trace.SpanKindClient))
	start := time.Now()
	var req Request
	defer func() {
		tags := metrics.Tags{"result": resultTag(err)}
		s.metrics.Count("lookup.count", 1, tags)
		s.metrics.Timing("lookup.duration", time.Since(start), tags)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, resultTag(err))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	req, err = Resolve(s.env, declared)
	if err != nil {
		return "", err
	}

	span.SetAttributes(
		attribute.String("netbox.device", req.Device),
		attribute.String("netbox.secret_name", req.SecretName),
	)

	l := s.logger.WithFields(
		logger.StringField("device", req.Device),
		logger.StringField("secret_name", req.SecretName),
	)
	l.Debug("Looking up secret on %s (ignoring %d terms)", req.Host, len(terms))

	client, err := s.factory(ctx, req.Host, req.PrivateKeyFile, req.APIToken)
	if err != nil {
		return "", &RemoteError{Op: "session", Err: err}
	}

	secret, err := client.GetSecret(ctx, req.Device, req.SecretName)
	if err != nil {
		return "", &RemoteError{Op: "query", Err: err}
	}
	if secret == nil {
		return "", &RemoteError{Op: "query", Err: api.ErrSecretNotFound}
	}
	if secret.Plaintext == nil {
		return "", &RemoteError{Op: "query", Err: api.ErrSecretLocked}
	}

	l.Debug("Found secret %d", secret.ID)
	return *secret.Plaintext, nil
}

func resultTag(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsConfigurationError(err):
		return "configuration_error"
	case errors.Is(err, api.ErrSecretNotFound):
		return "not_found"
	case errors.Is(err, api.ErrMultipleSecrets):
		return "ambiguous"
	default:
		return "error"
	}
}
