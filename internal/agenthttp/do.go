package agenthttp

import (
	"crypto/tls"
	"net/http"
	"net/http/httptrace"
	"net/http/httputil"
	"strings"
	"sync"
	"time"

	"github.com/buildkite/netbox-secrets/logger"
)

const redacted = "[REDACTED]"

// Do wraps the http.Client's Do method with debug logging and tracing options.
func Do(l logger.Logger, client *http.Client, req *http.Request, opts ...DoOption) (*http.Response, error) {
	var cfg doConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.debugHTTP {
		// Form bodies carry the private key and are never dumped.
		dumpBody := !cfg.sensitiveBody && !strings.Contains(req.Header.Get("Content-Type"), "form")
		dump, err := withMaskedHeaders(req.Header, cfg.sensitiveHeaders, func() ([]byte, error) {
			return httputil.DumpRequestOut(req, dumpBody)
		})
		if err != nil {
			l.Debug("ERR: %s\n%s", err, dump)
		} else {
			l.Debug("%s", dump)
		}
	}

	var timings *timingTrace
	if cfg.traceHTTP {
		timings = newTimingTrace(req)
		req = req.WithContext(httptrace.WithClientTrace(req.Context(), timings.clientTrace()))
	}

	ts := time.Now()
	l.Debug("%s %s", req.Method, req.URL)

	resp, err := client.Do(req)
	if err != nil {
		if timings != nil {
			l.WithFields(timings.snapshot()...).Error("HTTP Timing Trace")
		}
		return nil, err
	}

	l.WithFields(
		logger.StringField("proto", resp.Proto),
		logger.IntField("status", resp.StatusCode),
		logger.DurationField("Δ", time.Since(ts)),
	).Debug("↳ %s %s", req.Method, req.URL)

	if cfg.debugHTTP {
		dump, err := withMaskedHeaders(resp.Header, cfg.sensitiveHeaders, func() ([]byte, error) {
			return httputil.DumpResponse(resp, !cfg.sensitiveBody)
		})
		if err != nil {
			l.Debug("\nERR: %s\n%s", err, dump)
		} else {
			l.Debug("\n%s", dump)
		}
	}
	if timings != nil {
		l.WithFields(timings.snapshot()...).Debug("HTTP Timing Trace")
	}

	return resp, nil
}

type DoOption = func(*doConfig)

type doConfig struct {
	debugHTTP        bool
	traceHTTP        bool
	sensitiveBody    bool
	sensitiveHeaders []string
}

func WithDebugHTTP(d bool) DoOption { return func(c *doConfig) { c.debugHTTP = d } }
func WithTraceHTTP(t bool) DoOption { return func(c *doConfig) { c.traceHTTP = t } }

// WithSensitiveBody limits debug dumps of the request and response to their
// headers.
func WithSensitiveBody(c *doConfig) { c.sensitiveBody = true }

// WithSensitiveHeaders replaces the values of the named headers with
// [REDACTED] in debug dumps. The request itself is unchanged.
func WithSensitiveHeaders(names ...string) DoOption {
	return func(c *doConfig) { c.sensitiveHeaders = append(c.sensitiveHeaders, names...) }
}

// withMaskedHeaders runs dump with the named header values swapped out, and
// restores them afterwards.
func withMaskedHeaders(h http.Header, names []string, dump func() ([]byte, error)) ([]byte, error) {
	saved := make(map[string][]string, len(names))
	for _, name := range names {
		key := http.CanonicalHeaderKey(name)
		if v, ok := h[key]; ok {
			saved[key] = v
			h[key] = []string{redacted}
		}
	}
	defer func() {
		for key, v := range saved {
			h[key] = v
		}
	}()
	return dump()
}

// timingTrace collects connection events as log fields, each timed from the
// start of the request.
type timingTrace struct {
	start time.Time

	mu     sync.Mutex
	fields logger.Fields
}

func newTimingTrace(req *http.Request) *timingTrace {
	t := &timingTrace{start: time.Now()}
	t.fields.Add(
		logger.StringField("method", req.Method),
		logger.StringField("uri", req.URL.String()),
	)
	return t
}

func (t *timingTrace) add(fields ...logger.Field) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fields.Add(fields...)
}

func (t *timingTrace) mark(event string) {
	t.add(logger.DurationField(event, time.Since(t.start)))
}

// snapshot returns the fields collected so far. Dialers may still be
// reporting on other goroutines after the request fails.
func (t *timingTrace) snapshot() logger.Fields {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append(logger.Fields(nil), t.fields...)
}

func (t *timingTrace) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn: func(hostPort string) {
			t.add(logger.StringField("hostPort", hostPort))
			t.mark("getConn")
		},
		GotConn: func(info httptrace.GotConnInfo) {
			t.mark("gotConn")
			t.add(
				logger.BoolField("reused", info.Reused),
				logger.BoolField("idle", info.WasIdle),
				logger.DurationField("idleTime", info.IdleTime),
			)
		},
		DNSStart:          func(httptrace.DNSStartInfo) { t.mark("dnsStart") },
		DNSDone:           func(httptrace.DNSDoneInfo) { t.mark("dnsDone") },
		ConnectStart:      func(network, addr string) { t.mark("connectStart." + network + "." + addr) },
		ConnectDone:       func(network, addr string, _ error) { t.mark("connectDone." + network + "." + addr) },
		TLSHandshakeStart: func() { t.mark("tlsHandshakeStart") },
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			t.mark("tlsHandshakeDone")
			t.add(logger.StringField("alpn", state.NegotiatedProtocol))
		},
		WroteHeaders:         func() { t.mark("wroteHeaders") },
		WroteRequest:         func(httptrace.WroteRequestInfo) { t.mark("wroteRequest") },
		GotFirstResponseByte: func() { t.mark("gotFirstResponseByte") },
	}
}
