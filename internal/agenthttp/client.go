// Package agenthttp creates [net/http.Client]s for talking to the NetBox API,
// with the credentials and transport options shared by every request.
package agenthttp

import (
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"
)

// DefaultTimeout is the client timeout unless WithTimeout says otherwise.
const DefaultTimeout = 60 * time.Second

// NewClient creates a HTTP client. The timeout covers the whole request,
// including reading the body. Clients with the same transport options share
// one transport and its idle connections.
func NewClient(opts ...ClientOption) *http.Client {
	conf := clientConfig{
		AllowHTTP2: true,
		Timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&conf)
	}

	var rt http.RoundTripper = sharedTransport(transportKey{
		AllowHTTP2: conf.AllowHTTP2,
		TLSConfig:  conf.TLSConfig,
	})
	if conf.Token != "" || conf.Bearer != "" {
		rt = &authenticatedTransport{
			Token:    conf.Token,
			Bearer:   conf.Bearer,
			Delegate: rt,
		}
	}

	return &http.Client{Timeout: conf.Timeout, Transport: rt}
}

type ClientOption = func(*clientConfig)

// WithAuthToken sends "Authorization: Token <t>", used by NetBox v1 API tokens.
func WithAuthToken(t string) ClientOption { return func(c *clientConfig) { c.Token = t } }

// WithAuthBearer sends "Authorization: Bearer <b>", used by NetBox v2 "nbt_"
// tokens.
func WithAuthBearer(b string) ClientOption { return func(c *clientConfig) { c.Bearer = b } }

func WithAllowHTTP2(a bool) ClientOption       { return func(c *clientConfig) { c.AllowHTTP2 = a } }
func WithTimeout(d time.Duration) ClientOption { return func(c *clientConfig) { c.Timeout = d } }
func WithTLSConfig(t *tls.Config) ClientOption { return func(c *clientConfig) { c.TLSConfig = t } }

type clientConfig struct {
	Token      string
	Bearer     string
	AllowHTTP2 bool
	Timeout    time.Duration
	TLSConfig  *tls.Config
}

type transportKey struct {
	AllowHTTP2 bool
	TLSConfig  *tls.Config
}

var (
	transportsMu sync.Mutex
	transports   = make(map[transportKey]*http.Transport)
)

func sharedTransport(key transportKey) *http.Transport {
	transportsMu.Lock()
	defer transportsMu.Unlock()

	t := transports[key]
	if t == nil {
		t = newTransport(key)
		transports[key] = t
	}
	return t
}

func newTransport(key transportKey) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	// TLSClientConfig has to be in place before http2.ConfigureTransports.
	if key.TLSConfig != nil {
		t.TLSClientConfig = key.TLSConfig.Clone()
	}

	if !key.AllowHTTP2 {
		t.ForceAttemptHTTP2 = false
		t.TLSNextProto = make(map[string]func(string, *tls.Conn) http.RoundTripper)
		// Without this ALPN still offers h2. See
		// https://github.com/golang/go/issues/50571
		if t.TLSClientConfig == nil {
			t.TLSClientConfig = &tls.Config{}
		}
		t.TLSClientConfig.NextProtos = []string{"http/1.1"}
		return t
	}

	// ConfigureTransports adds h2 to t in place. The returned http2.Transport
	// is only kept to set ReadIdleTimeout, which health-checks idle h2
	// connections so a dead one is not reused. See
	// https://github.com/golang/go/issues/59690
	h2, err := http2.ConfigureTransports(t)
	if err != nil {
		// Only possible if t already speaks h2, and a fresh clone does not.
		panic("http2.ConfigureTransports: " + err.Error())
	}
	h2.ReadIdleTimeout = 30 * time.Second
	return t
}
