// Package api is a client for the parts of the NetBox REST API needed to read
// secrets: the session key handshake and the secrets list endpoint.
package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/buildkite/netbox-secrets/internal/agenthttp"
	"github.com/buildkite/netbox-secrets/logger"
	"github.com/buildkite/netbox-secrets/version"
	"github.com/google/go-querystring/query"
	"github.com/google/uuid"
)

// Config is configuration for the API Client
type Config struct {
	// Endpoint is the API root, e.g. "https://netbox.example.com/api/". Use
	// EndpointFromHost to derive it from a NetBox host URL.
	Endpoint string

	// The NetBox API token. A read only token is enough.
	Token string

	// PrivateKey is the PEM encoded RSA private key of the NetBox user. If
	// empty, PrivateKeyFile is read when a session is opened.
	PrivateKey string

	// PrivateKeyFile is the path to the PEM encoded private key.
	PrivateKeyFile string

	// User agent used when communicating with NetBox.
	UserAgent string

	// If true, only HTTP2 is disabled
	DisableHTTP2 bool

	// If true, requests and responses will be dumped and set to the logger.
	// Bodies that carry key material or plaintext are never dumped.
	DebugHTTP bool

	// If true timings for each request will be logged
	TraceHTTP bool

	// Timeout for each request. Zero means agenthttp.DefaultTimeout.
	Timeout time.Duration

	// The http client used, leave nil for the default
	HTTPClient *http.Client

	// optional TLS configuration primarily used for testing
	TLSConfig *tls.Config
}

// A Client manages communication with the NetBox API.
type Client struct {
	// The client configuration
	conf Config

	// HTTP client used to communicate with the API.
	client *http.Client

	// The logger used
	logger logger.Logger
}

// NewClient returns a new NetBox API Client.
func NewClient(l logger.Logger, conf Config) *Client {
	if conf.UserAgent == "" {
		conf.UserAgent = version.UserAgent()
	}

	if conf.HTTPClient != nil {
		return &Client{
			logger: l,
			client: conf.HTTPClient,
			conf:   conf,
		}
	}

	timeout := conf.Timeout
	if timeout == 0 {
		timeout = agenthttp.DefaultTimeout
	}

	auth := agenthttp.WithAuthToken(conf.Token)
	if strings.HasPrefix(conf.Token, bearerTokenPrefix) {
		auth = agenthttp.WithAuthBearer(conf.Token)
	}

	return &Client{
		logger: l,
		client: agenthttp.NewClient(
			auth,
			agenthttp.WithAllowHTTP2(!conf.DisableHTTP2),
			agenthttp.WithTLSConfig(conf.TLSConfig),
			agenthttp.WithTimeout(timeout),
		),
		conf: conf,
	}
}

// bearerTokenPrefix marks the v2 API tokens introduced in NetBox 4.5, which
// are sent as "Authorization: Bearer <token>". Older tokens use "Token".
const bearerTokenPrefix = "nbt_"

// Config returns the internal configuration for the Client
func (c *Client) Config() Config {
	return c.conf
}

// EndpointFromHost turns a NetBox host URL such as "http://localhost:8000"
// into the API root "http://localhost:8000/api/". A host that already points
// at the API root is returned with a trailing slash.
func EndpointFromHost(host string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(host))
	if err != nil {
		return "", fmt.Errorf("parsing NetBox host %q: %w", host, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("NetBox host %q must be an http or https URL", host)
	}
	if u.Host == "" {
		return "", fmt.Errorf("NetBox host %q has no hostname", host)
	}

	p := strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(p, "/api") {
		p += "/api"
	}
	u.Path = p + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

type Header struct {
	Name  string
	Value string
}

// newRequest creates an API request. urlStr is resolved relative to the
// Endpoint of the Client and should be given without a preceding slash.
func (c *Client) newRequest(
	ctx context.Context,
	method, urlStr string,
	body io.Reader,
	headers ...Header,
) (*http.Request, error) {
	u := joinURLPath(c.conf.Endpoint, urlStr)

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}

	req.Header.Add("User-Agent", c.conf.UserAgent)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("X-Request-ID", uuid.NewString())

	for _, header := range headers {
		req.Header.Add(header.Name, header.Value)
	}

	return req, nil
}

// Response is a NetBox API response. This wraps the standard http.Response.
type Response struct {
	*http.Response
}

func newResponse(r *http.Response) *Response {
	return &Response{Response: r}
}

// doRequest sends an API request and returns the API response. The API
// response is JSON decoded and stored in the value pointed to by v, or
// returned as an error if an API error has occurred.
func (c *Client) doRequest(req *http.Request, v any, opts ...agenthttp.DoOption) (*Response, error) {
	opts = append([]agenthttp.DoOption{
		agenthttp.WithDebugHTTP(c.conf.DebugHTTP),
		agenthttp.WithTraceHTTP(c.conf.TraceHTTP),
	}, opts...)

	resp, err := agenthttp.Do(c.logger, c.client, req, opts...)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()              //nolint:errcheck // the body has been read
	defer io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for connection reuse

	response := newResponse(resp)

	if err := checkResponse(resp); err != nil {
		// even though there was an error, we still return the response
		// in case the caller wants to inspect it further
		return response, err
	}

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return response, fmt.Errorf("failed to decode JSON response: %w", err)
		}
	}

	return response, nil
}

// ErrorResponse is returned for any non-2xx response. NetBox reports errors
// as {"detail": "..."}.
type ErrorResponse struct {
	Response *http.Response // HTTP response that caused this error
	Detail   string         `json:"detail"`
}

func (r *ErrorResponse) Error() string {
	s := fmt.Sprintf("%v %v: %s",
		r.Response.Request.Method, redactedURL(r.Response.Request.URL),
		r.Response.Status)

	if r.Detail != "" {
		s = fmt.Sprintf("%s: %v", s, r.Detail)
	}

	return s
}

// IsErrHavingStatus reports whether err is an ErrorResponse with the given
// HTTP status code.
func IsErrHavingStatus(err error, code int) bool {
	var apierr *ErrorResponse
	return errors.As(err, &apierr) && apierr.Response.StatusCode == code
}

func checkResponse(r *http.Response) error {
	if c := r.StatusCode; 200 <= c && c <= 299 {
		return nil
	}

	errorResponse := &ErrorResponse{Response: r}
	data, err := io.ReadAll(r.Body)
	if err == nil && len(data) > 0 {
		if json.Unmarshal(data, errorResponse) != nil {
			// Not JSON, e.g. an HTML error page from a proxy. Keep it short.
			errorResponse.Detail = truncate(strings.TrimSpace(string(data)), 200)
		}
	}

	return errorResponse
}

// addOptions adds the parameters in opt as URL query parameters to s. opt must
// be a struct whose fields may contain "url" tags.
func addOptions(s string, opt any) (string, error) {
	v := reflect.ValueOf(opt)
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return s, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return s, err
	}

	qs, err := query.Values(opt)
	if err != nil {
		return s, err
	}

	u.RawQuery = qs.Encode()
	return u.String(), nil
}

func joinURLPath(endpoint string, path string) string {
	return strings.TrimRight(endpoint, "/") + "/" + strings.TrimLeft(path, "/")
}

// redactedURL strips userinfo, which a host URL may carry.
func redactedURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
