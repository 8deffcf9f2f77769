package agenthttp

import (
	"errors"
	"net/http"
)

// authenticatedTransport injects the NetBox API token into every request.
// Using a transport for this is a little ugly because http.RoundTripper has
// specific requirements, but has precedent (e.g.
// https://github.com/golang/oauth2/blob/master/transport.go).
type authenticatedTransport struct {
	// If set, the header "Authorization: Token %s" will be added to all requests.
	// Mutually incompatible with Bearer.
	Token string

	// If set, the header "Authorization: Bearer %s" will be added to all requests.
	// Mutually incompatible with Token.
	Bearer string

	// Delegate is the underlying HTTP transport
	Delegate http.RoundTripper
}

var errEmptyToken = errors.New("invalid token, empty string supplied")

// RoundTrip invoked each time a request is made.
func (t authenticatedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Per net/http#RoundTripper:
	//
	// "RoundTrip must always close the body, including on errors, ..."
	reqBodyClosed := false
	if req.Body != nil {
		defer func() {
			if !reqBodyClosed {
				req.Body.Close() //nolint:errcheck // req.Body is only used in a read-only manner.
			}
		}()
	}

	if t.Token == "" && t.Bearer == "" {
		return nil, errEmptyToken
	}

	// RoundTrip should not modify the request, but we can pass a _different_
	// request to t.Delegate.RoundTrip. req.Clone deep-copies Header.
	req = req.Clone(req.Context())
	switch {
	case t.Token != "":
		req.Header.Set("Authorization", "Token "+t.Token)
	case t.Bearer != "":
		req.Header.Set("Authorization", "Bearer "+t.Bearer)
	}

	// req.Body is assumed to be closed by the delegate.
	reqBodyClosed = true
	return t.Delegate.RoundTrip(req)
}

// CloseIdleConnections forwards the call to t.Delegate, if it implements
// CloseIdleConnections itself.
func (t *authenticatedTransport) CloseIdleConnections() {
	closer, ok := t.Delegate.(interface{ CloseIdleConnections() })
	if !ok {
		return
	}
	closer.CloseIdleConnections()
}
