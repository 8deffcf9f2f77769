package api

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/buildkite/netbox-secrets/internal/agenthttp"
	"github.com/buildkite/netbox-secrets/internal/osutil"
	"golang.org/x/crypto/ssh"
)

// privateKeyLimit bounds how much of a private key file is read. A 4096 bit
// RSA key in PEM form is a little over 3KiB.
const privateKeyLimit = 64 * 1024

const sessionKeyHeader = "X-Session-Key"

// SessionKey is the response to a session key request. The key is opaque; it
// is only ever sent back to NetBox in the X-Session-Key header.
type SessionKey struct {
	SessionKey string `json:"session_key"`
}

var errNoPrivateKey = errors.New("no private key configured")

// ReadPrivateKey reads a PEM encoded private key from path. Keys in the
// OpenSSH format that ssh-keygen writes by default are converted to the PKCS#1
// "RSA PRIVATE KEY" form NetBox expects. Other PEM blocks are returned as they
// are; NetBox parses them.
func ReadPrivateKey(path string) (string, error) {
	if path == "" {
		return "", errNoPrivateKey
	}

	data, err := osutil.ReadFileLimited(path, privateKeyLimit)
	if err != nil {
		return "", fmt.Errorf("reading private key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return "", fmt.Errorf("private key file %s does not contain a PEM block", path)
	}

	if block.Type == "OPENSSH PRIVATE KEY" {
		pk, err := openSSHToPKCS1(data)
		if err != nil {
			return "", fmt.Errorf("private key file %s: %w", path, err)
		}
		return pk, nil
	}

	return string(data), nil
}

func openSSHToPKCS1(data []byte) (string, error) {
	key, err := ssh.ParseRawPrivateKey(data)
	if err != nil {
		var passErr *ssh.PassphraseMissingError
		if errors.As(err, &passErr) {
			return "", errors.New("passphrase protected keys are not supported")
		}
		return "", fmt.Errorf("parsing OpenSSH private key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return "", fmt.Errorf("NetBox needs an RSA key, not %T", key)
	}

	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(rsaKey),
	})), nil
}

// GetSessionKey exchanges the user's private key for a session key. NetBox
// keeps the existing session key (preserve_key) so concurrent lookups by the
// same user don't invalidate each other.
func (c *Client) GetSessionKey(ctx context.Context, privateKey string) (*SessionKey, *Response, error) {
	if strings.TrimSpace(privateKey) == "" {
		return nil, nil, errNoPrivateKey
	}

	form := url.Values{}
	form.Set("private_key", privateKey)

	req, err := c.newRequest(ctx, "POST", "secrets/get-session-key/?preserve_key=True",
		strings.NewReader(form.Encode()),
		Header{Name: "Content-Type", Value: "application/x-www-form-urlencoded"},
	)
	if err != nil {
		return nil, nil, err
	}

	sk := &SessionKey{}
	resp, err := c.doRequest(req, sk, agenthttp.WithSensitiveBody)
	if err != nil {
		return nil, resp, err
	}

	if sk.SessionKey == "" {
		return nil, resp, errors.New("NetBox returned an empty session key")
	}

	return sk, resp, nil
}

// A Session is a Client that has unlocked the user's secrets. Secrets fetched
// through a Session carry their decrypted plaintext.
type Session struct {
	client *Client
	key    string
}

// OpenSession reads the private key from the Client configuration and
// performs the session key handshake.
func (c *Client) OpenSession(ctx context.Context) (*Session, error) {
	privateKey := c.conf.PrivateKey
	if privateKey == "" {
		pk, err := ReadPrivateKey(c.conf.PrivateKeyFile)
		if err != nil {
			return nil, err
		}
		privateKey = pk
	}

	sk, _, err := c.GetSessionKey(ctx, privateKey)
	if err != nil {
		return nil, fmt.Errorf("getting session key: %w", err)
	}

	return &Session{client: c, key: sk.SessionKey}, nil
}

func (s *Session) header() Header {
	return Header{Name: sessionKeyHeader, Value: s.key}
}
