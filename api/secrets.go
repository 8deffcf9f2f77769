package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/buildkite/netbox-secrets/internal/agenthttp"
)

var (
	// ErrSecretNotFound is returned by GetSecret when no secret matches.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrMultipleSecrets is returned by GetSecret when more than one secret
	// matches.
	ErrMultipleSecrets = errors.New("more than one secret matches")

	// ErrSecretLocked is returned by GetSecret when the secret was found but
	// NetBox did not decrypt it.
	ErrSecretLocked = errors.New("secret has no plaintext")
)

// NestedDevice is the abbreviated device NetBox embeds in a secret.
type NestedDevice struct {
	ID          int    `json:"id"`
	URL         string `json:"url,omitempty"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
}

// NestedSecretRole is the abbreviated role NetBox embeds in a secret.
type NestedSecretRole struct {
	ID   int    `json:"id"`
	URL  string `json:"url,omitempty"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// NestedTag is a tag as NetBox 2.9 and later embed it. Earlier releases send
// bare tag names, which decode into Name and Slug.
type NestedTag struct {
	ID    int    `json:"id"`
	URL   string `json:"url,omitempty"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Color string `json:"color,omitempty"`
}

func (t *NestedTag) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*t = NestedTag{Name: name, Slug: name}
		return nil
	}

	type nestedTag NestedTag
	return json.Unmarshal(data, (*nestedTag)(t))
}

// Secret is a NetBox secret. Plaintext is only present when the request was
// made with a session key.
//
// Before NetBox 2.10 a secret belongs to Device. From 2.10 it is assigned to
// any object, named by AssignedObjectType and AssignedObjectID, and Device is
// nil.
type Secret struct {
	ID                 int               `json:"id"`
	URL                string            `json:"url,omitempty"`
	Device             *NestedDevice     `json:"device,omitempty"`
	AssignedObjectType string            `json:"assigned_object_type,omitempty"`
	AssignedObjectID   int               `json:"assigned_object_id,omitempty"`
	AssignedObject     json.RawMessage   `json:"assigned_object,omitempty"`
	Role               *NestedSecretRole `json:"role,omitempty"`
	Name               string            `json:"name"`
	Plaintext          *string           `json:"plaintext"`
	Hash               string            `json:"hash,omitempty"`
	Tags               []NestedTag       `json:"tags,omitempty"`
	CustomFields       map[string]any    `json:"custom_fields,omitempty"`
	Created            string            `json:"created,omitempty"`
	LastUpdated        *time.Time        `json:"last_updated,omitempty"`
}

// SecretList is a page of secrets.
type SecretList struct {
	Count    int       `json:"count"`
	Next     *string   `json:"next"`
	Previous *string   `json:"previous"`
	Results  []*Secret `json:"results"`
}

// ListSecretsOptions filters the secrets list.
type ListSecretsOptions struct {
	Device   string `url:"device,omitempty"`
	DeviceID int    `url:"device_id,omitempty"`
	Name     string `url:"name,omitempty"`
	Limit    int    `url:"limit,omitempty"`
}

// ListSecrets returns the secrets matching opt, decrypted with the session
// key.
func (s *Session) ListSecrets(ctx context.Context, opt *ListSecretsOptions) (*SecretList, *Response, error) {
	u, err := addOptions("secrets/secrets/", opt)
	if err != nil {
		return nil, nil, err
	}

	req, err := s.client.newRequest(ctx, "GET", u, nil, s.header())
	if err != nil {
		return nil, nil, err
	}

	list := &SecretList{}
	resp, err := s.client.doRequest(req, list,
		agenthttp.WithSensitiveBody,
		agenthttp.WithSensitiveHeaders(sessionKeyHeader),
	)
	if err != nil {
		return nil, resp, err
	}

	return list, resp, nil
}

// GetSecret returns the one secret named name on device. It is an error for
// zero or several secrets to match.
func (s *Session) GetSecret(ctx context.Context, device, name string) (*Secret, error) {
	list, _, err := s.ListSecrets(ctx, &ListSecretsOptions{Device: device, Name: name})
	if err != nil {
		return nil, err
	}

	count := max(list.Count, len(list.Results))
	switch {
	case len(list.Results) == 0:
		return nil, fmt.Errorf("%w: %q on device %q", ErrSecretNotFound, name, device)
	case count > 1:
		return nil, fmt.Errorf("%w: %d secrets named %q on device %q", ErrMultipleSecrets, count, name, device)
	}

	secret := list.Results[0]
	if secret.Plaintext == nil {
		return nil, fmt.Errorf("%w: %q on device %q", ErrSecretLocked, name, device)
	}

	return secret, nil
}
