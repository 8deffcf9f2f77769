package lookup

import (
	"context"

	"github.com/buildkite/netbox-secrets/api"
	"github.com/buildkite/netbox-secrets/logger"
)

// NetBoxClientFactory returns a ClientFactory that talks to a real NetBox
// server. conf supplies the transport settings; the endpoint, token and
// private key file come from each lookup.
func NetBoxClientFactory(l logger.Logger, conf api.Config) ClientFactory {
	return func(ctx context.Context, host, privateKeyFile, token string) (SecretsClient, error) {
		endpoint, err := api.EndpointFromHost(host)
		if err != nil {
			return nil, err
		}

		c := conf
		c.Endpoint = endpoint
		c.Token = token
		c.PrivateKey = ""
		c.PrivateKeyFile = privateKeyFile

		return api.NewClient(l, c).OpenSession(ctx)
	}
}
