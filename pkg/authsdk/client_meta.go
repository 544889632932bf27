package authsdk

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/consoleauth/pkg/jwtx"
)

// Paths that need no session.
const (
	LivenessPath = "/livez"
	JWKSPath     = "/.well-known/jwks.json"
)

// Liveness checks that the backend is up.
func (c *SDKClient) Liveness(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, LivenessPath, nil, nil)
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := decodeJSON(resp, &health, defaultMessage); err != nil {
		return nil, err
	}
	return &health, nil
}

// JWKS fetches the keys access tokens are signed with. A resource server
// loads them with jwtx.KeySet.ResetFromJWKS.
func (c *SDKClient) JWKS(ctx context.Context) (jwtx.JWKS, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, JWKSPath, nil, nil)
	if err != nil {
		return jwtx.JWKS{}, err
	}

	var set jwtx.JWKS
	if err := decodeJSON(resp, &set, defaultMessage); err != nil {
		return jwtx.JWKS{}, err
	}
	return set, nil
}
