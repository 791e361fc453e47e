package backend

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/identity"
)

type profileResponse struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	AccountNumber string `json:"account_number"`
}

// CurrentUser returns nil without calling the backend when the token is
// missing or expired, and nil when the backend rejects it.
func (c *Client) CurrentUser(ctx context.Context) (*identity.User, error) {
	if c.token == "" || c.tokenExpired() {
		return nil, nil
	}

	resp, err := c.do(ctx, http.MethodGet, profilePath, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch profile")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Newf("fetch profile: %d %s", resp.StatusCode, readError(resp))
	}

	var body profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "decode profile")
	}
	return &identity.User{AccountID: body.AccountNumber, DisplayName: body.Username}, nil
}

// tokenExpired reads exp without verifying the signature; the backend does
// that. Opaque tokens never expire locally.
func (c *Client) tokenExpired() bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !claims.ExpiresAt.After(c.now())
}
