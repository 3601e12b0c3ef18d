// ABOUTME: Session lifecycle endpoints: CSRF preflight, login, logout, identity
// ABOUTME: 401 from any of these is session-fatal per the error taxonomy

package api

import (
	"context"
	"net/http"
)

// csrf performs the cookie preflight the backend requires before
// credentialed POSTs. The cookie lands in the client's jar.
func (c *Client) csrf(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/sanctum/csrf-cookie", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Credentials are the operator login fields.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse carries the session token issued on login.
type loginResponse struct {
	Token string    `json:"token"`
	User  *Identity `json:"user,omitempty"`
}

// Login runs the CSRF preflight then submits credentials. Returns the
// issued bearer token and, when the backend includes it, the operator
// identity.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, *Identity, error) {
	if err := c.csrf(ctx); err != nil {
		return "", nil, err
	}
	var out loginResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/login", creds, &out); err != nil {
		return "", nil, err
	}
	return out.Token, out.User, nil
}

// Logout invalidates the server-side session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.csrf(ctx); err != nil {
		return err
	}
	return c.sendJSON(ctx, http.MethodPost, "/logout", struct{}{}, nil)
}

// meResponse wraps the identity payload of GET /api/user.
type meResponse struct {
	User Identity `json:"user"`
}

// Me fetches the authenticated operator's identity.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var out meResponse
	if err := c.getJSON(ctx, "/api/user", &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}
