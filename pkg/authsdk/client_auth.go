package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/consoleauth/pkg/tokenstore"
)

// Login exchanges email and password for a session. On success the
// credential is durable in the store and EventLoginSucceeded has been
// delivered before Login returns, so the caller may navigate immediately.
//
// A rejected login returns *APIError and leaves the store untouched.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	req := LoginRequest{Email: strings.TrimSpace(email), Password: password}
	if req.Email == "" || req.Password == "" {
		return nil, ErrValidation.WithMessage(loginMessage(http.StatusBadRequest))
	}

	resp, err := c.doJSON(ctx, http.MethodPost, LoginPath, req)
	if err != nil {
		return nil, err
	}

	var out LoginResponse
	if err := decodeJSON(resp, &out, loginMessage); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, errors.New("authsdk: login response carried no token")
	}

	if err := c.Store.Write(out.Credential(time.Now())); err != nil {
		return nil, fmt.Errorf("authsdk: storing credential: %w", err)
	}
	c.Store.Signal(tokenstore.EventLoginSucceeded)

	c.logger.Info("login succeeded", "user_id", out.ID, "role", out.Role)
	return &out, nil
}

// Register creates an account. It does not log in.
func (c *SDKClient) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, RegisterPath, req)
	if err != nil {
		return nil, err
	}

	var out RegisterResponse
	if err := decodeJSON(resp, &out, defaultMessage); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout tells the backend to drop the session and clears the store
// whatever the backend says. The backend's error, if any, is returned after
// the store is cleared.
func (c *SDKClient) Logout(ctx context.Context) error {
	var remoteErr error
	if _, ok := c.Store.Read(); ok {
		resp, err := c.doRequest(ctx, http.MethodPost, LogoutPath, nil, nil)
		if err != nil {
			remoteErr = err
		} else {
			remoteErr = decodeJSON(resp, nil, defaultMessage)
		}
	}

	if err := c.Store.Clear(); err != nil {
		return errors.Join(remoteErr, fmt.Errorf("authsdk: clearing credential: %w", err))
	}

	if remoteErr != nil {
		c.logger.Warn("remote logout failed, local session cleared anyway", "err", remoteErr)
	}
	return remoteErr
}

// Me returns the account behind the current access token.
func (c *SDKClient) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.Do(ctx, http.MethodGet, MePath, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListChallenges reads the sample protected resource.
func (c *SDKClient) ListChallenges(ctx context.Context) (*ChallengeList, error) {
	var out ChallengeList
	if err := c.Do(ctx, http.MethodGet, ChallengesPath, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh renews the access token through the shared coordinator.
func (c *SDKClient) Refresh(ctx context.Context) (string, error) {
	return c.refresher.Refresh(ctx)
}
