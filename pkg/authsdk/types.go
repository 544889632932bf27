package authsdk

import (
	"time"

	"github.com/aussiebroadwan/consoleauth/pkg/httpx"
	"github.com/aussiebroadwan/consoleauth/pkg/tokenstore"
)

// ============================================================================
// Error Types
// ============================================================================

// ErrorResponse is the wire form of every backend error.
// Client code should use APIError instead.
type ErrorResponse = httpx.ErrorBody

// ============================================================================
// Authentication Types
// ============================================================================

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned from POST /api/auth/login. The refresh token
// is not part of it; it arrives as an HttpOnly cookie.
type LoginResponse struct {
	// Message is a human-readable status line
	Message string `json:"message,omitempty"`

	// Token is the JWT access token
	Token string `json:"token"`

	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Authorities []string `json:"authorities"`

	// ExpiresIn is the access token lifetime in seconds
	ExpiresIn int `json:"expiresIn"`
}

// Credential converts the response into what the token store keeps.
// now anchors the expiry hint.
func (r *LoginResponse) Credential(now time.Time) tokenstore.Credential {
	return tokenstore.Credential{
		AccessToken: r.Token,
		ExpiresAt:   expiresAt(now, r.ExpiresIn),
		Profile: tokenstore.UserProfile{
			ID:          r.ID,
			Username:    r.Username,
			Email:       r.Email,
			Role:        r.Role,
			Authorities: r.Authorities,
		},
	}
}

// RefreshResponse is returned from POST /api/auth/refresh.
type RefreshResponse struct {
	// AccessToken replaces the stored access token
	AccessToken string `json:"accessToken"`

	// ExpiresIn is the new token's lifetime in seconds
	ExpiresIn int `json:"expiresIn"`
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResponse is returned from POST /api/auth/register.
type RegisterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	User    *User  `json:"user,omitempty"`
}

// User is the account shape returned by /api/auth/me and registration.
type User struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Authorities []string `json:"authorities,omitempty"`
}

// MessageResponse is a bare acknowledgement, e.g. from logout.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ============================================================================
// Sample Resource Types
// ============================================================================

// Challenge is one entry of GET /api/challenges.
type Challenge struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Reward      int    `json:"reward"`
	Active      bool   `json:"active"`
}

// ChallengeList is returned from GET /api/challenges.
type ChallengeList struct {
	Challenges []Challenge `json:"challenges"`
}

// ============================================================================
// System Types
// ============================================================================

// HealthResponse is returned from the /livez endpoint.
type HealthResponse struct {
	// Status is "ok" when the service is healthy
	Status string `json:"status"`

	// Uptime is the duration the service has been running
	Uptime string `json:"uptime"`

	// Version is the service version
	Version string `json:"version"`
}

// expiresAt turns a lifetime in seconds into an absolute hint. A
// non-positive lifetime means unknown.
func expiresAt(now time.Time, seconds int) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(seconds) * time.Second).UTC()
}
