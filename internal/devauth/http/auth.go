package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/consoleauth/internal/devauth/domain"
	"github.com/aussiebroadwan/consoleauth/internal/devauth/service"
	"github.com/aussiebroadwan/consoleauth/internal/devauth/store"
	"github.com/aussiebroadwan/consoleauth/pkg/authsdk"
	"github.com/aussiebroadwan/consoleauth/pkg/httpx"
	"github.com/aussiebroadwan/consoleauth/pkg/slogx"
)

// maxBody bounds JSON request bodies.
const maxBody = 64 << 10

type AuthHandler struct {
	AuthService  *service.AuthService
	UserService  *service.UserService
	CookieSecure bool
}

// HandleLogin exchanges credentials for an access token and refresh cookie.
//
//	@Summary		Log in
//	@Description	Verifies email and password. The refresh token is set as an HttpOnly cookie scoped to /api/auth.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"VALIDATION_ERROR"
//	@Failure		401		{object}	authsdk.ErrorResponse	"INVALID_CREDENTIALS"
//	@Failure		429		{object}	authsdk.ErrorResponse	"RATE_LIMITED"
//	@Router			/api/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	grant, err := h.AuthService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	setRefreshCookie(w, grant.RefreshToken, grant.RefreshTTL, h.CookieSecure)
	httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{
		Message:     "login successful",
		Token:       grant.AccessToken,
		ID:          grant.User.ID,
		Username:    grant.User.Username,
		Email:       grant.User.Email,
		Role:        grant.User.Role,
		Authorities: nonNil(grant.User.Authorities),
		ExpiresIn:   int(grant.ExpiresIn.Seconds()),
	})
}

// HandleRefresh mints a new access token from the refresh cookie.
//
//	@Summary		Refresh access token
//	@Description	Reads the refresh_token cookie. The cookie is not rotated.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	authsdk.RefreshResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"NO_REFRESH_COOKIE or INVALID_REFRESH_TOKEN"
//	@Router			/api/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	grant, err := h.AuthService.Refresh(r.Context(), readRefreshCookie(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			clearRefreshCookie(w, h.CookieSecure)
		}
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.RefreshResponse{
		AccessToken: grant.AccessToken,
		ExpiresIn:   int(grant.ExpiresIn.Seconds()),
	})
}

// HandleLogout revokes the refresh session and expires the cookie.
//
//	@Summary		Log out
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MessageResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"MISSING_TOKEN, TOKEN_EXPIRED or INVALID_TOKEN"
//	@Router			/api/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		authsdk.ErrMissingToken.WriteError(w)
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	if err := h.AuthService.Logout(r.Context(), userID, readRefreshCookie(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	clearRefreshCookie(w, h.CookieSecure)
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Success: true, Message: "logged out"})
}

// HandleRegister creates a USER account.
//
//	@Summary		Register
//	@Description	Creates an account with role USER and no authorities. It does not log in.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"Account"
//	@Success		201		{object}	authsdk.RegisterResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"VALIDATION_ERROR"
//	@Failure		409		{object}	authsdk.ErrorResponse	"EMAIL_TAKEN"
//	@Router			/api/auth/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	u, err := h.UserService.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.RegisterResponse{
		Success: true,
		Message: "account created",
		User:    toUser(u),
	})
}

// HandleMe returns the account behind the bearer token.
//
//	@Summary		Current user
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.User
//	@Failure		401	{object}	authsdk.ErrorResponse	"MISSING_TOKEN, TOKEN_EXPIRED or INVALID_TOKEN"
//	@Router			/api/auth/me [get].
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := httpx.ClaimsFromContext(ctx)
	if !ok {
		authsdk.ErrMissingToken.WriteError(w)
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	u, err := h.UserService.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			authsdk.ErrInvalidToken.WriteError(w)
			return
		}
		slogx.FromContext(ctx).Warn("failed to load user", "user_id", userID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toUser(u))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		authsdk.ErrValidation.WithMessage("request body is not valid JSON", err.Error()).WriteError(w)
		return false
	}
	return true
}

// writeServiceError maps service sentinels onto the shared error bodies.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		authsdk.ErrValidation.WithMessage("check your input", ve.Details...).WriteError(w)
	case errors.Is(err, service.ErrInvalidCredentials):
		authsdk.ErrInvalidCredentials.WriteError(w)
	case errors.Is(err, service.ErrNoRefreshToken):
		authsdk.ErrNoRefreshCookie.WriteError(w)
	case errors.Is(err, service.ErrInvalidRefresh):
		authsdk.ErrInvalidRefreshToken.WriteError(w)
	case errors.Is(err, service.ErrEmailTaken):
		authsdk.ErrEmailTaken.WriteError(w)
	case errors.Is(err, service.ErrUsernameTaken):
		authsdk.ErrValidation.WithMessage("check your input", "username is taken").WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

func toUser(u domain.User) *authsdk.User {
	return &authsdk.User{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		Authorities: u.Authorities,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
