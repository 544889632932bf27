package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/consoleauth/internal/devauth/domain"
	"github.com/aussiebroadwan/consoleauth/internal/devauth/store"
	"github.com/aussiebroadwan/consoleauth/pkg/cryptox"
	"github.com/aussiebroadwan/consoleauth/pkg/idx"
	"github.com/aussiebroadwan/consoleauth/pkg/jwtx"
	"github.com/aussiebroadwan/consoleauth/pkg/slogx"
)

// DefaultRefreshTTL is how long a refresh cookie stays usable.
const DefaultRefreshTTL = 7 * 24 * time.Hour

type AuthService struct {
	Store      store.Store
	Keys       *jwtx.KeyManager
	Hasher     *cryptox.Hasher
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *AuthService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *AuthService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return DefaultRefreshTTL
}

// Login checks the password and opens a refresh session. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.TokenGrant, error) {
	l := slogx.FromContext(ctx)
	now := s.now()

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, &ValidationError{Details: []string{"email and password are required"}}
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := s.Hasher.Verify(password, u.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrMismatch) {
			l.Error("stored password hash is unusable", slog.Int64("user_id", u.ID), slog.Any("error", err))
		}
		return nil, ErrInvalidCredentials
	}

	access, err := s.signAccess(u, now)
	if err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	session := domain.RefreshSession{
		ID:          idx.NewAt(now).String(),
		UserID:      u.ID,
		Fingerprint: cryptox.FingerprintToken(refreshOpaque),
		ExpiresAt:   now.Add(s.refreshTTL()),
		CreatedAt:   now,
	}
	if err := s.Store.RefreshSessions().CreateRefreshSession(ctx, session); err != nil {
		return nil, err
	}

	l.Info("login succeeded", slog.Int64("user_id", u.ID), slog.String("session_id", session.ID))

	return &domain.TokenGrant{
		AccessToken:  access,
		ExpiresIn:    s.accessTTL(),
		RefreshToken: refreshOpaque,
		RefreshTTL:   s.refreshTTL(),
		User:         u,
	}, nil
}

// Refresh mints a new access token from a refresh token. The refresh token
// itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshOpaque string) (*domain.TokenGrant, error) {
	now := s.now()

	if refreshOpaque == "" {
		return nil, ErrNoRefreshToken
	}

	rs, err := s.Store.RefreshSessions().GetRefreshSessionByFingerprint(ctx, cryptox.FingerprintToken(refreshOpaque))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}
	if !rs.Usable(now) {
		return nil, ErrInvalidRefresh
	}

	u, err := s.Store.Users().GetUserByID(ctx, rs.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	access, err := s.signAccess(u, now)
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Debug("access token refreshed", slog.Int64("user_id", u.ID), slog.String("session_id", rs.ID))

	return &domain.TokenGrant{
		AccessToken: access,
		ExpiresIn:   s.accessTTL(),
		User:        u,
	}, nil
}

// Logout revokes the refresh session behind refreshOpaque when it belongs to
// userID. Missing, foreign and already revoked sessions are not errors.
func (s *AuthService) Logout(ctx context.Context, userID int64, refreshOpaque string) error {
	if refreshOpaque == "" {
		return nil
	}

	rs, err := s.Store.RefreshSessions().GetRefreshSessionByFingerprint(ctx, cryptox.FingerprintToken(refreshOpaque))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if rs.UserID != userID {
		slogx.FromContext(ctx).Warn("logout presented another user's refresh session",
			slog.Int64("user_id", userID),
			slog.String("session_id", rs.ID),
		)
		return nil
	}

	if err := s.Store.RefreshSessions().RevokeRefreshSession(ctx, rs.ID, s.now()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

func (s *AuthService) signAccess(u domain.User, now time.Time) (string, error) {
	claims := jwtx.NewAccessClaims(jwtx.Identity{
		UserID:      u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		Authorities: u.Authorities,
	}, s.Issuer, s.accessTTL(), now)

	return s.Keys.Sign(claims)
}
