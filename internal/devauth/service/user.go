package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/consoleauth/internal/devauth/domain"
	"github.com/aussiebroadwan/consoleauth/internal/devauth/store"
	"github.com/aussiebroadwan/consoleauth/pkg/authz"
	"github.com/aussiebroadwan/consoleauth/pkg/cryptox"
	"github.com/aussiebroadwan/consoleauth/pkg/slogx"
)

const (
	MinPasswordLength = 8
	MinUsernameLength = 3
	MaxUsernameLength = 32
)

type UserService struct {
	Store  store.Store
	Hasher *cryptox.Hasher

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *UserService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID int64) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, userID)
}

// Register creates a USER account with no authorities. It does not open a
// session.
func (s *UserService) Register(ctx context.Context, username, email, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if err := validateRegistration(username, email, password); err != nil {
		return domain.User{}, err
	}

	if _, err := s.Store.Users().GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return domain.User{}, err
	}

	now := s.now()
	u := domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	id, err := s.Store.Users().CreateUser(ctx, u)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, err
	}
	u.ID = id

	slogx.FromContext(ctx).Info("user registered", slog.Int64("user_id", id), slog.String("username", username))
	return u, nil
}

func validateRegistration(username, email, password string) error {
	var details []string

	if n := utf8.RuneCountInString(username); n < MinUsernameLength || n > MaxUsernameLength {
		details = append(details, fmt.Sprintf("username must be %d to %d characters", MinUsernameLength, MaxUsernameLength))
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		details = append(details, "email is not a valid address")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		details = append(details, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

// AdminSeed describes the account EnsureAdmin creates on an empty database.
type AdminSeed struct {
	Username string
	Email    string
	Password string
}

// EnsureAdmin creates the admin account when no user exists yet. An empty
// password is replaced with a generated one that is logged once.
func (s *UserService) EnsureAdmin(ctx context.Context, seed AdminSeed) error {
	l := slogx.FromContext(ctx)

	if seed.Email == "" {
		return nil
	}
	if seed.Username == "" {
		seed.Username = "admin"
	}

	generated := false
	if seed.Password == "" {
		pw, err := cryptox.GeneratePassword(20)
		if err != nil {
			return err
		}
		seed.Password = pw
		generated = true
	}

	hash, err := s.Hasher.Hash(seed.Password)
	if err != nil {
		return err
	}

	created := false
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.Users().CountUsers(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		now := s.now()
		_, err = tx.Users().CreateUser(ctx, domain.User{
			Username:     seed.Username,
			Email:        seed.Email,
			PasswordHash: hash,
			Role:         domain.RoleAdmin,
			Authorities: []string{
				authz.AuthorityRoleAdmin,
				authz.ChallengeCreate,
				authz.ChallengeUpdate,
				authz.ChallengeDelete,
				authz.ChallengeViewAll,
				authz.UserCreate,
				authz.UserUpdate,
				authz.UserDelete,
				authz.UserViewAll,
			},
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}

	if !created {
		l.Debug("admin seed skipped, users already exist")
		return nil
	}
	if generated {
		l.Warn("admin account created with a generated password",
			slog.String("email", seed.Email),
			slog.String("password", seed.Password),
		)
	} else {
		l.Info("admin account created", slog.String("email", seed.Email))
	}
	return nil
}
