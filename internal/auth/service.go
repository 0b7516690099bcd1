// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vidtube/vidtube/pkg/errutil"
)

var tracer = otel.Tracer("vidtube/auth")

// dummyPasswordHash is verified against when a login names no user, so the
// response time does not reveal whether the account exists.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// TokenPair is a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User   *Profile
	Tokens TokenPair
}

// RegisterInput holds the fields of a new account.
type RegisterInput struct {
	FullName   string
	Username   string
	Email      string
	Password   string
	Avatar     string
	CoverImage string
}

// ChangePasswordInput holds a password change request.
type ChangePasswordInput struct {
	OldPassword     string
	NewPassword     string
	ConfirmPassword string
}

// UpdateAccountInput holds the editable account details.
type UpdateAccountInput struct {
	FullName string
	Email    string
}

// Service orchestrates registration, login, refresh rotation and logout.
type Service struct {
	users   UserRepository
	hasher  PasswordHasher
	access  TokenCodec
	refresh TokenCodec
	logger  *slog.Logger

	uniformLoginErrors bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithUniformLoginErrors makes an unknown account fail login exactly like a
// wrong password: the same 401 after the same amount of hashing work.
func WithUniformLoginErrors(enabled bool) ServiceOption {
	return func(s *Service) {
		s.uniformLoginErrors = enabled
	}
}

// NewService creates a Service. All dependencies are required.
func NewService(users UserRepository, hasher PasswordHasher, access, refresh TokenCodec, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}
	if access == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("access token codec is required")
	}
	if refresh == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("refresh token codec is required")
	}

	s := &Service{
		users:   users,
		hasher:  hasher,
		access:  access,
		refresh: refresh,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("logger is required")
	}
	return s, nil
}

// Register validates the input, hashes the password and stores a new user.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Profile, error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer span.End()

	username := NormalizeUsername(in.Username)
	email := NormalizeEmail(in.Email)
	fullName := strings.TrimSpace(in.FullName)
	if username == "" || email == "" || fullName == "" || strings.TrimSpace(in.Password) == "" {
		return nil, ErrMissingFields
	}
	for _, validate := range []func() error{
		func() error { return ValidateUsername(username) },
		func() error { return ValidateEmail(email) },
		func() error { return ValidateFullName(fullName) },
		func() error { return ValidatePassword(in.Password) },
	} {
		if err := validate(); err != nil {
			return nil, err
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.internal(ctx, span, "hash password", err)
	}

	user, err := NewUser(username, email, fullName, hash)
	if err != nil {
		return nil, err
	}
	user.Avatar = strings.TrimSpace(in.Avatar)
	user.CoverImage = strings.TrimSpace(in.CoverImage)

	if err := ctx.Err(); err != nil {
		return nil, oops.Code(CodeInternal).With("operation", "register").Wrap(err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, s.internal(ctx, span, "create user", err)
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return user.Profile(), nil
}

// Login verifies the password of the user named by usernameOrEmail and
// issues a new token pair. The stored refresh token is overwritten, ending
// any previous session.
func (s *Service) Login(ctx context.Context, usernameOrEmail, password string) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer span.End()

	login := strings.TrimSpace(usernameOrEmail)
	if login == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	user, err := s.users.GetByLogin(ctx, login)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, s.internal(ctx, span, "get user by login", err)
		}
		span.SetAttributes(attribute.String("auth.result", "unknown_user"))
		if s.uniformLoginErrors {
			_, _ = s.hasher.Verify(password, dummyPasswordHash)
			return nil, ErrInvalidCredentials
		}
		return nil, ErrUserNotFound
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, s.internal(ctx, span, "verify password", err)
	}
	if !valid {
		span.SetAttributes(attribute.String("auth.result", "bad_password"))
		return nil, ErrInvalidCredentials
	}

	identity := user.Identity()
	pair, err := s.issuePair(identity)
	if err != nil {
		return nil, s.internal(ctx, span, "issue tokens", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, oops.Code(CodeInternal).With("operation", "login").Wrap(err)
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, s.internal(ctx, span, "store refresh token", err)
	}
	user.RefreshToken = pair.RefreshToken

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	span.SetAttributes(
		attribute.String("auth.result", "ok"),
		attribute.String("user.id", user.ID.String()),
	)
	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID.String())
	return &LoginResult{User: user.Profile(), Tokens: *pair}, nil
}

// upgradeHash re-hashes a verified password with the current parameters.
// Failure is logged and otherwise ignored; the login already succeeded.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, user.ID, hash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed",
			"user_id", user.ID.String(), "error", err)
		return
	}
	user.PasswordHash = hash
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID.String())
}

// Refresh rotates the refresh token. The presented token must verify, name an
// existing user and equal the stored token; the stored value is then replaced
// with a compare-and-swap so two concurrent refreshes with the same token
// cannot both succeed. Every credential failure returns ErrInvalidRefreshToken.
func (s *Service) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	ctx, span := tracer.Start(ctx, "auth.refresh")
	defer span.End()

	if presented == "" {
		span.SetAttributes(attribute.String("auth.result", "missing"))
		return nil, ErrInvalidRefreshToken
	}

	claimed, err := s.refresh.Verify(presented)
	if err != nil {
		span.SetAttributes(attribute.String("auth.result", "rejected"))
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.users.GetByID(ctx, claimed.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			span.SetAttributes(attribute.String("auth.result", "unknown_user"))
			return nil, ErrInvalidRefreshToken
		}
		return nil, s.internal(ctx, span, "get user by id", err)
	}

	if subtle.ConstantTimeCompare([]byte(presented), []byte(user.RefreshToken)) != 1 {
		span.SetAttributes(attribute.String("auth.result", "stale"))
		s.logger.WarnContext(ctx, "stale refresh token presented", "user_id", user.ID.String())
		return nil, ErrInvalidRefreshToken
	}

	pair, err := s.issuePair(user.Identity())
	if err != nil {
		return nil, s.internal(ctx, span, "issue tokens", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, oops.Code(CodeInternal).With("operation", "refresh").Wrap(err)
	}
	swapped, err := s.users.SwapRefreshToken(ctx, user.ID, presented, pair.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, s.internal(ctx, span, "rotate refresh token", err)
	}
	if !swapped {
		span.SetAttributes(attribute.String("auth.result", "lost_race"))
		s.logger.WarnContext(ctx, "refresh token rotated concurrently", "user_id", user.ID.String())
		return nil, ErrInvalidRefreshToken
	}

	span.SetAttributes(
		attribute.String("auth.result", "ok"),
		attribute.String("user.id", user.ID.String()),
	)
	return pair, nil
}

// Logout clears the stored refresh token. Logging out twice, or after the
// account was removed, is not an error.
func (s *Service) Logout(ctx context.Context, userID ulid.ULID) error {
	ctx, span := tracer.Start(ctx, "auth.logout",
		trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return oops.Code(CodeInternal).With("operation", "logout").Wrap(err)
	}
	if err := s.users.ClearRefreshToken(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return s.internal(ctx, span, "clear refresh token", err)
	}

	s.logger.InfoContext(ctx, "user logged out", "user_id", userID.String())
	return nil
}

// Authenticate resolves an access token to the identity of an existing user.
// Every failure returns ErrUnauthorized. An empty token is rejected without
// touching the store.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}

	ctx, span := tracer.Start(ctx, "auth.authenticate")
	defer span.End()

	claimed, err := s.access.Verify(accessToken)
	if err != nil {
		span.SetAttributes(attribute.String("auth.result", "rejected"))
		return nil, ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, claimed.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			span.SetAttributes(attribute.String("auth.result", "unknown_user"))
			return nil, ErrUnauthorized
		}
		return nil, s.internal(ctx, span, "get user by id", err)
	}

	identity := user.Identity()
	span.SetAttributes(attribute.String("user.id", identity.ID.String()))
	return &identity, nil
}

// CurrentUser returns the sanitized profile of the user.
func (s *Service) CurrentUser(ctx context.Context, userID ulid.ULID) (*Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, oops.Code(CodeInternal).With("operation", "get current user").Wrap(err)
	}
	return user.Profile(), nil
}

// ChangePassword replaces the password after verifying the old one. The stored
// refresh token is cleared in the same write so the session has to log in again.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, in ChangePasswordInput) error {
	ctx, span := tracer.Start(ctx, "auth.change_password",
		trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer span.End()

	if in.OldPassword == "" || in.NewPassword == "" || in.ConfirmPassword == "" {
		return ErrMissingFields
	}
	if in.NewPassword != in.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if err := ValidatePassword(in.NewPassword); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		return s.internal(ctx, span, "get user by id", err)
	}

	valid, err := s.hasher.Verify(in.OldPassword, user.PasswordHash)
	if err != nil {
		return s.internal(ctx, span, "verify password", err)
	}
	if !valid {
		return ErrInvalidPassword
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return s.internal(ctx, span, "hash password", err)
	}

	if err := ctx.Err(); err != nil {
		return oops.Code(CodeInternal).With("operation", "change password").Wrap(err)
	}
	if err := s.users.ChangePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		return s.internal(ctx, span, "change password", err)
	}

	s.logger.InfoContext(ctx, "password changed", "user_id", userID.String())
	return nil
}

// UpdateAccount replaces the full name and email of the user and returns the
// updated profile. The email stays unique case-insensitively.
func (s *Service) UpdateAccount(ctx context.Context, userID ulid.ULID, in UpdateAccountInput) (*Profile, error) {
	ctx, span := tracer.Start(ctx, "auth.update_account",
		trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer span.End()

	fullName := strings.TrimSpace(in.FullName)
	email := NormalizeEmail(in.Email)
	if fullName == "" || email == "" {
		return nil, ErrMissingFields
	}
	if err := ValidateFullName(fullName); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, oops.Code(CodeInternal).With("operation", "update account").Wrap(err)
	}
	if err := s.users.UpdateAccount(ctx, userID, fullName, email); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, ErrUserNotFound
		case errors.Is(err, ErrConflict):
			return nil, err
		}
		return nil, s.internal(ctx, span, "update account", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, s.internal(ctx, span, "get user by id", err)
	}

	s.logger.InfoContext(ctx, "account updated", "user_id", userID.String())
	return user.Profile(), nil
}

func (s *Service) issuePair(id Identity) (*TokenPair, error) {
	access, accessExp, err := s.access.Issue(id)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.refresh.Issue(id)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// internal wraps an unexpected failure, records it on the span and logs it.
func (s *Service) internal(ctx context.Context, span trace.Span, operation string, err error) error {
	wrapped := oops.Code(CodeInternal).With("operation", operation).Wrap(err)
	span.RecordError(wrapped)
	span.SetStatus(codes.Error, operation)
	errutil.LogError(ctx, s.logger, "auth operation failed", wrapped)
	return wrapped
}
