// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Field constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MinPasswordLength = 8
	MaxPasswordLength = 128
	MaxFullNameLength = 100
	MaxEmailLength    = 254
)

// usernameRegex matches lowercased usernames that start with a letter and
// contain only letters, numbers, underscores and dots.
var usernameRegex = regexp.MustCompile(`^[a-z][a-z0-9_.]*$`)

// User is the identity of record. PasswordHash and RefreshToken never leave
// the process; use Profile or Identity for anything sent to a caller.
type User struct {
	ID           ulid.ULID
	Username     string
	Email        string
	FullName     string
	Avatar       string
	CoverImage   string
	WatchHistory []string
	PasswordHash string `json:"-"`
	RefreshToken string `json:"-"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the verified caller published to protected handlers.
type Identity struct {
	ID       ulid.ULID `json:"_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	FullName string    `json:"fullName"`
}

// Profile is the sanitized view of a user returned to clients.
type Profile struct {
	ID           ulid.ULID `json:"_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Avatar       string    `json:"avatar"`
	CoverImage   string    `json:"coverImage"`
	WatchHistory []string  `json:"watchHistory"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewUser creates a User from already-normalized fields and a password digest.
// It never accepts a plaintext password; hashing is the caller's explicit step.
func NewUser(username, email, fullName, passwordHash string) (*User, error) {
	username = NormalizeUsername(username)
	email = NormalizeEmail(email)
	fullName = strings.TrimSpace(fullName)

	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidateFullName(fullName); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("password hash is required")
	}

	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Username:     username,
		Email:        email,
		FullName:     fullName,
		WatchHistory: []string{},
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Identity returns the non-sensitive identity of the user.
func (u *User) Identity() Identity {
	return Identity{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
	}
}

// Profile returns the sanitized view of the user.
func (u *User) Profile() *Profile {
	history := u.WatchHistory
	if history == nil {
		history = []string{}
	}
	return &Profile{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FullName:     u.FullName,
		Avatar:       u.Avatar,
		CoverImage:   u.CoverImage,
		WatchHistory: history,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// NormalizeUsername trims and lowercases a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func invalid(code, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return oops.Code(code).Public(msg).Errorf("%s", msg)
}

// ValidateUsername validates a normalized username.
func ValidateUsername(username string) error {
	if username == "" {
		return invalid(CodeInvalidUsername, "username cannot be empty")
	}
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return invalid(CodeInvalidUsername, "username must be between %d and %d characters",
			MinUsernameLength, MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return invalid(CodeInvalidUsername,
			"username must start with a letter and contain only letters, numbers, underscores and dots")
	}
	return nil
}

// ValidateEmail validates a normalized email address. Display names are not accepted.
func ValidateEmail(email string) error {
	if email == "" {
		return invalid(CodeInvalidEmail, "email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return invalid(CodeInvalidEmail, "email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalid(CodeInvalidEmail, "email address is not valid")
	}
	return nil
}

// ValidateFullName validates a trimmed full name.
func ValidateFullName(fullName string) error {
	if fullName == "" {
		return invalid(CodeInvalidInput, "full name cannot be empty")
	}
	if utf8.RuneCountInString(fullName) > MaxFullNameLength {
		return invalid(CodeInvalidInput, "full name must be at most %d characters", MaxFullNameLength)
	}
	return nil
}

// ValidatePassword checks a plaintext password's length before it is hashed.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// UserRepository is the credential store. Implementations must make
// SwapRefreshToken atomic per user.
type UserRepository interface {
	// Create stores a new user. Returns an error wrapping ErrConflict when the
	// username or email is taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByLogin retrieves a user whose username or email matches login,
	// case-insensitively.
	GetByLogin(ctx context.Context, login string) (*User, error)

	// SetRefreshToken overwrites the stored refresh token.
	SetRefreshToken(ctx context.Context, id ulid.ULID, token string) error

	// SwapRefreshToken replaces the stored refresh token with next only if it
	// currently equals expected. Returns false when another writer got there first.
	SwapRefreshToken(ctx context.Context, id ulid.ULID, expected, next string) (bool, error)

	// ClearRefreshToken removes the stored refresh token. Clearing an already
	// empty token is not an error.
	ClearRefreshToken(ctx context.Context, id ulid.ULID) error

	// UpdatePassword replaces the stored password digest and leaves the
	// refresh token alone.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// ChangePassword replaces the password digest and clears the refresh
	// token in one write.
	ChangePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// UpdateAccount replaces the full name and email. Returns an error
	// wrapping ErrConflict when another user holds the email.
	UpdateAccount(ctx context.Context, id ulid.ULID, fullName, email string) error
}
