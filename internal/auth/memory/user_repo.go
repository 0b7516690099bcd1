// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process implementation of auth.UserRepository
// for development and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/vidtube/vidtube/internal/auth"
)

// UserRepository stores users in a map. Each method is a single atomic
// update of one record; the lock is never held across hashing or signing.
type UserRepository struct {
	mu    sync.RWMutex
	users map[ulid.ULID]*auth.User
}

// NewUserRepository creates an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[ulid.ULID]*auth.User)}
}

// Create stores a copy of the user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return conflict("id", user.ID.String())
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Username, user.Username) {
			return conflict("username", user.Username)
		}
		if strings.EqualFold(u.Email, user.Email) {
			return conflict("email", user.Email)
		}
	}
	r.users[user.ID] = clone(user)
	return nil
}

// GetByID retrieves a copy of the user.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, notFound("id", id.String())
	}
	return clone(u), nil
}

// GetByLogin matches username or email case-insensitively.
func (r *UserRepository) GetByLogin(_ context.Context, login string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Username, login) || strings.EqualFold(u.Email, login) {
			return clone(u), nil
		}
	}
	return nil, notFound("login", login)
}

// SetRefreshToken overwrites the stored refresh token.
func (r *UserRepository) SetRefreshToken(_ context.Context, id ulid.ULID, token string) error {
	return r.update(id, func(u *auth.User) bool {
		u.RefreshToken = token
		return true
	})
}

// SwapRefreshToken replaces the refresh token only if it equals expected.
func (r *UserRepository) SwapRefreshToken(_ context.Context, id ulid.ULID, expected, next string) (bool, error) {
	swapped := false
	err := r.update(id, func(u *auth.User) bool {
		if expected == "" || u.RefreshToken != expected {
			return false
		}
		u.RefreshToken = next
		swapped = true
		return true
	})
	return swapped, err
}

// ClearRefreshToken empties the stored refresh token.
func (r *UserRepository) ClearRefreshToken(_ context.Context, id ulid.ULID) error {
	return r.update(id, func(u *auth.User) bool {
		if u.RefreshToken == "" {
			return false
		}
		u.RefreshToken = ""
		return true
	})
}

// UpdatePassword replaces the stored password digest.
func (r *UserRepository) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	return r.update(id, func(u *auth.User) bool {
		u.PasswordHash = passwordHash
		return true
	})
}

// ChangePassword replaces the digest and clears the refresh token together.
func (r *UserRepository) ChangePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	return r.update(id, func(u *auth.User) bool {
		u.PasswordHash = passwordHash
		u.RefreshToken = ""
		return true
	})
}

// UpdateAccount replaces the full name and email. The email must not belong
// to another user.
func (r *UserRepository) UpdateAccount(_ context.Context, id ulid.ULID, fullName, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return notFound("id", id.String())
	}
	for otherID, other := range r.users {
		if otherID != id && strings.EqualFold(other.Email, email) {
			return conflict("email", email)
		}
	}
	u.FullName = fullName
	u.Email = email
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// update applies fn to the stored record under the write lock. fn reports
// whether it changed anything.
func (r *UserRepository) update(id ulid.ULID, fn func(*auth.User) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return notFound("id", id.String())
	}
	if fn(u) {
		u.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func clone(u *auth.User) *auth.User {
	c := *u
	c.WatchHistory = append([]string(nil), u.WatchHistory...)
	return &c
}

func notFound(field, value string) error {
	return oops.Code(auth.CodeUserNotFound).With(field, value).Wrap(auth.ErrNotFound)
}

func conflict(field, value string) error {
	return oops.Code(auth.CodeUserExists).
		With("field", field).
		With("value", value).
		Public("user with email or username already exists").
		Wrap(auth.ErrConflict)
}

var _ auth.UserRepository = (*UserRepository)(nil)
