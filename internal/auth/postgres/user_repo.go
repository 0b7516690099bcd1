// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements the credential store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/vidtube/vidtube/internal/auth"
)

// poolIface is the subset of *pgxpool.Pool the repository uses.
// pgxmock.PgxPoolIface satisfies it in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, username, email, full_name, avatar, cover_image, watch_history,
		       password_hash, COALESCE(refresh_token, ''), created_at, updated_at`

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	history := user.WatchHistory
	if history == nil {
		history = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, username, email, full_name, avatar, cover_image,
			watch_history, password_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		user.ID.String(),
		user.Username,
		user.Email,
		user.FullName,
		user.Avatar,
		user.CoverImage,
		history,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code(auth.CodeUserExists).
				With("constraint", pgErr.ConstraintName).
				With("username", user.Username).
				Public("user with email or username already exists").
				Wrap(auth.ErrConflict)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oops.Code(auth.CodeUserNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
		}
		return nil, oops.Code("USER_QUERY_FAILED").With("id", id.String()).Wrap(err)
	}
	return user, nil
}

// GetByLogin retrieves a user by username or email (case-insensitive).
func (r *UserRepository) GetByLogin(ctx context.Context, login string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)
		LIMIT 1
	`, login)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oops.Code(auth.CodeUserNotFound).With("login", login).Wrap(auth.ErrNotFound)
		}
		return nil, oops.Code("USER_QUERY_FAILED").With("login", login).Wrap(err)
	}
	return user, nil
}

// SetRefreshToken overwrites the stored refresh token.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id ulid.ULID, token string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET refresh_token = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), token, time.Now().UTC())
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "set refresh token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// SwapRefreshToken replaces the stored refresh token only if it still equals
// expected. The conditional UPDATE takes the row lock, so concurrent swaps on
// one user are serialized by PostgreSQL and at most one of them matches.
func (r *UserRepository) SwapRefreshToken(ctx context.Context, id ulid.ULID, expected, next string) (bool, error) {
	if expected == "" {
		return false, nil
	}
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET refresh_token = $3, updated_at = $4
		WHERE id = $1 AND refresh_token = $2
	`, id.String(), expected, next, time.Now().UTC())
	if err != nil {
		return false, oops.Code("USER_UPDATE_FAILED").
			With("operation", "swap refresh token").
			With("id", id.String()).
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

// ClearRefreshToken sets the stored refresh token to NULL. Clearing an
// already empty token succeeds; a missing user returns auth.ErrNotFound.
func (r *UserRepository) ClearRefreshToken(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET refresh_token = NULL, updated_at = $2
		WHERE id = $1
	`, id.String(), time.Now().UTC())
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "clear refresh token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePassword replaces the stored password digest.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, time.Now().UTC())
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// ChangePassword replaces the digest and revokes the refresh token in a
// single statement, so a failure leaves the old password and session intact.
func (r *UserRepository) ChangePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, refresh_token = NULL, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, time.Now().UTC())
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "change password").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdateAccount replaces the full name and email. The unique index on
// LOWER(email) turns a taken email into auth.ErrConflict.
func (r *UserRepository) UpdateAccount(ctx context.Context, id ulid.ULID, fullName, email string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET full_name = $2, email = $3, updated_at = $4
		WHERE id = $1
	`, id.String(), fullName, email, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code(auth.CodeUserExists).
				With("constraint", pgErr.ConstraintName).
				With("email", email).
				Public("user with email or username already exists").
				Wrap(auth.ErrConflict)
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update account").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		user  auth.User
		idStr string
	)
	err := row.Scan(
		&idStr,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.Avatar,
		&user.CoverImage,
		&user.WatchHistory,
		&user.PasswordHash,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").With("id", idStr).Wrap(err)
	}
	user.ID = id
	return &user, nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
