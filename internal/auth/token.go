// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSecretLength is the minimum accepted HMAC signing secret length in bytes.
const MinSecretLength = 32

// TokenUse distinguishes access tokens from refresh tokens.
type TokenUse string

// Token uses.
const (
	UseAccess  TokenUse = "access"
	UseRefresh TokenUse = "refresh"
)

// TokenIssuer signs identities into bearer tokens.
type TokenIssuer interface {
	// Issue returns a signed token for the identity and its expiry.
	Issue(id Identity) (string, time.Time, error)
}

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	// Verify returns the identity carried by the token, or ErrTokenRejected.
	Verify(token string) (*Identity, error)
}

// TokenCodec issues and verifies tokens with one key and TTL.
type TokenCodec interface {
	TokenIssuer
	TokenVerifier
}

// Claims are the JWT claims carried by both token kinds.
type Claims struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	FullName string   `json:"fullName"`
	Use      TokenUse `json:"use"`
	jwt.RegisteredClaims
}

// JWTCodec is an HS256 TokenCodec.
type JWTCodec struct {
	use    TokenUse
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption configures a JWTCodec.
type CodecOption func(*JWTCodec)

// WithClock overrides the codec's time source.
func WithClock(now func() time.Time) CodecOption {
	return func(c *JWTCodec) {
		c.now = now
	}
}

// NewJWTCodec creates a codec for one token use.
func NewJWTCodec(use TokenUse, secret string, ttl time.Duration, opts ...CodecOption) (*JWTCodec, error) {
	if use != UseAccess && use != UseRefresh {
		return nil, oops.Code("AUTH_INVALID_CODEC").With("use", use).Errorf("unknown token use")
	}
	if len(secret) < MinSecretLength {
		return nil, oops.Code("AUTH_INVALID_CODEC").
			With("use", use).
			With("min", MinSecretLength).
			Errorf("%s token secret must be at least %d bytes", use, MinSecretLength)
	}
	if ttl <= 0 {
		return nil, oops.Code("AUTH_INVALID_CODEC").
			With("use", use).
			Errorf("%s token ttl must be positive", use)
	}
	c := &JWTCodec{
		use:    use,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured token lifetime.
func (c *JWTCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs the identity. Each token gets a unique jti so two tokens issued
// within the same second never compare equal.
func (c *JWTCodec) Issue(id Identity) (string, time.Time, error) {
	now := c.now()
	claims := Claims{
		Username: id.Username,
		Email:    id.Email,
		FullName: id.FullName,
		Use:      c.use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID.String(),
			ID:        ulid.Make().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("AUTH_TOKEN_SIGN_FAILED").With("use", c.use).Wrap(err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks signature, algorithm, expiry and use. Every failure returns
// ErrTokenRejected.
func (c *JWTCodec) Verify(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrTokenRejected
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || claims.Use != c.use {
		return nil, ErrTokenRejected
	}

	subject, err := ulid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrTokenRejected
	}

	return &Identity{
		ID:       subject,
		Username: claims.Username,
		Email:    claims.Email,
		FullName: claims.FullName,
	}, nil
}

var _ TokenCodec = (*JWTCodec)(nil)
