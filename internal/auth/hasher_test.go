// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vidtube/vidtube/internal/auth"
	"github.com/vidtube/vidtube/pkg/errutil"
)

func TestHashPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("produces PHC encoded argon2id digest", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))
		assert.Len(t, strings.Split(hash, "$"), 6)
	})

	t.Run("digest never equals the plaintext", func(t *testing.T) {
		for _, p := range []string{"a", "correct", "$argon2id$", strings.Repeat("x", 128)} {
			hash, err := hasher.Hash(p)
			require.NoError(t, err)
			assert.NotEqual(t, p, hash)
		}
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeEmptyPassword)
		assert.Equal(t, auth.KindValidation, auth.KindOf(err))
	})
}

func TestVerifyPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("round trip over many inputs", func(t *testing.T) {
		passwords := []string{"correct", "pässwörd", "with spaces in it", "12345678", strings.Repeat("z", 100)}
		for _, p := range passwords {
			hash, err := hasher.Hash(p)
			require.NoError(t, err)

			ok, err := hasher.Verify(p, hash)
			require.NoError(t, err)
			assert.True(t, ok, "password %q should verify", p)

			ok, err = hasher.Verify(p+"x", hash)
			require.NoError(t, err)
			assert.False(t, ok, "altered password %q should not verify", p)
		}
	})

	t.Run("incorrect password fails", func(t *testing.T) {
		hash, err := hasher.Hash("correctpassword")
		require.NoError(t, err)

		ok, err := hasher.Verify("wrongpassword", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	malformed := []struct {
		name   string
		digest string
		substr string
	}{
		{"not a digest", "not-a-valid-hash", "invalid hash format"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported hash algorithm"},
		{"invalid version format", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA", ""},
		{"unsupported version", "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported argon2 version"},
		{"invalid parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA", ""},
		{"invalid salt base64", "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA", ""},
		{"invalid key base64", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!", ""},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA", "threads value"},
		{"zero threads", "$argon2id$v=19$m=65536,t=1,p=0$c2FsdA$aGFzaA", "threads value"},
		{"truncated bcrypt", "$2a$10$short", ""},
	}
	for _, tt := range malformed {
		t.Run(tt.name+" returns internal error", func(t *testing.T) {
			_, err := hasher.Verify("password", tt.digest)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
			assert.Equal(t, auth.KindInternal, auth.KindOf(err))
			if tt.substr != "" {
				assert.Contains(t, err.Error(), tt.substr)
			}
		})
	}
}

func TestVerifyLegacyBcrypt(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("matching password verifies", func(t *testing.T) {
		ok, err := hasher.Verify("legacy-secret", string(legacy))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("mismatched password is not an error", func(t *testing.T) {
		ok, err := hasher.Verify("other-secret", string(legacy))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("bcrypt digest needs upgrade", func(t *testing.T) {
		assert.True(t, hasher.NeedsUpgrade(string(legacy)))
	})
}

func TestNeedsUpgrade(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	hash, err := hasher.Hash("password")
	require.NoError(t, err)

	assert.False(t, hasher.NeedsUpgrade(hash), "current digest")
	assert.True(t, hasher.NeedsUpgrade("$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"), "weaker parameters")
	assert.True(t, hasher.NeedsUpgrade("$argon2id$broken"), "malformed")
	assert.True(t, hasher.NeedsUpgrade("plain"), "unknown scheme")
}
