// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vidtube/vidtube/internal/auth"
)

// Cookie names carrying the token pair.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// CookieConfig holds the attributes of the token cookies.
type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
	Path     string
}

func (cc CookieConfig) cookie(name, value string, expires time.Time) *http.Cookie {
	path := cc.Path
	if path == "" {
		path = "/"
	}
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   cc.Domain,
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: cc.SameSite,
	}
	if expires.IsZero() {
		ck.MaxAge = -1
		return ck
	}
	ck.Expires = expires.UTC()
	ck.MaxAge = max(int(time.Until(expires).Seconds()), 1)
	return ck
}

func (cc CookieConfig) setTokens(c *gin.Context, pair *auth.TokenPair) {
	http.SetCookie(c.Writer, cc.cookie(AccessTokenCookie, pair.AccessToken, pair.AccessExpiresAt))
	http.SetCookie(c.Writer, cc.cookie(RefreshTokenCookie, pair.RefreshToken, pair.RefreshExpiresAt))
}

func (cc CookieConfig) clearTokens(c *gin.Context) {
	http.SetCookie(c.Writer, cc.cookie(AccessTokenCookie, "", time.Time{}))
	http.SetCookie(c.Writer, cc.cookie(RefreshTokenCookie, "", time.Time{}))
}
