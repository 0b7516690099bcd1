// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/vidtube/vidtube/internal/auth"
	"github.com/vidtube/vidtube/internal/logging"
	"github.com/vidtube/vidtube/internal/observability"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds client-supplied request ids.
const maxRequestIDLength = 128

// Authenticator resolves an access token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*auth.Identity, error)
}

// Recovery converts a handler panic into a 500 envelope.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.ErrorContext(c.Request.Context(), "panic in handler",
			"panic", recovered, "method", c.Request.Method, "path", c.Request.URL.Path)
		abort(c, http.StatusInternalServerError, "internal server error")
	})
}

// RequestID propagates or assigns a request id and stores it in the
// request context for log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = ulid.Make().String()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// AccessLog logs every request and records its HTTP metrics.
func AccessLog(logger *slog.Logger, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		metrics.ObserveHTTP(c.Request.Method, route, status, elapsed)

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// BodyLimit caps the request body at limit bytes. Reads past the cap fail
// with *http.MaxBytesError.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// CORS allows credentialed requests from a single origin. An empty origin
// disables the headers.
func CORS(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin == "" || c.GetHeader("Origin") != origin {
			c.Next()
			return
		}
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")
		if c.Request.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+RequestIDHeader)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// AuthGate admits a request only when it carries an access token naming an
// existing user. A request without any credential is rejected before the
// authenticator is consulted.
func AuthGate(authn Authenticator, logger *slog.Logger, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractAccessToken(c)
		if token == "" {
			metrics.RecordGateDecision(observability.ResultDeny)
			abort(c, http.StatusUnauthorized, auth.PublicMessage(auth.ErrUnauthorized))
			return
		}

		identity, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			metrics.RecordGateDecision(observability.ResultDeny)
			fail(c, logger, err)
			return
		}

		metrics.RecordGateDecision(observability.ResultAllow)
		ctx := auth.WithIdentity(c.Request.Context(), identity)
		ctx = logging.WithUserID(ctx, identity.ID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// extractAccessToken prefers the cookie over the Authorization header.
func extractAccessToken(c *gin.Context) string {
	if token, err := c.Cookie(AccessTokenCookie); err == nil && token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
