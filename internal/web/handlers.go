// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/vidtube/vidtube/internal/auth"
	"github.com/vidtube/vidtube/internal/observability"
)

// AuthService is the session lifecycle the handlers drive.
type AuthService interface {
	Authenticator
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Profile, error)
	Login(ctx context.Context, usernameOrEmail, password string) (*auth.LoginResult, error)
	Refresh(ctx context.Context, presented string) (*auth.TokenPair, error)
	Logout(ctx context.Context, userID ulid.ULID) error
	CurrentUser(ctx context.Context, userID ulid.ULID) (*auth.Profile, error)
	ChangePassword(ctx context.Context, userID ulid.ULID, in auth.ChangePasswordInput) error
	UpdateAccount(ctx context.Context, userID ulid.ULID, in auth.UpdateAccountInput) (*auth.Profile, error)
}

type registerRequest struct {
	FullName   string `json:"fullName" form:"fullName"`
	Username   string `json:"username" form:"username"`
	Email      string `json:"email" form:"email"`
	Password   string `json:"password" form:"password"`
	Avatar     string `json:"avatar" form:"avatar"`
	CoverImage string `json:"coverImage" form:"coverImage"`
}

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" form:"usernameOrEmail"`
	Username        string `json:"username" form:"username"`
	Email           string `json:"email" form:"email"`
	Password        string `json:"password" form:"password"`
}

// login returns the first non-empty identifier.
func (r loginRequest) login() string {
	for _, v := range []string{r.UsernameOrEmail, r.Username, r.Email} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" form:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword     string `json:"oldPassword" form:"oldPassword"`
	NewPassword     string `json:"newPassword" form:"newPassword"`
	ConfirmPassword string `json:"confirmPassword" form:"confirmPassword"`
}

type updateAccountRequest struct {
	FullName string `json:"fullName" form:"fullName"`
	Email    string `json:"email" form:"email"`
}

type loginData struct {
	User         *auth.Profile `json:"user"`
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
}

type tokenData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type handlers struct {
	svc     AuthService
	cookies CookieConfig
	logger  *slog.Logger
	metrics *observability.Metrics
}

// bind decodes the request body into dst. An empty body leaves dst zeroed.
// It writes the error response itself and reports whether to continue.
func (h *handlers) bind(c *gin.Context, dst any) bool {
	err := c.ShouldBind(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		abort(c, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	h.logger.DebugContext(c.Request.Context(), "malformed request body", "error", err)
	abort(c, http.StatusBadRequest, "invalid request body")
	return false
}

func (h *handlers) register(c *gin.Context) {
	var req registerRequest
	if !h.bind(c, &req) {
		return
	}
	profile, err := h.svc.Register(c.Request.Context(), auth.RegisterInput(req))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, profile, "User created successfully")
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if !h.bind(c, &req) {
		h.metrics.RecordLogin(observability.ResultFailure)
		return
	}
	result, err := h.svc.Login(c.Request.Context(), req.login(), req.Password)
	if err != nil {
		h.metrics.RecordLogin(observability.ResultForStatus(auth.KindOf(err).HTTPStatus()))
		fail(c, h.logger, err)
		return
	}
	h.metrics.RecordLogin(observability.ResultSuccess)
	h.cookies.setTokens(c, &result.Tokens)
	respond(c, http.StatusOK, loginData{
		User:         result.User,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
	}, "User logged in successfully")
}

// refresh reads the presented token from the cookie, falling back to the body.
func (h *handlers) refresh(c *gin.Context) {
	presented, _ := c.Cookie(RefreshTokenCookie)
	if presented == "" {
		var req refreshRequest
		if !h.bind(c, &req) {
			h.metrics.RecordRefresh(observability.ResultFailure)
			return
		}
		presented = strings.TrimSpace(req.RefreshToken)
	}

	pair, err := h.svc.Refresh(c.Request.Context(), presented)
	if err != nil {
		h.metrics.RecordRefresh(observability.ResultForStatus(auth.KindOf(err).HTTPStatus()))
		fail(c, h.logger, err)
		return
	}
	h.metrics.RecordRefresh(observability.ResultSuccess)
	h.cookies.setTokens(c, pair)
	respond(c, http.StatusOK, tokenData{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "Token refreshed successfully")
}

func (h *handlers) logout(c *gin.Context) {
	identity, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		fail(c, h.logger, auth.ErrUnauthorized)
		return
	}
	if err := h.svc.Logout(c.Request.Context(), identity.ID); err != nil {
		fail(c, h.logger, err)
		return
	}
	h.cookies.clearTokens(c)
	respond(c, http.StatusOK, gin.H{}, "User logged out")
}

func (h *handlers) changePassword(c *gin.Context) {
	identity, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		fail(c, h.logger, auth.ErrUnauthorized)
		return
	}
	var req changePasswordRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), identity.ID, auth.ChangePasswordInput(req)); err != nil {
		fail(c, h.logger, err)
		return
	}
	h.cookies.clearTokens(c)
	respond(c, http.StatusOK, gin.H{}, "Password changed successfully")
}

func (h *handlers) currentUser(c *gin.Context) {
	identity, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		fail(c, h.logger, auth.ErrUnauthorized)
		return
	}
	profile, err := h.svc.CurrentUser(c.Request.Context(), identity.ID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, profile, "User found successfully")
}

func (h *handlers) updateAccount(c *gin.Context) {
	identity, ok := auth.IdentityFromContext(c.Request.Context())
	if !ok {
		fail(c, h.logger, auth.ErrUnauthorized)
		return
	}
	var req updateAccountRequest
	if !h.bind(c, &req) {
		return
	}
	profile, err := h.svc.UpdateAccount(c.Request.Context(), identity.ID, auth.UpdateAccountInput(req))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, profile, "User updated successfully")
}
