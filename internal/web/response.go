// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vidtube/vidtube/internal/auth"
	"github.com/vidtube/vidtube/pkg/errutil"
)

// Response is the envelope written for every request.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func respond(c *gin.Context, status int, data any, message string) {
	c.JSON(status, Response{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	})
}

// abort writes an error envelope and stops the handler chain.
func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{
		StatusCode: status,
		Message:    message,
	})
}

// fail maps a service error to its status and public message. Internal
// failures are logged and never described to the caller.
func fail(c *gin.Context, logger *slog.Logger, err error) {
	kind := auth.KindOf(err)
	if kind == auth.KindInternal {
		errutil.LogError(c.Request.Context(), logger, "request failed", err)
	}
	abort(c, kind.HTTPStatus(), auth.PublicMessage(err))
}
