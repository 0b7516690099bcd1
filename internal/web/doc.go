// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web exposes the auth service over HTTP with gin.
//
// Every response uses the same envelope:
//
//	{"statusCode": 200, "data": {...}, "message": "...", "success": true}
//
// Protected routes pass through AuthGate, which reads the access token from
// the accessToken cookie or an Authorization: Bearer header and publishes
// only the caller's auth.Identity to downstream handlers.
package web
