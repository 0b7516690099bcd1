// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides credential verification and session-token lifecycle
// management for VidTube.
//
// # Domain Types
//
// Users are created with NewUser, which validates the normalized fields and
// takes a password digest rather than a password. Hashing is an explicit step
// performed by Service before anything is persisted.
//
// # Tokens
//
// Access and refresh tokens are HS256 JWTs issued by two JWTCodec values with
// independent secrets and lifetimes. Access tokens are stateless. Refresh tokens
// are also compared against the single value stored on the user record, which
// is what makes rotation and revocation possible.
//
// # Services
//
// Service coordinates the session lifecycle:
//   - Register - create an account
//   - Login - verify a password and issue a token pair
//   - Refresh - rotate the refresh token with an atomic compare-and-swap
//   - Logout - clear the stored refresh token
//   - Authenticate - resolve an access token to an Identity for protected routes
//   - ChangePassword, CurrentUser
//
// Errors carry oops codes; KindOf maps them to an ErrorKind for transports.
package auth
