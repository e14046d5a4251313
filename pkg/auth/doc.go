// Package auth provides the authentication gate for protected chat routes.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A configurable default voter decides
// when all authenticators abstain.
//
// The gate is HTTP middleware wrapped around the protected routes only.
// Public routes (login, register, logout, health) never pass through it.
// On success it injects the verified identity into the request context,
// where handlers read it with [UserFromContext].
package auth
