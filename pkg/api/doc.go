// Package api defines the wire types shared by the chat server handlers.
//
// This package provides the user records exchanged with the credential
// store, the request bodies accepted by the public auth endpoints, the
// token response, and the structured error taxonomy every handler maps
// its failures into.
//
// The package has no external dependencies and performs no I/O.
//
// Core types:
//   - [User]: a stored account; its password hash never serializes
//   - [CreateUser]: registration body (fullname, email, password)
//   - [LoginUser]: login body (email, password)
//   - [TokenResponse]: body returned by login and register
//   - [APIError]: structured error with type, param, and message
package api
