// Package middleware exposes the HTTP guard that protects routes with a
// session token minted by goOTP.Engine.
//
// # Guards
//
//   - [Guard] reads the Authorization bearer token, validates it with the
//     engine and injects the session claims into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not parse
// or create tokens itself and never touches Redis.
package middleware
