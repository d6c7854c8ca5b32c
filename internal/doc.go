// Package internal contains helpers that are intentionally private to goOTP,
// chiefly one-time code generation and code hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - limiters: Redis fixed-window throttles for code issuance and verification
//   - stores: Redis-backed per-email verification code records
//
// # What this package must NOT do
//
//   - Export types that appear in the public goOTP API.
//   - Read randomness from anything other than the reader it is handed.
package internal
