// Package limiters provides the Redis fixed-window throttles guarding code
// issuance and code verification.
//
// # Limiters
//
//   - [CodeThrottle] counts issue and verify requests per email and per client IP.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Policy thresholds
// come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import goOTP or any sibling internal package.
//   - Make policy decisions beyond counting. The engine decides consequences.
package limiters
