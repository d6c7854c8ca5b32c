// Package stores provides the Redis-backed record store for one-time
// verification codes.
//
// # Design
//
// Each normalized email owns a single key holding a versioned, binary-encoded
// record (attempts, issue time, expiry, code hash). Issuing a code overwrites
// the key, which gives upsert semantics and resets the attempt counter.
// Verification runs as one Lua script so the read, compare and update happen
// atomically per email; different emails never contend. Records are
// single-use: a successful match deletes the key, and so does reaching the
// attempt limit. Hash comparisons are repeated in Go with constant-time
// compare.
//
// # What this package must NOT do
//
//   - Import goOTP or any sibling internal package.
//   - Persist or log plaintext codes.
//   - Decide which failure reason is shown to end users.
package stores
