// Package goOTP provides a passwordless sign-in and sign-up engine gated by
// short-lived numeric verification codes sent to an email address.
//
// The [Engine] issues one live code per normalized email, stores only a hash of
// it in Redis with an absolute expiry, validates submissions atomically and
// invalidates the code on success or once the attempt budget is spent. A
// successful verification or sign-up yields a signed session token.
//
// Engine methods are safe to call from multiple goroutines after initialization
// through [Builder.Build].
//
// # Architecture boundaries
//
// goOTP is the public surface. It exposes [Engine], [Builder], [Config], the
// [AccountStore] and [Deliverer] collaborator interfaces and value types. Code
// storage, throttling, audit dispatch and the delivery queue live under internal/
// and are never exported. Concrete account stores live in accounts/, delivery
// channels in delivery/, the HTTP surface in httpapi/ and the client-side step
// controller in client/.
//
// # What this package must NOT do
//
//   - Expose Redis clients or internal stores in its public API.
//   - Persist or log plaintext verification codes or passwords.
//   - Import any sub-package that re-imports goOTP.
package goOTP
