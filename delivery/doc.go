// Package delivery provides goOTP.Deliverer implementations.
//
// [SMTPDeliverer] sends the code by email through gomail. [LogDeliverer]
// writes it to a slog.Logger and exists for local development only; it is
// the one place a plaintext code is ever logged.
package delivery
