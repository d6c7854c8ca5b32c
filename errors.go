package goOTP

import "errors"

var (
	// ErrUserNotFound is returned when no account exists for an email.
	ErrUserNotFound = errors.New("user not found")
	// ErrCodeNotFound is returned when no live code exists for the email.
	ErrCodeNotFound = errors.New("verification code not found")
	// ErrCodeMismatch is returned when the submitted code differs from the live one.
	ErrCodeMismatch = errors.New("verification code mismatch")
	// ErrCodeExpired is returned when the live code is past its expiry.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeAttemptsExceeded is returned on the failure that exhausts the attempt budget.
	// The code is invalidated.
	ErrCodeAttemptsExceeded = errors.New("verification code attempts exceeded")
	// ErrPersistence wraps any fault of the code store, throttle or account store.
	ErrPersistence = errors.New("persistence failure")
	// ErrRateLimited is returned when an issue or verify throttle trips.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidEmail is returned for an empty or malformed email.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrAccountExists is returned when creating an account whose email is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrPasswordPolicy is returned when a sign-up password is outside the allowed length.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrVerificationRequired is returned by [Engine.CompleteSignup] when the
	// request does not carry a code-verified token for the same email.
	ErrVerificationRequired = errors.New("email verification required")
	// ErrInvalidCredentials is returned by password login for any mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEngineNotReady is returned when an Engine was not built by [Builder.Build].
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrTokenInvalid is returned for a session token this engine did not mint or that has expired.
	ErrTokenInvalid = errors.New("invalid token")
)
