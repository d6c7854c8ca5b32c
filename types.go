package goOTP

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goOTP/internal/audit"
)

// NextStep hints which secondary flow applies to an existing account.
type NextStep string

const (
	// NextStepNone is reported when no account exists.
	NextStepNone NextStep = ""
	// NextStepVerify routes the client to the emailed-code flow.
	NextStepVerify NextStep = "verify"
	// NextStepPassword routes the client to password login.
	NextStepPassword NextStep = "password"
)

// Reason explains why a code verification failed.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNotFound         Reason = "not_found"
	ReasonMismatch         Reason = "mismatch"
	ReasonExpired          Reason = "expired"
	ReasonAttemptsExceeded Reason = "attempts_exceeded"
)

// Account is the persisted identity keyed by normalized email.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Nickname     string
	Country      string
	Birthdate    string
	CreatedAt    time.Time
}

// AccountStore is the persistence collaborator for accounts.
//
// GetAccount must return [ErrUserNotFound] when no account exists and
// CreateAccount must return [ErrAccountExists] when the email is taken. Any
// other error is treated as a persistence failure.
type AccountStore interface {
	GetAccount(ctx context.Context, email string) (Account, error)
	CreateAccount(ctx context.Context, account Account) (Account, error)
}

// Deliverer sends an issued code to its recipient. It runs on background
// workers; its error is logged and counted, never returned to the caller of
// [Engine.IssueCode].
type Deliverer interface {
	Deliver(ctx context.Context, email, code string) error
}

// DelivererFunc adapts a plain function to [Deliverer].
type DelivererFunc func(ctx context.Context, email, code string) error

func (f DelivererFunc) Deliver(ctx context.Context, email, code string) error {
	return f(ctx, email, code)
}

// CheckUserResult is returned by [Engine.CheckUser].
type CheckUserResult struct {
	Exists   bool
	NextStep NextStep
}

// IssueResult is returned by [Engine.IssueCode] and [Engine.StartSignup].
type IssueResult struct {
	Accepted  bool
	ExpiresAt time.Time
}

// VerifyResult is returned by [Engine.VerifyCode]. Token is set only on success.
type VerifyResult struct {
	Success       bool
	Reason        Reason
	Token         string
	AccountExists bool
}

// SignupRequest is the input for [Engine.CompleteSignup]. Email and
// VerificationToken are required; VerificationToken is the token returned by a
// successful [Engine.VerifyCode] for the same email.
type SignupRequest struct {
	Email             string
	VerificationToken string
	Password          string
	Nickname          string
	Country           string
	Birthdate         string
}

// SignupResult is returned by [Engine.CompleteSignup] and [Engine.LoginPassword].
type SignupResult struct {
	Success   bool
	Token     string
	AccountID string
	Created   bool
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that writes events to a slog.Logger.
type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
