package goOTP

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goOTP/internal"
	"github.com/MrEthical07/goOTP/internal/stores"
)

// IssueCode generates a fresh code for email, replaces any live code for it
// and hands the plaintext to the Deliverer in the background.
//
// Delivery failures are logged and counted but never returned. The only
// errors are ErrInvalidEmail, ErrRateLimited and ErrPersistence.
func (e *Engine) IssueCode(ctx context.Context, email string) (IssueResult, error) {
	if !e.ready() {
		return IssueResult{}, ErrEngineNotReady
	}
	return e.issue(ctx, NormalizeEmail(email), auditEventCodeIssued)
}

// StartSignup issues a code for an email that must not belong to an account
// yet. It returns ErrAccountExists when it does.
func (e *Engine) StartSignup(ctx context.Context, email string) (IssueResult, error) {
	if !e.ready() {
		return IssueResult{}, ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	if !validEmail(email) {
		e.emitAudit(ctx, auditEventSignupStart, false, email, "", "", ErrInvalidEmail, nil)
		return IssueResult{}, ErrInvalidEmail
	}

	account, err := e.accounts.GetAccount(ctx, email)
	switch {
	case err == nil:
		e.metricInc(MetricSignupDuplicate)
		e.emitAudit(ctx, auditEventSignupStart, false, email, account.ID, "", ErrAccountExists, nil)
		return IssueResult{}, ErrAccountExists
	case errors.Is(err, ErrUserNotFound):
	case isContextError(err):
		return IssueResult{}, err
	default:
		e.emitAudit(ctx, auditEventSignupStart, false, email, "", "", ErrPersistence, nil)
		return IssueResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return e.issue(ctx, email, auditEventSignupStart)
}

func (e *Engine) issue(ctx context.Context, email, eventType string) (IssueResult, error) {
	if !validEmail(email) {
		e.emitAudit(ctx, eventType, false, email, "", "", ErrInvalidEmail, nil)
		return IssueResult{}, ErrInvalidEmail
	}

	if err := e.throttle.CheckIssue(ctx, email, ClientIPFromContext(ctx)); err != nil {
		mapped := mapLimiterError(err)
		e.metricInc(MetricCodeIssueFailure)
		e.emitAudit(ctx, eventType, false, email, "", "", mapped, nil)
		if errors.Is(mapped, ErrRateLimited) {
			e.emitRateLimit(ctx, "issue", email)
		}
		return IssueResult{}, mapped
	}

	code, err := internal.NewOTP(e.random, e.config.Verification.CodeDigits)
	if err != nil {
		e.metricInc(MetricCodeIssueFailure)
		e.logger.Error("goOTP: code generation failed", "error", err)
		e.emitAudit(ctx, eventType, false, email, "", "", err, nil)
		return IssueResult{}, fmt.Errorf("generate code: %w", err)
	}

	now := e.now()
	record := &stores.VerificationCodeRecord{
		CodeHash:  internal.HashCode(email, code),
		IssuedAt:  now,
		ExpiresAt: now.Add(e.config.Verification.CodeTTL),
		Attempts:  0,
	}
	ttl := e.config.Verification.CodeTTL + e.config.Verification.RetentionAfterExpiry
	if err := e.codeStore.Save(ctx, email, record, ttl); err != nil {
		mapped := mapCodeStoreError(err)
		e.metricInc(MetricCodeIssueFailure)
		e.emitAudit(ctx, eventType, false, email, "", "", mapped, nil)
		return IssueResult{}, mapped
	}

	e.delivery.Enqueue(ctx, email, code)

	e.metricInc(MetricCodeIssued)
	e.emitAudit(ctx, eventType, true, email, "", "", nil, func() map[string]string {
		return map[string]string{
			"expires_at": record.ExpiresAt.UTC().Format(time.RFC3339),
		}
	})
	return IssueResult{Accepted: true, ExpiresAt: record.ExpiresAt}, nil
}
