package goOTP

import (
	"context"
	"errors"

	"github.com/MrEthical07/goOTP/internal"
)

const sessionMethodOTP = "otp"

// VerifyCode checks code against the live code for email.
//
// Success consumes the code, so a second call with the same code reports
// ReasonNotFound. A wrong code counts one attempt; the attempt that reaches
// Verification.MaxAttempts deletes the code and reports
// ReasonAttemptsExceeded. A submission that is not exactly CodeDigits ASCII
// digits is rejected as ReasonMismatch without counting an attempt.
func (e *Engine) VerifyCode(ctx context.Context, email, code string) (VerifyResult, error) {
	if !e.ready() {
		return VerifyResult{}, ErrEngineNotReady
	}

	start := e.now()
	defer func() {
		if e.metrics != nil && e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricVerifyLatency, e.now().Sub(start))
		}
	}()

	email = NormalizeEmail(email)
	if !validEmail(email) {
		e.metricInc(MetricVerifyFailure)
		e.metricInc(MetricVerifyNotFound)
		e.emitAudit(ctx, auditEventCodeVerify, false, email, "", "", ErrInvalidEmail, nil)
		return VerifyResult{Reason: ReasonNotFound}, ErrInvalidEmail
	}

	if err := e.throttle.CheckVerify(ctx, email, ClientIPFromContext(ctx)); err != nil {
		mapped := mapLimiterError(err)
		e.metricInc(MetricVerifyFailure)
		e.emitAudit(ctx, auditEventCodeVerify, false, email, "", "", mapped, nil)
		if errors.Is(mapped, ErrRateLimited) {
			e.emitRateLimit(ctx, "verify", email)
		}
		return VerifyResult{}, mapped
	}

	if !internal.IsNumericCode(code, e.config.Verification.CodeDigits) {
		e.metricInc(MetricVerifyFailure)
		e.metricInc(MetricVerifyMismatch)
		e.emitAudit(ctx, auditEventCodeVerify, false, email, "", "", ErrCodeMismatch, func() map[string]string {
			return map[string]string{"reason": "malformed_code"}
		})
		return VerifyResult{Reason: ReasonMismatch}, ErrCodeMismatch
	}

	_, err := e.codeStore.Consume(
		ctx,
		email,
		internal.HashCode(email, code),
		e.config.Verification.MaxAttempts,
		e.now(),
	)
	if err != nil {
		mapped := mapCodeStoreError(err)
		reason := reasonFor(mapped)
		e.metricInc(MetricVerifyFailure)
		switch reason {
		case ReasonNotFound:
			e.metricInc(MetricVerifyNotFound)
		case ReasonExpired:
			e.metricInc(MetricVerifyExpired)
		case ReasonMismatch:
			e.metricInc(MetricVerifyMismatch)
		case ReasonAttemptsExceeded:
			e.metricInc(MetricVerifyAttemptsExceeded)
		}
		e.emitAudit(ctx, auditEventCodeVerify, false, email, "", "", mapped, nil)
		return VerifyResult{Reason: reason}, mapped
	}

	// The code is gone at this point; a failing account lookup must not
	// turn a consumed code into a failed verification.
	var accountID string
	exists := false
	account, lookupErr := e.accounts.GetAccount(ctx, email)
	switch {
	case lookupErr == nil:
		exists = true
		accountID = account.ID
	case !errors.Is(lookupErr, ErrUserNotFound):
		e.logger.Warn("goOTP: account lookup after verification failed", "email", email, "error", lookupErr)
	}

	token, claims, err := e.jwtManager.CreateSession(email, accountID, sessionMethodOTP)
	if err != nil {
		e.metricInc(MetricVerifyFailure)
		e.logger.Error("goOTP: session token creation failed", "error", err)
		e.emitAudit(ctx, auditEventCodeVerify, false, email, accountID, "", err, nil)
		return VerifyResult{}, err
	}

	e.metricInc(MetricVerifySuccess)
	e.emitAudit(ctx, auditEventCodeVerify, true, email, accountID, claims.ID, nil, nil)
	return VerifyResult{
		Success:       true,
		Token:         token,
		AccountExists: exists,
	}, nil
}
