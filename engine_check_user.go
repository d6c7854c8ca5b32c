package goOTP

import (
	"context"
	"errors"
	"fmt"
)

// CheckUser reports whether an account exists for email and which secondary
// step the client should take. An unknown, empty or malformed email yields
// Exists=false with a nil error. CheckUser never mutates state.
func (e *Engine) CheckUser(ctx context.Context, email string) (CheckUserResult, error) {
	if !e.ready() {
		return CheckUserResult{}, ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	if !validEmail(email) {
		e.metricInc(MetricCheckUserMissing)
		return CheckUserResult{Exists: false, NextStep: NextStepNone}, nil
	}

	account, err := e.accounts.GetAccount(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricCheckUserMissing)
			e.emitAudit(ctx, auditEventCheckUser, true, email, "", "", nil, func() map[string]string {
				return map[string]string{"exists": "false"}
			})
			return CheckUserResult{Exists: false, NextStep: NextStepNone}, nil
		}
		if isContextError(err) {
			return CheckUserResult{}, err
		}
		e.emitAudit(ctx, auditEventCheckUser, false, email, "", "", ErrPersistence, nil)
		return CheckUserResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	e.metricInc(MetricCheckUserFound)
	e.emitAudit(ctx, auditEventCheckUser, true, email, account.ID, "", nil, func() map[string]string {
		return map[string]string{"exists": "true"}
	})
	return CheckUserResult{
		Exists:   true,
		NextStep: e.config.Verification.ExistingAccountStep,
	}, nil
}
