package goOTP

import (
	"context"
	"errors"
	"fmt"
)

const sessionMethodPassword = "pwd"

// LoginPassword authenticates email with a password set during sign-up.
// Unknown emails, accounts without a password and wrong passwords all return
// ErrInvalidCredentials.
func (e *Engine) LoginPassword(ctx context.Context, email, pass string) (SignupResult, error) {
	if !e.ready() {
		return SignupResult{}, ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	if !validEmail(email) || pass == "" {
		e.metricInc(MetricPasswordLoginFailure)
		e.emitAudit(ctx, auditEventPasswordLogin, false, email, "", "", ErrInvalidCredentials, nil)
		return SignupResult{}, ErrInvalidCredentials
	}

	account, err := e.accounts.GetAccount(ctx, email)
	if err != nil {
		if isContextError(err) {
			return SignupResult{}, err
		}
		if !errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricPasswordLoginFailure)
			e.emitAudit(ctx, auditEventPasswordLogin, false, email, "", "", ErrPersistence, nil)
			return SignupResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		e.metricInc(MetricPasswordLoginFailure)
		e.emitAudit(ctx, auditEventPasswordLogin, false, email, "", "", ErrInvalidCredentials, nil)
		return SignupResult{}, ErrInvalidCredentials
	}

	if account.PasswordHash == "" {
		e.metricInc(MetricPasswordLoginFailure)
		e.emitAudit(ctx, auditEventPasswordLogin, false, email, account.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "no_password"}
		})
		return SignupResult{}, ErrInvalidCredentials
	}

	ok, err := e.passwordHash.Verify(pass, account.PasswordHash)
	if err != nil || !ok {
		if err != nil {
			e.logger.Warn("goOTP: password verification error", "email", email, "error", err)
		}
		e.metricInc(MetricPasswordLoginFailure)
		e.emitAudit(ctx, auditEventPasswordLogin, false, email, account.ID, "", ErrInvalidCredentials, nil)
		return SignupResult{}, ErrInvalidCredentials
	}

	if stale, rehashErr := e.passwordHash.NeedsRehash(account.PasswordHash); rehashErr == nil && stale {
		e.logger.Info("goOTP: password hash uses outdated parameters", "account_id", account.ID)
	}

	token, claims, err := e.jwtManager.CreateSession(email, account.ID, sessionMethodPassword)
	if err != nil {
		e.metricInc(MetricPasswordLoginFailure)
		e.logger.Error("goOTP: session token creation failed", "error", err)
		return SignupResult{}, err
	}

	e.metricInc(MetricPasswordLoginSuccess)
	e.emitAudit(ctx, auditEventPasswordLogin, true, email, account.ID, claims.ID, nil, nil)
	return SignupResult{
		Success:   true,
		Token:     token,
		AccountID: account.ID,
	}, nil
}
