package goOTP

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goOTP/password"
	"github.com/google/uuid"
)

const sessionMethodSignup = "signup"

// CompleteSignup creates the account for req.Email and returns a session
// token for it. req.VerificationToken must be a token from VerifyCode for the
// same email; without it nothing is written and ErrVerificationRequired is
// returned. The password is optional; when present it is stored as an
// argon2id hash. Creating an account that already exists is not an error:
// the existing account is reported with Created=false.
func (e *Engine) CompleteSignup(ctx context.Context, req SignupRequest) (SignupResult, error) {
	if !e.ready() {
		return SignupResult{}, ErrEngineNotReady
	}

	email := NormalizeEmail(req.Email)
	if !validEmail(email) {
		e.metricInc(MetricSignupFailure)
		e.emitAudit(ctx, auditEventSignupComplete, false, email, "", "", ErrInvalidEmail, nil)
		return SignupResult{}, ErrInvalidEmail
	}

	if !e.verifiedFor(email, req.VerificationToken) {
		e.metricInc(MetricSignupFailure)
		e.emitAudit(ctx, auditEventSignupComplete, false, email, "", "", ErrVerificationRequired, nil)
		return SignupResult{}, ErrVerificationRequired
	}

	account := Account{
		ID:        uuid.NewString(),
		Email:     email,
		Nickname:  req.Nickname,
		Country:   req.Country,
		Birthdate: req.Birthdate,
		CreatedAt: e.now().UTC(),
	}

	if req.Password != "" {
		hash, err := e.passwordHash.Hash(req.Password)
		if err != nil {
			e.metricInc(MetricSignupFailure)
			if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
				e.emitAudit(ctx, auditEventSignupComplete, false, email, "", "", ErrPasswordPolicy, nil)
				return SignupResult{}, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
			}
			e.emitAudit(ctx, auditEventSignupComplete, false, email, "", "", err, nil)
			return SignupResult{}, fmt.Errorf("hash password: %w", err)
		}
		account.PasswordHash = hash
	}

	created := true
	stored, err := e.accounts.CreateAccount(ctx, account)
	if err != nil {
		if !errors.Is(err, ErrAccountExists) {
			if isContextError(err) {
				return SignupResult{}, err
			}
			e.metricInc(MetricSignupFailure)
			e.emitAudit(ctx, auditEventSignupComplete, false, email, "", "", ErrPersistence, nil)
			return SignupResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
		}

		e.metricInc(MetricSignupDuplicate)
		created = false
		existing, getErr := e.accounts.GetAccount(ctx, email)
		if getErr != nil {
			e.logger.Warn("goOTP: existing account lookup failed", "email", email, "error", getErr)
		}
		stored = existing
	}

	token, claims, err := e.jwtManager.CreateSession(email, stored.ID, sessionMethodSignup)
	if err != nil {
		e.metricInc(MetricSignupFailure)
		e.logger.Error("goOTP: session token creation failed", "error", err)
		e.emitAudit(ctx, auditEventSignupComplete, false, email, stored.ID, "", err, nil)
		return SignupResult{}, err
	}

	if created {
		e.metricInc(MetricSignupSuccess)
	}
	e.emitAudit(ctx, auditEventSignupComplete, true, email, stored.ID, claims.ID, nil, func() map[string]string {
		if created {
			return map[string]string{"created": "true"}
		}
		return map[string]string{"created": "false"}
	})
	return SignupResult{
		Success:   true,
		Token:     token,
		AccountID: stored.ID,
		Created:   created,
	}, nil
}

// verifiedFor reports whether token was minted by VerifyCode for email.
func (e *Engine) verifiedFor(email, token string) bool {
	if token == "" {
		return false
	}
	claims, err := e.jwtManager.ParseSession(token)
	if err != nil {
		return false
	}
	return claims.Method == sessionMethodOTP && claims.Email == email
}
