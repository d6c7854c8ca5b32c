package goOTP

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/goOTP/internal/audit"
	"github.com/MrEthical07/goOTP/internal/limiters"
	"github.com/MrEthical07/goOTP/internal/stores"
	"github.com/MrEthical07/goOTP/jwt"
	"github.com/MrEthical07/goOTP/password"
)

const maxEmailLength = 254

// Engine is the verification service. Build it with [New]; the zero value is
// not usable and every operation on it returns [ErrEngineNotReady].
type Engine struct {
	config       Config
	codeStore    *stores.VerificationCodeStore
	throttle     *limiters.CodeThrottle
	accounts     AccountStore
	delivery     *deliveryDispatcher
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Hasher
	jwtManager   *jwt.Manager
	random       io.Reader
	now          func() time.Time
	logger       *slog.Logger
}

// Close drains queued deliveries and audit events, then stops the workers.
// Operations called after Close still work but codes are no longer delivered.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.delivery != nil {
		e.delivery.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// ParseSessionToken validates a token minted by this engine and returns its claims.
func (e *Engine) ParseSessionToken(token string) (*jwt.SessionClaims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.jwtManager.ParseSession(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (e *Engine) ready() bool {
	return e != nil && e.codeStore != nil && e.accounts != nil && e.jwtManager != nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// NormalizeEmail lower-cases and trims email. It is the canonical lookup key
// for accounts and codes.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validEmail is a shape check only: one '@' with both sides non-empty and no
// whitespace or control characters.
func validEmail(email string) bool {
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || strings.IndexByte(email[at+1:], '@') >= 0 {
		return false
	}
	for i := 0; i < len(email); i++ {
		if email[i] <= ' ' || email[i] == 0x7f {
			return false
		}
	}
	return true
}

func mapCodeStoreError(err error) error {
	switch {
	case errors.Is(err, stores.ErrCodeNotFound):
		return ErrCodeNotFound
	case errors.Is(err, stores.ErrCodeExpired):
		return ErrCodeExpired
	case errors.Is(err, stores.ErrCodeMismatch):
		return ErrCodeMismatch
	case errors.Is(err, stores.ErrCodeAttemptsExceeded):
		return ErrCodeAttemptsExceeded
	default:
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
}

func mapLimiterError(err error) error {
	if errors.Is(err, limiters.ErrCodeRateLimited) {
		return ErrRateLimited
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func reasonFor(err error) Reason {
	switch {
	case errors.Is(err, ErrCodeNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrCodeExpired):
		return ReasonExpired
	case errors.Is(err, ErrCodeAttemptsExceeded):
		return ReasonAttemptsExceeded
	case errors.Is(err, ErrCodeMismatch):
		return ReasonMismatch
	default:
		return ReasonNone
	}
}
