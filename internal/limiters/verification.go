package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCodeRateLimited        = errors.New("verification code rate limited")
	ErrCodeLimiterUnavailable = errors.New("verification code limiter unavailable")
)

// CodeThrottleConfig sets fixed-window budgets for issuing and checking codes.
// A zero budget disables that side of the throttle.
type CodeThrottleConfig struct {
	Prefix              string
	EnableEmailThrottle bool
	EnableIPThrottle    bool
	Window              time.Duration
	MaxIssuePerWindow   int
	MaxVerifyPerWindow  int
}

// CodeThrottle counts issue and verify requests per email and per client IP.
type CodeThrottle struct {
	redis  redis.UniversalClient
	config CodeThrottleConfig
}

func NewCodeThrottle(redisClient redis.UniversalClient, cfg CodeThrottleConfig) *CodeThrottle {
	if cfg.Prefix == "" {
		cfg.Prefix = "otp"
	}
	return &CodeThrottle{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckIssue counts one code request for email and ip.
func (l *CodeThrottle) CheckIssue(ctx context.Context, email, ip string) error {
	if l == nil || l.config.MaxIssuePerWindow <= 0 {
		return nil
	}
	return l.check(ctx, "issue", email, ip, l.config.MaxIssuePerWindow)
}

// CheckVerify counts one code submission for email and ip.
func (l *CodeThrottle) CheckVerify(ctx context.Context, email, ip string) error {
	if l == nil || l.config.MaxVerifyPerWindow <= 0 {
		return nil
	}
	return l.check(ctx, "verify", email, ip, l.config.MaxVerifyPerWindow)
}

func (l *CodeThrottle) check(ctx context.Context, action, email, ip string, limit int) error {
	if l.config.EnableEmailThrottle && email != "" {
		if err := l.enforceFixedWindow(ctx, l.key(action, "email", email), limit); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, l.key(action, "ip", ip), limit); err != nil {
			return err
		}
	}
	return nil
}

func (l *CodeThrottle) enforceFixedWindow(ctx context.Context, key string, limit int) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodeLimiterUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrCodeLimiterUnavailable, err)
		}
	}

	if count > int64(limit) {
		return ErrCodeRateLimited
	}

	return nil
}

func (l *CodeThrottle) key(action, scope, subject string) string {
	return l.config.Prefix + ":rl:" + action + ":" + scope + ":" + subject
}
