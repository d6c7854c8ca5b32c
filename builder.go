package goOTP

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goOTP/internal/audit"
	"github.com/MrEthical07/goOTP/internal/limiters"
	"github.com/MrEthical07/goOTP/internal/stores"
	"github.com/MrEthical07/goOTP/jwt"
	"github.com/MrEthical07/goOTP/password"
	"github.com/redis/go-redis/v9"
)

// Builder wires an [Engine]. Configure it during initialization and call
// Build exactly once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  AccountStore
	deliverer Deliverer
	auditSink AuditSink
	random    io.Reader
	clock     func() time.Time
	logger    *slog.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the code store and throttles. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the account persistence collaborator. Required.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithDeliverer sets the channel issued codes are handed to. Required.
func (b *Builder) WithDeliverer(d Deliverer) *Builder {
	b.deliverer = d
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithRandom replaces the cryptographically secure source used for codes and,
// when no signing key is configured outside ProductionMode, the ephemeral
// token key. Tests use it to make codes deterministic.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

// WithClock replaces time.Now for expiry decisions and token timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and collaborators and starts the
// background delivery and audit workers. Call [Engine.Close] to stop them.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.deliverer == nil {
		return nil, errors.New("deliverer required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	random := b.random
	if random == nil {
		random = rand.Reader
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Token.SigningMethod == "hs256" && len(cfg.Token.PrivateKey) == 0 {
		key := make([]byte, 32)
		if _, err := io.ReadFull(random, key); err != nil {
			return nil, fmt.Errorf("generate ephemeral token key: %w", err)
		}
		cfg.Token.PrivateKey = key
		logger.Warn("goOTP: no token signing key configured, using an ephemeral key; tokens will not survive a restart")
	}

	jm, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Token.TTL,
		SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
		Now:           clock,
	})
	if err != nil {
		return nil, err
	}

	ph, err := password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MinPasswordBytes: cfg.Password.MinLength,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		codeStore:    stores.NewVerificationCodeStore(b.redis, cfg.Redis.KeyPrefix),
		accounts:     b.accounts,
		jwtManager:   jm,
		passwordHash: ph,
		random:       random,
		now:          clock,
		logger:       logger,
		metrics:      NewMetrics(cfg.Metrics),
		throttle: limiters.NewCodeThrottle(b.redis, limiters.CodeThrottleConfig{
			Prefix:              cfg.Redis.KeyPrefix,
			EnableEmailThrottle: cfg.Throttle.EnableEmailThrottle,
			EnableIPThrottle:    cfg.Throttle.EnableIPThrottle,
			Window:              cfg.Throttle.Window,
			MaxIssuePerWindow:   cfg.Throttle.MaxIssuePerWindow,
			MaxVerifyPerWindow:  cfg.Throttle.MaxVerifyPerWindow,
		}),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}
	engine.delivery = newDeliveryDispatcher(cfg.Delivery, b.deliverer, logger, engine.metrics)

	b.built = true

	return engine, nil
}
