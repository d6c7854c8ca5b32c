package goOTP

import (
	"errors"
	"strings"
	"time"
)

// Config is the full engine configuration. Start from [DefaultConfig] and
// override individual fields.
type Config struct {
	Verification VerificationConfig
	Throttle     ThrottleConfig
	Token        TokenConfig    `envPrefix:"TOKEN_"`
	Password     PasswordConfig `envPrefix:"PASSWORD_"`
	Delivery     DeliveryConfig `envPrefix:"DELIVERY_"`
	Audit        AuditConfig    `envPrefix:"AUDIT_"`
	Metrics      MetricsConfig  `envPrefix:"METRICS_"`
	Redis        RedisConfig    `envPrefix:"REDIS_"`

	// ProductionMode rejects development conveniences such as an ephemeral
	// token signing key.
	ProductionMode bool `env:"PRODUCTION_MODE"`
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig controls code shape, lifetime and attempt budget.
type VerificationConfig struct {
	// CodeDigits is fixed at six: the client entry form has six slots.
	CodeDigits int           `env:"CODE_DIGITS"`
	CodeTTL    time.Duration `env:"CODE_TTL"`
	// RetentionAfterExpiry keeps an expired record in Redis a little longer so
	// a late submission reports ReasonExpired instead of ReasonNotFound.
	RetentionAfterExpiry time.Duration `env:"CODE_RETENTION"`
	MaxAttempts          int           `env:"MAX_ATTEMPTS"`
	ExistingAccountStep  NextStep      `env:"EXISTING_ACCOUNT_STEP"`
}

// ThrottleConfig sets the fixed-window throttles on issue and verify. A zero
// per-window budget disables that throttle.
type ThrottleConfig struct {
	EnableEmailThrottle bool          `env:"THROTTLE_EMAIL"`
	EnableIPThrottle    bool          `env:"THROTTLE_IP"`
	Window              time.Duration `env:"THROTTLE_WINDOW"`
	MaxIssuePerWindow   int           `env:"MAX_ISSUE_PER_WINDOW"`
	MaxVerifyPerWindow  int           `env:"MAX_VERIFY_PER_WINDOW"`
}

// TokenConfig controls the session token minted after verification or sign-up.
type TokenConfig struct {
	TTL           time.Duration `env:"TTL"`
	SigningMethod string        `env:"SIGNING_METHOD"` // "hs256" (default) or "ed25519"
	PrivateKey    []byte        `env:"PRIVATE_KEY"`
	PublicKey     []byte        `env:"PUBLIC_KEY"`
	Issuer        string        `env:"ISSUER"`
	Audience      string        `env:"AUDIENCE"`
	Leeway        time.Duration
}

// PasswordConfig holds Argon2id parameters for optional sign-up passwords.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int `env:"MIN_LENGTH"`
}

// DeliveryConfig sizes the background queue handing codes to the [Deliverer].
type DeliveryConfig struct {
	Workers    int           `env:"WORKERS"`
	QueueSize  int           `env:"QUEUE_SIZE"`
	Timeout    time.Duration `env:"TIMEOUT"`
	DropIfFull bool
}

type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY"`
}

type RedisConfig struct {
	KeyPrefix string `env:"KEY_PREFIX"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns six-digit codes valid for five minutes with a budget
// of five failed attempts.
func DefaultConfig() Config {
	return Config{
		Verification: VerificationConfig{
			CodeDigits:           6,
			CodeTTL:              5 * time.Minute,
			RetentionAfterExpiry: 10 * time.Minute,
			MaxAttempts:          5,
			ExistingAccountStep:  NextStepVerify,
		},
		Throttle: ThrottleConfig{
			EnableEmailThrottle: true,
			EnableIPThrottle:    true,
			Window:              15 * time.Minute,
			MaxIssuePerWindow:   5,
			MaxVerifyPerWindow:  20,
		},
		Token: TokenConfig{
			TTL:           15 * time.Minute,
			SigningMethod: "hs256",
			Issuer:        "goOTP",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   10,
		},
		Delivery: DeliveryConfig{
			Workers:    2,
			QueueSize:  256,
			Timeout:    10 * time.Second,
			DropIfFull: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Redis: RedisConfig{
			KeyPrefix: "otp",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Verification
	if c.Verification.CodeDigits != 6 {
		return errors.New("Verification CodeDigits must be 6")
	}
	if c.Verification.CodeTTL <= 0 {
		return errors.New("Verification CodeTTL must be > 0")
	}
	if c.Verification.RetentionAfterExpiry < 0 {
		return errors.New("Verification RetentionAfterExpiry must be >= 0")
	}
	if c.Verification.MaxAttempts <= 0 {
		return errors.New("Verification MaxAttempts must be > 0")
	}
	switch c.Verification.ExistingAccountStep {
	case NextStepVerify, NextStepPassword:
	default:
		return errors.New("Verification ExistingAccountStep must be 'verify' or 'password'")
	}

	// Throttle
	if c.Throttle.MaxIssuePerWindow < 0 || c.Throttle.MaxVerifyPerWindow < 0 {
		return errors.New("Throttle budgets must be >= 0")
	}
	if (c.Throttle.MaxIssuePerWindow > 0 || c.Throttle.MaxVerifyPerWindow > 0) && c.Throttle.Window <= 0 {
		return errors.New("Throttle Window must be > 0 when a budget is set")
	}

	// Token
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2m")
	}
	if c.Token.Audience != "" && strings.TrimSpace(c.Token.Audience) == "" {
		return errors.New("Token Audience must not be blank")
	}
	switch c.Token.SigningMethod {
	case "hs256":
		if len(c.Token.PrivateKey) == 0 && c.ProductionMode {
			return errors.New("hs256 requires PrivateKey in ProductionMode")
		}
		if len(c.Token.PrivateKey) > 0 && len(c.Token.PrivateKey) < 32 && c.ProductionMode {
			return errors.New("hs256 PrivateKey must be at least 32 bytes in ProductionMode")
		}
	case "ed25519":
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported Token signing method")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	// Delivery
	if c.Delivery.Workers <= 0 {
		return errors.New("Delivery Workers must be > 0")
	}
	if c.Delivery.QueueSize <= 0 {
		return errors.New("Delivery QueueSize must be > 0")
	}
	if c.Delivery.Timeout <= 0 {
		return errors.New("Delivery Timeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Redis
	if strings.TrimSpace(c.Redis.KeyPrefix) == "" {
		return errors.New("Redis KeyPrefix must not be empty")
	}
	if strings.ContainsAny(c.Redis.KeyPrefix, " \t\r\n") {
		return errors.New("Redis KeyPrefix must not contain whitespace")
	}

	return nil
}
