package goOTP

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testTokenKey = []byte("0123456789abcdef0123456789abcdef")

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return mr, client
}

// seqReader yields 1, 2, 3, ... as big-endian uint64 words, so the n-th
// six-digit code is 100000+n.
type seqReader struct {
	mu  sync.Mutex
	n   uint64
	buf []byte
}

func (r *seqReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	written := 0
	for written < len(p) {
		if len(r.buf) == 0 {
			r.n++
			r.buf = binary.BigEndian.AppendUint64(nil, r.n)
		}
		c := copy(p[written:], r.buf)
		r.buf = r.buf[c:]
		written += c
	}
	return written, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryAccounts struct {
	mu       sync.Mutex
	accounts map[string]Account
	failWith error
}

func newMemoryAccounts(emails ...string) *memoryAccounts {
	m := &memoryAccounts{accounts: make(map[string]Account)}
	for i, email := range emails {
		m.accounts[email] = Account{ID: "acct-" + string(rune('a'+i)), Email: email}
	}
	return m
}

func (m *memoryAccounts) GetAccount(_ context.Context, email string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return Account{}, m.failWith
	}
	account, ok := m.accounts[email]
	if !ok {
		return Account{}, ErrUserNotFound
	}
	return account, nil
}

func (m *memoryAccounts) CreateAccount(_ context.Context, account Account) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return Account{}, m.failWith
	}
	if _, ok := m.accounts[account.Email]; ok {
		return Account{}, ErrAccountExists
	}
	m.accounts[account.Email] = account
	return account, nil
}

type deliveredCode struct {
	email string
	code  string
}

type captureDeliverer struct {
	ch chan deliveredCode
}

func newCaptureDeliverer() *captureDeliverer {
	return &captureDeliverer{ch: make(chan deliveredCode, 64)}
}

func (d *captureDeliverer) Deliver(_ context.Context, email, code string) error {
	d.ch <- deliveredCode{email: email, code: code}
	return nil
}

func (d *captureDeliverer) next(t *testing.T) deliveredCode {
	t.Helper()
	select {
	case got := <-d.ch:
		return got
	case <-time.After(2 * time.Second):
		t.Fatalf("no code delivered")
		return deliveredCode{}
	}
}

type testEngine struct {
	*Engine
	redis    *miniredis.Miniredis
	rdb      *redis.Client
	clock    *testClock
	accounts *memoryAccounts
	delivery *captureDeliverer
}

func newTestEngine(t *testing.T, mutate func(*Config), emails ...string) *testEngine {
	t.Helper()

	mr, rdb := newTestRedis(t)
	cfg := DefaultConfig()
	cfg.Token.PrivateKey = testTokenKey
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	if mutate != nil {
		mutate(&cfg)
	}

	clock := newTestClock()
	accounts := newMemoryAccounts(emails...)
	deliverer := newCaptureDeliverer()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithDeliverer(deliverer).
		WithRandom(&seqReader{}).
		WithClock(clock.Now).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{
		Engine:   engine,
		redis:    mr,
		rdb:      rdb,
		clock:    clock,
		accounts: accounts,
		delivery: deliverer,
	}
}

func (te *testEngine) issue(t *testing.T, email string) string {
	t.Helper()

	res, err := te.IssueCode(context.Background(), email)
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("expected issue to be accepted")
	}
	return te.delivery.next(t).code
}

// verifiedToken issues and verifies a code for email and returns the token
// CompleteSignup expects as proof.
func (te *testEngine) verifiedToken(t *testing.T, email string) string {
	t.Helper()

	code := te.issue(t, email)
	res, err := te.VerifyCode(context.Background(), email, code)
	if err != nil || !res.Success {
		t.Fatalf("VerifyCode failed: %+v err=%v", res, err)
	}
	return res.Token
}

func TestIssueThenVerifySucceedsExactlyOnce(t *testing.T) {
	te := newTestEngine(t, nil, "alice@example.com")
	ctx := context.Background()

	code := te.issue(t, "alice@example.com")
	if code != "100001" {
		t.Fatalf("unexpected code %q", code)
	}

	res, err := te.VerifyCode(ctx, "alice@example.com", code)
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
	if !res.Success || res.Token == "" || !res.AccountExists {
		t.Fatalf("unexpected result %+v", res)
	}

	replay, err := te.VerifyCode(ctx, "alice@example.com", code)
	if !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound on replay, got %v", err)
	}
	if replay.Success || replay.Reason != ReasonNotFound {
		t.Fatalf("unexpected replay result %+v", replay)
	}
}

func TestIssueNormalizesEmail(t *testing.T) {
	te := newTestEngine(t, nil)

	code := te.issue(t, "  Bob@Example.COM ")

	res, err := te.VerifyCode(context.Background(), "bob@example.com", code)
	if err != nil || !res.Success {
		t.Fatalf("expected success for normalized email, got %+v err=%v", res, err)
	}
	if res.AccountExists {
		t.Fatalf("no account was created for bob")
	}
}

func TestReissueInvalidatesPreviousCode(t *testing.T) {
	te := newTestEngine(t, nil, "alice@example.com")
	ctx := context.Background()

	first := te.issue(t, "alice@example.com")
	second := te.issue(t, "alice@example.com")
	if first == second {
		t.Fatalf("expected distinct codes")
	}

	res, err := te.VerifyCode(ctx, "alice@example.com", first)
	if !errors.Is(err, ErrCodeMismatch) || res.Reason != ReasonMismatch {
		t.Fatalf("expected mismatch for superseded code, got %+v err=%v", res, err)
	}

	res, err = te.VerifyCode(ctx, "alice@example.com", second)
	if err != nil || !res.Success {
		t.Fatalf("expected latest code to verify, got %+v err=%v", res, err)
	}
}

func TestReissueResetsAttempts(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.Verification.MaxAttempts = 2 }, "alice@example.com")
	ctx := context.Background()

	te.issue(t, "alice@example.com")
	if _, err := te.VerifyCode(ctx, "alice@example.com", "999999"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}

	code := te.issue(t, "alice@example.com")
	if _, err := te.VerifyCode(ctx, "alice@example.com", "999999"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected mismatch after reissue, got %v", err)
	}
	if res, err := te.VerifyCode(ctx, "alice@example.com", code); err != nil || !res.Success {
		t.Fatalf("expected success, got %+v err=%v", res, err)
	}
}

func TestVerifyExpiredCode(t *testing.T) {
	te := newTestEngine(t, nil, "alice@example.com")
	ctx := context.Background()

	code := te.issue(t, "alice@example.com")
	te.clock.Advance(5*time.Minute + time.Millisecond)

	res, err := te.VerifyCode(ctx, "alice@example.com", code)
	if !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
	if res.Success || res.Reason != ReasonExpired {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := te.VerifyCode(ctx, "alice@example.com", code); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected expired record to be deleted, got %v", err)
	}
}

func TestVerifyAtExactExpiryStillValid(t *testing.T) {
	te := newTestEngine(t, nil, "alice@example.com")

	code := te.issue(t, "alice@example.com")
	te.clock.Advance(5 * time.Minute)

	if res, err := te.VerifyCode(context.Background(), "alice@example.com", code); err != nil || !res.Success {
		t.Fatalf("expected success at expiry instant, got %+v err=%v", res, err)
	}
}

func TestVerifyDifferingCodesMismatch(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.Verification.MaxAttempts = 50 }, "alice@example.com")
	ctx := context.Background()

	code := te.issue(t, "alice@example.com")

	for _, candidate := range []string{
		"0" + code,
		code[:5],
		" " + code,
		code + " ",
		"10000a",
		"１００００１",
		"",
		"100002",
	} {
		res, err := te.VerifyCode(ctx, "alice@example.com", candidate)
		if !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("candidate %q: expected ErrCodeMismatch, got %v", candidate, err)
		}
		if res.Success || res.Reason != ReasonMismatch || res.Token != "" {
			t.Fatalf("candidate %q: unexpected result %+v", candidate, res)
		}
	}

	if res, err := te.VerifyCode(ctx, "alice@example.com", code); err != nil || !res.Success {
		t.Fatalf("expected original code to remain valid, got %+v err=%v", res, err)
	}
}

func TestMalformedCodeDoesNotCountAttempt(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.Verification.MaxAttempts = 1 }, "alice@example.com")
	ctx := context.Background()

	code := te.issue(t, "alice@example.com")
	for i := 0; i < 3; i++ {
		if _, err := te.VerifyCode(ctx, "alice@example.com", "abc"); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("expected mismatch, got %v", err)
		}
	}
	if res, err := te.VerifyCode(ctx, "alice@example.com", code); err != nil || !res.Success {
		t.Fatalf("expected success, got %+v err=%v", res, err)
	}
}

func TestVerifyLocksOutAfterMaxAttempts(t *testing.T) {
	te := newTestEngine(t, nil, "alice@example.com")
	ctx := context.Background()

	code := te.issue(t, "alice@example.com")
	for i := 1; i < 5; i++ {
		res, err := te.VerifyCode(ctx, "alice@example.com", "999999")
		if !errors.Is(err, ErrCodeMismatch) || res.Reason != ReasonMismatch {
			t.Fatalf("attempt %d: expected mismatch, got %+v err=%v", i, res, err)
		}
	}

	res, err := te.VerifyCode(ctx, "alice@example.com", "999999")
	if !errors.Is(err, ErrCodeAttemptsExceeded) || res.Reason != ReasonAttemptsExceeded {
		t.Fatalf("expected lockout, got %+v err=%v", res, err)
	}

	res, err = te.VerifyCode(ctx, "alice@example.com", code)
	if !errors.Is(err, ErrCodeNotFound) || res.Success {
		t.Fatalf("expected locked-out code to be gone, got %+v err=%v", res, err)
	}

	snap := te.MetricsSnapshot()
	if snap.Counters[MetricVerifyAttemptsExceeded] != 1 {
		t.Fatalf("expected one lockout metric, got %d", snap.Counters[MetricVerifyAttemptsExceeded])
	}
	if snap.Counters[MetricVerifyMismatch] != 4 {
		t.Fatalf("expected four mismatch metrics, got %d", snap.Counters[MetricVerifyMismatch])
	}
}

func TestVerifyWithoutIssueIsNotFound(t *testing.T) {
	te := newTestEngine(t, nil)

	res, err := te.VerifyCode(context.Background(), "nobody@example.com", "123456")
	if !errors.Is(err, ErrCodeNotFound) || res.Reason != ReasonNotFound {
		t.Fatalf("expected not found, got %+v err=%v", res, err)
	}
}

func TestIssuedRecordState(t *testing.T) {
	te := newTestEngine(t, nil, "alice@example.com")

	res, err := te.IssueCode(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	want := te.clock.Now().Add(5 * time.Minute)
	if !res.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, res.ExpiresAt)
	}

	record, err := te.codeStore.Get(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Attempts != 0 {
		t.Fatalf("expected zero attempts, got %d", record.Attempts)
	}
	if !record.ExpiresAt.Equal(want) {
		t.Fatalf("expected stored expiry %v, got %v", want, record.ExpiresAt)
	}

	ttl := te.redis.TTL("otp:code:alice@example.com")
	if ttl != 15*time.Minute {
		t.Fatalf("expected redis ttl of code ttl plus retention, got %v", ttl)
	}
}

func TestIssueCodeInvalidEmail(t *testing.T) {
	te := newTestEngine(t, nil)

	for _, email := range []string{"", "   ", "no-at-sign", "@example.com", "a@", "a b@example.com", "a@b@c"} {
		if _, err := te.IssueCode(context.Background(), email); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("email %q: expected ErrInvalidEmail, got %v", email, err)
		}
	}
}

func TestIssueCodeRateLimitedPerEmail(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.Throttle.MaxIssuePerWindow = 2 })
	ctx := context.Background()

	te.issue(t, "alice@example.com")
	te.issue(t, "alice@example.com")

	if _, err := te.IssueCode(ctx, "alice@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if _, err := te.IssueCode(ctx, "other@example.com"); err != nil {
		t.Fatalf("other email should not be throttled: %v", err)
	}
	if got := te.MetricsSnapshot().Counters[MetricRateLimitHit]; got != 1 {
		t.Fatalf("expected one rate limit hit, got %d", got)
	}
}

func TestVerifyRateLimitedPerIP(t *testing.T) {
	te := newTestEngine(t, func(c *Config) {
		c.Throttle.EnableEmailThrottle = false
		c.Throttle.MaxVerifyPerWindow = 2
	})
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	for i := 0; i < 2; i++ {
		if _, err := te.VerifyCode(ctx, "user"+string(rune('a'+i))+"@example.com", "123456"); !errors.Is(err, ErrCodeNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}
	if _, err := te.VerifyCode(ctx, "userz@example.com", "123456"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestIssueCodeRedisDownIsPersistenceError(t *testing.T) {
	te := newTestEngine(t, nil)
	te.redis.Close()

	_, err := te.IssueCode(context.Background(), "alice@example.com")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}

	_, err = te.VerifyCode(context.Background(), "alice@example.com", "123456")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence on verify, got %v", err)
	}
}

func TestIssueCodeStoreDownWithoutThrottle(t *testing.T) {
	te := newTestEngine(t, func(c *Config) {
		c.Throttle.MaxIssuePerWindow = 0
		c.Throttle.MaxVerifyPerWindow = 0
	})
	te.redis.Close()

	_, err := te.IssueCode(context.Background(), "alice@example.com")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	_, rdb := newTestRedis(t)

	cfg := DefaultConfig()
	cfg.Token.PrivateKey = testTokenKey

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(newMemoryAccounts()).
		WithDeliverer(DelivererFunc(func(context.Context, string, string) error {
			return errors.New("smtp: connection refused")
		})).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	res, err := engine.IssueCode(context.Background(), "alice@example.com")
	if err != nil || !res.Accepted {
		t.Fatalf("expected accepted issue despite delivery failure, got %+v err=%v", res, err)
	}

	engine.Close()

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricDeliveryFailure] != 1 {
		t.Fatalf("expected one delivery failure, got %d", snap.Counters[MetricDeliveryFailure])
	}
	if snap.Counters[MetricCodeIssued] != 1 {
		t.Fatalf("expected one issued code, got %d", snap.Counters[MetricCodeIssued])
	}
}

func TestCheckUser(t *testing.T) {
	te := newTestEngine(t, nil, "alice@example.com")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := te.CheckUser(ctx, " ALICE@example.com")
		if err != nil {
			t.Fatalf("CheckUser failed: %v", err)
		}
		if !res.Exists || res.NextStep != NextStepVerify {
			t.Fatalf("call %d: unexpected result %+v", i, res)
		}
	}

	res, err := te.CheckUser(ctx, "ghost@example.com")
	if err != nil || res.Exists || res.NextStep != NextStepNone {
		t.Fatalf("unexpected result for unknown email %+v err=%v", res, err)
	}

	res, err = te.CheckUser(ctx, "")
	if err != nil || res.Exists {
		t.Fatalf("unexpected result for empty email %+v err=%v", res, err)
	}
}

func TestCheckUserPasswordHint(t *testing.T) {
	te := newTestEngine(t, func(c *Config) {
		c.Verification.ExistingAccountStep = NextStepPassword
	}, "alice@example.com")

	res, err := te.CheckUser(context.Background(), "alice@example.com")
	if err != nil || res.NextStep != NextStepPassword {
		t.Fatalf("expected password hint, got %+v err=%v", res, err)
	}
}

func TestCheckUserStoreFailure(t *testing.T) {
	te := newTestEngine(t, nil)
	te.accounts.failWith = errors.New("connection reset")

	if _, err := te.CheckUser(context.Background(), "alice@example.com"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestStartSignup(t *testing.T) {
	te := newTestEngine(t, nil, "alice@example.com")
	ctx := context.Background()

	if _, err := te.StartSignup(ctx, "Alice@example.com"); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}

	res, err := te.StartSignup(ctx, "new@example.com")
	if err != nil || !res.Accepted {
		t.Fatalf("expected accepted sign-up, got %+v err=%v", res, err)
	}
	got := te.delivery.next(t)
	if got.email != "new@example.com" {
		t.Fatalf("unexpected delivery %+v", got)
	}

	verified, err := te.VerifyCode(ctx, "new@example.com", got.code)
	if err != nil || !verified.Success || verified.AccountExists {
		t.Fatalf("unexpected verify result %+v err=%v", verified, err)
	}
}

func TestCompleteSignup(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	proof := te.verifiedToken(t, "new@example.com")

	res, err := te.CompleteSignup(ctx, SignupRequest{
		Email:             " New@Example.com",
		VerificationToken: proof,
		Password:          "correct horse battery",
		Nickname:          "newbie",
		Country:           "NZ",
		Birthdate:         "1990-01-02",
	})
	if err != nil {
		t.Fatalf("CompleteSignup failed: %v", err)
	}
	if !res.Success || !res.Created || res.Token == "" || res.AccountID == "" {
		t.Fatalf("unexpected result %+v", res)
	}

	account, err := te.accounts.GetAccount(ctx, "new@example.com")
	if err != nil {
		t.Fatalf("account not stored: %v", err)
	}
	if account.PasswordHash == "" || account.PasswordHash == "correct horse battery" {
		t.Fatalf("expected hashed password, got %q", account.PasswordHash)
	}
	if account.Nickname != "newbie" || account.Country != "NZ" || account.Birthdate != "1990-01-02" {
		t.Fatalf("profile fields not stored: %+v", account)
	}

	again, err := te.CompleteSignup(ctx, SignupRequest{Email: "new@example.com", VerificationToken: proof})
	if err != nil {
		t.Fatalf("duplicate sign-up should succeed: %v", err)
	}
	if !again.Success || again.Created || again.AccountID != res.AccountID {
		t.Fatalf("unexpected duplicate result %+v", again)
	}

	claims, err := te.ParseSessionToken(again.Token)
	if err != nil {
		t.Fatalf("ParseSessionToken failed: %v", err)
	}
	if claims.Email != "new@example.com" || claims.AccountID != res.AccountID || claims.Method != "signup" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestCompleteSignupRequiresVerifiedCode(t *testing.T) {
	te := newTestEngine(t, nil, "victim@example.com")
	ctx := context.Background()

	otherProof := te.verifiedToken(t, "attacker@example.com")
	signup, err := te.CompleteSignup(ctx, SignupRequest{
		Email:             "attacker@example.com",
		VerificationToken: otherProof,
		Password:          "correct horse battery",
	})
	if err != nil {
		t.Fatalf("CompleteSignup for attacker failed: %v", err)
	}
	pwdLogin, err := te.LoginPassword(ctx, "attacker@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("LoginPassword failed: %v", err)
	}

	cases := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"garbage", "not-a-token"},
		{"code verified for another email", otherProof},
		{"sign-up session token", signup.Token},
		{"password session token", pwdLogin.Token},
	}

	for _, email := range []string{"victim@example.com", "fresh@example.com"} {
		for _, tc := range cases {
			res, err := te.CompleteSignup(ctx, SignupRequest{
				Email:             email,
				VerificationToken: tc.token,
				Password:          "attacker chosen password",
			})
			if !errors.Is(err, ErrVerificationRequired) {
				t.Fatalf("%s/%s: expected ErrVerificationRequired, got %v", email, tc.name, err)
			}
			if res.Success || res.Token != "" || res.AccountID != "" {
				t.Fatalf("%s/%s: unexpected result %+v", email, tc.name, res)
			}
		}
	}

	if _, err := te.accounts.GetAccount(ctx, "fresh@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unverified sign-up created an account: %v", err)
	}
	victim, err := te.accounts.GetAccount(ctx, "victim@example.com")
	if err != nil || victim.PasswordHash != "" {
		t.Fatalf("victim account changed: %+v err=%v", victim, err)
	}
}

func TestCompleteSignupRejectsExpiredProof(t *testing.T) {
	te := newTestEngine(t, nil)
	proof := te.verifiedToken(t, "new@example.com")

	te.clock.Advance(te.config.Token.TTL + time.Minute)
	if _, err := te.CompleteSignup(context.Background(), SignupRequest{Email: "new@example.com", VerificationToken: proof}); !errors.Is(err, ErrVerificationRequired) {
		t.Fatalf("expected ErrVerificationRequired, got %v", err)
	}
}

func TestCompleteSignupPasswordPolicy(t *testing.T) {
	te := newTestEngine(t, nil)
	proof := te.verifiedToken(t, "new@example.com")

	_, err := te.CompleteSignup(context.Background(), SignupRequest{Email: "new@example.com", VerificationToken: proof, Password: "short"})
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if _, err := te.accounts.GetAccount(context.Background(), "new@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("account should not be created, got %v", err)
	}
}

func TestCompleteSignupWithoutPassword(t *testing.T) {
	te := newTestEngine(t, nil)
	proof := te.verifiedToken(t, "new@example.com")

	res, err := te.CompleteSignup(context.Background(), SignupRequest{Email: "new@example.com", VerificationToken: proof})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result %+v err=%v", res, err)
	}
	account, _ := te.accounts.GetAccount(context.Background(), "new@example.com")
	if account.PasswordHash != "" {
		t.Fatalf("expected no password hash")
	}
}

func TestLoginPassword(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := te.CompleteSignup(ctx, SignupRequest{
		Email:             "pw@example.com",
		VerificationToken: te.verifiedToken(t, "pw@example.com"),
		Password:          "correct horse battery",
	}); err != nil {
		t.Fatalf("CompleteSignup failed: %v", err)
	}
	if _, err := te.CompleteSignup(ctx, SignupRequest{Email: "nopw@example.com", VerificationToken: te.verifiedToken(t, "nopw@example.com")}); err != nil {
		t.Fatalf("CompleteSignup failed: %v", err)
	}

	res, err := te.LoginPassword(ctx, "PW@example.com", "correct horse battery")
	if err != nil || !res.Success || res.Token == "" {
		t.Fatalf("expected login success, got %+v err=%v", res, err)
	}

	cases := []struct {
		email, password string
	}{
		{"pw@example.com", "wrong horse battery"},
		{"nopw@example.com", "anything at all"},
		{"ghost@example.com", "correct horse battery"},
		{"pw@example.com", ""},
	}
	for _, tc := range cases {
		if _, err := te.LoginPassword(ctx, tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", tc.email, err)
		}
	}
}

func TestParseSessionToken(t *testing.T) {
	te := newTestEngine(t, nil, "alice@example.com")

	code := te.issue(t, "alice@example.com")
	res, err := te.VerifyCode(context.Background(), "alice@example.com", code)
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}

	claims, err := te.ParseSessionToken(res.Token)
	if err != nil {
		t.Fatalf("ParseSessionToken failed: %v", err)
	}
	if claims.Email != "alice@example.com" || claims.AccountID != "acct-a" || claims.Method != "otp" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := te.ParseSessionToken(res.Token + "x"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	te.clock.Advance(16 * time.Minute)
	if _, err := te.ParseSessionToken(res.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestAuditEventsEmitted(t *testing.T) {
	_, rdb := newTestRedis(t)

	sink := NewChannelSink(64)
	cfg := DefaultConfig()
	cfg.Token.PrivateKey = testTokenKey
	cfg.Audit.Enabled = true

	deliverer := newCaptureDeliverer()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(newMemoryAccounts("alice@example.com")).
		WithDeliverer(deliverer).
		WithAuditSink(sink).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ctx := WithClientIP(context.Background(), "198.51.100.1")
	if _, err := engine.CheckUser(ctx, "alice@example.com"); err != nil {
		t.Fatalf("CheckUser failed: %v", err)
	}
	if _, err := engine.IssueCode(ctx, "alice@example.com"); err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	code := deliverer.next(t).code
	_, _ = engine.VerifyCode(ctx, "alice@example.com", "000000")
	if _, err := engine.VerifyCode(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}

	engine.Close()

	var events []AuditEvent
	for len(sink.Events()) > 0 {
		events = append(events, <-sink.Events())
	}

	wantTypes := []string{auditEventCheckUser, auditEventCodeIssued, auditEventCodeVerify, auditEventCodeVerify}
	if len(events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d: %+v", len(wantTypes), len(events), events)
	}
	for i, want := range wantTypes {
		if events[i].EventType != want {
			t.Fatalf("event %d: expected %q, got %q", i, want, events[i].EventType)
		}
		if events[i].IP != "198.51.100.1" {
			t.Fatalf("event %d: expected client ip, got %q", i, events[i].IP)
		}
	}
	if events[2].Success || events[2].Error != string(auditErrCodeMismatch) {
		t.Fatalf("unexpected mismatch event %+v", events[2])
	}
	if !events[3].Success || events[3].TokenID == "" {
		t.Fatalf("unexpected success event %+v", events[3])
	}
	if engine.AuditDropped() != 0 {
		t.Fatalf("expected no dropped events")
	}
}

func TestVerifyLatencyHistogram(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.Metrics.EnableLatencyHistograms = true })

	_, _ = te.VerifyCode(context.Background(), "alice@example.com", "123456")

	snap := te.MetricsSnapshot()
	buckets, ok := snap.Histograms[MetricVerifyLatency]
	if !ok {
		t.Fatalf("expected latency histogram")
	}
	var total uint64
	for _, b := range buckets {
		total += b
	}
	if total != 1 {
		t.Fatalf("expected one observation, got %d", total)
	}
}

func TestZeroEngineNotReady(t *testing.T) {
	var e Engine
	ctx := context.Background()

	if _, err := e.CheckUser(ctx, "a@b.c"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("CheckUser: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.IssueCode(ctx, "a@b.c"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("IssueCode: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.VerifyCode(ctx, "a@b.c", "123456"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("VerifyCode: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.CompleteSignup(ctx, SignupRequest{Email: "a@b.c"}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("CompleteSignup: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.ParseSessionToken("x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("ParseSessionToken: expected ErrEngineNotReady, got %v", err)
	}
	e.Close()
}

func TestConcurrentVerifySucceedsOnce(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.Throttle.MaxVerifyPerWindow = 0 }, "alice@example.com")
	code := te.issue(t, "alice@example.com")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := te.VerifyCode(context.Background(), "alice@example.com", code)
			if err == nil && res.Success {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d", successes)
	}
}
