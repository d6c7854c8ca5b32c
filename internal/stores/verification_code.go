package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	codeRecordVersionV1 = 1
	codeRecordSize      = 1 + 2 + 8 + 8 + 32
)

var (
	ErrCodeNotFound         = errors.New("verification code not found")
	ErrCodeExpired          = errors.New("verification code expired")
	ErrCodeMismatch         = errors.New("verification code mismatch")
	ErrCodeAttemptsExceeded = errors.New("verification code attempts exceeded")
	ErrCodeRedisUnavailable = errors.New("verification code redis unavailable")
)

// consumeCodeLua atomically performs GET→validate→DEL/SET on a per-email code record.
// KEYS[1] = record key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = max attempts (int string)
// ARGV[3] = current unix time in milliseconds (int string)
//
// Layout: version(1) attempts(2) issuedAt(8) expiresAt(8) hash(32), integers big-endian.
//
// Returns:
//
//	record bytes on success (the key is deleted)
//	error string: "not_found", "expired", "attempts_exceeded", "code_mismatch"
var consumeCodeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local maxAttempts = tonumber(ARGV[2])
local nowMs = tonumber(ARGV[3])

if string.len(data) ~= 51 or string.byte(data, 1) ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local attempts = string.byte(data, 2) * 256 + string.byte(data, 3)

local expiresAt = 0
for i = 12, 19 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end

if nowMs > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local storedHash = string.sub(data, 20, 51)
if storedHash ~= providedHash then
  attempts = attempts + 1
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  local newData = string.sub(data, 1, 1) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 4)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='code_mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// VerificationCodeRecord is the persisted state of the single live code for one email.
type VerificationCodeRecord struct {
	CodeHash  [32]byte
	IssuedAt  time.Time
	ExpiresAt time.Time
	Attempts  uint16
}

// VerificationCodeStore keeps at most one code per normalized email in Redis.
type VerificationCodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewVerificationCodeStore(redisClient redis.UniversalClient, prefix string) *VerificationCodeStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &VerificationCodeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *VerificationCodeStore) key(email string) string {
	return s.prefix + ":code:" + email
}

// Save upserts the record for email. Any previous record, including its attempt
// counter, is replaced. ttl bounds how long Redis retains the key and should be
// at least the time left until ExpiresAt.
func (s *VerificationCodeStore) Save(
	ctx context.Context,
	email string,
	record *VerificationCodeRecord,
	ttl time.Duration,
) error {
	if record == nil {
		return errors.New("nil verification code record")
	}
	if ttl <= 0 {
		return errors.New("verification code ttl must be > 0")
	}

	encoded, err := encodeVerificationCodeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(email), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}

	return nil
}

// Get returns the live record for email without mutating it.
func (s *VerificationCodeStore) Get(ctx context.Context, email string) (*VerificationCodeRecord, error) {
	data, err := s.redis.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}

	record, err := decodeVerificationCodeRecord(data)
	if err != nil {
		return nil, ErrCodeNotFound
	}
	return record, nil
}

// Consume validates providedHash against the record for email in a single
// atomic step. A matching code deletes the record; a mismatch increments the
// attempt counter and deletes the record once maxAttempts is reached.
func (s *VerificationCodeStore) Consume(
	ctx context.Context,
	email string,
	providedHash [32]byte,
	maxAttempts int,
	now time.Time,
) (*VerificationCodeRecord, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	result, err := consumeCodeLua.Run(ctx, s.redis,
		[]string{s.key(email)},
		string(providedHash[:]),
		maxAttempts,
		now.UnixMilli(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, ErrCodeNotFound
		case "expired":
			return nil, ErrCodeExpired
		case "attempts_exceeded":
			return nil, ErrCodeAttemptsExceeded
		case "code_mismatch":
			return nil, ErrCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrCodeRedisUnavailable)
	}

	record, decErr := decodeVerificationCodeRecord([]byte(data))
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, decErr)
	}

	// Lua string equality is not constant-time; repeat the check here.
	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrCodeMismatch
	}

	return record, nil
}

func encodeVerificationCodeRecord(record *VerificationCodeRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(codeRecordSize)

	buf.WriteByte(codeRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeVerificationCodeRecord(data []byte) (*VerificationCodeRecord, error) {
	if len(data) != codeRecordSize {
		return nil, errors.New("invalid verification code record size")
	}
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid verification code record version")
	}

	record := &VerificationCodeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}

	var issuedAt, expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &issuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	record.IssuedAt = time.UnixMilli(issuedAt)
	record.ExpiresAt = time.UnixMilli(expiresAt)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
