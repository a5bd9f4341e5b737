package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const otpRecordVersionV1 = 1

var (
	ErrOTPNotFound          = errors.New("otp record not found")
	ErrOTPAttemptsExhausted = errors.New("otp attempts exhausted")
	ErrOTPCodeMismatch      = errors.New("otp code mismatch")
	ErrOTPRedisUnavailable  = errors.New("otp redis unavailable")
)

// consumeOTPLua performs one verification attempt atomically. The attempt
// counter is incremented before the code comparison, so a retried request
// always consumes an attempt, and the used/attempt state is rewritten in
// the same script that read it.
//
// Fixed header offsets (see encodeOTPRecord):
// used flag at byte 2, attempts at 3..4, expiresAt at 13..20,
// code length at 21 followed by the code itself.
//
// KEYS[1] = record key
// ARGV[1] = provided code
// ARGV[2] = max attempts
// ARGV[3] = current unix timestamp
//
// Returns 'ok' on match, otherwise an error reply:
// 'not_found', 'attempts_exceeded', or 'mismatch:<remaining>'.
var consumeOTPLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local used = string.byte(data, 2)
local attempts = string.byte(data, 3) * 256 + string.byte(data, 4)

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 13, 20)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

local now = tonumber(ARGV[3])
local maxAttempts = tonumber(ARGV[2])

if now > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

if attempts >= maxAttempts then
  if used == 0 then
    local ttl = redis.call('PTTL', KEYS[1])
    if ttl > 0 then
      local marked = string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3)
      redis.call('SET', KEYS[1], marked, 'PX', ttl)
    end
  end
  return {err='attempts_exceeded'}
end

if used == 1 then
  return {err='not_found'}
end

attempts = attempts + 1

local codeLen = string.byte(data, 21)
local code = string.sub(data, 22, 21 + codeLen)

local newUsed = 0
local result
if code == ARGV[1] then
  newUsed = 1
  result = 'ok'
else
  local remaining = maxAttempts - attempts
  if remaining <= 0 then
    newUsed = 1
  end
  result = 'mismatch:' .. remaining
end

local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local newData = string.sub(data, 1, 1) .. string.char(newUsed)
  .. string.char(math.floor(attempts / 256), attempts % 256)
  .. string.sub(data, 5)
redis.call('SET', KEYS[1], newData, 'PX', ttl)

if result == 'ok' then
  return 'ok'
end
return {err=result}
`)

// OTPRecord is one issued passcode for an email address.
type OTPRecord struct {
	Code      string
	Purpose   string
	CreatedAt time.Time
	ExpiresAt time.Time
	Attempts  uint16
	Used      bool
}

// OTPStore keeps at most one passcode record per email address. Writing a
// new record overwrites the previous one in a single SET, which makes
// supersession atomic: there is never a moment with two active codes.
type OTPStore struct {
	redis redis.UniversalClient
}

// NewOTPStore creates an OTPStore backed by the given Redis client.
func NewOTPStore(redisClient redis.UniversalClient) *OTPStore {
	return &OTPStore{redis: redisClient}
}

func otpKey(email string) string {
	return "otp:" + strings.ToLower(email)
}

// Put stores the record, superseding any previous one for the email. The
// key TTL is derived from ExpiresAt.
func (s *OTPStore) Put(ctx context.Context, email string, record *OTPRecord) error {
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return errors.New("otp record already expired")
	}

	encoded, err := encodeOTPRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, otpKey(email), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// Get loads the current record for an email without touching its
// attempt state. Verification must go through Consume.
func (s *OTPStore) Get(ctx context.Context, email string) (*OTPRecord, error) {
	data, err := s.redis.Get(ctx, otpKey(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}

	record, err := decodeOTPRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return record, nil
}

// Consume runs one verification attempt. On mismatch it returns
// ErrOTPCodeMismatch together with the number of attempts remaining; a
// record whose budget was already spent yields ErrOTPAttemptsExhausted
// even when the presented code is correct.
func (s *OTPStore) Consume(ctx context.Context, email, code string, maxAttempts int) (int, error) {
	err := consumeOTPLua.Run(ctx, s.redis,
		[]string{otpKey(email)},
		code,
		maxAttempts,
		time.Now().Unix(),
	).Err()
	if err == nil {
		return 0, nil
	}

	msg := err.Error()
	switch {
	case msg == "not_found":
		return 0, ErrOTPNotFound
	case msg == "attempts_exceeded":
		return 0, ErrOTPAttemptsExhausted
	case strings.HasPrefix(msg, "mismatch:"):
		remaining, convErr := strconv.Atoi(strings.TrimPrefix(msg, "mismatch:"))
		if convErr != nil {
			return 0, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
		}
		return remaining, ErrOTPCodeMismatch
	default:
		return 0, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
}

// Encoding layout (version 1). Fixed offsets up to and including the code
// let consumeOTPLua rewrite the used flag and attempt counter in place.
//
//	version(1) | used(1) | attempts(2) | createdAt(8) | expiresAt(8)
//	| codeLen(1) | code | purposeLen(2) | purpose
func encodeOTPRecord(record *OTPRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(otpRecordVersionV1)
	if record.Used {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	for _, ts := range []int64{record.CreatedAt.Unix(), record.ExpiresAt.Unix()} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	if len(record.Code) > 255 {
		return nil, errors.New("otp code too long")
	}
	buf.WriteByte(byte(len(record.Code)))
	buf.WriteString(record.Code)

	if len(record.Purpose) > 65535 {
		return nil, errors.New("otp purpose too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Purpose))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Purpose)

	return buf.Bytes(), nil
}

func decodeOTPRecord(data []byte) (*OTPRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	used, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &OTPRecord{Used: used == 1}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}

	var createdAt, expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	record.CreatedAt = time.Unix(createdAt, 0)
	record.ExpiresAt = time.Unix(expiresAt, 0)

	codeLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	code := make([]byte, codeLen)
	if _, err := io.ReadFull(reader, code); err != nil {
		return nil, err
	}
	record.Code = string(code)

	var purposeLen uint16
	if err := binary.Read(reader, binary.BigEndian, &purposeLen); err != nil {
		return nil, err
	}
	purpose := make([]byte, purposeLen)
	if _, err := io.ReadFull(reader, purpose); err != nil {
		return nil, err
	}
	record.Purpose = string(purpose)

	return record, nil
}
