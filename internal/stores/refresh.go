package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const refreshRecordVersionV1 = 1

var (
	ErrRefreshNotFound         = errors.New("refresh record not found")
	ErrRefreshHashMismatch     = errors.New("refresh token hash mismatch")
	ErrRefreshRedisUnavailable = errors.New("refresh redis unavailable")
)

// consumeRefreshLua is the single-winner rotation step: check the stored
// token hash, write the blacklist marker, then delete the record and its
// set membership, all in one atomic script. A concurrent caller racing on
// the same token observes 'not_found' and must treat it as a hard
// rejection, not a no-op.
//
// The token hash sits at fixed offsets 2..33 of the encoded record
// (directly after the version byte) so the script never needs a full
// decode.
//
// KEYS[1] = record key, KEYS[2] = blacklist key, KEYS[3] = subject set key
// ARGV[1] = provided token hash (32 raw bytes)
// ARGV[2] = revocation reason
// ARGV[3] = token id (set member)
var consumeRefreshLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

if string.sub(data, 2, 33) ~= ARGV[1] then
  return {err='hash_mismatch'}
end

local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  redis.call('DEL', KEYS[1])
  redis.call('SREM', KEYS[3], ARGV[3])
  return {err='not_found'}
end

redis.call('SET', KEYS[2], ARGV[2], 'PX', ttl)
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[3], ARGV[3])
return 'ok'
`)

// revokeRefreshLua revokes without a hash check and tolerates an already
// missing record, which keeps explicit logout idempotent. The blacklist
// marker is written before the record delete.
//
// KEYS[1] = record key, KEYS[2] = blacklist key, KEYS[3] = subject set key
// ARGV[1] = revocation reason
// ARGV[2] = token id (set member)
var revokeRefreshLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
redis.call('SREM', KEYS[3], ARGV[2])
if not data then
  return 'gone'
end

local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
  redis.call('SET', KEYS[2], ARGV[1], 'PX', ttl)
end
redis.call('DEL', KEYS[1])
return 'ok'
`)

// DeviceMetadata describes the client that a refresh token was issued to.
type DeviceMetadata struct {
	UserAgent string
	IP        string
	DeviceID  string
}

// RefreshRecord is the persisted state of one refresh token. TokenHash is
// the SHA-256 of the raw token string; the token itself is never stored.
type RefreshRecord struct {
	TokenID    string
	SubjectID  string
	TokenHash  [32]byte
	Device     DeviceMetadata
	CreatedAt  time.Time
	LastUsedAt time.Time
	ExpiresAt  time.Time
}

// RefreshStore keeps refresh records keyed by token ID plus a per-subject
// set of active token IDs. Both carry a TTL equal to the token's
// remaining lifetime.
type RefreshStore struct {
	redis redis.UniversalClient
}

// NewRefreshStore creates a RefreshStore backed by the given Redis client.
func NewRefreshStore(redisClient redis.UniversalClient) *RefreshStore {
	return &RefreshStore{redis: redisClient}
}

func refreshKey(tokenID string) string {
	return "refresh_token:" + tokenID
}

func subjectSetKey(subjectID string) string {
	return "user_tokens:" + subjectID
}

// Save persists the record and indexes it under the subject's active set.
// The record TTL is derived from ExpiresAt; an already expired record is
// rejected.
func (s *RefreshStore) Save(ctx context.Context, record *RefreshRecord) error {
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return errors.New("refresh record already expired")
	}

	encoded, err := encodeRefreshRecord(record)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, refreshKey(record.TokenID), encoded, ttl)
		pipe.SAdd(ctx, subjectSetKey(record.SubjectID), record.TokenID)
		pipe.Expire(ctx, subjectSetKey(record.SubjectID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}

	return nil
}

// Get loads a record by token ID.
func (s *RefreshStore) Get(ctx context.Context, tokenID string) (*RefreshRecord, error) {
	data, err := s.redis.Get(ctx, refreshKey(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRefreshNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}

	record, err := decodeRefreshRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
	return record, nil
}

// Consume is the rotation step: it atomically verifies the presented
// token's hash against the stored record, blacklists the token ID for the
// record's remaining lifetime, and deletes record and index entry. Only
// one of several concurrent callers can succeed; the losers get
// ErrRefreshNotFound.
func (s *RefreshStore) Consume(ctx context.Context, subjectID, tokenID string, providedHash [32]byte, reason string) error {
	err := consumeRefreshLua.Run(ctx, s.redis,
		[]string{refreshKey(tokenID), BlacklistKey(tokenID), subjectSetKey(subjectID)},
		string(providedHash[:]),
		reason,
		tokenID,
	).Err()
	if err == nil {
		return nil
	}

	switch err.Error() {
	case "not_found":
		return ErrRefreshNotFound
	case "hash_mismatch":
		return ErrRefreshHashMismatch
	default:
		return fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
}

// Revoke blacklists and deletes a record without checking the token hash.
// Revoking an already revoked or expired token is a no-op.
func (s *RefreshStore) Revoke(ctx context.Context, subjectID, tokenID, reason string) error {
	err := revokeRefreshLua.Run(ctx, s.redis,
		[]string{refreshKey(tokenID), BlacklistKey(tokenID), subjectSetKey(subjectID)},
		reason,
		tokenID,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
	return nil
}

// SubjectTokenIDs returns the subject's currently indexed token IDs.
func (s *RefreshStore) SubjectTokenIDs(ctx context.Context, subjectID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, subjectSetKey(subjectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
	return ids, nil
}

// ClearSubject drops the subject's active-token index.
func (s *RefreshStore) ClearSubject(ctx context.Context, subjectID string) error {
	if err := s.redis.Del(ctx, subjectSetKey(subjectID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
	return nil
}

// Encoding layout (version 1). The hash immediately follows the version
// byte so consumeRefreshLua can compare it at fixed offsets 2..33.
//
//	version(1) | tokenHash(32) | expiresAt(8) | createdAt(8) | lastUsedAt(8)
//	| subjectLen(2) | subject | uaLen(2) | ua | ipLen(2) | ip
//	| deviceIDLen(2) | deviceID | tokenIDLen(2) | tokenID
func encodeRefreshRecord(record *RefreshRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(refreshRecordVersionV1)
	buf.Write(record.TokenHash[:])

	for _, ts := range []int64{record.ExpiresAt.Unix(), record.CreatedAt.Unix(), record.LastUsedAt.Unix()} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	for _, field := range []string{record.SubjectID, record.Device.UserAgent, record.Device.IP, record.Device.DeviceID, record.TokenID} {
		if len(field) > 65535 {
			return nil, errors.New("refresh record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeRefreshRecord(data []byte) (*RefreshRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != refreshRecordVersionV1 {
		return nil, errors.New("invalid refresh record version")
	}

	record := &RefreshRecord{}
	if _, err := io.ReadFull(reader, record.TokenHash[:]); err != nil {
		return nil, err
	}

	var expiresAt, createdAt, lastUsedAt int64
	for _, ts := range []*int64{&expiresAt, &createdAt, &lastUsedAt} {
		if err := binary.Read(reader, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}
	record.ExpiresAt = time.Unix(expiresAt, 0)
	record.CreatedAt = time.Unix(createdAt, 0)
	record.LastUsedAt = time.Unix(lastUsedAt, 0)

	for _, field := range []*string{&record.SubjectID, &record.Device.UserAgent, &record.Device.IP, &record.Device.DeviceID, &record.TokenID} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	return record, nil
}
