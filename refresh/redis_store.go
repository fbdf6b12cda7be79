package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statusNotFound  int64 = 0
	statusExpired   int64 = 1
	statusRevoked   int64 = 2
	statusOK        int64 = 3
	statusCorrupt   int64 = 4
	statusCollision int64 = 5
)

// Records are hashes with fields uid, iat, exp (unix ms), rev ("0"/"1"), rby
// (successor id), ip and ua. A user's set holds record ids, not keys.
//
// Every key carries the prefix as a hash tag, so all of a store's keys hash
// to one cluster slot. The rotate and revoke-all scripts derive keys from
// stored ids, which Redis Cluster only permits within the declared slot.

const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 5
end
redis.call("HSET", KEYS[1], "uid", ARGV[1], "iat", ARGV[2], "exp", ARGV[3], "rev", "0", "rby", "", "ip", ARGV[6], "ua", ARGV[7])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
redis.call("SADD", KEYS[2], ARGV[5])
if redis.call("PTTL", KEYS[2]) < tonumber(ARGV[4]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[4])
end
return 3
`

var createLua = redis.NewScript(createScript)

// classify is shared by redeem and rotate. It returns a status table when the
// record cannot be redeemed and nil when it can.
const classifyPrelude = `
local function classify(key, now)
  local f = redis.call("HMGET", key, "uid", "iat", "exp", "rev", "rby", "ip", "ua")
  if not f[1] then
    return {0}, nil
  end
  local iat = tonumber(f[2])
  local exp = tonumber(f[3])
  if not iat or not exp or (f[4] ~= "0" and f[4] ~= "1") then
    return {4}, nil
  end
  local rec = {f[1], f[2], f[3], f[4], f[5] or "", f[6] or "", f[7] or ""}
  if now >= exp then
    return {1, rec[1], rec[2], rec[3], rec[4], rec[5], rec[6], rec[7]}, nil
  end
  if rec[4] == "1" then
    return {2, rec[1], rec[2], rec[3], rec[4], rec[5], rec[6], rec[7]}, nil
  end
  return nil, rec
end
`

const redeemScript = classifyPrelude + `
local status, rec = classify(KEYS[1], tonumber(ARGV[1]))
if status then
  return status
end
redis.call("HSET", KEYS[1], "rev", "1")
return {3, rec[1], rec[2], rec[3], "1", rec[5], rec[6], rec[7]}
`

var redeemLua = redis.NewScript(redeemScript)

const rotateScript = classifyPrelude + `
local status, rec = classify(KEYS[1], tonumber(ARGV[1]))
if status then
  return status
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return {5}
end
local new_id = ARGV[2]
local pttl = tonumber(ARGV[5])
local user_key = ARGV[6] .. rec[1]

redis.call("HSET", KEYS[1], "rev", "1", "rby", new_id)
redis.call("HSET", KEYS[2], "uid", rec[1], "iat", ARGV[3], "exp", ARGV[4], "rev", "0", "rby", "", "ip", ARGV[7], "ua", ARGV[8])
redis.call("PEXPIRE", KEYS[2], pttl)
redis.call("SADD", user_key, new_id)
if redis.call("PTTL", user_key) < pttl then
  redis.call("PEXPIRE", user_key, pttl)
end
return {3, rec[1], rec[2], rec[3], "1", new_id, rec[6], rec[7]}
`

var rotateLua = redis.NewScript(rotateScript)

const revokeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "rev") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "rev", "1")
return 1
`

var revokeLua = redis.NewScript(revokeScript)

const revokeAllScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local flipped = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  local rev = redis.call("HGET", key, "rev")
  if not rev then
    redis.call("SREM", KEYS[1], id)
  elseif rev ~= "1" then
    redis.call("HSET", key, "rev", "1")
    flipped = flipped + 1
  end
end
return flipped
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// RedisStore is a [Store] backed by Redis. All state transitions run as Lua
// scripts, so a single Redis primary serialises them.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	keyer  Keyer
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a store writing keys under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string, opts Options) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("refresh: nil redis client")
	}
	if prefix == "" {
		prefix = "authcore"
	}
	keyer, err := NewKeyer(opts)
	if err != nil {
		return nil, err
	}
	return &RedisStore{redis: client, prefix: prefix, keyer: keyer}, nil
}

func (s *RedisStore) recordPrefix() string { return "{" + s.prefix + "}:rt:" }

func (s *RedisStore) userPrefix() string { return "{" + s.prefix + "}:rtu:" }

func (s *RedisStore) recordKey(id string) string { return s.recordPrefix() + id }

func (s *RedisStore) userKey(userID string) string { return s.userPrefix() + userID }

func (s *RedisStore) retainMillis(expiresAt, now time.Time) int64 {
	ms := expiresAt.Sub(now).Milliseconds() + s.keyer.opts.Retention.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}

// Create implements [Store].
func (s *RedisStore) Create(ctx context.Context, userID string, now time.Time, client Client) (Issued, error) {
	if userID == "" {
		return Issued{}, errors.New("refresh: empty user id")
	}
	token, id, err := s.keyer.Mint()
	if err != nil {
		return Issued{}, err
	}
	rec := s.keyer.Issue(id, userID, now, client)

	status, err := createLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(id), s.userKey(userID)},
		userID,
		rec.IssuedAt.UnixMilli(),
		rec.ExpiresAt.UnixMilli(),
		s.retainMillis(rec.ExpiresAt, rec.IssuedAt),
		id,
		client.IP,
		client.UserAgent,
	).Int64()
	if err != nil {
		return Issued{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if status == statusCollision {
		return Issued{}, errors.New("refresh: identifier collision")
	}

	return Issued{Token: token, Record: rec}, nil
}

// Redeem implements [Store].
func (s *RedisStore) Redeem(ctx context.Context, token string, now time.Time) (Record, error) {
	id, err := s.keyer.Key(token)
	if err != nil {
		return Record{}, err
	}
	result, err := redeemLua.Run(ctx, s.redis, []string{s.recordKey(id)}, now.UnixMilli()).Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeScriptRecord(id, result)
}

// Rotate implements [Store].
func (s *RedisStore) Rotate(ctx context.Context, token string, now time.Time, client Client) (Record, Issued, error) {
	id, err := s.keyer.Key(token)
	if err != nil {
		return Record{}, Issued{}, err
	}
	nextToken, nextID, err := s.keyer.Mint()
	if err != nil {
		return Record{}, Issued{}, err
	}
	next := s.keyer.Issue(nextID, "", now, client)

	result, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(id), s.recordKey(nextID)},
		now.UnixMilli(),
		nextID,
		next.IssuedAt.UnixMilli(),
		next.ExpiresAt.UnixMilli(),
		s.retainMillis(next.ExpiresAt, next.IssuedAt),
		s.userPrefix(),
		client.IP,
		client.UserAgent,
	).Result()
	if err != nil {
		return Record{}, Issued{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	old, err := decodeScriptRecord(id, result)
	if err != nil {
		return old, Issued{}, err
	}
	next.UserID = old.UserID
	return old, Issued{Token: nextToken, Record: next}, nil
}

// Revoke implements [Store].
func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	id, err := s.keyer.Key(token)
	if err != nil {
		return nil
	}
	if err := revokeLua.Run(ctx, s.redis, []string{s.recordKey(id)}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RevokeAllForUser implements [Store].
//
// The script walks the user's index set, so the whole bulk revoke is atomic
// with respect to concurrent rotations.
func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := revokeAllLua.Run(ctx, s.redis, []string{s.userKey(userID)}, s.recordPrefix()).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Lookup returns the record for token without changing it.
func (s *RedisStore) Lookup(ctx context.Context, token string) (Record, error) {
	id, err := s.keyer.Key(token)
	if err != nil {
		return Record{}, err
	}
	return s.lookupID(ctx, id)
}

func (s *RedisStore) lookupID(ctx context.Context, id string) (Record, error) {
	fields, err := s.redis.HMGet(ctx, s.recordKey(id), "uid", "iat", "exp", "rev", "rby", "ip", "ua").Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if fields[0] == nil {
		return Record{}, ErrNotFound
	}
	parts := make([]interface{}, 0, 8)
	parts = append(parts, statusOK)
	parts = append(parts, fields...)
	return decodeScriptRecord(id, parts)
}

// ActiveCount returns how many unrevoked, unexpired records userID holds.
func (s *RedisStore) ActiveCount(ctx context.Context, userID string, now time.Time) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	active := 0
	for _, id := range ids {
		rec, err := s.lookupID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if !rec.Revoked && now.Before(rec.ExpiresAt) {
			active++
		}
	}
	return active, nil
}

// Ping checks Redis availability.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func decodeScriptRecord(id string, result interface{}) (Record, error) {
	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return Record{}, fmt.Errorf("%w: invalid script response", ErrStoreUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return Record{}, fmt.Errorf("%w: invalid script status", ErrStoreUnavailable)
	}

	switch code {
	case statusNotFound:
		return Record{}, ErrNotFound
	case statusCorrupt:
		return Record{}, errors.Join(ErrStoreUnavailable, ErrCorruptRecord)
	case statusCollision:
		return Record{}, errors.New("refresh: identifier collision")
	case statusExpired, statusRevoked, statusOK:
	default:
		return Record{}, fmt.Errorf("%w: unknown script status %d", ErrStoreUnavailable, code)
	}

	if len(parts) < 8 {
		return Record{}, fmt.Errorf("%w: short script response", ErrStoreUnavailable)
	}
	fields := make([]string, 7)
	for i := range fields {
		switch v := parts[i+1].(type) {
		case string:
			fields[i] = v
		case []byte:
			fields[i] = string(v)
		case nil:
		default:
			return Record{}, errors.Join(ErrStoreUnavailable, ErrCorruptRecord)
		}
	}
	iat, err1 := strconv.ParseInt(fields[1], 10, 64)
	exp, err2 := strconv.ParseInt(fields[2], 10, 64)
	if err1 != nil || err2 != nil {
		return Record{}, errors.Join(ErrStoreUnavailable, ErrCorruptRecord)
	}

	rec := Record{
		ID:         id,
		UserID:     fields[0],
		IssuedAt:   time.UnixMilli(iat).UTC(),
		ExpiresAt:  time.UnixMilli(exp).UTC(),
		Revoked:    fields[3] == "1",
		ReplacedBy: fields[4],
		IP:         fields[5],
		UserAgent:  fields[6],
	}

	switch code {
	case statusExpired:
		return rec, ErrExpired
	case statusRevoked:
		return rec, ErrAlreadyRevoked
	default:
		return rec, nil
	}
}
