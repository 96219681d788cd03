// Package challenge keeps MFA challenges in Redis. Each challenge is a hash whose attempt counter
// is advanced by a Lua script, so concurrent verifications across instances never share an attempt.
// Expiry is decided by the stored expires_at field; the key TTL only reclaims memory afterwards.
package challenge

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"identity-core/internal/mfa/domain"
)

const defaultPrefix = "mfa_challenge"

// Outcome of one attempt consumption.
type Outcome int

const (
	// Admitted means the attempt was counted and the response may be checked.
	Admitted Outcome = iota
	// NotFound means no challenge exists under the id (never created, completed, or reclaimed).
	NotFound
	// Expired means the stored expiry has passed.
	Expired
	// Exhausted means the challenge has failed and accepts no further attempts.
	Exhausted
)

// consumeScript advances the attempt counter of a pending challenge.
// Returns {code, attempts, max}: code 0 admitted, 1 not found, 2 expired, 3 exhausted.
var consumeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return {1, 0, 0}
end
local max = tonumber(redis.call("HGET", KEYS[1], "max_attempts"))
local attempts = tonumber(redis.call("HGET", KEYS[1], "attempts"))
if tonumber(ARGV[1]) >= tonumber(redis.call("HGET", KEYS[1], "expires_at")) then
	redis.call("HSET", KEYS[1], "state", "failed")
	return {2, attempts, max}
end
if redis.call("HGET", KEYS[1], "state") ~= "pending" then
	return {3, attempts, max}
end
attempts = redis.call("HINCRBY", KEYS[1], "attempts", 1)
if attempts > max then
	redis.call("HSET", KEYS[1], "state", "failed")
	return {3, attempts, max}
end
return {0, attempts, max}
`)

// failScript marks a still-pending challenge failed.
var failScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "state") == "pending" then
	redis.call("HSET", KEYS[1], "state", "failed")
	return 1
end
return 0
`)

// Store persists challenges in Redis.
type Store struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix. Default "mfa_challenge".
func WithPrefix(prefix string) Option { return func(s *Store) { s.prefix = prefix } }

// WithRetention sets how long a challenge key outlives its expiry so late attempts still see the
// stored expiry. Default 10 minutes.
func WithRetention(d time.Duration) Option { return func(s *Store) { s.retention = d } }

// NewStore returns a Store over client.
func NewStore(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix, retention: 10 * time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(id string) string { return s.prefix + ":" + id }

// Save writes a new pending challenge. The key lives until ExpiresAt plus the retention period.
func (s *Store) Save(ctx context.Context, c *domain.Challenge, now time.Time) error {
	key := s.key(c.ID)
	ttl := c.ExpiresAt.Sub(now) + s.retention
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"principal_id", c.PrincipalID,
			"enrollment_id", c.EnrollmentID,
			"factor_type", string(c.FactorType),
			"purpose", string(c.Purpose),
			"code_hash", c.CodeHash,
			"state", string(domain.ChallengePending),
			"attempts", 0,
			"max_attempts", c.MaxAttempts,
			"expires_at", c.ExpiresAt.UnixMilli(),
			"created_at", c.CreatedAt.UnixMilli(),
		)
		p.PExpire(ctx, key, ttl)
		return nil
	})
	return errors.Wrap(err, "save challenge")
}

// Get returns the challenge, or nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*domain.Challenge, error) {
	vals, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "get challenge")
	}
	if len(vals) == 0 {
		return nil, nil
	}
	c := &domain.Challenge{
		ID:           id,
		PrincipalID:  vals["principal_id"],
		EnrollmentID: vals["enrollment_id"],
		FactorType:   domain.FactorType(vals["factor_type"]),
		Purpose:      domain.Purpose(vals["purpose"]),
		CodeHash:     vals["code_hash"],
		State:        domain.ChallengeState(vals["state"]),
	}
	c.Attempts, _ = strconv.Atoi(vals["attempts"])
	c.MaxAttempts, _ = strconv.Atoi(vals["max_attempts"])
	c.ExpiresAt = unixMilli(vals["expires_at"])
	c.CreatedAt = unixMilli(vals["created_at"])
	return c, nil
}

func unixMilli(s string) time.Time {
	ms, _ := strconv.ParseInt(s, 10, 64)
	return time.UnixMilli(ms).UTC()
}

// Consume counts one attempt against the challenge at now. remaining is the number of attempts
// left after this one; it is meaningful only when the outcome is Admitted.
func (s *Store) Consume(ctx context.Context, id string, now time.Time) (outcome Outcome, remaining int, err error) {
	res, err := consumeScript.Run(ctx, s.client, []string{s.key(id)}, now.UnixMilli()).Int64Slice()
	if err != nil {
		return 0, 0, errors.Wrap(err, "consume challenge attempt")
	}
	if len(res) != 3 {
		return 0, 0, errors.Newf("consume challenge attempt: unexpected reply %v", res)
	}
	remaining = int(res[2] - res[1])
	if remaining < 0 {
		remaining = 0
	}
	return Outcome(res[0]), remaining, nil
}

// Fail marks a pending challenge failed so later attempts report exhaustion.
func (s *Store) Fail(ctx context.Context, id string) error {
	return errors.Wrap(failScript.Run(ctx, s.client, []string{s.key(id)}).Err(), "fail challenge")
}

// Complete removes a verified challenge. It returns false when another caller completed or
// removed it first, so exactly one verification wins.
func (s *Store) Complete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, errors.Wrap(err, "complete challenge")
	}
	return n == 1, nil
}

// MarkCodeUsed records a TOTP code as spent for the enrollment. Returns false when it was already
// recorded within ttl.
func (s *Store) MarkCodeUsed(ctx context.Context, enrollmentID, code string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+":used:"+enrollmentID+":"+code, 1, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "mark code used")
	}
	return ok, nil
}
