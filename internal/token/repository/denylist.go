package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// RedisDenylist keeps revoked family ids in Redis for as long as an access token minted for them
// could still verify.
type RedisDenylist struct {
	client redis.Cmdable
	prefix string
}

// NewRedisDenylist returns a denylist storing keys under "revoked_family:".
func NewRedisDenylist(client redis.Cmdable) *RedisDenylist {
	return &RedisDenylist{client: client, prefix: "revoked_family:"}
}

// Add records familyIDs as revoked for ttl.
func (d *RedisDenylist) Add(ctx context.Context, ttl time.Duration, familyIDs ...string) error {
	if len(familyIDs) == 0 {
		return nil
	}
	_, err := d.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range familyIDs {
			p.Set(ctx, d.prefix+id, 1, ttl)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "denylist add")
	}
	return nil
}

// Contains reports whether familyID was revoked within the last ttl.
func (d *RedisDenylist) Contains(ctx context.Context, familyID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+familyID).Result()
	if err != nil {
		return false, errors.Wrap(err, "denylist lookup")
	}
	return n > 0, nil
}
