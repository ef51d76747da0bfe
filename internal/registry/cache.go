package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/registria/registria/internal/identity"
)

// MembershipCache keeps hasRole lookups in Redis. Entries are invalidated
// inline by grant/revoke, so the TTL only bounds staleness after out-of-band
// storage changes.
type MembershipCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewMembershipCache constructs the cache.
func NewMembershipCache(client *redis.Client, ttl time.Duration) *MembershipCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MembershipCache{client: client, ttl: ttl}
}

// Lookup returns the cached membership bit, filling it from loader on a miss.
// Concurrent misses for the same key share one loader call.
func (c *MembershipCache) Lookup(ctx context.Context, role identity.RoleID, account identity.Account, loader func(context.Context) (bool, error)) (bool, error) {
	key := membershipKey(role, account)
	val, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return val == "1", nil
	}
	if err != redis.Nil {
		// Cache outage falls through to storage.
		return loader(ctx)
	}
	res, err, _ := c.group.Do(key, func() (any, error) {
		member, err := loader(ctx)
		if err != nil {
			return false, err
		}
		bit := "0"
		if member {
			bit = "1"
		}
		_ = c.client.Set(ctx, key, bit, c.ttl).Err()
		return member, nil
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// Invalidate drops the cached bit for (role, account).
func (c *MembershipCache) Invalidate(ctx context.Context, role identity.RoleID, account identity.Account) error {
	return c.client.Del(ctx, membershipKey(role, account)).Err()
}

func membershipKey(role identity.RoleID, account identity.Account) string {
	return fmt.Sprintf("registry:member:%s:%s", role, account)
}
