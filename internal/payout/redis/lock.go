package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis serializes payout processing per talent: the balance check and the
// reservation write must not interleave between two requests for the same
// talent.
type Redis struct {
	Client  *redis.Client
	LockTTL time.Duration
	Logger  *log.Logger
}

func NewRedis(client *redis.Client, lockTTL time.Duration) *Redis {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Redis{
		Client:  client,
		LockTTL: lockTTL,
		Logger:  log.Default(),
	}
}

func lockKey(talentID string) string {
	return "payout_lock:" + talentID
}

// AcquireTalentLock takes the per-talent critical section. The owner token
// ties the lock to one request so an expired holder cannot release a lock
// someone else now owns.
func (r *Redis) AcquireTalentLock(ctx context.Context, talentID, owner string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, lockKey(talentID), owner, r.LockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock error: %w", err)
	}
	return ok, nil
}

// ReleaseTalentLock releases the lock only if this owner still holds it.
func (r *Redis) ReleaseTalentLock(ctx context.Context, talentID, owner string) error {
	key := lockKey(talentID)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already released or expired
	}
	if err != nil {
		return err
	}
	if val == owner {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	r.Logger.Printf("payout lock for %s held by another owner, not releasing", talentID)
	return nil
}
