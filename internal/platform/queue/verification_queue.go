package queue

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"stepleague/internal/platform/config"
)

var releaseLockScript = redis.NewScript(`
    if redis.call("get", KEYS[1]) == ARGV[1] then
        return redis.call("del", KEYS[1])
    else
        return 0
    end
`)

// VerificationQueue is the Redis list of pending verification job IDs plus a
// sorted set of jobs waiting out a backoff.
type VerificationQueue struct {
	rdb     *redis.Client
	list    string
	delayed string
	lockTTL time.Duration
	clock   func() time.Time
}

func NewVerificationQueue(rdb *redis.Client, cfg *config.Config) *VerificationQueue {
	return &VerificationQueue{
		rdb:     rdb,
		list:    cfg.VerificationQueueName,
		delayed: cfg.VerificationDelayedSet,
		lockTTL: cfg.VerificationLockTTL(),
		clock:   time.Now,
	}
}

func (q *VerificationQueue) Enqueue(ctx context.Context, jobID string) error {
	return q.rdb.LPush(ctx, q.list, jobID).Err()
}

// Requeue puts a job at the consuming end so it is picked up next.
func (q *VerificationQueue) Requeue(ctx context.Context, jobID string) error {
	return q.rdb.RPush(ctx, q.list, jobID).Err()
}

// Pop blocks up to timeout; it returns "" with a nil error when nothing arrived.
func (q *VerificationQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.list).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	// BRPop returns [queueName, value]
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// Schedule parks a job until delay has passed.
func (q *VerificationQueue) Schedule(ctx context.Context, jobID string, delay time.Duration) error {
	due := q.clock().Add(delay).UnixMilli()
	return q.rdb.ZAdd(ctx, q.delayed, redis.Z{Score: float64(due), Member: jobID}).Err()
}

// PromoteDue moves every job whose backoff has elapsed onto the main list.
func (q *VerificationQueue) PromoteDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(q.clock().UnixMilli(), 10)
	due, err := q.rdb.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, jobID := range due {
		// ZREM decides which worker owns the promotion.
		removed, err := q.rdb.ZRem(ctx, q.delayed, jobID).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.Enqueue(ctx, jobID); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// AcquireLock takes the per-submission lock; the returned token releases it.
func (q *VerificationQueue) AcquireLock(ctx context.Context, submissionID string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := q.rdb.SetNX(ctx, LockKey(submissionID), token, q.lockTTL).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// ReleaseLock deletes the lock only if token still owns it.
func (q *VerificationQueue) ReleaseLock(ctx context.Context, submissionID, token string) (bool, error) {
	deleted, err := releaseLockScript.Run(ctx, q.rdb, []string{LockKey(submissionID)}, token).Int64()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}

func LockKey(submissionID string) string {
	return "verify_lock:" + submissionID
}
