package balance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedSource is a read-through cache over a Source. Balance reads dominate
// posting writes by a wide margin, so short TTLs plus explicit invalidation
// on posting keep reports cheap without serving stale closings.
type CachedSource struct {
	next   Source
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSource wraps next with a redis cache.
func NewCachedSource(next Source, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(q Query) string {
	from, to := "-", "-"
	if q.From != nil {
		from = q.From.Format("2006-01-02")
	}
	if q.To != nil {
		to = q.To.Format("2006-01-02")
	}
	if q.AccountID != 0 {
		return fmt.Sprintf("balances:%d:id:%d:%s:%s", q.OrgID, q.AccountID, from, to)
	}
	return fmt.Sprintf("balances:%d:code:%s:%s:%s", q.OrgID, q.CodePrefix, from, to)
}

// Sums serves from redis when possible, falling through to the underlying
// source on miss or cache error. Cache failures degrade to direct reads.
func (c *CachedSource) Sums(ctx context.Context, q Query) (Sums, error) {
	key := cacheKey(q)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var sums Sums
		if err := json.Unmarshal(raw, &sums); err == nil {
			return sums, nil
		}
		// Corrupt payload, drop it and recompute.
		c.rdb.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("balance cache read failed", "key", key, "error", err)
	}

	sums, err := c.next.Sums(ctx, q)
	if err != nil {
		return Sums{}, err
	}
	if payload, err := json.Marshal(sums); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("balance cache write failed", "key", key, "error", err)
		}
	}
	return sums, nil
}

// InvalidateOrg drops every cached sum for one organization.
func (c *CachedSource) InvalidateOrg(ctx context.Context, orgID int64) error {
	pattern := fmt.Sprintf("balances:%d:*", orgID)
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
