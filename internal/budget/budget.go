// Package budget tracks daily inference spend so a runaway simulation
// cannot burn through an API budget overnight.
package budget

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result is the outcome of a daily spend check.
type Result struct {
	Allowed    bool
	SpentCents int64
	LimitCents int64
}

// Tracker accumulates per-day spend counters in Redis. A nil client
// disables tracking entirely; Redis being down fails open, because
// losing budget enforcement is cheaper than stalling every decision.
type Tracker struct {
	rdb *redis.Client
	now func() time.Time
}

func NewTracker(rdb *redis.Client) *Tracker {
	return &Tracker{rdb: rdb, now: time.Now}
}

func (t *Tracker) dailyKey(scope string) string {
	day := t.now().UTC().Format("2006-01-02")
	return fmt.Sprintf("village:budget:daily:%s:%s", scope, day)
}

// Check reports whether the scope (an agent id, or "global") is still
// under its daily limit. limitUSD <= 0 means unlimited.
func (t *Tracker) Check(ctx context.Context, scope string, limitUSD float64) (Result, error) {
	limitCents := int64(math.Round(limitUSD * 100))
	if t.rdb == nil || limitCents <= 0 {
		return Result{Allowed: true, LimitCents: limitCents}, nil
	}

	spent, err := t.rdb.Get(ctx, t.dailyKey(scope)).Int64()
	if err != nil && err != redis.Nil {
		return Result{Allowed: true, LimitCents: limitCents}, nil
	}

	return Result{
		Allowed:    spent < limitCents,
		SpentCents: spent,
		LimitCents: limitCents,
	}, nil
}

// Record adds the cost of one exchange to the scope's daily counter.
// Sub-cent costs accumulate as zero; that is acceptable slack for a
// guard rail, not an accounting system.
func (t *Tracker) Record(ctx context.Context, scope string, costUSD float64) error {
	costCents := int64(math.Round(costUSD * 100))
	if t.rdb == nil || costCents <= 0 {
		return nil
	}

	key := t.dailyKey(scope)
	pipe := t.rdb.Pipeline()
	pipe.IncrBy(ctx, key, costCents)
	// Expire at end of day UTC plus an hour of slack.
	now := t.now().UTC()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	pipe.Expire(ctx, key, endOfDay.Sub(now)+time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}
