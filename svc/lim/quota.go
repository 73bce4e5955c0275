package lim

import (
	"context"
	"time"

	"lingopaste/svc/db"
)

type creationCounter interface {
	CountCreatedSince(ctx context.Context, ipHash string, since time.Time) (int, error)
}

// Quota caps paste creations per client per UTC day. Redis is preferred;
// without it the count comes from the paste table itself.
type Quota struct {
	rdb   *db.Redis
	store creationCounter
	limit int
	now   func() time.Time
}

func NewQuota(limit int, rdb *db.Redis, store creationCounter) *Quota {
	return &Quota{rdb: rdb, store: store, limit: limit, now: time.Now}
}

// Allow consumes one creation for ipHash. A zero limit disables the quota.
func (q *Quota) Allow(ctx context.Context, ipHash string) (bool, error) {
	if q == nil || q.limit <= 0 {
		return true, nil
	}
	now := q.now()
	if q.rdb != nil {
		return q.rdb.DailyQuota(ctx, ipHash, q.limit, now)
	}
	y, m, d := now.UTC().Date()
	n, err := q.store.CountCreatedSince(ctx, ipHash, time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return false, err
	}
	return n < q.limit, nil
}
