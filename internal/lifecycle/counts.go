package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/securelane/gatepass/internal/domain"
	"github.com/securelane/gatepass/internal/filter"
	"github.com/securelane/gatepass/internal/gateway"
	"github.com/securelane/gatepass/pkg/logger"
)

// Counts returns the aggregate figures for the active view. The default view
// tallies the materialized collection; the recurring view asks the gateway,
// because that working set is never fully paged into memory.
func (o *Orchestrator) Counts(ctx context.Context) (filter.Counts, error) {
	o.mu.Lock()
	f := o.filters
	view := o.view
	o.mu.Unlock()

	if view == ViewRecurring {
		return o.remoteCounts(ctx, f)
	}
	return filter.Tally(o.store.Passes(), f), nil
}

// remoteCounts issues one count-only query per pass type plus a totals query,
// all under the active search/category constraints. Approved/pending/rejected
// are not meaningful in the recurring view and stay zero.
func (o *Orchestrator) remoteCounts(ctx context.Context, f filter.Filters) (filter.Counts, error) {
	if c, ok := o.counts.Get(ctx, f); ok {
		return c, nil
	}

	base := gateway.QueryFromFilters(filter.Filters{Search: f.Search, Category: f.Category})

	var c filter.Counts
	total, err := o.gw.CountByFilter(ctx, base)
	if err != nil {
		return filter.Counts{}, fmt.Errorf("failed to count recurring passes: %w", err)
	}
	c.Total = total

	for _, pt := range []domain.PassType{domain.PassOneTime, domain.PassRecurring, domain.PassPermanent} {
		q := base
		q.PassType = string(pt)
		n, err := o.gw.CountByFilter(ctx, q)
		if err != nil {
			return filter.Counts{}, fmt.Errorf("failed to count %s passes: %w", pt, err)
		}
		switch pt {
		case domain.PassOneTime:
			c.OneTime = n
		case domain.PassRecurring:
			c.Recurring = n
		case domain.PassPermanent:
			c.Permanent = n
		}
	}

	o.counts.Set(ctx, f, c)
	return c, nil
}

// CountCache keeps remote count results in Redis for a short TTL so rapid
// filter changes in the recurring view do not hammer the gateway. A nil
// client disables caching.
type CountCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCountCache(rdb *redis.Client, ttl time.Duration) *CountCache {
	return &CountCache{rdb: rdb, ttl: ttl}
}

func (c *CountCache) key(f filter.Filters) string {
	f = f.Normalized()
	return fmt.Sprintf("gatepass:counts:recurring:%s:%s:%s", f.Search, f.Category, f.Status)
}

func (c *CountCache) Get(ctx context.Context, f filter.Filters) (filter.Counts, bool) {
	if c == nil || c.rdb == nil {
		return filter.Counts{}, false
	}
	raw, err := c.rdb.Get(ctx, c.key(f)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.WarnContext(ctx, "Count cache read failed", "error", err)
		}
		return filter.Counts{}, false
	}
	var counts filter.Counts
	if err := json.Unmarshal(raw, &counts); err != nil {
		return filter.Counts{}, false
	}
	return counts, true
}

func (c *CountCache) Set(ctx context.Context, f filter.Filters, counts filter.Counts) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(counts)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(f), raw, c.ttl).Err(); err != nil {
		logger.WarnContext(ctx, "Count cache write failed", "error", err)
	}
}
