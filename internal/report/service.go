package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pos/internal/billing"
)

// Store provides the aggregates the report service serves.
type Store interface {
	DailySales(ctx context.Context, day time.Time) (int, billing.Money, error)
}

// DailySummary is one calendar day of closed-bill figures.
type DailySummary struct {
	Day         string        `json:"day"`
	BillsClosed int           `json:"billsClosed"`
	Takings     billing.Money `json:"takings"`
}

// Service provides cached access to sales aggregates.
type Service struct {
	Store Store
	R     *redis.Client
	TTL   time.Duration
	Now   func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// Daily returns the closed-bill count and takings for the given day. Today's
// figures are never cached since they are still moving.
func (s *Service) Daily(ctx context.Context, day time.Time) (DailySummary, error) {
	if s == nil || s.Store == nil {
		return DailySummary{}, fmt.Errorf("report service not configured")
	}
	dayKey := day.Format("2006-01-02")
	cacheable := dayKey != s.now().Format("2006-01-02")
	key := cacheKey("rpt", "daily", dayKey)
	if cacheable {
		if summary, ok := s.fromCache(ctx, key); ok {
			return summary, nil
		}
	}
	count, takings, err := s.Store.DailySales(ctx, day)
	if err != nil {
		return DailySummary{}, err
	}
	summary := DailySummary{Day: dayKey, BillsClosed: count, Takings: takings}
	if cacheable {
		s.store(ctx, key, summary)
	}
	return summary, nil
}

func (s *Service) fromCache(ctx context.Context, key string) (DailySummary, bool) {
	if s.R == nil || s.TTL <= 0 {
		return DailySummary{}, false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return DailySummary{}, false
	}
	var summary DailySummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return DailySummary{}, false
	}
	return summary, true
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
