package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pos/internal/billing"
	"github.com/noah-isme/backend-pos/internal/report"
)

type stubStore struct {
	calls   int
	count   int
	takings billing.Money
}

func (s *stubStore) DailySales(context.Context, time.Time) (int, billing.Money, error) {
	s.calls++
	return s.count, s.takings, nil
}

func TestDailyCachesPastDays(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	now := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)
	store := &stubStore{count: 4, takings: 12500}
	svc := &report.Service{Store: store, R: rdb, TTL: time.Minute, Now: func() time.Time { return now }}

	yesterday := now.AddDate(0, 0, -1)
	first, err := svc.Daily(context.Background(), yesterday)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.BillsClosed != 4 || first.Takings != 12500 {
		t.Fatalf("unexpected summary: %+v", first)
	}
	if _, err := svc.Daily(context.Background(), yesterday); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected 1 store call, got %d", store.calls)
	}
}

func TestDailyNeverCachesToday(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	now := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)
	store := &stubStore{count: 1, takings: 500}
	svc := &report.Service{Store: store, R: rdb, TTL: time.Minute, Now: func() time.Time { return now }}

	if _, err := svc.Daily(context.Background(), now); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := svc.Daily(context.Background(), now); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if store.calls != 2 {
		t.Fatalf("expected 2 store calls, got %d", store.calls)
	}
}
