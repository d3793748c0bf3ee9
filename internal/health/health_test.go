package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type countingChecker struct {
	calls   atomic.Int32
	healthy bool
}

func (c *countingChecker) Check(context.Context) CheckResult {
	c.calls.Add(1)
	if !c.healthy {
		return CheckResult{Name: "counting", Error: "down"}
	}
	return CheckResult{Name: "counting", Healthy: true}
}

func TestProbeRunnerReportsFailingChecker(t *testing.T) {
	ok := CheckerFunc{Name: "ok", Fn: func(context.Context) error { return nil }}
	bad := CheckerFunc{Name: "bad", Fn: func(context.Context) error { return errors.New("boom") }}
	ready, results := NewProbeRunner(time.Second, 0, ok, bad).Ready(context.Background())
	if ready {
		t.Fatal("expected not ready")
	}
	if len(results) != 2 || results[0].Name != "ok" || !results[0].Healthy || results[1].Error != "boom" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestProbeRunnerCachesWithinTTL(t *testing.T) {
	c := &countingChecker{healthy: true}
	p := NewProbeRunner(time.Second, time.Minute, c)
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if ready, _ := p.Ready(context.Background()); !ready {
			t.Fatal("expected ready")
		}
	}
	if got := c.calls.Load(); got != 1 {
		t.Fatalf("expected one check inside ttl, got %d", got)
	}
	now = now.Add(2 * time.Minute)
	p.Ready(context.Background())
	if got := c.calls.Load(); got != 2 {
		t.Fatalf("expected refresh after ttl, got %d", got)
	}
}

func TestProbeRunnerTimeoutReachesCheckers(t *testing.T) {
	slow := CheckerFunc{Name: "slow", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	ready, results := NewProbeRunner(20*time.Millisecond, 0, slow).Ready(context.Background())
	if ready || results[0].Healthy {
		t.Fatalf("expected timeout failure, got %+v", results)
	}
}

func TestDatabaseAndRedisCheckers(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ready, results := NewProbeRunner(time.Second, 0, NewDatabaseChecker(db), NewRedisChecker(client)).Ready(context.Background())
	if !ready {
		t.Fatalf("expected dependencies ready, got %+v", results)
	}

	mr.Close()
	if res := NewRedisChecker(client).Check(context.Background()); res.Healthy {
		t.Fatal("expected redis check to fail after shutdown")
	}
	if res := NewDatabaseChecker(nil).Check(context.Background()); res.Healthy || res.Name != "database" {
		t.Fatalf("unexpected nil database result: %+v", res)
	}
}
