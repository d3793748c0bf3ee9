package integration

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sensei-edu/sensei-api/internal/http/middleware"
)

func TestHealthLiveAndReadyEndpoints(t *testing.T) {
	s := newTestServer(t)

	resp, env := s.doJSON(t, http.MethodGet, "/health/live", "", nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("health live failed: status=%d", resp.StatusCode)
	}

	resp, env = s.doJSON(t, http.MethodGet, "/health/ready", "", nil)
	var ready struct {
		Status string `json:"status"`
		Checks []struct {
			Name    string `json:"name"`
			Healthy bool   `json:"healthy"`
		} `json:"checks"`
	}
	decodeData(t, env, &ready)
	if resp.StatusCode != http.StatusOK || ready.Status != "ready" || len(ready.Checks) != 2 {
		t.Fatalf("unexpected readiness: %d %+v", resp.StatusCode, ready)
	}

	s.redis.Close()
	resp, env = s.doJSON(t, http.MethodGet, "/health/ready", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable || env.Error == nil || env.Error.Code != "DEPENDENCY_UNREADY" {
		t.Fatalf("expected 503 after redis loss, got %d", resp.StatusCode)
	}
}

func TestRateLimitIsPerSubject(t *testing.T) {
	s := newTestServerWithOptions(t, serverOptions{rateLimitRPM: 2})
	alice := s.token(t, "alice", "teacher")
	bob := s.token(t, "bob", "teacher")

	for i := 0; i < 2; i++ {
		if resp, _ := s.doJSON(t, http.MethodGet, "/api/v1/subjects", alice, nil); resp.StatusCode != http.StatusOK {
			t.Fatalf("alice request %d: %d", i, resp.StatusCode)
		}
	}
	resp, env := s.doJSON(t, http.MethodGet, "/api/v1/subjects", alice, nil)
	if resp.StatusCode != http.StatusTooManyRequests || env.Error.Code != "RATE_LIMITED" {
		t.Fatalf("expected alice limited, got %d", resp.StatusCode)
	}
	if resp, _ := s.doJSON(t, http.MethodGet, "/api/v1/subjects", bob, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected bob unaffected, got %d", resp.StatusCode)
	}
}

func TestRedisRateLimiterConcurrentBurstHonorsLimit(t *testing.T) {
	s := newTestServer(t)
	client := redis.NewClient(&redis.Options{Addr: s.redis.Addr()})
	defer func() { _ = client.Close() }()

	limiter := middleware.NewRedisFixedWindowLimiter(client, "itest:burst")
	policy := middleware.RateLimitPolicy{Limit: 20, Window: 10 * time.Minute}

	const attempts = 100
	var allowed atomic.Int64
	errCh := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := limiter.Allow(context.Background(), "same-actor", policy)
			if err != nil {
				errCh <- err
				return
			}
			if decision.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("limiter allow failed: %v", err)
	}
	if got := allowed.Load(); got != int64(policy.Limit) {
		t.Fatalf("expected exactly %d allowed requests, got %d", policy.Limit, got)
	}
}
