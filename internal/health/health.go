package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type CheckResult struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckerFunc adapts a plain function into a named Checker.
type CheckerFunc struct {
	Name string
	Fn   func(ctx context.Context) error
}

func (c CheckerFunc) Check(ctx context.Context) CheckResult {
	start := time.Now()
	err := c.Fn(ctx)
	res := CheckResult{Name: c.Name, Healthy: err == nil, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// ProbeRunner runs every checker concurrently under one timeout. Results are
// reused for cacheTTL so a burst of probes hits each dependency once.
type ProbeRunner struct {
	timeout  time.Duration
	cacheTTL time.Duration
	checkers []Checker
	now      func() time.Time

	group    singleflight.Group
	mu       sync.Mutex
	cachedAt time.Time
	ready    bool
	results  []CheckResult
}

func NewProbeRunner(timeout, cacheTTL time.Duration, checkers ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ProbeRunner{timeout: timeout, cacheTTL: cacheTTL, checkers: checkers, now: time.Now}
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	if ready, results, ok := p.cached(); ok {
		return ready, results
	}
	v, _, _ := p.group.Do("ready", func() (any, error) {
		ready, results := p.run(ctx)
		p.mu.Lock()
		p.ready, p.results, p.cachedAt = ready, results, p.now()
		p.mu.Unlock()
		return results, nil
	})
	results := v.([]CheckResult)
	return allHealthy(results), results
}

func (p *ProbeRunner) cached() (bool, []CheckResult, bool) {
	if p.cacheTTL <= 0 {
		return false, nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cachedAt.IsZero() || p.now().Sub(p.cachedAt) >= p.cacheTTL {
		return false, nil, false
	}
	return p.ready, p.results, true
}

func (p *ProbeRunner) run(ctx context.Context) (bool, []CheckResult) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results := make([]CheckResult, len(p.checkers))
	var wg sync.WaitGroup
	for i, c := range p.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Check(ctx)
		}()
	}
	wg.Wait()
	return allHealthy(results), results
}

func allHealthy(results []CheckResult) bool {
	for _, r := range results {
		if !r.Healthy {
			return false
		}
	}
	return true
}
