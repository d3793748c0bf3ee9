package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Token       string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
	Client      *http.Client
}

type Result struct {
	TotalRequests int64
	Failures      int64
	StatusClasses map[string]int64
	Operations    map[string]int64
}

// Run drives simulated teacher clients against the session API until
// cfg.Duration elapses or ctx is cancelled. Each worker opens its own
// session and then streams incremental updates, reads and exports
// according to the profile.
func Run(ctx context.Context, cfg Config) (Result, error) {
	cfg = withDefaults(cfg)
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	rec := &recorder{statusClasses: map[string]int64{}, operations: map[string]int64{}}
	ticks := make(chan struct{})
	go pace(ctx, cfg.RPS, ticks)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Concurrency; i++ {
		w := &worker{
			cfg:      cfg,
			rec:      rec,
			rng:      rand.New(rand.NewSource(cfg.Seed + int64(i))),
			username: fmt.Sprintf("loadgen-teacher-%d", i),
		}
		g.Go(func() error { return w.loop(gctx, ticks) })
	}
	err := g.Wait()
	return rec.result(), err
}

func withDefaults(cfg Config) Config {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Profile = normalizeProfile(cfg.Profile)
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 60 * time.Second}
	}
	return cfg
}

func normalizeProfile(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	switch p {
	case "write", "read", "export":
		return p
	}
	return "mixed"
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	}
	return "other"
}

func pace(ctx context.Context, rps int, out chan<- struct{}) {
	ticker := time.NewTicker(time.Second / time.Duration(rps))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case out <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}
}

type recorder struct {
	total    atomic.Int64
	failures atomic.Int64

	mu            sync.Mutex
	statusClasses map[string]int64
	operations    map[string]int64
}

func (r *recorder) observe(op string, status int, err error) {
	r.total.Add(1)
	class := "error"
	if err == nil {
		class = classifyStatusClass(status)
	}
	if err != nil || status >= 400 {
		r.failures.Add(1)
	}
	r.mu.Lock()
	r.statusClasses[class]++
	r.operations[op]++
	r.mu.Unlock()
}

func (r *recorder) result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := Result{
		TotalRequests: r.total.Load(),
		Failures:      r.failures.Load(),
		StatusClasses: make(map[string]int64, len(r.statusClasses)),
		Operations:    make(map[string]int64, len(r.operations)),
	}
	for k, v := range r.statusClasses {
		res.StatusClasses[k] = v
	}
	for k, v := range r.operations {
		res.Operations[k] = v
	}
	return res
}

type worker struct {
	cfg       Config
	rec       *recorder
	rng       *rand.Rand
	username  string
	sessionID string
	sections  int
}

func (w *worker) loop(ctx context.Context, ticks <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticks:
			w.step(ctx)
		}
	}
}

func (w *worker) step(ctx context.Context) {
	if w.sessionID == "" {
		w.create(ctx)
		return
	}
	switch w.cfg.Profile {
	case "write":
		w.update(ctx)
	case "read":
		w.read(ctx)
	case "export":
		w.export(ctx)
	default:
		switch n := w.rng.Intn(10); {
		case n < 6:
			w.update(ctx)
		case n < 9:
			w.read(ctx)
		default:
			w.export(ctx)
		}
	}
}

func (w *worker) create(ctx context.Context) {
	body := map[string]any{
		"username":        w.username,
		"courseClassName": "Load Class",
		"sectionName":     "Load Section",
		"subjectName":     "Load Subject",
		"sessionToken":    fmt.Sprintf("%s-%d", w.username, w.rng.Int63()),
		"deviceId":        "loadgen",
	}
	status, payload, err := w.do(ctx, "create", http.MethodPost, "/api/v1/teacher-sessions", body)
	if err != nil || status != http.StatusCreated {
		return
	}
	var env struct {
		Data struct {
			ID string `json:"_id"`
		} `json:"data"`
	}
	if json.Unmarshal(payload, &env) == nil {
		w.sessionID = env.Data.ID
	}
}

func (w *worker) update(ctx context.Context) {
	now := time.Now().UTC()
	var body map[string]any
	if w.rng.Intn(2) == 0 {
		w.sections++
		start := now.Add(-time.Duration(1+w.rng.Intn(10)) * time.Minute)
		body = map[string]any{
			"section": map[string]any{
				"id":        fmt.Sprintf("loadgen-%d", w.sections),
				"startTime": start.Format(time.RFC3339Nano),
				"endTime":   now.Format(time.RFC3339Nano),
				"duration":  now.Sub(start).Milliseconds(),
				"events": []any{
					map[string]any{"type": 1 + w.rng.Intn(5), "timestamp": now.UnixMilli(), "data": map[string]any{"x": w.rng.Intn(1000)}},
				},
			},
		}
	} else {
		body = map[string]any{
			"fileAccessLog": []any{map[string]any{
				"fileName":   fmt.Sprintf("lesson-%d.pdf", w.rng.Intn(20)),
				"openedAt":   now.Add(-time.Minute).Format(time.RFC3339Nano),
				"closedAt":   now.Format(time.RFC3339Nano),
				"activeTime": w.rng.Intn(60_000),
			}},
		}
	}
	_, _, _ = w.do(ctx, "update", http.MethodPut, "/api/v1/teacher-sessions/"+w.sessionID, body)
}

func (w *worker) read(ctx context.Context) {
	if w.rng.Intn(2) == 0 {
		_, _, _ = w.do(ctx, "get", http.MethodGet, "/api/v1/teacher-sessions/"+w.sessionID, nil)
		return
	}
	_, _, _ = w.do(ctx, "list", http.MethodGet, "/api/v1/teacher-sessions?username="+w.username+"&limit=5", nil)
}

func (w *worker) export(ctx context.Context) {
	_, _, _ = w.do(ctx, "export", http.MethodGet, "/api/v1/teacher-sessions/export/individual/"+w.sessionID+"?type=excel", nil)
}

func (w *worker) do(ctx context.Context, op, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, w.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if w.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.Token)
	}
	resp, err := w.cfg.Client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			w.rec.observe(op, 0, err)
		}
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	payload, err := io.ReadAll(resp.Body)
	if err == nil || ctx.Err() == nil {
		w.rec.observe(op, resp.StatusCode, err)
	}
	return resp.StatusCode, payload, err
}
