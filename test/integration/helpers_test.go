package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sensei-edu/sensei-api/internal/health"
	"github.com/sensei-edu/sensei-api/internal/http/handler"
	"github.com/sensei-edu/sensei-api/internal/http/middleware"
	"github.com/sensei-edu/sensei-api/internal/http/router"
	"github.com/sensei-edu/sensei-api/internal/report"
	"github.com/sensei-edu/sensei-api/internal/repository"
	"github.com/sensei-edu/sensei-api/internal/security"
	"github.com/sensei-edu/sensei-api/internal/service"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

type fakePDF struct{}

func (fakePDF) RenderPDF(_ context.Context, html string) ([]byte, error) {
	return []byte("%PDF-1.4\n" + html), nil
}

type testServer struct {
	baseURL  string
	client   *http.Client
	jwt      *security.JWTManager
	db       *gorm.DB
	redis    *miniredis.Miniredis
	sessions *service.TeacherSessionService
	sweeper  *service.ExpirationSweeper
	logs     *bytes.Buffer
}

type serverOptions struct {
	rateLimitRPM int
	documentSize int
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithOptions(t, serverOptions{})
}

// newTestServerWithOptions assembles the production graph over sqlite and
// miniredis, mirroring the di providers.
func newTestServerWithOptions(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	if opts.rateLimitRPM == 0 {
		opts.rateLimitRPM = 10_000
	}
	logs := &bytes.Buffer{}
	log := slog.New(slog.NewJSONHandler(logs, nil))

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	jwtMgr := security.NewJWTManager("sensei-api", "sensei-clients", testJWTSecret)
	sessionRepo := repository.NewTeacherSessionRepository(db, opts.documentSize)
	taxonomyRepo := repository.NewTaxonomyRepository(db)
	resolver := service.NewDisplayResolver(taxonomyRepo, service.NewRedisDisplayNameCacheStore(rdb, "itest:display"), time.Minute, log)
	sessions := service.NewTeacherSessionService(sessionRepo, resolver, service.NewAuditTrail(repository.NewAuditLogRepository(db), log), log)
	limiter := middleware.NewDistributedRateLimiterWithKey(
		middleware.NewRedisFixedWindowLimiter(rdb, "itest:rl"),
		opts.rateLimitRPM, time.Minute, middleware.FailOpen, "api",
		middleware.SubjectOrIPKeyFunc(jwtMgr),
	)

	h := router.NewRouter(router.Dependencies{
		TeacherSessionHandler: handler.NewTeacherSessionHandler(sessions, log, true),
		ExportHandler:         handler.NewExportHandler(report.NewExporter(sessions, fakePDF{}, 0, log), log, true),
		TaxonomyHandler:       handler.NewTaxonomyHandler(service.NewTaxonomyService(taxonomyRepo), log, true),
		JWTManager:            jwtMgr,
		CORSOrigins:           []string{"http://localhost:3000"},
		APIRateLimitRPM:       opts.rateLimitRPM,
		GlobalRateLimiter:     limiter.Middleware(),
		Readiness:             health.NewProbeRunner(time.Second, 0, health.NewDatabaseChecker(db), health.NewRedisChecker(rdb)),
		Logger:                log,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL:  srv.URL,
		client:   srv.Client(),
		jwt:      jwtMgr,
		db:       db,
		redis:    mr,
		sessions: sessions,
		sweeper:  service.NewExpirationSweeper(sessionRepo, 75*time.Minute, 0, log),
		logs:     logs,
	}
}

func (s *testServer) token(t *testing.T, username, role string) string {
	t.Helper()
	tok, err := s.jwt.SignAccessToken("", username, role, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func (s *testServer) doRaw(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			b, err := json.Marshal(body)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			raw = string(b)
		}
		reader = strings.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.baseURL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, payload
}

func (s *testServer) doJSON(t *testing.T, method, path, token string, body any) (*http.Response, envelope) {
	t.Helper()
	resp, payload := s.doRaw(t, method, path, token, body)
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("decode envelope (%d): %v body=%s", resp.StatusCode, err, payload)
	}
	return resp, env
}

func decodeData(t *testing.T, env envelope, out any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data: %v (%s)", err, env.Data)
	}
}
