package router

import (
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

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sensei-edu/sensei-api/internal/health"
	"github.com/sensei-edu/sensei-api/internal/http/handler"
	"github.com/sensei-edu/sensei-api/internal/report"
	"github.com/sensei-edu/sensei-api/internal/repository"
	"github.com/sensei-edu/sensei-api/internal/security"
	"github.com/sensei-edu/sensei-api/internal/service"
)

type unhealthyChecker struct{}

func (unhealthyChecker) Check(ctx context.Context) health.CheckResult {
	return health.CheckResult{Name: "database", Healthy: false, Error: "db down"}
}

type pdfStub struct{}

func (pdfStub) RenderPDF(context.Context, string) ([]byte, error) { return []byte("%PDF-1.4"), nil }

func newRouterTestDeps() Dependencies {
	return Dependencies{
		JWTManager:      security.NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456"),
		CORSOrigins:     []string{"http://localhost"},
		APIRateLimitRPM: 1000,
		EnableOTelHTTP:  false,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// withHandlers wires real handlers over an in-memory sqlite database.
func withHandlers(t *testing.T, dep Dependencies) Dependencies {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log := dep.Logger
	taxonomyRepo := repository.NewTaxonomyRepository(db)
	sessions := service.NewTeacherSessionService(
		repository.NewTeacherSessionRepository(db, repository.MaxDocumentBytes),
		service.NewDisplayResolver(taxonomyRepo, service.NewNoopDisplayNameCacheStore(), time.Minute, log),
		service.NewAuditTrail(repository.NewAuditLogRepository(db), log),
		log,
	)
	dep.TeacherSessionHandler = handler.NewTeacherSessionHandler(sessions, log, false)
	dep.ExportHandler = handler.NewExportHandler(report.NewExporter(sessions, pdfStub{}, 0, log), log, false)
	dep.TaxonomyHandler = handler.NewTaxonomyHandler(service.NewTaxonomyService(taxonomyRepo), log, false)
	return dep
}

func perform(r http.Handler, method, target string, headers map[string]string, cookies []*http.Cookie, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "10.10.10.10:1234"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func bearer(t *testing.T, jwtMgr *security.JWTManager, role string) map[string]string {
	t.Helper()
	token, err := jwtMgr.SignAccessToken("", "tester", role, time.Hour)
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestRouterHealthReadyNilAndUnreadyBranches(t *testing.T) {
	t.Run("nil readiness returns ready", func(t *testing.T) {
		dep := newRouterTestDeps()
		dep.Readiness = nil
		r := NewRouter(dep)

		rr := perform(r, http.MethodGet, "/health/ready", nil, nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"status":"ready"`) {
			t.Fatalf("expected ready status payload, got %s", rr.Body.String())
		}
	})

	t.Run("unready dependency returns 503", func(t *testing.T) {
		dep := newRouterTestDeps()
		dep.Readiness = health.NewProbeRunner(time.Second, 0, unhealthyChecker{})
		r := NewRouter(dep)

		rr := perform(r, http.MethodGet, "/health/ready", nil, nil, "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"code":"DEPENDENCY_UNREADY"`) {
			t.Fatalf("expected DEPENDENCY_UNREADY error envelope, got %s", rr.Body.String())
		}
	})
}

func TestRouterHealthLiveSkipsAuthAndLimiter(t *testing.T) {
	dep := newRouterTestDeps()
	dep.APIRateLimitRPM = 1
	r := NewRouter(dep)

	for i := 0; i < 3; i++ {
		rr := perform(r, http.MethodGet, "/health/live", nil, nil, "")
		if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
			t.Fatalf("request %d: expected health live payload, got %d %s", i, rr.Code, rr.Body.String())
		}
	}
}

func TestRouterAPIRequiresAccessToken(t *testing.T) {
	dep := withHandlers(t, newRouterTestDeps())
	r := NewRouter(dep)

	rr := perform(r, http.MethodGet, "/api/v1/teacher-sessions", nil, nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	rr = perform(r, http.MethodGet, "/api/v1/teacher-sessions", map[string]string{"Authorization": "Bearer nope"}, nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rr.Code)
	}
	rr = perform(r, http.MethodGet, "/api/v1/teacher-sessions", bearer(t, dep.JWTManager, "teacher"), nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRouterDeleteIsRoleGated(t *testing.T) {
	dep := withHandlers(t, newRouterTestDeps())
	r := NewRouter(dep)
	teacher := bearer(t, dep.JWTManager, "teacher")

	rr := perform(r, http.MethodPost, "/api/v1/teacher-sessions", teacher, nil,
		`{"username":"alice","courseClassName":"C1","sectionName":"S1","subjectName":"Sub1","sessionToken":"tok"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	var env struct {
		Data struct {
			ID string `json:"_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil || env.Data.ID == "" {
		t.Fatalf("decode create response: %v", err)
	}
	target := "/api/v1/teacher-sessions/" + env.Data.ID

	rr = perform(r, http.MethodDelete, target, teacher, nil, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for teacher role, got %d", rr.Code)
	}
	rr = perform(r, http.MethodDelete, target, bearer(t, dep.JWTManager, "admin"), nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected admin delete to succeed, got %d %s", rr.Code, rr.Body.String())
	}
	rr = perform(r, http.MethodGet, target, teacher, nil, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected deleted session to be hidden, got %d", rr.Code)
	}
}

func TestRouterExportRoutesResolveBeforeIDRoute(t *testing.T) {
	dep := withHandlers(t, newRouterTestDeps())
	r := NewRouter(dep)

	rr := perform(r, http.MethodGet, "/api/v1/teacher-sessions/export/bulk/pdf", bearer(t, dep.JWTManager, "teacher"), nil, "")
	if rr.Code != http.StatusNotFound || !strings.Contains(rr.Body.String(), "No teacher sessions found") {
		t.Fatalf("expected empty bulk export 404, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRouterCustomGlobalLimiterApplied(t *testing.T) {
	dep := withHandlers(t, newRouterTestDeps())
	dep.GlobalRateLimiter = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	r := NewRouter(dep)

	rr := perform(r, http.MethodGet, "/api/v1/subjects", bearer(t, dep.JWTManager, "teacher"), nil, "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected custom limiter to reject, got %d", rr.Code)
	}
}

func TestRouterFallbackLimiterWhenCustomNil(t *testing.T) {
	dep := withHandlers(t, newRouterTestDeps())
	dep.APIRateLimitRPM = 1
	r := NewRouter(dep)
	headers := bearer(t, dep.JWTManager, "teacher")

	if first := perform(r, http.MethodGet, "/api/v1/subjects", headers, nil, ""); first.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", first.Code)
	}
	if second := perform(r, http.MethodGet, "/api/v1/subjects", headers, nil, ""); second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429 from fallback limiter, got %d", second.Code)
	}
}
