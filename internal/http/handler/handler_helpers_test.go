package handler

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

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sensei-edu/sensei-api/internal/report"
	"github.com/sensei-edu/sensei-api/internal/repository"
	"github.com/sensei-edu/sensei-api/internal/service"
)

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

type stubRenderer struct{ err error }

func (s stubRenderer) RenderPDF(context.Context, string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF-1.4"), nil
}

type handlerStack struct {
	sessions *service.TeacherSessionService
	taxonomy *service.TaxonomyService
	router   http.Handler
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newHandlerStack(t *testing.T, renderer report.PDFRenderer) *handlerStack {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log := discardLogger()
	taxonomyRepo := repository.NewTaxonomyRepository(db)
	resolver := service.NewDisplayResolver(taxonomyRepo, service.NewInMemoryDisplayNameCacheStore(), time.Minute, log)
	sessions := service.NewTeacherSessionService(
		repository.NewTeacherSessionRepository(db, repository.MaxDocumentBytes),
		resolver,
		service.NewAuditTrail(repository.NewAuditLogRepository(db), log),
		log,
	)
	if renderer == nil {
		renderer = stubRenderer{}
	}
	stack := &handlerStack{sessions: sessions, taxonomy: service.NewTaxonomyService(taxonomyRepo)}
	stack.router = mountRoutes(
		NewTeacherSessionHandler(sessions, log, false),
		NewExportHandler(report.NewExporter(sessions, renderer, 0, log), log, false),
		NewTaxonomyHandler(stack.taxonomy, log, false),
	)
	return stack
}

func mountRoutes(sessions *TeacherSessionHandler, exports *ExportHandler, taxonomy *TaxonomyHandler) http.Handler {
	r := chi.NewRouter()
	r.Route("/teacher-sessions", func(r chi.Router) {
		r.Get("/", sessions.List)
		r.Post("/", sessions.Create)
		r.Get("/search", sessions.Search)
		r.Get("/export/individual", exports.Individual)
		r.Get("/export/individual/{id}", exports.Individual)
		r.Get("/export/bulk/pdf", exports.BulkPDF)
		r.Get("/export/bulk/excel", exports.BulkExcel)
		r.Get("/{id}", sessions.Get)
		r.Put("/{id}", sessions.Update)
		r.Get("/{id}/sections", sessions.Sections)
		r.Delete("/{id}", sessions.Delete)
	})
	if taxonomy != nil {
		r.Get("/course-classes", taxonomy.ListCourseClasses)
		r.Post("/course-classes", taxonomy.CreateCourseClass)
		r.Get("/sections", taxonomy.ListSections)
		r.Post("/sections", taxonomy.CreateSection)
		r.Get("/subjects", taxonomy.ListSubjects)
		r.Post("/subjects", taxonomy.CreateSubject)
	}
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var env apiEnvelope
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v (%s)", err, rr.Body.String())
		}
	}
	return rr, env
}

func createSessionViaAPI(t *testing.T, h http.Handler, username string) string {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"courseClassName":"C1","sectionName":"S1","subjectName":"Sub1","sessionToken":"tok-%s"}`, username, username)
	rr, env := do(t, h, http.MethodPost, "/teacher-sessions", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session: status=%d body=%s", rr.Code, rr.Body.String())
	}
	var out struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil || out.ID == "" {
		t.Fatalf("decode created session: %v (%s)", err, env.Data)
	}
	return out.ID
}
