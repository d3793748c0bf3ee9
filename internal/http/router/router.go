package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sensei-edu/sensei-api/internal/health"
	"github.com/sensei-edu/sensei-api/internal/http/handler"
	"github.com/sensei-edu/sensei-api/internal/http/middleware"
	"github.com/sensei-edu/sensei-api/internal/http/response"
	"github.com/sensei-edu/sensei-api/internal/security"
)

// Roles allowed to remove sessions.
var deleteRoles = []string{"admin", "superadmin"}

type Dependencies struct {
	TeacherSessionHandler *handler.TeacherSessionHandler
	ExportHandler         *handler.ExportHandler
	TaxonomyHandler       *handler.TaxonomyHandler
	JWTManager            *security.JWTManager
	CORSOrigins           []string
	APIRateLimitRPM       int
	GlobalRateLimiter     GlobalRateLimiterFunc
	BodyLimitBytes        int64
	Readiness             *health.ProbeRunner
	EnableOTelHTTP        bool
	Logger                *slog.Logger
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	logger := dep.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bodyLimit := dep.BodyLimitBytes
	if bodyLimit <= 0 {
		bodyLimit = 64 << 20
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger(logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(bodyLimit))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	limiter := dep.GlobalRateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute).Middleware()
	}
	auth := middleware.AuthMiddleware(dep.JWTManager)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter)
		r.Use(auth)

		r.Route("/teacher-sessions", func(r chi.Router) {
			s, x := dep.TeacherSessionHandler, dep.ExportHandler
			r.Get("/", s.List)
			r.Post("/", s.Create)
			r.Get("/search", s.Search)
			r.Get("/export/individual", x.Individual)
			r.Get("/export/individual/{id}", x.Individual)
			r.Get("/export/bulk/pdf", x.BulkPDF)
			r.Get("/export/bulk/excel", x.BulkExcel)
			r.Get("/{id}", s.Get)
			r.Put("/{id}", s.Update)
			r.Get("/{id}/sections", s.Sections)
			r.With(middleware.RequireRole(deleteRoles...)).Delete("/{id}", s.Delete)
		})

		t := dep.TaxonomyHandler
		r.Get("/course-classes", t.ListCourseClasses)
		r.Post("/course-classes", t.CreateCourseClass)
		r.Get("/sections", t.ListSections)
		r.Post("/sections", t.CreateSection)
		r.Get("/subjects", t.ListSubjects)
		r.Post("/subjects", t.CreateSubject)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
