package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sensei-edu/sensei-api/internal/http/response"
	"github.com/sensei-edu/sensei-api/internal/report"
	"github.com/sensei-edu/sensei-api/internal/repository"
	"github.com/sensei-edu/sensei-api/internal/service"
)

// errorWriter maps service and report errors onto the response envelope.
// Debug adds the raw error text to 5xx responses.
type errorWriter struct {
	logger *slog.Logger
	debug  bool
}

func newErrorWriter(logger *slog.Logger, debug bool) errorWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return errorWriter{logger: logger, debug: debug}
}

func (e errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *service.ValidationError
		notFoundErr   *service.NotFoundError
		overflowErr   *service.OverflowExhaustedError
		renderErr     *report.RenderError
		maxBytesErr   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &validationErr):
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", validationErr.Error(), map[string]any{"fields": validationErr.Fields})
	case errors.As(err, &maxBytesErr):
		response.Error(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
	case errors.As(err, &notFoundErr):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", notFoundErr.Error(), nil)
	case errors.Is(err, report.ErrNoSessions):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "No teacher sessions found", nil)
	case errors.Is(err, repository.ErrTaxonomyNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "taxonomy entry not found", nil)
	case errors.As(err, &overflowErr):
		e.serverError(w, r, err, "OVERFLOW_EXHAUSTED", "session update exceeds the document size limit")
	case errors.As(err, &renderErr):
		e.serverError(w, r, err, "RENDER_FAILED", "failed to render report")
	default:
		e.serverError(w, r, err, "INTERNAL", "internal server error")
	}
}

func (e errorWriter) serverError(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	e.logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"code", code,
		"error", err,
	)
	var details any
	if e.debug {
		details = map[string]string{"error": err.Error()}
	}
	response.Error(w, r, http.StatusInternalServerError, code, message, details)
}

func (e errorWriter) badBody(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		response.Error(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
		return
	}
	response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", nil)
}
