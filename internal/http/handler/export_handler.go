package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sensei-edu/sensei-api/internal/http/response"
	"github.com/sensei-edu/sensei-api/internal/report"
	"github.com/sensei-edu/sensei-api/internal/service"
)

type SessionExporter interface {
	ExportIndividual(ctx context.Context, req report.IndividualRequest) (*report.Document, error)
	ExportBulk(ctx context.Context, filter service.SessionFilter, format report.Format) (*report.Document, error)
}

type ExportHandler struct {
	exporter SessionExporter
	errs     errorWriter
}

func NewExportHandler(exporter SessionExporter, logger *slog.Logger, debug bool) *ExportHandler {
	return &ExportHandler{exporter: exporter, errs: newErrorWriter(logger, debug)}
}

// Individual exports the session named by {id}, or the latest session of
// ?username inside the optional date range.
func (h *ExportHandler) Individual(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := report.ParseFormat(q.Get("type"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	from, to, bad := parseDateRange(q)
	if len(bad) > 0 {
		h.errs.write(w, r, &service.ValidationError{Fields: bad, Message: "invalid date range"})
		return
	}
	doc, err := h.exporter.ExportIndividual(r.Context(), report.IndividualRequest{
		SessionID: chi.URLParam(r, "id"),
		Username:  first(q, "username"),
		From:      from,
		To:        to,
		Format:    format,
	})
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.Attachment(w, doc.ContentType, doc.Filename, doc.Body)
}

func (h *ExportHandler) BulkPDF(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, report.FormatPDF)
}

func (h *ExportHandler) BulkExcel(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, report.FormatExcel)
}

func (h *ExportHandler) bulk(w http.ResponseWriter, r *http.Request, format report.Format) {
	filter, err := parseSessionFilter(r.URL.Query())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	filter.Query = ""
	doc, err := h.exporter.ExportBulk(r.Context(), filter, format)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.Attachment(w, doc.ContentType, doc.Filename, doc.Body)
}
