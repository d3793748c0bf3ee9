package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sensei-edu/sensei-api/internal/observability"
	"github.com/sensei-edu/sensei-api/internal/service"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	DefaultMaxSessions = 5000
)

var ErrNoSessions = errors.New("no teacher sessions found")

type Format string

const (
	FormatPDF   Format = "pdf"
	FormatExcel Format = "excel"
)

// ParseFormat accepts "pdf" or "excel"; empty means pdf.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatExcel:
		return FormatExcel, nil
	}
	return "", &service.ValidationError{Fields: []string{"type"}, Message: `type must be "pdf" or "excel"`}
}

type Document struct {
	ContentType string
	Filename    string
	Body        []byte
}

// SessionSource is the read side exports pull resolved views from.
type SessionSource interface {
	GetSession(ctx context.Context, id string) (*service.SessionView, error)
	LatestForUsername(ctx context.Context, username string, from, to *time.Time) (*service.SessionView, error)
	Collect(ctx context.Context, filter service.SessionFilter, limit int) ([]service.SessionView, error)
}

// IndividualRequest selects one session by id, or the latest login of
// Username inside the optional range when SessionID is empty.
type IndividualRequest struct {
	SessionID string
	Username  string
	From      *time.Time
	To        *time.Time
	Format    Format
}

type Exporter struct {
	sessions    SessionSource
	renderer    PDFRenderer
	maxSessions int
	logger      *slog.Logger
	now         func() time.Time
}

func NewExporter(sessions SessionSource, renderer PDFRenderer, maxSessions int, logger *slog.Logger) *Exporter {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		sessions:    sessions,
		renderer:    renderer,
		maxSessions: maxSessions,
		logger:      logger,
		now:         time.Now,
	}
}

func (e *Exporter) ExportIndividual(ctx context.Context, req IndividualRequest) (*Document, error) {
	ctx, span := observability.StartSpan(ctx, "report.export_individual")
	defer span.End()

	view, err := e.individualView(ctx, req)
	if err != nil {
		observability.RecordExport(ctx, "individual", string(req.Format), "lookup_error")
		return nil, err
	}
	now := e.now()
	base := fmt.Sprintf("teacher-session-%s-%s", filenamePart(view.Username), now.UTC().Format(time.DateOnly))

	var doc *Document
	switch req.Format {
	case FormatExcel:
		body, werr := WriteIndividualWorkbook(*view, now)
		if werr != nil {
			err = werr
			break
		}
		doc = &Document{ContentType: ContentTypeXLSX, Filename: base + ".xlsx", Body: body}
	default:
		html, herr := RenderIndividualHTML(*view, now)
		if herr != nil {
			err = herr
			break
		}
		body, rerr := e.renderer.RenderPDF(ctx, html)
		if rerr != nil {
			err = rerr
			break
		}
		doc = &Document{ContentType: ContentTypePDF, Filename: base + ".pdf", Body: body}
	}
	e.finish(ctx, "individual", req.Format, view.ID, err)
	return doc, err
}

func (e *Exporter) individualView(ctx context.Context, req IndividualRequest) (*service.SessionView, error) {
	if id := strings.TrimSpace(req.SessionID); id != "" {
		return e.sessions.GetSession(ctx, id)
	}
	if strings.TrimSpace(req.Username) == "" {
		return nil, &service.ValidationError{Fields: []string{"username"}, Message: "username is required when no session id is given"}
	}
	return e.sessions.LatestForUsername(ctx, req.Username, req.From, req.To)
}

// ExportBulk renders every session matching filter, newest login first, up
// to the configured cap. An empty match is ErrNoSessions.
func (e *Exporter) ExportBulk(ctx context.Context, filter service.SessionFilter, format Format) (*Document, error) {
	ctx, span := observability.StartSpan(ctx, "report.export_bulk")
	defer span.End()

	views, err := e.sessions.Collect(ctx, filter, e.maxSessions)
	if err != nil {
		observability.RecordExport(ctx, "bulk", string(format), "lookup_error")
		return nil, err
	}
	if len(views) == 0 {
		observability.RecordExport(ctx, "bulk", string(format), "empty")
		return nil, ErrNoSessions
	}
	now := e.now()
	b := NewBulkReport(views, filter.From, filter.To, now)
	base := "teacher-sessions-" + now.UTC().Format(time.DateOnly)

	var doc *Document
	switch format {
	case FormatExcel:
		body, werr := WriteBulkWorkbook(b)
		if werr != nil {
			err = werr
			break
		}
		doc = &Document{ContentType: ContentTypeXLSX, Filename: base + ".xlsx", Body: body}
	default:
		html, herr := RenderBulkHTML(b)
		if herr != nil {
			err = herr
			break
		}
		body, rerr := e.renderer.RenderPDF(ctx, html)
		if rerr != nil {
			err = rerr
			break
		}
		doc = &Document{ContentType: ContentTypePDF, Filename: base + ".pdf", Body: body}
	}
	e.finish(ctx, "bulk", format, fmt.Sprintf("%d sessions", len(views)), err)
	return doc, err
}

func (e *Exporter) finish(ctx context.Context, scope string, format Format, subject string, err error) {
	if err != nil {
		observability.RecordExport(ctx, scope, string(format), "error")
		e.logger.ErrorContext(ctx, "report export failed",
			"scope", scope,
			"format", string(format),
			"subject", subject,
			"error", err,
		)
		return
	}
	observability.RecordExport(ctx, scope, string(format), "success")
	e.logger.InfoContext(ctx, "report exported", "scope", scope, "format", string(format), "subject", subject)
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func filenamePart(s string) string {
	s = unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(s), "_")
	if s == "" {
		return "unknown"
	}
	return s
}
