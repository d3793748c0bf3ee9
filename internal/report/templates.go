package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/sensei-edu/sensei-api/internal/service"
)

const displayTimeLayout = "2006-01-02 15:04:05 UTC"

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatTime":  formatTime,
	"logoutLabel": logoutLabel,
	"loginOf":     loginOf,
	"logoutOf":    logoutOf,
	"minutes":     Minutes,
	"inc":         func(i int) int { return i + 1 },
	"join":        func(items []string) string { return strings.Join(items, ", ") },
}).ParseFS(templateFS, "templates/*.html"))

type individualPage struct {
	View        service.SessionView
	Login       time.Time
	Logout      *time.Time
	Duration    float64
	GeneratedAt time.Time
}

type bulkPage struct {
	Period      string
	Sessions    []service.SessionView
	Rollups     []TeacherRollup
	Totals      Totals
	GeneratedAt time.Time
}

// BulkReport is everything both bulk renderers need.
type BulkReport struct {
	Sessions    []service.SessionView
	Rollups     []TeacherRollup
	Totals      Totals
	From        *time.Time
	To          *time.Time
	GeneratedAt time.Time
}

func NewBulkReport(views []service.SessionView, from, to *time.Time, generatedAt time.Time) BulkReport {
	return BulkReport{
		Sessions:    views,
		Rollups:     BuildRollups(views),
		Totals:      SummarizeTotals(views),
		From:        from,
		To:          to,
		GeneratedAt: generatedAt,
	}
}

// Period describes the login range, e.g. "2025-01-01 - Present".
func (b BulkReport) Period() string {
	from, to := "All Time", "Present"
	if b.From != nil {
		from = b.From.UTC().Format(time.DateOnly)
	}
	if b.To != nil {
		to = b.To.UTC().Format(time.DateOnly)
	}
	return from + " - " + to
}

func RenderIndividualHTML(view service.SessionView, generatedAt time.Time) (string, error) {
	return execute("individual.html", individualPage{
		View:        view,
		Login:       loginOf(view),
		Logout:      logoutOf(view),
		Duration:    view.Duration(),
		GeneratedAt: generatedAt,
	})
}

func RenderBulkHTML(b BulkReport) (string, error) {
	return execute("bulk.html", bulkPage{
		Period:      b.Period(),
		Sessions:    b.Sessions,
		Rollups:     b.Rollups,
		Totals:      b.Totals,
		GeneratedAt: b.GeneratedAt,
	})
}

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.UTC().Format(displayTimeLayout)
}

func logoutLabel(t *time.Time, open string) string {
	if t == nil {
		return open
	}
	return formatTime(*t)
}

func loginOf(v service.SessionView) time.Time {
	if !v.LoginTime.IsZero() {
		return v.LoginTime
	}
	return v.LoginAt
}

func logoutOf(v service.SessionView) *time.Time {
	if v.LogoutTime != nil {
		return v.LogoutTime
	}
	return v.LogoutAt
}
