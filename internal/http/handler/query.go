package handler

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sensei-edu/sensei-api/internal/repository"
	"github.com/sensei-edu/sensei-api/internal/service"
)

const (
	listDefaultLimit   = 20
	searchDefaultLimit = 50
	defaultSortField   = "loginAt"
)

// first returns the first non-blank value among the given query keys.
func first(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

// parseSessionFilter reads the shared list, search and export filters.
func parseSessionFilter(q url.Values) (service.SessionFilter, error) {
	f := service.SessionFilter{
		Username:    first(q, "username"),
		CourseClass: first(q, "courseClassName", "courseClass"),
		Section:     first(q, "sectionName", "section"),
		Subject:     first(q, "subjectName", "subject"),
		Query:       first(q, "q"),
		SortBy:      defaultSortField,
		SortDesc:    true,
	}
	var bad []string

	if raw := first(q, "active"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			bad = append(bad, "active")
		} else {
			f.Active = &b
		}
	}
	var badDates []string
	f.From, f.To, badDates = parseDateRange(q)
	bad = append(bad, badDates...)

	if raw := first(q, "sortBy"); raw != "" {
		if repository.IsSortableField(raw) {
			f.SortBy = raw
		} else {
			bad = append(bad, "sortBy")
		}
	}
	switch strings.ToLower(first(q, "sortOrder")) {
	case "", "desc":
	case "asc":
		f.SortDesc = false
	default:
		bad = append(bad, "sortOrder")
	}

	if len(bad) > 0 {
		return f, &service.ValidationError{Fields: bad, Message: "invalid query parameters"}
	}
	return f, nil
}

// parseDateRange reads startDate|dateFrom and endDate|dateTo. The upper
// bound covers the whole of its day. Unparseable keys are returned in bad.
func parseDateRange(q url.Values) (from, to *time.Time, bad []string) {
	if raw := first(q, "startDate", "dateFrom"); raw != "" {
		t, ok := parseQueryTime(raw)
		if ok {
			from = &t
		} else {
			bad = append(bad, "startDate")
		}
	}
	if raw := first(q, "endDate", "dateTo"); raw != "" {
		t, ok := parseQueryTime(raw)
		if ok {
			end := endOfDay(t)
			to = &end
		} else {
			bad = append(bad, "endDate")
		}
	}
	return from, to, bad
}

func parseQueryTime(raw string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateTime, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), time.UTC)
}

// parsePageRequest accepts page or offset plus limit.
func parsePageRequest(q url.Values, defaultLimit int) (repository.PageRequest, error) {
	req := repository.PageRequest{Page: 1, PageSize: defaultLimit}
	var bad []string
	if raw := first(q, "limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			bad = append(bad, "limit")
		} else {
			req.PageSize = n
		}
	}
	if raw := first(q, "page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			bad = append(bad, "page")
		} else {
			req.Page = n
		}
	}
	if raw := first(q, "offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			bad = append(bad, "offset")
		} else {
			req.Offset = &n
		}
	}
	if len(bad) > 0 {
		return req, &service.ValidationError{Fields: bad, Message: "invalid pagination parameters"}
	}
	return req, nil
}

// filterEcho reports the filters that were applied back to the caller.
func filterEcho(f service.SessionFilter) map[string]any {
	out := map[string]any{
		"sortBy":    f.SortBy,
		"sortOrder": "desc",
	}
	if !f.SortDesc {
		out["sortOrder"] = "asc"
	}
	set := func(key, v string) {
		if v != "" {
			out[key] = v
		}
	}
	set("username", f.Username)
	set("courseClassName", f.CourseClass)
	set("sectionName", f.Section)
	set("subjectName", f.Subject)
	set("q", f.Query)
	if f.Active != nil {
		out["active"] = *f.Active
	}
	if f.From != nil {
		out["startDate"] = f.From.Format(time.RFC3339Nano)
	}
	if f.To != nil {
		out["endDate"] = f.To.Format(time.RFC3339Nano)
	}
	return out
}
