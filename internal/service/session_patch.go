package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sensei-edu/sensei-api/internal/domain"
)

// SessionPatch is one update call: scalar changes plus at most one new
// section and one new file access entry.
type SessionPatch struct {
	Username       *string
	CourseClassRef *string
	SectionRef     *string
	SubjectRef     *string
	SessionToken   *string
	DeviceID       *string
	LogoutAt       *time.Time
	LogoutTime     *time.Time
	Active         *bool

	Section    *domain.TimelineSection
	FileAccess *domain.FileAccess

	// Units received beyond the first; they are never applied.
	ExtraSections   int
	ExtraFileAccess int
	DroppedEvents   int
}

// IsLogout reports whether the patch sets either logout field.
func (p SessionPatch) IsLogout() bool {
	return p.LogoutAt != nil || p.LogoutTime != nil
}

// ParseSessionPatch decodes an update body. Sections without an id and
// events that are not objects are dropped rather than failing the request.
func ParseSessionPatch(body []byte, now time.Time) (SessionPatch, error) {
	var p SessionPatch
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return p, &ValidationError{Fields: []string{"body"}, Message: "request body must be a JSON object"}
	}

	var bad []string
	strField := func(key string) *string {
		v, ok := raw[key]
		if !ok || isNull(v) {
			return nil
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			bad = append(bad, key)
			return nil
		}
		if s = strings.TrimSpace(s); s == "" {
			return nil
		}
		return &s
	}
	timeField := func(keys ...string) *time.Time {
		for _, key := range keys {
			v, ok := raw[key]
			if !ok || isNull(v) {
				continue
			}
			t, err := parseFlexibleTime(v)
			if err != nil {
				bad = append(bad, key)
				return nil
			}
			return &t
		}
		return nil
	}

	p.Username = strField("username")
	p.CourseClassRef = strField("courseClassName")
	p.SectionRef = strField("sectionName")
	p.SubjectRef = strField("subjectName")
	p.SessionToken = strField("sessionToken")
	p.DeviceID = strField("deviceId")
	p.LogoutAt = timeField("logoutAt")
	p.LogoutTime = timeField("logoutTime")
	if v, ok := raw["active"]; ok && !isNull(v) {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			bad = append(bad, "active")
		} else {
			p.Active = &b
		}
	}

	if v, ok := raw["section"]; ok && !isNull(v) {
		first, extra, err := firstUnit(v)
		if err != nil {
			bad = append(bad, "section")
		} else if first != nil {
			p.ExtraSections = extra
			sec, dropped := parseSection(first, now)
			p.Section = sec
			p.DroppedEvents = dropped
		}
	}
	if v, ok := raw["fileAccessLog"]; ok && !isNull(v) {
		first, extra, err := firstUnit(v)
		if err != nil {
			bad = append(bad, "fileAccessLog")
		} else if first != nil {
			entry, err := parseFileAccess(first, now)
			if err != nil {
				bad = append(bad, "fileAccessLog")
			} else {
				p.FileAccess = entry
				p.ExtraFileAccess = extra
			}
		}
	}

	if len(bad) > 0 {
		return SessionPatch{}, &ValidationError{Fields: bad, Message: "invalid update fields"}
	}
	return p, nil
}

// firstUnit accepts a single object or an array and returns the first
// element with the count of the ones that follow.
func firstUnit(v json.RawMessage) (json.RawMessage, int, error) {
	v = bytes.TrimSpace(v)
	if len(v) > 0 && v[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(v, &items); err != nil {
			return nil, 0, err
		}
		if len(items) == 0 {
			return nil, 0, nil
		}
		return items[0], len(items) - 1, nil
	}
	return v, 0, nil
}

func parseSection(v json.RawMessage, now time.Time) (*domain.TimelineSection, int) {
	if !isObject(v) {
		return nil, 0
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(v, &fields); err != nil {
		return nil, 0
	}
	id := looseString(fields["id"])
	if strings.TrimSpace(id) == "" {
		return nil, 0
	}
	sec := &domain.TimelineSection{
		ID:        id,
		StartTime: looseString(fields["startTime"]),
		EndTime:   looseString(fields["endTime"]),
		Events:    []domain.SessionEvent{},
	}
	if d, ok := looseNumber(fields["duration"]); ok {
		sec.Duration = d
	}
	var rawEvents []json.RawMessage
	if ev, ok := fields["events"]; ok && !isNull(ev) {
		if err := json.Unmarshal(ev, &rawEvents); err != nil {
			rawEvents = nil
		}
	}
	dropped := 0
	for _, re := range rawEvents {
		ev, ok := parseEvent(re, now)
		if !ok {
			dropped++
			continue
		}
		sec.Events = append(sec.Events, ev)
	}
	return sec, dropped
}

func parseEvent(v json.RawMessage, now time.Time) (domain.SessionEvent, bool) {
	if !isObject(v) {
		return domain.SessionEvent{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(v, &fields); err != nil {
		return domain.SessionEvent{}, false
	}
	ev := domain.SessionEvent{Timestamp: now.UnixMilli(), Data: json.RawMessage("{}")}
	if n, ok := jsonNumber(fields["type"]); ok {
		ev.Type = int(n)
	}
	if n, ok := jsonNumber(fields["timestamp"]); ok {
		ev.Timestamp = int64(n)
	}
	if d, ok := fields["data"]; ok {
		ev.Data = append(json.RawMessage(nil), bytes.TrimSpace(d)...)
	}
	return ev, true
}

func parseFileAccess(v json.RawMessage, now time.Time) (*domain.FileAccess, error) {
	if !isObject(v) {
		return nil, fmt.Errorf("file access entry must be an object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(v, &fields); err != nil {
		return nil, err
	}
	entry := &domain.FileAccess{
		FileID:     looseString(fields["fileId"]),
		FileName:   looseString(fields["fileName"]),
		FolderID:   looseString(fields["folderId"]),
		FolderName: looseString(fields["folderName"]),
		OpenedAt:   looseString(fields["openedAt"]),
		ClosedAt:   looseString(fields["closedAt"]),
		AccessedAt: now.UTC(),
	}
	if raw, ok := fields["accessedAt"]; ok && !isNull(raw) {
		t, err := parseFlexibleTime(raw)
		if err != nil {
			return nil, err
		}
		entry.AccessedAt = t
	}
	entry.Duration = optionalNumber(fields["duration"])
	entry.IdleTime = optionalNumber(fields["idleTime"])
	entry.ActiveTime = optionalNumber(fields["activeTime"])
	return entry, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func isObject(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '{'
}

// jsonNumber only accepts JSON numbers; strings holding digits do not count.
func jsonNumber(v json.RawMessage) (float64, bool) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || isNull(v) || v[0] == '"' {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, false
	}
	return f, true
}

// looseNumber also accepts numeric strings.
func looseNumber(v json.RawMessage) (float64, bool) {
	if f, ok := jsonNumber(v); ok {
		return f, true
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func optionalNumber(v json.RawMessage) *float64 {
	f, ok := looseNumber(v)
	if !ok {
		return nil
	}
	return &f
}

func looseString(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || isNull(v) {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	if f, ok := jsonNumber(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return string(v)
}

// parseFlexibleTime accepts RFC 3339 strings and unix milliseconds.
func parseFlexibleTime(v json.RawMessage) (time.Time, error) {
	if ms, ok := jsonNumber(v); ok {
		return time.UnixMilli(int64(ms)).UTC(), nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return time.Time{}, err
	}
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z07:00", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
