package service

import (
	"errors"
	"testing"
	"time"
)

func TestParseSessionPatchTakesFirstUnitOnly(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000).UTC()
	body := []byte(`{
		"section": [
			{"id": "sec-1", "events": [{"type": 2, "data": {"a": 1}, "timestamp": 5}]},
			{"id": "sec-2", "events": []}
		],
		"fileAccessLog": [
			{"fileId": "f1", "fileName": "a.pdf", "idleTime": 1000, "activeTime": 5000},
			{"fileId": "f2", "fileName": "b.pdf", "idleTime": 1, "activeTime": 1}
		]
	}`)
	p, err := ParseSessionPatch(body, now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Section == nil || p.Section.ID != "sec-1" || p.ExtraSections != 1 {
		t.Fatalf("expected first section only, got %+v extra=%d", p.Section, p.ExtraSections)
	}
	if p.FileAccess == nil || p.FileAccess.FileID != "f1" || p.ExtraFileAccess != 1 {
		t.Fatalf("expected first file access entry only, got %+v", p.FileAccess)
	}
	if *p.FileAccess.ActiveTime != 5000 || *p.FileAccess.IdleTime != 1000 {
		t.Fatalf("unexpected times: %+v", p.FileAccess)
	}
	if !p.FileAccess.AccessedAt.Equal(now) {
		t.Fatalf("expected accessedAt default to now, got %v", p.FileAccess.AccessedAt)
	}
}

func TestParseSessionPatchSectionRules(t *testing.T) {
	now := time.UnixMilli(42_000).UTC()

	p, err := ParseSessionPatch([]byte(`{"section": {"events": [{"type": 1}]}, "deviceId": "ipad"}`), now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Section != nil {
		t.Fatal("section without id must be dropped")
	}
	if p.DeviceID == nil || *p.DeviceID != "ipad" {
		t.Fatal("rest of the request must still apply")
	}

	p, err = ParseSessionPatch([]byte(`{"section": {"id": "s", "events": [{"data": {"k": 1}}, 7, "x", null, {"type": 2, "timestamp": 9}]}}`), now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Section == nil || len(p.Section.Events) != 2 || p.DroppedEvents != 3 {
		t.Fatalf("expected 2 kept and 3 dropped events, got %+v dropped=%d", p.Section, p.DroppedEvents)
	}
	first := p.Section.Events[0]
	if first.Type != 0 || first.Timestamp != 42_000 || string(first.Data) != `{"k": 1}` {
		t.Fatalf("unexpected defaults: %+v data=%s", first, first.Data)
	}
	second := p.Section.Events[1]
	if second.Type != 2 || second.Timestamp != 9 || string(second.Data) != `{}` {
		t.Fatalf("unexpected second event: %+v data=%s", second, second.Data)
	}
}

func TestParseSessionPatchLogoutAndScalars(t *testing.T) {
	p, err := ParseSessionPatch([]byte(`{"logoutTime": "2024-03-01T10:00:00Z", "active": false, "username": "  "}`), time.Now())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !p.IsLogout() || p.LogoutTime == nil || p.LogoutAt != nil {
		t.Fatalf("expected logout time only, got %+v", p)
	}
	if p.Active == nil || *p.Active {
		t.Fatal("expected active=false")
	}
	if p.Username != nil {
		t.Fatal("blank username must be ignored")
	}

	p, err = ParseSessionPatch([]byte(`{"logoutAt": 1709287200000}`), time.Now())
	if err != nil {
		t.Fatalf("parse millis: %v", err)
	}
	if p.LogoutAt == nil || p.LogoutAt.UnixMilli() != 1709287200000 {
		t.Fatalf("unexpected logoutAt %v", p.LogoutAt)
	}
}

func TestParseSessionPatchRejectsBadFields(t *testing.T) {
	_, err := ParseSessionPatch([]byte(`{"active": "yes", "logoutAt": "tomorrow"}`), time.Now())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Fields) != 2 {
		t.Fatalf("expected both fields named, got %v", verr.Fields)
	}

	if _, err := ParseSessionPatch([]byte(`[1,2]`), time.Now()); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for non-object body, got %v", err)
	}
}
