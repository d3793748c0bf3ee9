package service

import (
	"context"
	"time"

	"github.com/sensei-edu/sensei-api/internal/domain"
	"github.com/sensei-edu/sensei-api/internal/observability"
	"github.com/sensei-edu/sensei-api/internal/repository"
)

var shrinkMutation = repository.Mutation{
	Columns:  []string{"file_access_log", "idle_time", "active_time"},
	Sections: true,
}

// ApplyUpdate merges one patch into a stored session. A size failure walks
// the overflow ladder; the patch either commits whole or not at all.
func (s *TeacherSessionService) ApplyUpdate(ctx context.Context, id string, patch SessionPatch) (*SessionSummary, error) {
	ctx, span := observability.StartSpan(ctx, "teacher_session.apply_update")
	defer span.End()

	if err := validateSessionID(id); err != nil {
		s.audit.Record(ctx, AuditEntry{Action: AuditActionUpdate, DocumentID: id, Err: err})
		return nil, err
	}
	if patch.ExtraSections > 0 || patch.ExtraFileAccess > 0 || patch.DroppedEvents > 0 {
		s.logger.DebugContext(ctx, "teacher session patch trimmed",
			"session_id", id,
			"ignored_sections", patch.ExtraSections,
			"ignored_file_access", patch.ExtraFileAccess,
			"dropped_events", patch.DroppedEvents,
		)
	}

	now := s.now().UTC()
	stage := StageNormal
	var firstSizeErr error
	for {
		doc, changes, outcome, err := s.attempt(ctx, id, patch, stage, now)
		if stage != StageNormal || outcome == OutcomeEscalate {
			observability.RecordOverflowStage(ctx, stage.String(), outcome.String())
		}
		switch outcome {
		case OutcomeCommitted:
			observability.RecordSessionUpdate(ctx, "success")
			if stage != StageNormal {
				s.logger.WarnContext(ctx, "teacher session update committed after shrinking",
					"session_id", id,
					"stage", stage.String(),
					"sections", len(doc.Sections),
					"file_access_entries", len(doc.FileAccessLog),
				)
			}
			s.audit.Record(ctx, AuditEntry{
				Action:      AuditActionUpdate,
				DocumentID:  id,
				Description: "teacher session updated",
				Changes:     changes,
			})
			summary := summarize(doc)
			return &summary, nil
		case OutcomeEscalate:
			if firstSizeErr == nil {
				firstSizeErr = err
			}
			next := stage.Next(outcome)
			if next == StageFailed {
				exhausted := &OverflowExhaustedError{SessionID: id, Err: firstSizeErr}
				s.logger.ErrorContext(ctx, "teacher session overflow recovery exhausted",
					"session_id", id,
					"stage", stage.String(),
					"has_section", patch.Section != nil,
					"has_file_access", patch.FileAccess != nil,
					"is_logout", patch.IsLogout(),
					"last_error", err,
					"error", firstSizeErr,
				)
				observability.RecordSessionUpdate(ctx, "overflow_exhausted")
				s.audit.Record(ctx, AuditEntry{Action: AuditActionUpdate, DocumentID: id, Err: exhausted})
				return nil, exhausted
			}
			bounds, _ := next.Bounds()
			s.logger.WarnContext(ctx, "teacher session document too large, shrinking history",
				"session_id", id,
				"stage", next.String(),
				"events_per_section", bounds.EventsPerSection,
				"sections", bounds.Sections,
				"file_access_entries", bounds.FileAccessLog,
				"error", err,
			)
			stage = next
		default:
			mapped := mapSessionError(id, err)
			observability.RecordSessionUpdate(ctx, "error")
			s.audit.Record(ctx, AuditEntry{Action: AuditActionUpdate, DocumentID: id, Err: mapped})
			return nil, mapped
		}
	}
}

// attempt is one transition of the overflow ladder. Retry stages shrink the
// stored document first and apply the same bounds to the incoming section.
func (s *TeacherSessionService) attempt(ctx context.Context, id string, patch SessionPatch, stage OverflowStage, now time.Time) (*domain.TeacherSession, []domain.AuditChange, AttemptOutcome, error) {
	var incoming *ShrinkBounds
	if bounds, shrinking := stage.Bounds(); shrinking {
		_, err := s.sessions.Rewrite(ctx, id, func(doc *domain.TeacherSession) (repository.Mutation, error) {
			ShrinkDocument(doc, bounds)
			return shrinkMutation, nil
		})
		if err != nil {
			return nil, nil, OutcomeFail, err
		}
		incoming = &bounds
	}

	var changes []domain.AuditChange
	doc, err := s.sessions.Update(ctx, id, func(doc *domain.TeacherSession) (repository.Mutation, error) {
		var m repository.Mutation
		m, changes = mergePatch(doc, patch, incoming, now)
		return m, nil
	})
	switch {
	case err == nil:
		return doc, changes, OutcomeCommitted, nil
	case repository.IsDocumentTooLarge(err):
		return nil, nil, OutcomeEscalate, err
	default:
		return nil, nil, OutcomeFail, err
	}
}

// mergePatch applies patch to doc in place and reports the columns it
// touched. Sums are recomputed after the log append.
func mergePatch(doc *domain.TeacherSession, p SessionPatch, incoming *ShrinkBounds, now time.Time) (repository.Mutation, []domain.AuditChange) {
	var m repository.Mutation
	var changes []domain.AuditChange

	setString := func(field, column string, dst *string, v *string) {
		if v == nil || *dst == *v {
			return
		}
		changes = append(changes, domain.AuditChange{Field: field, OldValue: *dst, NewValue: *v})
		*dst = *v
		m.Columns = append(m.Columns, column)
	}
	setString("username", "username", &doc.Username, p.Username)
	setString("courseClassName", "course_class_ref", &doc.CourseClassRef, p.CourseClassRef)
	setString("sectionName", "section_ref", &doc.SectionRef, p.SectionRef)
	setString("subjectName", "subject_ref", &doc.SubjectRef, p.SubjectRef)
	setString("sessionToken", "session_token", &doc.SessionToken, p.SessionToken)
	setString("deviceId", "device_id", &doc.DeviceID, p.DeviceID)

	if p.LogoutAt != nil {
		changes = append(changes, domain.AuditChange{Field: "logoutAt", OldValue: doc.LogoutAt, NewValue: *p.LogoutAt})
		t := *p.LogoutAt
		doc.LogoutAt = &t
		m.Columns = append(m.Columns, "logout_at")
	}
	if p.LogoutTime != nil {
		changes = append(changes, domain.AuditChange{Field: "logoutTime", OldValue: doc.LogoutTime, NewValue: *p.LogoutTime})
		t := *p.LogoutTime
		doc.LogoutTime = &t
		m.Columns = append(m.Columns, "logout_time")
	}
	if p.Active != nil && doc.Active != *p.Active {
		changes = append(changes, domain.AuditChange{Field: "active", OldValue: doc.Active, NewValue: *p.Active})
		doc.Active = *p.Active
		m.Columns = append(m.Columns, "active")
	}

	if p.FileAccess != nil {
		doc.FileAccessLog = append(doc.FileAccessLog, *p.FileAccess)
		RecomputeDerived(doc)
		changes = append(changes, domain.AuditChange{Field: "fileAccessLog", NewValue: p.FileAccess.FileID})
		m.Columns = append(m.Columns, "file_access_log", "idle_time", "active_time")
	}

	if p.Section != nil {
		sec := *p.Section
		sec.Events = append([]domain.SessionEvent(nil), p.Section.Events...)
		if incoming != nil {
			sec = MinimizeSection(sec, incoming.EventsPerSection)
		}
		doc.Sections = append(doc.Sections, sec)
		changes = append(changes, domain.AuditChange{Field: "section", NewValue: sec.ID})
		m.Sections = true
	}

	if !p.IsLogout() {
		doc.LastActiveAt = now
		m.Columns = append(m.Columns, "last_active_at")
	}
	return m, changes
}
