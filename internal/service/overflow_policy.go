package service

import (
	"github.com/sensei-edu/sensei-api/internal/domain"
)

// ShrinkBounds caps the history a document keeps while recovering from an
// overflow.
type ShrinkBounds struct {
	EventsPerSection int
	Sections         int
	FileAccessLog    int
}

var (
	StageOneBounds = ShrinkBounds{EventsPerSection: 500, Sections: 50, FileAccessLog: 100}
	StageTwoBounds = ShrinkBounds{EventsPerSection: 100, Sections: 20, FileAccessLog: 50}
)

type OverflowStage int

const (
	StageNormal OverflowStage = iota
	StageOneRetry
	StageTwoRetry
	StageFailed
)

func (s OverflowStage) String() string {
	switch s {
	case StageNormal:
		return "normal"
	case StageOneRetry:
		return "stage1_retry"
	case StageTwoRetry:
		return "stage2_retry"
	default:
		return "failed"
	}
}

// Bounds returns the shrink bounds applied before retrying in this stage.
func (s OverflowStage) Bounds() (ShrinkBounds, bool) {
	switch s {
	case StageOneRetry:
		return StageOneBounds, true
	case StageTwoRetry:
		return StageTwoBounds, true
	default:
		return ShrinkBounds{}, false
	}
}

type AttemptOutcome int

const (
	OutcomeCommitted AttemptOutcome = iota
	OutcomeEscalate
	OutcomeFail
)

func (o AttemptOutcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeEscalate:
		return "escalate"
	default:
		return "fail"
	}
}

// Next is the ladder transition. Only an escalation moves forward; the
// terminal outcomes leave the stage where it is.
func (s OverflowStage) Next(outcome AttemptOutcome) OverflowStage {
	if outcome != OutcomeEscalate {
		return s
	}
	switch s {
	case StageNormal:
		return StageOneRetry
	case StageOneRetry:
		return StageTwoRetry
	default:
		return StageFailed
	}
}

// ShrinkDocument trims the stored history to b and empties every
// non-snapshot payload it keeps. Applying it twice equals applying it once.
func ShrinkDocument(doc *domain.TeacherSession, b ShrinkBounds) {
	sections := lastN(doc.Sections, b.Sections)
	shrunk := make([]domain.TimelineSection, len(sections))
	for i, sec := range sections {
		shrunk[i] = MinimizeSection(sec, b.EventsPerSection)
	}
	doc.Sections = shrunk
	doc.FileAccessLog = lastN(doc.FileAccessLog, b.FileAccessLog)
	RecomputeDerived(doc)
}

// MinimizeSection windows the events to limit and empties non-snapshot
// payloads.
func MinimizeSection(sec domain.TimelineSection, limit int) domain.TimelineSection {
	events := windowEvents(sec.Events, limit)
	out := make([]domain.SessionEvent, len(events))
	for i, ev := range events {
		out[i] = ev.Minimized()
	}
	sec.Events = out
	return sec
}

// windowEvents keeps at most limit events in their original order. The
// newest snapshots are kept first, then the newest remaining events fill the
// rest of the window.
func windowEvents(events []domain.SessionEvent, limit int) []domain.SessionEvent {
	if limit < 0 {
		limit = 0
	}
	if len(events) <= limit {
		return events
	}
	keep := make([]bool, len(events))
	budget := limit
	for i := len(events) - 1; i >= 0 && budget > 0; i-- {
		if events[i].IsSnapshot() {
			keep[i] = true
			budget--
		}
	}
	for i := len(events) - 1; i >= 0 && budget > 0; i-- {
		if !keep[i] {
			keep[i] = true
			budget--
		}
	}
	out := make([]domain.SessionEvent, 0, limit)
	for i, ev := range events {
		if keep[i] {
			out = append(out, ev)
		}
	}
	return out
}

func lastN[T any](items []T, n int) []T {
	if n < 0 {
		n = 0
	}
	if len(items) <= n {
		return items
	}
	return append([]T(nil), items[len(items)-n:]...)
}
