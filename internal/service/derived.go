package service

import "github.com/sensei-edu/sensei-api/internal/domain"

// SumFileAccessTimes totals the per-entry idle and active milliseconds.
func SumFileAccessTimes(log []domain.FileAccess) (idle, active float64) {
	for _, entry := range log {
		if entry.IdleTime != nil {
			idle += *entry.IdleTime
		}
		if entry.ActiveTime != nil {
			active += *entry.ActiveTime
		}
	}
	return idle, active
}

// RecomputeDerived rewrites idleTime and activeTime from the file access log.
// Every path that changes the log calls it before committing.
func RecomputeDerived(doc *domain.TeacherSession) {
	idle, active := SumFileAccessTimes(doc.FileAccessLog)
	doc.IdleTime = &idle
	doc.ActiveTime = &active
}

// ComputedTimes prefers the stored totals and falls back to the log sums for
// documents written before the totals existed.
func ComputedTimes(doc *domain.TeacherSession) (active, idle float64) {
	sumIdle, sumActive := SumFileAccessTimes(doc.FileAccessLog)
	active, idle = sumActive, sumIdle
	if doc.ActiveTime != nil {
		active = *doc.ActiveTime
	}
	if doc.IdleTime != nil {
		idle = *doc.IdleTime
	}
	return active, idle
}
