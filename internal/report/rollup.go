package report

import (
	"math"

	"github.com/sensei-edu/sensei-api/internal/service"
)

// TeacherRollup aggregates every exported session of one username. The
// taxonomy lists are distinct display names in first-seen order.
type TeacherRollup struct {
	Username      string
	Sessions      int
	ActiveTime    float64
	IdleTime      float64
	Events        int
	FileAccesses  int
	CourseClasses []string
	Sections      []string
	Subjects      []string
}

type Totals struct {
	Sessions     int
	ActiveTime   float64
	IdleTime     float64
	Events       int
	FileAccesses int
}

// BuildRollups groups views by username, keeping the order in which each
// teacher first appears.
func BuildRollups(views []service.SessionView) []TeacherRollup {
	index := make(map[string]int)
	out := make([]TeacherRollup, 0)
	for _, v := range views {
		i, ok := index[v.Username]
		if !ok {
			i = len(out)
			index[v.Username] = i
			out = append(out, TeacherRollup{Username: v.Username})
		}
		r := &out[i]
		r.Sessions++
		r.ActiveTime += v.ActiveTimeComputed
		r.IdleTime += v.IdleTimeComputed
		r.Events += v.EventCount
		r.FileAccesses += v.FileAccessCount
		r.CourseClasses = appendDistinct(r.CourseClasses, v.CourseClassDisplay)
		r.Sections = appendDistinct(r.Sections, v.SectionDisplay)
		r.Subjects = appendDistinct(r.Subjects, v.SubjectDisplay)
	}
	return out
}

func SummarizeTotals(views []service.SessionView) Totals {
	var t Totals
	for _, v := range views {
		t.Sessions++
		t.ActiveTime += v.ActiveTimeComputed
		t.IdleTime += v.IdleTimeComputed
		t.Events += v.EventCount
		t.FileAccesses += v.FileAccessCount
	}
	return t
}

func appendDistinct(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// Minutes converts milliseconds to whole minutes, rounding half away from zero.
func Minutes(ms float64) int64 {
	return int64(math.Round(ms / 60000))
}
