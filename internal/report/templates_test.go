package report

import (
	"strings"
	"testing"
	"time"

	"github.com/sensei-edu/sensei-api/internal/service"
)

func TestRenderIndividualHTML(t *testing.T) {
	v := sampleView("bob<script>", "Grade 5", "Section A", "Math", 600000, 0, 3, 1)
	v.LogoutTime = nil

	html, err := RenderIndividualHTML(v, testLogin)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Teacher Session Detailed Report", "Session Active", "Section 1", "notes.pdf", "10 min"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in output", want)
		}
	}
	if strings.Contains(html, "bob<script>") {
		t.Fatal("expected username to be escaped")
	}
}

func TestRenderBulkHTMLIncludesRollupsAndPeriod(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	views := []service.SessionView{
		sampleView("bob", "Grade 5", "A", "Math", 60000, 0, 1, 0),
		sampleView("bob", "Grade 6", "B", "Math", 60000, 0, 1, 0),
	}
	html, err := RenderBulkHTML(NewBulkReport(views, &from, nil, testLogin))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"2025-03-01 - Present", "Grade 5, Grade 6", "Teacher Sessions Report"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in output", want)
		}
	}
}
