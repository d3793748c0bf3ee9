package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/sensei-edu/sensei-api/internal/domain"
	"github.com/sensei-edu/sensei-api/internal/service"
)

func TestTaxonomyCreateListAndDisplayResolution(t *testing.T) {
	stack := newHandlerStack(t, nil)

	rr, env := do(t, stack.router, http.MethodPost, "/course-classes", `{"name":"Grade 5"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create course class: %d %s", rr.Code, rr.Body.String())
	}
	var class domain.CourseClass
	if err := json.Unmarshal(env.Data, &class); err != nil || !service.LooksLikeID(class.ID) {
		t.Fatalf("expected object id, got %+v (%v)", class, err)
	}

	rr, _ = do(t, stack.router, http.MethodPost, "/sections", `{"name":"Section A","courseClass":"`+class.ID+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create section: %d %s", rr.Code, rr.Body.String())
	}
	rr, env = do(t, stack.router, http.MethodGet, "/sections?courseClass="+class.ID, "")
	var sections []domain.Section
	if err := json.Unmarshal(env.Data, &sections); err != nil || len(sections) != 1 {
		t.Fatalf("expected one section, got %s", env.Data)
	}

	body := `{"username":"frank","courseClassName":"` + class.ID + `","sectionName":"` + sections[0].ID + `","subjectName":"Free text","sessionToken":"t"}`
	rr, env = do(t, stack.router, http.MethodPost, "/teacher-sessions", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session: %d", rr.Code)
	}
	var created service.SessionSummary
	_ = json.Unmarshal(env.Data, &created)

	rr, env = do(t, stack.router, http.MethodGet, "/teacher-sessions/"+created.ID, "")
	var view service.SessionView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.CourseClassDisplay != "Grade 5" || view.SectionDisplay != "Section A" || view.SubjectDisplay != "Free text" {
		t.Fatalf("unexpected display names: %+v", view)
	}

	rr, env = do(t, stack.router, http.MethodGet, "/teacher-sessions?courseClassName=grade", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list by class name: %d", rr.Code)
	}
	var page struct {
		Total int64 `json:"total"`
	}
	_ = json.Unmarshal(env.Data, &page)
	if page.Total != 1 {
		t.Fatalf("expected name filter to resolve to the class id, got total=%d", page.Total)
	}
}

func TestTaxonomyCreateValidation(t *testing.T) {
	stack := newHandlerStack(t, nil)
	rr, env := do(t, stack.router, http.MethodPost, "/subjects", `{"name":"   "}`)
	if rr.Code != http.StatusBadRequest || env.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
