package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sensei-edu/sensei-api/internal/http/response"
	"github.com/sensei-edu/sensei-api/internal/service"
)

type TaxonomyHandler struct {
	taxonomy service.TaxonomyServiceInterface
	errs     errorWriter
}

func NewTaxonomyHandler(taxonomy service.TaxonomyServiceInterface, logger *slog.Logger, debug bool) *TaxonomyHandler {
	return &TaxonomyHandler{taxonomy: taxonomy, errs: newErrorWriter(logger, debug)}
}

func (h *TaxonomyHandler) CreateCourseClass(w http.ResponseWriter, r *http.Request) {
	var in service.CreateCourseClassInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.errs.badBody(w, r, err)
		return
	}
	out, err := h.taxonomy.CreateCourseClass(r.Context(), in)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, out)
}

func (h *TaxonomyHandler) ListCourseClasses(w http.ResponseWriter, r *http.Request) {
	out, err := h.taxonomy.ListCourseClasses(r.Context())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *TaxonomyHandler) CreateSection(w http.ResponseWriter, r *http.Request) {
	var in service.CreateSectionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.errs.badBody(w, r, err)
		return
	}
	out, err := h.taxonomy.CreateSection(r.Context(), in)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, out)
}

// ListSections narrows to one course class when ?courseClass is set.
func (h *TaxonomyHandler) ListSections(w http.ResponseWriter, r *http.Request) {
	out, err := h.taxonomy.ListSections(r.Context(), first(r.URL.Query(), "courseClass", "courseClassId"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *TaxonomyHandler) CreateSubject(w http.ResponseWriter, r *http.Request) {
	var in service.CreateSubjectInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.errs.badBody(w, r, err)
		return
	}
	out, err := h.taxonomy.CreateSubject(r.Context(), in)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, out)
}

func (h *TaxonomyHandler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	out, err := h.taxonomy.ListSubjects(r.Context())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, out)
}
