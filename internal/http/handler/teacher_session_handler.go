package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sensei-edu/sensei-api/internal/http/response"
	"github.com/sensei-edu/sensei-api/internal/service"
)

type TeacherSessionHandler struct {
	sessions service.TeacherSessionServiceInterface
	errs     errorWriter
	now      func() time.Time
}

func NewTeacherSessionHandler(sessions service.TeacherSessionServiceInterface, logger *slog.Logger, debug bool) *TeacherSessionHandler {
	return &TeacherSessionHandler{
		sessions: sessions,
		errs:     newErrorWriter(logger, debug),
		now:      time.Now,
	}
}

type paginationPayload struct {
	Page        int   `json:"page"`
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	HasMore     bool  `json:"hasMore"`
	TotalItems  int64 `json:"totalItems"`
	Limit       int   `json:"limit"`
}

type sessionListPayload struct {
	Sessions   []service.SessionView `json:"sessions"`
	Total      int64                 `json:"total"`
	Limit      int                   `json:"limit"`
	Offset     int                   `json:"offset"`
	Pagination paginationPayload     `json:"pagination"`
	Filters    map[string]any        `json:"filters"`
}

func (h *TeacherSessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateSessionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.errs.badBody(w, r, err)
		return
	}
	out, err := h.sessions.Create(r.Context(), in)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.Message(w, r, http.StatusCreated, "Teacher session created successfully", out)
}

// Update is the incremental merge entry point. The body may carry one
// section, one file access entry and scalar fields.
func (h *TeacherSessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.errs.badBody(w, r, err)
		return
	}
	patch, err := service.ParseSessionPatch(body, h.now())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	out, err := h.sessions.ApplyUpdate(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.Message(w, r, http.StatusOK, "Teacher session updated successfully", out)
}

func (h *TeacherSessionHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, listDefaultLimit, false)
}

func (h *TeacherSessionHandler) Search(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, searchDefaultLimit, true)
}

func (h *TeacherSessionHandler) list(w http.ResponseWriter, r *http.Request, defaultLimit int, search bool) {
	q := r.URL.Query()
	filter, err := parseSessionFilter(q)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	page, err := parsePageRequest(q, defaultLimit)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	var res *service.SessionPage
	if search {
		res, err = h.sessions.SearchSessions(r.Context(), filter, page)
	} else {
		filter.Query = ""
		res, err = h.sessions.ListSessions(r.Context(), filter, page)
	}
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, listPayload(res, filter))
}

func listPayload(res *service.SessionPage, filter service.SessionFilter) sessionListPayload {
	sessions := res.Sessions
	if sessions == nil {
		sessions = []service.SessionView{}
	}
	return sessionListPayload{
		Sessions: sessions,
		Total:    res.Total,
		Limit:    res.Limit,
		Offset:   res.Offset,
		Pagination: paginationPayload{
			Page:        res.Page,
			CurrentPage: res.Page,
			TotalPages:  res.TotalPages,
			HasMore:     res.HasMore,
			TotalItems:  res.Total,
			Limit:       res.Limit,
		},
		Filters: filterEcho(filter),
	}
}

func (h *TeacherSessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, view)
}

func (h *TeacherSessionHandler) Sections(w http.ResponseWriter, r *http.Request) {
	out, err := h.sessions.Sections(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *TeacherSessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.errs.write(w, r, err)
		return
	}
	response.Message(w, r, http.StatusOK, "Teacher session deleted successfully", map[string]string{"_id": chi.URLParam(r, "id")})
}

