package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"postforge/internal/markdown"
	"postforge/internal/middleware"
	"postforge/internal/models"
	"postforge/internal/studio"
	"postforge/internal/workflow"
)

// Studio groups the operator-facing content generation handlers.
type Studio struct {
	manager *studio.Manager
}

// NewStudio creates a new Studio handler group.
func NewStudio(manager *studio.Manager) *Studio {
	return &Studio{manager: manager}
}

// session resolves the studio session of the authenticated operator,
// creating it on first use.
func (h *Studio) session(r *http.Request) *studio.Session {
	sess := middleware.SessionFromCtx(r.Context())
	return h.manager.Open(r.Context(), sess.ID)
}

// recordView is a content record with its long-form fields rendered.
type recordView struct {
	Record   *models.ContentRecord `json:"record"`
	Rendered *markdown.Rendered    `json:"rendered"`
	// FactualIntegrityPassed is set once the record has been evaluated.
	FactualIntegrityPassed *bool `json:"factual_integrity_passed,omitempty"`
}

// Snapshot returns the full studio state.
func (h *Studio) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session(r).Snapshot())
}

// Navigate switches the visible screen.
func (h *Studio) Navigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Screen studio.Screen `json:"screen"`
	}
	if _, err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s := h.session(r)
	if err := s.Navigate(req.Screen); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "unknown screen")
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// SetBrief stores the content brief used by the next draft.
func (h *Studio) SetBrief(w http.ResponseWriter, r *http.Request) {
	var brief workflow.Brief
	if _, err := decodeJSON(w, r, &brief); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateBrief(brief); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	s := h.session(r)
	s.SetBrief(brief)
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// SetPostText stores the operator-edited post text.
func (h *Studio) SetPostText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if _, err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validatePostText(req.Text); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	s := h.session(r)
	s.SetPostText(req.Text)
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// Draft runs the draft stage. A brief in the request body replaces the
// stored one first.
func (h *Studio) Draft(w http.ResponseWriter, r *http.Request) {
	var brief workflow.Brief
	present, err := decodeJSON(w, r, &brief)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s := h.session(r)
	if present {
		if msg := validateBrief(brief); msg != "" {
			writeError(w, http.StatusUnprocessableEntity, msg)
			return
		}
		s.SetBrief(brief)
	}

	// The stage outlives a dropped connection; its result lands in the
	// session and reaches the client through the stream.
	rec, err := s.Draft(context.WithoutCancel(r.Context()))
	h.stageResult(w, s, rec, err)
}

// Visualize runs the visual stage on the post under review.
func (h *Studio) Visualize(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	rec, err := s.Visualize(context.WithoutCancel(r.Context()))
	h.stageResult(w, s, rec, err)
}

// Evaluate runs the judge stage on the post under review.
func (h *Studio) Evaluate(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	rec, err := s.Evaluate(context.WithoutCancel(r.Context()))
	h.stageResult(w, s, rec, err)
}

// stageResult maps a stage outcome onto the response.
func (h *Studio) stageResult(w http.ResponseWriter, s *studio.Session, rec *models.ContentRecord, err error) {
	var stageErr *workflow.StageError
	switch {
	case err == nil && rec == nil:
		writeError(w, http.StatusConflict, "record no longer available")
	case err == nil:
		writeRecord(w, rec)
	case errors.Is(err, workflow.ErrEmptyTopic):
		writeError(w, http.StatusUnprocessableEntity, workflow.MsgEmptyTopic)
	case errors.Is(err, workflow.ErrStageBusy):
		writeError(w, http.StatusConflict, "stage already in progress")
	case errors.Is(err, workflow.ErrNoRecord):
		writeError(w, http.StatusConflict, "generate content first")
	case errors.As(err, &stageErr):
		writeError(w, http.StatusBadGateway, stageErr.Message)
	default:
		slog.Error("stage failed", "session", s.ID(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// DismissError clears surfaced workflow and schedule messages.
func (h *Studio) DismissError(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	s.DismissError()
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// History lists every record of the session, newest first.
func (h *Studio) History(w http.ResponseWriter, r *http.Request) {
	history := h.session(r).History()
	if history == nil {
		history = []models.ContentRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": history})
}

// Record returns one record with its Markdown fields rendered to HTML.
func (h *Studio) Record(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	rec := h.session(r).Record(id)
	if rec == nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeRecord(w, rec)
}

func writeRecord(w http.ResponseWriter, rec *models.ContentRecord) {
	rendered, err := markdown.Record(rec)
	if err != nil {
		slog.Error("render record failed", "record_id", rec.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	view := recordView{Record: rec, Rendered: rendered}
	if rec.Evaluation != nil {
		passed := rec.Evaluation.FactualIntegrityPassed()
		view.FactualIntegrityPassed = &passed
	}
	writeJSON(w, http.StatusOK, view)
}
