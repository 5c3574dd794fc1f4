package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/focusroom/internal/content"
	"github.com/pavelanni/focusroom/internal/handler/views"
	"github.com/pavelanni/focusroom/internal/model"
	"github.com/pavelanni/focusroom/internal/session"
	"github.com/pavelanni/focusroom/internal/steplog"
	"github.com/pavelanni/focusroom/internal/task"
)

const maxBody = 1 << 20

// Archive serves sessions that are no longer live.
type Archive interface {
	GetSessionArchive(id string) (*model.SessionExport, error)
	ListSessions(roomID string) ([]model.SessionRecord, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	sessions *session.Manager
	archive  Archive
	metrics  http.Handler
	config   model.EngineConfig
	validate *validator.Validate
}

// New creates a new Handler. archive and metrics may be nil.
func New(m *session.Manager, archive Archive, metrics http.Handler, cfg model.EngineConfig) (*Handler, error) {
	if m == nil {
		return nil, errors.New("handler: session manager is required")
	}
	return &Handler{
		sessions: m,
		archive:  archive,
		metrics:  metrics,
		config:   cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	r.Post("/normalize", h.handleNormalize)
	r.Get("/archive", h.handleArchiveList)

	r.Post("/sessions", h.handleCreate)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleReset)
		r.Post("/advance", h.handleAdvance)
		r.Post("/answer", h.handleAnswer)
		r.Post("/retry", h.handleRetry)
		r.Post("/done", h.handleDone)
		r.Post("/mute", h.handleMute)
		r.Get("/transcript", h.handleTranscript)
		r.Get("/events", h.handleEvents)
		r.Get("/audio", h.handleAudio)
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type createRequest struct {
	RoomID   string             `json:"room_id" validate:"required,max=128"`
	DayIndex int                `json:"day_index" validate:"gte=1"`
	Params   model.DomainParams `json:"params"`
	Muted    *bool              `json:"muted,omitempty"`
}

type answerResponse struct {
	Outcome task.Outcome `json:"outcome"`
	View    session.View `json:"view"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": h.sessions.Len()})
}

func (h *Handler) handleNormalize(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, content.ValidateJSON(body))
}

func (h *Handler) handleArchiveList(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeJSON(w, http.StatusOK, []model.SessionRecord{})
		return
	}
	recs, err := h.archive.ListSessions(r.URL.Query().Get("room"))
	if err != nil {
		slog.Error("list archived sessions", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []model.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c := h.sessions.Create(req.RoomID, req.DayIndex, req.Params)
	if req.Muted != nil {
		c.SetMuted(*req.Muted)
	}
	// Loading may take a while; the request context only lends its values.
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := c.Start(ctx); err != nil && !errors.Is(err, session.ErrStale) && !errors.Is(err, session.ErrClosed) {
			slog.Error("start session", "session", c.ID(), "error", err)
		}
	}()
	slog.Info("session created", "session", c.ID(), "room", req.RoomID, "day", req.DayIndex)
	writeJSON(w, http.StatusAccepted, c.Snapshot())
}

// controller resolves the session of the request, writing the error
// response when there is none.
func (h *Handler) controller(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	c, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return c, true
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Reset(chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	if err := c.Advance(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	var ans task.Answer
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&ans); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	out, err := c.Submit(r.Context(), ans)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{Outcome: out, View: c.Snapshot()})
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	if err := c.Retry(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (h *Handler) handleDone(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	out, err := c.Done(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{Outcome: out, View: c.Snapshot()})
}

func (h *Handler) handleMute(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req struct {
		Muted bool `json:"muted"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	c.SetMuted(req.Muted)
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	t, ok := h.transcript(w, id)
	if !ok {
		return
	}

	if r.URL.Query().Get("format") == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = io.WriteString(w, steplog.Markdown(t.Entries))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.TranscriptPage(t).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// transcript looks the session up among the live ones first, then in the
// archive.
func (h *Handler) transcript(w http.ResponseWriter, id string) (views.Transcript, bool) {
	if c, err := h.sessions.Get(id); err == nil {
		v := c.Snapshot()
		return views.Transcript{
			SessionID:      id,
			DayIndex:       v.DayIndex,
			Phase:          v.Phase,
			ScoreSum:       v.ScoreSum,
			ItemsCompleted: v.ItemsCompleted,
			Entries:        c.Log().Transcript(),
		}, true
	}
	if h.archive == nil {
		writeError(w, session.ErrNotFound)
		return views.Transcript{}, false
	}
	exp, err := h.archive.GetSessionArchive(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, session.ErrNotFound)
		return views.Transcript{}, false
	}
	if err != nil {
		slog.Error("load archived session", "session", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return views.Transcript{}, false
	}
	return views.Transcript{
		SessionID:      id,
		DayIndex:       exp.Session.DayIndex,
		Phase:          exp.Session.Phase,
		ScoreSum:       exp.Session.ScoreSum,
		ItemsCompleted: exp.Session.ItemsCompleted,
		Entries:        exp.Transcript,
	}, true
}

func (h *Handler) handleAudio(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	clip, ok := c.Clip()
	if !ok || len(clip.Audio) == 0 {
		http.Error(w, "no narration available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("X-Step-ID", clip.StepID)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(clip.Audio)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError maps session and task errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var gateErr *content.GateError
	switch {
	case errors.As(err, &gateErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "gate": gateErr.Gate})
	case errors.Is(err, session.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.Is(err, session.ErrClosed):
		writeJSON(w, http.StatusGone, map[string]any{"error": err.Error()})
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrPhase), errors.Is(err, session.ErrStale),
		errors.Is(err, task.ErrNoActiveItem), errors.Is(err, task.ErrCompleted):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}
