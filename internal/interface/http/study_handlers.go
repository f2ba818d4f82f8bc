package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sio4242/Godsaeng-project/internal/application/command"
	"github.com/sio4242/Godsaeng-project/internal/application/query"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE BODIES
// ══════════════════════════════════════════════════════════════════════════════

// OpenSessionResponse is returned by a successful open.
type OpenSessionResponse struct {
	SessionID string    `json:"sessionId"`
	StartedAt time.Time `json:"startedAt"`
}

// CloseSessionResponse describes a close attempt. NewLevel and NewExp are
// present only when the ledger was updated.
type CloseSessionResponse struct {
	Outcome           string  `json:"outcome"`
	SessionID         string  `json:"sessionId"`
	DurationSeconds   int64   `json:"durationSeconds"`
	DurationMinutes   float64 `json:"durationMinutes"`
	ExperienceAwarded int     `json:"experienceAwarded"`
	NewLevel          *int    `json:"newLevel,omitempty"`
	NewExp            *int    `json:"newExp,omitempty"`
	LevelUpOccurred   bool    `json:"levelUpOccurred"`
}

// ProgressionResponse is the character view of a ledger.
type ProgressionResponse struct {
	Level       int       `json:"level"`
	Exp         int       `json:"exp"`
	ExpRequired int       `json:"expRequired"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type studyHandler struct {
	open        *command.OpenSessionHandler
	close       *command.CloseSessionHandler
	list        *query.ListSessionsHandler
	progression *query.GetProgressionHandler
}

// Open handles POST /api/v1/study/sessions.
func (h *studyHandler) Open(w http.ResponseWriter, r *http.Request) {
	result, err := h.open.Handle(r.Context(), command.OpenSessionCommand{
		UserID:        userIDFrom(r.Context()),
		CorrelationID: requestIDFrom(r.Context()),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, OpenSessionResponse{
		SessionID: result.SessionID.String(),
		StartedAt: result.StartedAt,
	})
}

// Close handles POST /api/v1/study/sessions/{id}/close and the legacy
// PUT /api/study/stop/{logId}.
func (h *studyHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		id = chi.URLParam(r, "logId")
	}

	result, err := h.close.Handle(r.Context(), command.CloseSessionCommand{
		UserID:        userIDFrom(r.Context()),
		SessionID:     id,
		CorrelationID: requestIDFrom(r.Context()),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := CloseSessionResponse{
		Outcome:           string(result.Outcome),
		SessionID:         result.SessionID.String(),
		DurationSeconds:   result.DurationSeconds,
		DurationMinutes:   result.DurationMinutes(),
		ExperienceAwarded: int(result.ExpAwarded),
		LevelUpOccurred:   result.LevelUpOccurred,
	}
	if p := result.Progression; p != nil {
		level, exp := p.Level, p.Exp
		resp.NewLevel, resp.NewExp = &level, &exp
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// List handles GET /api/v1/study/sessions?limit=N.
func (h *studyHandler) List(w http.ResponseWriter, r *http.Request) {
	q := query.ListSessionsQuery{UserID: userIDFrom(r.Context())}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "limit must be an integer")
			return
		}
		q.Limit = limit
	}

	sessions, err := h.list.Handle(r.Context(), q)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sessions)
}

// Progression handles GET /api/v1/progression.
func (h *studyHandler) Progression(w http.ResponseWriter, r *http.Request) {
	snap, err := h.progression.Handle(r.Context(), query.GetProgressionQuery{UserID: userIDFrom(r.Context())})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ProgressionResponse{
		Level:       snap.Level,
		Exp:         snap.Exp,
		ExpRequired: snap.ExpRequired,
		UpdatedAt:   snap.UpdatedAt,
	})
}
