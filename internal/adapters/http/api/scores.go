package api

import (
	"context"
	"net/http"

	service "github.com/okian/facepulse/internal/app"
	"github.com/okian/facepulse/internal/domain/model"
)

// ScoreDependencies covers score submission and the player ranking.
type ScoreDependencies interface {
	SubmitScore(ctx context.Context, sub model.ScoreSubmission) (service.SubmitStatus, error)
	TopScores(ctx context.Context, n int) ([]Entry, error)
	Rank(ctx context.Context, playerID string) (Entry, error)
}

// ScoresHandler handles score requests.
type ScoresHandler struct {
	deps     ScoreDependencies
	maxLimit int
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoreDependencies, maxLimit int) *ScoresHandler {
	return &ScoresHandler{deps: deps, maxLimit: maxLimit}
}

// HandleSubmit handles POST /scores. Retries with a known submission_id are
// acknowledged with 200 and duplicate=true.
func (h *ScoresHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_score"
	var req model.ScoreSubmission
	if err := decode(r, &req); err != nil {
		fail(w, op, err)
		return
	}
	status, err := h.deps.SubmitScore(r.Context(), req)
	if err != nil {
		fail(w, op, err)
		return
	}
	if status == service.SubmitDuplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: string(status), Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: string(status)})
}

// HandleTop handles GET /scores?limit=N.
func (h *ScoresHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	const op = "api.top_scores"
	n, err := parseLimit(r, h.maxLimit)
	if err != nil {
		fail(w, op, err)
		return
	}
	entries, err := h.deps.TopScores(r.Context(), n)
	if err != nil {
		fail(w, op, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleRank handles GET /rank/{player}.
func (h *ScoresHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	entry, err := h.deps.Rank(r.Context(), r.PathValue("player"))
	if err != nil {
		fail(w, "api.rank", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
