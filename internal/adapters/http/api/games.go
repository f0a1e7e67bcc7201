package api

import (
	"context"
	"net/http"

	service "github.com/okian/facepulse/internal/app"
	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/internal/domain/reaction"
	"github.com/okian/facepulse/internal/domain/scoring"
)

// GameDependencies covers timed challenges and the emoji reaction game.
type GameDependencies interface {
	StartChallenge(ctx context.Context, kind string, p service.Player) (scoring.Result, error)
	SampleChallenge(ctx context.Context, id string, det *model.Detection) (scoring.Result, error)
	FinishChallenge(ctx context.Context, id string) (service.ChallengeResult, error)
	StartReaction(ctx context.Context, rounds int, p service.Player) (reaction.View, error)
	GetReaction(ctx context.Context, id string) (reaction.View, error)
	SampleReaction(ctx context.Context, id string, det *model.Detection) (reaction.View, error)
	CaptureReaction(ctx context.Context, id string, frame []byte) (reaction.View, error)
}

// GamesHandler handles challenge and reaction requests.
type GamesHandler struct {
	deps GameDependencies
}

// NewGamesHandler creates a new games handler.
func NewGamesHandler(deps GameDependencies) *GamesHandler {
	return &GamesHandler{deps: deps}
}

type startChallengeRequest struct {
	Kind string `json:"kind"`
	service.Player
}

type startReactionRequest struct {
	Rounds int `json:"rounds"`
	service.Player
}

// HandleStartChallenge handles POST /challenges.
func (h *GamesHandler) HandleStartChallenge(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_challenge"
	var req startChallengeRequest
	if err := decode(r, &req); err != nil {
		fail(w, op, err)
		return
	}
	res, err := h.deps.StartChallenge(r.Context(), req.Kind, req.Player)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleSampleChallenge handles POST /challenges/{id}/samples.
func (h *GamesHandler) HandleSampleChallenge(w http.ResponseWriter, r *http.Request) {
	const op = "api.sample_challenge"
	var req sampleRequest
	if err := decode(r, &req); err != nil {
		fail(w, op, err)
		return
	}
	res, err := h.deps.SampleChallenge(r.Context(), r.PathValue("id"), req.Detection)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleFinishChallenge handles POST /challenges/{id}/finish.
func (h *GamesHandler) HandleFinishChallenge(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.FinishChallenge(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "api.finish_challenge", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleStartReaction handles POST /reactions.
func (h *GamesHandler) HandleStartReaction(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_reaction"
	var req startReactionRequest
	if err := decode(r, &req); err != nil {
		fail(w, op, err)
		return
	}
	view, err := h.deps.StartReaction(r.Context(), req.Rounds, req.Player)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// HandleGetReaction handles GET /reactions/{id}.
func (h *GamesHandler) HandleGetReaction(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.GetReaction(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "api.get_reaction", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleSampleReaction handles POST /reactions/{id}/samples.
func (h *GamesHandler) HandleSampleReaction(w http.ResponseWriter, r *http.Request) {
	const op = "api.sample_reaction"
	var req sampleRequest
	if err := decode(r, &req); err != nil {
		fail(w, op, err)
		return
	}
	view, err := h.deps.SampleReaction(r.Context(), r.PathValue("id"), req.Detection)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleCaptureReaction handles POST /reactions/{id}/capture.
func (h *GamesHandler) HandleCaptureReaction(w http.ResponseWriter, r *http.Request) {
	const op = "api.capture_reaction"
	var req frameRequest
	if err := decode(r, &req); err != nil {
		fail(w, op, err)
		return
	}
	frame, err := req.frame()
	if err != nil {
		fail(w, op, err)
		return
	}
	view, err := h.deps.CaptureReaction(r.Context(), r.PathValue("id"), frame)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
