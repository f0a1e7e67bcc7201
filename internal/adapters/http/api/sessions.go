package api

import (
	"context"
	"fmt"
	"net/http"

	service "github.com/okian/facepulse/internal/app"
	"github.com/okian/facepulse/internal/domain/analytics"
	"github.com/okian/facepulse/internal/domain/model"
)

// SessionDependencies covers the recording session routes.
type SessionDependencies interface {
	CreateSession(ctx context.Context, playerName string) (service.SessionView, error)
	GetSession(ctx context.Context, id string) (service.SessionView, error)
	EndSession(ctx context.Context, id string) (model.Session, error)
	ProcessDetection(ctx context.Context, sessionID string, det *model.Detection, frame []byte) (service.FrameResult, error)
	ListMoments(ctx context.Context, sessionID string) ([]model.CapturedMoment, error)
	SessionAnalytics(ctx context.Context, sessionID string) (analytics.SessionSummary, error)
	Analytics(ctx context.Context) (analytics.Dashboard, error)
	TopLeaderboard(ctx context.Context, n int) ([]model.LeaderboardEntry, error)
}

// SessionsHandler handles sessions, analytics and the moment leaderboard.
type SessionsHandler struct {
	deps     SessionDependencies
	maxLimit int
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies, maxLimit int) *SessionsHandler {
	return &SessionsHandler{deps: deps, maxLimit: maxLimit}
}

type createSessionRequest struct {
	PlayerName string `json:"player_name"`
}

// HandleCreate handles POST /sessions.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_session"
	var req createSessionRequest
	if err := decode(r, &req); err != nil {
		fail(w, op, err)
		return
	}
	sess, err := h.deps.CreateSession(r.Context(), req.PlayerName)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// HandleGet handles GET /sessions/{id}.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "api.get_session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleEnd handles POST /sessions/{id}/end.
func (h *SessionsHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.EndSession(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "api.end_session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleDetection handles POST /sessions/{id}/detections. A dropped sample
// is still a 200; the client reads dropped from the body.
func (h *SessionsHandler) HandleDetection(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_detection"
	var req frameRequest
	if err := decode(r, &req); err != nil {
		fail(w, op, err)
		return
	}
	if req.Detection == nil {
		fail(w, op, fmt.Errorf("%w: detection is required", ErrBadRequest))
		return
	}
	frame, err := req.frame()
	if err != nil {
		fail(w, op, err)
		return
	}
	res, err := h.deps.ProcessDetection(r.Context(), r.PathValue("id"), req.Detection, frame)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleMoments handles GET /sessions/{id}/moments.
func (h *SessionsHandler) HandleMoments(w http.ResponseWriter, r *http.Request) {
	moments, err := h.deps.ListMoments(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "api.list_moments", err)
		return
	}
	if moments == nil {
		moments = []model.CapturedMoment{}
	}
	writeJSON(w, http.StatusOK, moments)
}

// HandleSessionAnalytics handles GET /sessions/{id}/analytics.
func (h *SessionsHandler) HandleSessionAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := h.deps.SessionAnalytics(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "api.session_analytics", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleAnalytics handles GET /analytics.
func (h *SessionsHandler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	dash, err := h.deps.Analytics(r.Context())
	if err != nil {
		fail(w, "api.analytics", err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// HandleLeaderboard handles GET /leaderboard?limit=N.
func (h *SessionsHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	n, err := parseLimit(r, h.maxLimit)
	if err != nil {
		fail(w, op, err)
		return
	}
	entries, err := h.deps.TopLeaderboard(r.Context(), n)
	if err != nil {
		fail(w, op, err)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
