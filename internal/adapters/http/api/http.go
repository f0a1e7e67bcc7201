// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/facepulse/internal/adapters/blob"
	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/internal/domain/types"
)

const (
	defaultLimit = 10
	maxBodyBytes = 16 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	LiveDependencies
	ScoreDependencies
	GameDependencies
	CapsuleDependencies
	MediaDependencies
	SetupDependencies
}

// Entry mirrors the read shape returned by ranking queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	sessionsHandler *SessionsHandler
	liveHandler     *LiveHandler
	scoresHandler   *ScoresHandler
	gamesHandler    *GamesHandler
	capsulesHandler *CapsulesHandler
	mediaHandler    *MediaHandler
}

// NewServer creates a new API server with all handlers. maxLimit caps the
// limit query parameter of list endpoints.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	if maxLimit < 1 {
		maxLimit = defaultLimit
	}
	return &Server{
		healthHandler:   NewHealthHandler(deps),
		statsHandler:    NewStatsHandler(statsProvider),
		sessionsHandler: NewSessionsHandler(deps, maxLimit),
		liveHandler:     NewLiveHandler(deps),
		scoresHandler:   NewScoresHandler(deps, maxLimit),
		gamesHandler:    NewGamesHandler(deps),
		capsulesHandler: NewCapsulesHandler(deps),
		mediaHandler:    NewMediaHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /setup", "setup", s.healthHandler.HandleSetup)
	route("GET /stats", "stats", s.statsHandler.HandleStats)
	mux.HandleFunc("GET /dashboard", s.statsHandler.HandleDashboard)

	route("POST /sessions", "sessions", s.sessionsHandler.HandleCreate)
	route("GET /sessions/{id}", "session", s.sessionsHandler.HandleGet)
	route("POST /sessions/{id}/end", "session_end", s.sessionsHandler.HandleEnd)
	route("POST /sessions/{id}/detections", "detections", s.sessionsHandler.HandleDetection)
	route("GET /sessions/{id}/moments", "moments", s.sessionsHandler.HandleMoments)
	route("GET /sessions/{id}/analytics", "session_analytics", s.sessionsHandler.HandleSessionAnalytics)
	mux.HandleFunc("GET /sessions/{id}/live", s.liveHandler.HandleLive)
	route("GET /analytics", "analytics", s.sessionsHandler.HandleAnalytics)
	route("GET /leaderboard", "leaderboard", s.sessionsHandler.HandleLeaderboard)

	route("POST /scores", "scores_submit", s.scoresHandler.HandleSubmit)
	route("GET /scores", "scores", s.scoresHandler.HandleTop)
	route("GET /rank/{player}", "rank", s.scoresHandler.HandleRank)

	route("POST /challenges", "challenges", s.gamesHandler.HandleStartChallenge)
	route("POST /challenges/{id}/samples", "challenge_samples", s.gamesHandler.HandleSampleChallenge)
	route("POST /challenges/{id}/finish", "challenge_finish", s.gamesHandler.HandleFinishChallenge)
	route("POST /reactions", "reactions", s.gamesHandler.HandleStartReaction)
	route("GET /reactions/{id}", "reaction", s.gamesHandler.HandleGetReaction)
	route("POST /reactions/{id}/samples", "reaction_samples", s.gamesHandler.HandleSampleReaction)
	route("POST /reactions/{id}/capture", "reaction_capture", s.gamesHandler.HandleCaptureReaction)

	route("POST /capsules", "capsules", s.capsulesHandler.HandleStart)
	route("GET /capsules/{id}", "capsule", s.capsulesHandler.HandleGet)
	route("POST /capsules/{id}/samples", "capsule_samples", s.capsulesHandler.HandleSample)
	route("POST /capsules/{id}/capture", "capsule_capture", s.capsulesHandler.HandleCapture)
	route("POST /capsules/{id}/close", "capsule_close", s.capsulesHandler.HandleClose)
	route("GET /capsules/{id}/collage.png", "capsule_collage", s.capsulesHandler.HandleCollage)

	route("POST /quotes", "quotes", s.mediaHandler.HandleQuote)
	route("POST /share", "share", s.mediaHandler.HandleShare)
	route("GET /share/{id}", "share_get", s.mediaHandler.HandleGetShare)
}

// sampleRequest carries one client detection.
type sampleRequest struct {
	Detection *model.Detection `json:"detection"`
}

// frameRequest carries a detection and the still frame it was taken from,
// as a data URL. Both are optional where the route allows it.
type frameRequest struct {
	Detection *model.Detection `json:"detection"`
	Image     string           `json:"image,omitempty"`
}

func (f frameRequest) frame() ([]byte, error) {
	if strings.TrimSpace(f.Image) == "" {
		return nil, nil
	}
	data, _, err := blob.DecodeDataURL(f.Image)
	if err != nil {
		return nil, err
	}
	return data, nil
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail writes err with the status its kind maps to.
func fail(w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	writeError(w, status, code, Wrap(op, err))
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// parseLimit reads ?limit. A missing value uses the default; values outside
// [1, max] are rejected.
func parseLimit(r *http.Request, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return min(defaultLimit, max), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest)
	}
	if n > max {
		return 0, fmt.Errorf("%w: limit must be at most %d", ErrLimitExceeded, max)
	}
	return n, nil
}
