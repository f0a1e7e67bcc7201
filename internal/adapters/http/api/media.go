package api

import (
	"context"
	"net/http"

	"github.com/okian/facepulse/internal/adapters/quote"
	service "github.com/okian/facepulse/internal/app"
)

// MediaDependencies covers quotes and shared images.
type MediaDependencies interface {
	Quote(ctx context.Context, emotion string, smile int) (quote.Quote, error)
	Share(ctx context.Context, title, dataURL string) (service.ShareView, error)
	GetShare(ctx context.Context, id string) (service.ShareView, error)
}

// MediaHandler handles quote and share requests.
type MediaHandler struct {
	deps MediaDependencies
}

// NewMediaHandler creates a new media handler.
func NewMediaHandler(deps MediaDependencies) *MediaHandler {
	return &MediaHandler{deps: deps}
}

type quoteRequest struct {
	Emotion         string `json:"emotion"`
	SmilePercentage int    `json:"smile_percentage"`
}

type shareRequest struct {
	Title string `json:"title"`
	Image string `json:"image"`
}

// HandleQuote handles POST /quotes.
func (h *MediaHandler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	const op = "api.quote"
	var req quoteRequest
	if err := decode(r, &req); err != nil {
		fail(w, op, err)
		return
	}
	q, err := h.deps.Quote(r.Context(), req.Emotion, req.SmilePercentage)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// HandleShare handles POST /share.
func (h *MediaHandler) HandleShare(w http.ResponseWriter, r *http.Request) {
	const op = "api.share"
	var req shareRequest
	if err := decode(r, &req); err != nil {
		fail(w, op, err)
		return
	}
	rec, err := h.deps.Share(r.Context(), req.Title, req.Image)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// HandleGetShare handles GET /share/{id}.
func (h *MediaHandler) HandleGetShare(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.GetShare(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "api.get_share", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
