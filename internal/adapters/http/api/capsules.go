package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	service "github.com/okian/facepulse/internal/app"
	"github.com/okian/facepulse/internal/domain/collage"
	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/internal/domain/reaction"
)

// CapsuleDependencies covers time capsules.
type CapsuleDependencies interface {
	StartCapsule(ctx context.Context, name string) (service.CapsuleView, error)
	GetCapsule(ctx context.Context, id string) (service.CapsuleView, error)
	SampleCapsule(ctx context.Context, id string, det *model.Detection) (reaction.View, error)
	CaptureCapsule(ctx context.Context, id string, frame []byte) (service.CapsuleCapture, error)
	CloseCapsule(ctx context.Context, id string) (model.TimeCapsule, error)
	CapsuleCollage(ctx context.Context, id string) (service.Collage, error)
}

// CapsulesHandler handles time capsule requests.
type CapsulesHandler struct {
	deps CapsuleDependencies
}

// NewCapsulesHandler creates a new capsules handler.
func NewCapsulesHandler(deps CapsuleDependencies) *CapsulesHandler {
	return &CapsulesHandler{deps: deps}
}

type startCapsuleRequest struct {
	Name string `json:"name"`
}

// HandleStart handles POST /capsules.
func (h *CapsulesHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_capsule"
	var req startCapsuleRequest
	if err := decode(r, &req); err != nil {
		fail(w, op, err)
		return
	}
	c, err := h.deps.StartCapsule(r.Context(), req.Name)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleGet handles GET /capsules/{id}.
func (h *CapsulesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.GetCapsule(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "api.get_capsule", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleSample handles POST /capsules/{id}/samples.
func (h *CapsulesHandler) HandleSample(w http.ResponseWriter, r *http.Request) {
	const op = "api.sample_capsule"
	var req sampleRequest
	if err := decode(r, &req); err != nil {
		fail(w, op, err)
		return
	}
	view, err := h.deps.SampleCapsule(r.Context(), r.PathValue("id"), req.Detection)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleCapture handles POST /capsules/{id}/capture.
func (h *CapsulesHandler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	const op = "api.capture_capsule"
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
	out, err := h.deps.CaptureCapsule(r.Context(), r.PathValue("id"), frame)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleClose handles POST /capsules/{id}/close.
func (h *CapsulesHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.CloseCapsule(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "api.close_capsule", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleCollage handles GET /capsules/{id}/collage.png. The image is
// encoded fully before the first byte is written so a failure still gets
// a JSON error.
func (h *CapsulesHandler) HandleCollage(w http.ResponseWriter, r *http.Request) {
	const op = "api.capsule_collage"
	c, err := h.deps.CapsuleCollage(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, op, err)
		return
	}
	var buf bytes.Buffer
	if err := collage.EncodePNG(&buf, c.Image); err != nil {
		fail(w, op, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", c.Filename))
	w.Header().Set("X-Collage-Failed", strconv.Itoa(c.Stats.Failed))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
