package service

import (
	"context"
	"fmt"
	"image"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/okian/facepulse/internal/domain/collage"
	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/internal/domain/reaction"
	"github.com/okian/facepulse/pkg/logger"
	"github.com/okian/facepulse/pkg/metrics"
)

const defaultCapsuleName = "time capsule"

type capsuleEntry struct {
	flow    *reaction.Flow
	sampler *sampler
	capsule model.TimeCapsule
}

// CapsuleView is a time capsule with its captured events and, while it is
// open, the prompt flow.
type CapsuleView struct {
	model.TimeCapsule
	Events []model.CapsuleEvent `json:"events"`
	Flow   *reaction.View       `json:"flow,omitempty"`
}

// CapsuleCapture is the result of one capsule capture.
type CapsuleCapture struct {
	Event model.CapsuleEvent `json:"event"`
	Kind  OutcomeKind        `json:"kind"`
	Flow  reaction.View      `json:"flow"`
}

// Collage is a rendered capsule collage.
type Collage struct {
	Image    *image.NRGBA
	Filename string
	Stats    collage.Stats
}

// StartCapsule opens a named time capsule and starts its prompt flow.
func (s *Service) StartCapsule(ctx context.Context, name string) (CapsuleView, error) {
	if err := s.ready(); err != nil {
		return CapsuleView{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultCapsuleName
	}
	now := s.now()
	c := model.TimeCapsule{
		ID:        uuid.NewString(),
		Name:      name,
		Slug:      slug.Make(name),
		StartedAt: now.UTC(),
	}
	if c.Slug == "" {
		c.Slug = slug.Make(defaultCapsuleName)
	}
	flow, err := reaction.New(c.ID, reaction.KindTimeCapsule, reaction.CapsuleRounds(), s.flowOptions()...)
	if err != nil {
		return CapsuleView{}, err
	}
	if err := s.store.CreateCapsule(ctx, c); err != nil {
		return CapsuleView{}, err
	}
	if err := flow.Start(now); err != nil {
		return CapsuleView{}, err
	}
	s.capsules.put(c.ID, &capsuleEntry{flow: flow, sampler: s.newSampler(), capsule: c})
	metrics.RecordFlowTransition(string(reaction.KindTimeCapsule), string(flow.State()))
	s.logger.Info(ctx, "time capsule opened",
		logger.String("capsule_id", c.ID),
		logger.String("slug", c.Slug))

	view := flow.Snapshot(now)
	return CapsuleView{TimeCapsule: c, Events: []model.CapsuleEvent{}, Flow: &view}, nil
}

// GetCapsule loads a capsule with its events.
func (s *Service) GetCapsule(ctx context.Context, id string) (CapsuleView, error) {
	if err := s.ready(); err != nil {
		return CapsuleView{}, err
	}
	c, err := s.store.GetCapsule(ctx, id)
	if err != nil {
		return CapsuleView{}, err
	}
	events, err := s.store.ListCapsuleEvents(ctx, id)
	if err != nil {
		return CapsuleView{}, err
	}
	v := CapsuleView{TimeCapsule: c, Events: events}
	if e, ok := s.capsules.get(id); ok {
		now := s.now()
		e.flow.Tick(now)
		view := e.flow.Snapshot(now)
		v.Flow = &view
	}
	return v, nil
}

func (s *Service) openCapsule(id string) (*capsuleEntry, error) {
	e, ok := s.capsules.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: open capsule %s", ErrNotFound, id)
	}
	return e, nil
}

// SampleCapsule matches one detection against the current prompt.
func (s *Service) SampleCapsule(_ context.Context, id string, det *model.Detection) (reaction.View, error) {
	if err := s.ready(); err != nil {
		return reaction.View{}, err
	}
	if err := validDetection(det); err != nil {
		return reaction.View{}, err
	}
	e, err := s.openCapsule(id)
	if err != nil {
		return reaction.View{}, err
	}
	// Flows run on the server clock like the capture and read requests
	// that advance their timeout; captured_at is not used here.
	now := s.now()
	observeFlow(e.flow, e.sampler.derive(det, now), now)
	return e.flow.Snapshot(now), nil
}

// CaptureCapsule fulfils the pending prompt with frame and records the
// capsule event. A failed event write still advances the flow and is
// reported as a Local outcome. After the last prompt the capsule closes.
func (s *Service) CaptureCapsule(ctx context.Context, id string, frame []byte) (CapsuleCapture, error) {
	if err := s.ready(); err != nil {
		return CapsuleCapture{}, err
	}
	e, err := s.openCapsule(id)
	if err != nil {
		return CapsuleCapture{}, err
	}
	now := s.now()
	if e.flow.Tick(now) != reaction.StateCapturing {
		return CapsuleCapture{}, fmt.Errorf("%w: nothing to capture in %s", reaction.ErrInvalidTransition, e.flow.State())
	}
	url := s.uploadFrame(ctx, path.Join("capsules", id), frame)
	round, err := e.flow.Fulfill(url, now)
	if err != nil {
		return CapsuleCapture{}, err
	}

	last := e.sampler.lastMetrics()
	event := model.CapsuleEvent{
		ID:              uuid.NewString(),
		CapsuleID:       id,
		Prompt:          round.Prompt,
		Emotion:         round.Target,
		SmilePercentage: last.SmilePercentage,
		ImageURL:        url,
		CapturedAt:      now.UTC(),
	}
	out := CapsuleCapture{Event: event, Kind: OutcomeSaved}
	if err := s.store.InsertCapsuleEvent(ctx, event); err != nil {
		s.logger.Warn(ctx, "capsule event not persisted",
			logger.String("capsule_id", id), logger.Error(err))
		out.Kind = OutcomeLocal
	}
	metrics.RecordCapture(string(out.Kind))

	state, err := e.flow.Next(now)
	if err != nil {
		return CapsuleCapture{}, err
	}
	metrics.RecordFlowTransition(string(reaction.KindTimeCapsule), string(state))
	out.Flow = e.flow.Snapshot(now)
	if state == reaction.StateCompleted {
		if _, err := s.closeCapsule(ctx, id, now); err != nil {
			s.logger.Warn(ctx, "capsule not closed", logger.String("capsule_id", id), logger.Error(err))
		}
	}
	return out, nil
}

// CloseCapsule ends the prompt flow and stamps the close time. Closing a
// closed capsule returns it unchanged.
func (s *Service) CloseCapsule(ctx context.Context, id string) (model.TimeCapsule, error) {
	if err := s.ready(); err != nil {
		return model.TimeCapsule{}, err
	}
	return s.closeCapsule(ctx, id, s.now())
}

func (s *Service) closeCapsule(ctx context.Context, id string, now time.Time) (model.TimeCapsule, error) {
	c, err := s.store.CloseCapsule(ctx, id, now.UTC())
	if err != nil {
		return model.TimeCapsule{}, err
	}
	if e, ok := s.capsules.remove(id); ok {
		e.flow.Complete()
		metrics.RecordFlowTransition(string(reaction.KindTimeCapsule), string(reaction.StateCompleted))
	}
	return c, nil
}

// CapsuleCollage renders the capsule events into one image. Events whose
// image is missing become placeholder tiles.
func (s *Service) CapsuleCollage(ctx context.Context, id string) (Collage, error) {
	if err := s.ready(); err != nil {
		return Collage{}, err
	}
	c, err := s.store.GetCapsule(ctx, id)
	if err != nil {
		return Collage{}, err
	}
	events, err := s.store.ListCapsuleEvents(ctx, id)
	if err != nil {
		return Collage{}, err
	}
	items := make([]collage.Item, len(events))
	for i, ev := range events {
		items[i] = collage.Item{
			ImageRef:   ev.ImageURL,
			Emotion:    ev.Emotion,
			Smile:      ev.SmilePercentage,
			CapturedAt: ev.CapturedAt,
		}
	}

	opts := collage.DefaultOptions()
	opts.MaxWidth = s.cfg.CollageMaxWidth
	opts.MaxColumns = s.cfg.CollageMaxColumns
	img, st, err := collage.Render(ctx, c.Name, items, s.bucket, opts)
	if err != nil {
		return Collage{}, err
	}
	metrics.RecordCollageRender(float64(st.Duration.Milliseconds()), st.Drawn, st.Failed)
	if st.Failed > 0 {
		s.logger.Warn(ctx, "collage rendered with placeholders",
			logger.String("capsule_id", id),
			logger.Int("drawn", st.Drawn),
			logger.Int("failed", st.Failed))
	}
	return Collage{
		Image:    img,
		Filename: c.Slug + "-collage.png",
		Stats:    st,
	}, nil
}
