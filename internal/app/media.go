package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/facepulse/internal/adapters/blob"
	"github.com/okian/facepulse/internal/adapters/quote"
	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/pkg/logger"
)

const maxShareTitle = 120

// ShareView is a stored share record with the link handed to clients.
type ShareView struct {
	model.ShareRecord
	ShareURL string `json:"share_url"`
}

// Quote returns a short quote for the emotion and smile level.
func (s *Service) Quote(ctx context.Context, emotion string, smile int) (quote.Quote, error) {
	if err := s.ready(); err != nil {
		return quote.Quote{}, err
	}
	e, err := model.ParseEmotion(emotion)
	if err != nil {
		return quote.Quote{}, err
	}
	if smile < 0 || smile > 100 {
		return quote.Quote{}, fmt.Errorf("%w: smile must be in [0,100]", ErrInvalidInput)
	}
	return s.quotes.Quote(ctx, e, smile)
}

// Share stores a composed image given as a data URL and records it.
func (s *Service) Share(ctx context.Context, title, dataURL string) (ShareView, error) {
	if err := s.ready(); err != nil {
		return ShareView{}, err
	}
	data, _, err := blob.DecodeDataURL(dataURL)
	if err != nil {
		return ShareView{}, err
	}
	_, url, err := s.bucket.Put(ctx, "shares", data)
	if err != nil {
		return ShareView{}, err
	}
	title = strings.TrimSpace(title)
	if r := []rune(title); len(r) > maxShareTitle {
		title = string(r[:maxShareTitle])
	}
	rec := model.ShareRecord{
		ID:        uuid.NewString(),
		ImageURL:  url,
		Title:     title,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertShare(ctx, rec); err != nil {
		return ShareView{}, err
	}
	s.logger.Info(ctx, "share stored", logger.String("share_id", rec.ID))
	return s.shareView(rec), nil
}

// GetShare loads a share record.
func (s *Service) GetShare(ctx context.Context, id string) (ShareView, error) {
	if err := s.ready(); err != nil {
		return ShareView{}, err
	}
	rec, err := s.store.GetShare(ctx, id)
	if err != nil {
		return ShareView{}, err
	}
	return s.shareView(rec), nil
}

func (s *Service) shareView(rec model.ShareRecord) ShareView {
	return ShareView{
		ShareRecord: rec,
		ShareURL:    strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/share/" + rec.ID,
	}
}
