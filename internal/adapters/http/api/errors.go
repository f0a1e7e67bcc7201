package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/facepulse/internal/adapters/blob"
	"github.com/okian/facepulse/internal/adapters/datastore"
	service "github.com/okian/facepulse/internal/app"
	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/internal/domain/reaction"
	"github.com/okian/facepulse/internal/domain/scoring"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrLimitExceeded = errors.New("limit exceeded")
	ErrUpgrade       = errors.New("websocket upgrade failed")
)

// Error ties an operation name to an error kind and its cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap annotates err with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// WrapKind annotates err with op and kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// NewKind returns an error of kind for op without a cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// classify maps an error onto an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrLimitExceeded):
		return http.StatusBadRequest, "limit_exceeded"
	case errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_started"
	case datastore.IsKind(err, datastore.KindSetupRequired):
		return http.StatusServiceUnavailable, "setup_required"
	case datastore.IsKind(err, datastore.KindUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case service.IsNotFound(err), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case datastore.IsKind(err, datastore.KindConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrSessionEnded):
		return http.StatusConflict, "session_ended"
	case errors.Is(err, reaction.ErrInvalidTransition):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, blob.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, model.ErrInvalidDetection),
		errors.Is(err, model.ErrUnknownEmotion),
		errors.Is(err, model.ErrInvalidScore),
		errors.Is(err, scoring.ErrUnknownKind),
		errors.Is(err, reaction.ErrNoRounds),
		errors.Is(err, blob.ErrInvalidDataURL),
		errors.Is(err, blob.ErrNotImage):
		return http.StatusBadRequest, "bad_request"
	}
	return http.StatusInternalServerError, "internal_error"
}
