package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// Kind classifies a datastore failure.
type Kind string

// Failure kinds.
const (
	KindNotFound      Kind = "not_found"
	KindSetupRequired Kind = "setup_required"
	KindConflict      Kind = "conflict"
	KindUnavailable   Kind = "unavailable"
	KindUnknown       Kind = "unknown"
)

// Error is the only error type returned by Store methods.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s:%s]", e.Kind, e.Op)
	}
	return fmt.Sprintf("[%s:%s] %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err, KindUnknown for foreign errors
// and the empty Kind for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is a datastore error of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// classify maps a driver error onto a Kind without inspecting messages.
// table names the table the failing statement touched; a missing table
// turns any driver error into KindSetupRequired.
func (s *Store) classify(table string, err error) Kind {
	var se sqlite3.Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return KindNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated):
		return KindConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, sql.ErrConnDone):
		return KindUnavailable
	case errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked):
		return KindUnavailable
	case table != "" && !s.db.Migrator().HasTable(table):
		return KindSetupRequired
	}
	return KindUnknown
}
