package jobs

import (
	"context"
	"errors"
	"strings"

	"github.com/wenc23/zimagetool/internal/gallery"
	"github.com/wenc23/zimagetool/internal/manager"
)

// Kind classifies a failure for front ends.
type Kind string

const (
	KindInvalidRequest    Kind = "invalid_request"
	KindInvalidParameters Kind = "invalid_parameters"
	KindNotLoaded         Kind = "model_not_loaded"
	KindAlreadyLoading    Kind = "already_loading"
	KindPathNotFound      Kind = "path_not_found"
	KindOutOfMemory       Kind = "out_of_memory"
	KindPersistenceFailed Kind = "persistence_failed"
	KindNotFound          Kind = "not_found"
	KindBusy              Kind = "busy"
	KindCancelled         Kind = "cancelled"
	KindTimeout           Kind = "timeout"
	KindUnclassified      Kind = "unclassified"
)

const oomHint = "switch to the minimal optimization mode or lower the resolution"

// Error is a classified failure. It is also what failed job records carry.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func wrapError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// Classify maps any error onto the taxonomy. nil stays nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var je *Error
	if errors.As(err, &je) {
		return je
	}
	switch {
	case manager.IsPathNotFound(err):
		return wrapError(KindPathNotFound, err)
	case manager.IsAlreadyLoading(err):
		return wrapError(KindAlreadyLoading, err)
	case manager.IsNotLoaded(err):
		return wrapError(KindNotLoaded, err)
	case errors.Is(err, gallery.ErrInvalidName):
		return wrapError(KindInvalidRequest, err)
	case errors.Is(err, gallery.ErrNotFound):
		return wrapError(KindNotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		return wrapError(KindTimeout, err)
	case errors.Is(err, context.Canceled):
		return wrapError(KindCancelled, err)
	case IsOutOfMemory(err):
		e := wrapError(KindOutOfMemory, err)
		e.Hint = oomHint
		return e
	}
	return wrapError(KindUnclassified, err)
}

// KindOf is shorthand for Classify(err).Kind; "" for nil.
func KindOf(err error) Kind {
	if e := Classify(err); e != nil {
		return e.Kind
	}
	return ""
}

// IsOutOfMemory reports whether the error text mentions an out-of-memory
// condition.
func IsOutOfMemory(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "out of memory")
}
