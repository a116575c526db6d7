// Package llmerr defines the error taxonomy shared by the engine packages.
package llmerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can react without string matching.
type Kind string

const (
	KindModelNotFound  Kind = "model_not_found"
	KindBackendInit    Kind = "backend_init"
	KindModelLoad      Kind = "model_load"
	KindTokenize       Kind = "tokenize"
	KindContextCreate  Kind = "context_create"
	KindBatch          Kind = "batch"
	KindInvalidRequest Kind = "invalid_request"
)

// Error wraps an underlying cause with its Kind and the failing operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := describe(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func describe(k Kind) string {
	switch k {
	case KindModelNotFound:
		return "model not found"
	case KindBackendInit:
		return "execution backend failed to initialize"
	case KindModelLoad:
		return "failed to load model"
	case KindTokenize:
		return "tokenization failed"
	case KindContextCreate:
		return "failed to create execution context"
	case KindBatch:
		return "batch submission failed"
	case KindInvalidRequest:
		return "invalid request"
	default:
		return string(k)
	}
}

// New builds an *Error. err may be nil.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds an *Error whose cause is a formatted message.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind carried by err, or "" when err has none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool { return err != nil && KindOf(err) == kind }

// IsModelNotFound reports whether no model artifact could be located.
func IsModelNotFound(err error) bool { return Is(err, KindModelNotFound) }

// IsBackendInit reports whether the execution backend failed to start.
func IsBackendInit(err error) bool { return Is(err, KindBackendInit) }

// IsModelLoad reports whether the model file exists but could not be loaded.
func IsModelLoad(err error) bool { return Is(err, KindModelLoad) }

func IsTokenize(err error) bool      { return Is(err, KindTokenize) }
func IsContextCreate(err error) bool { return Is(err, KindContextCreate) }
func IsBatch(err error) bool         { return Is(err, KindBatch) }

// IsInvalidRequest reports whether the caller supplied bad parameters.
func IsInvalidRequest(err error) bool { return Is(err, KindInvalidRequest) }
