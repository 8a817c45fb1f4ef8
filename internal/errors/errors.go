// Package errors classifies the failures the viewer can run into.
//
// Only WatchSetup and Config failures are fatal. Everything else is recovered
// below the coordinator: the last good snapshot keeps being served and the
// offending client, if any, is dropped.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is the class of a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindWatchSetup
	KindTransientRead
	KindRender
	KindChannel
	KindConfig
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindWatchSetup:
		return "watch setup"
	case KindTransientRead:
		return "transient read"
	case KindRender:
		return "render"
	case KindChannel:
		return "channel"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New classifies err under kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithPath classifies err under kind and records the file it concerns.
func WithPath(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Newf classifies a formatted message under kind.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Fatal reports whether err must stop the process.
func Fatal(err error) bool {
	switch KindOf(err) {
	case KindWatchSetup, KindConfig:
		return true
	default:
		return false
	}
}
