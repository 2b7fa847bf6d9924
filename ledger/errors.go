package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"syscall"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
	ErrInvalidRange  = errors.New("invalid milestone range")
)

type PersistenceErrorKind int

const (
	// PersistenceOther covers encoding, constraint and every other failure retrying cannot fix.
	PersistenceOther PersistenceErrorKind = iota
	// PersistenceIo is a failed read or write on an established store handle.
	PersistenceIo
	// PersistenceServerSelection means the store could not be reached or acquired at all.
	PersistenceServerSelection
)

func (k PersistenceErrorKind) String() string {
	switch k {
	case PersistenceIo:
		return "io"
	case PersistenceServerSelection:
		return "server selection"
	default:
		return "other"
	}
}

type PersistenceError struct {
	Kind PersistenceErrorKind
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether a fresh store handle may succeed where this one failed.
func (e *PersistenceError) IsTransient() bool {
	return e.Kind == PersistenceIo || e.Kind == PersistenceServerSelection
}

// Classifier recognizes the errors of one store backend.
type Classifier func(err error) (PersistenceErrorKind, bool)

// WrapError classifies err into a *PersistenceError. Backend classifiers are consulted first,
// then the generic network and file system checks. Nil, ErrNotFound and already classified
// errors are returned unchanged.
func WrapError(op string, err error, classifiers ...Classifier) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}

	var perr *PersistenceError
	if errors.As(err, &perr) {
		return err
	}

	return &PersistenceError{Kind: classify(err, classifiers), Op: op, Err: err}
}

// IsTransientError reports whether err carries a transient *PersistenceError.
func IsTransientError(err error) bool {
	var perr *PersistenceError

	return errors.As(err, &perr) && perr.IsTransient()
}

func classify(err error, classifiers []Classifier) PersistenceErrorKind {
	for _, fn := range classifiers {
		if kind, ok := fn(err); ok {
			return kind
		}
	}

	var (
		netErr  net.Error
		pathErr *fs.PathError
		errno   syscall.Errno
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return PersistenceServerSelection
	case errors.As(err, &netErr), errors.As(err, &pathErr), errors.As(err, &errno),
		errors.Is(err, os.ErrClosed):
		return PersistenceIo
	default:
		return PersistenceOther
	}
}
