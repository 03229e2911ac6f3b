// Package source defines the connector contract the Collector stage polls:
// check connectivity, yield a finite non-restartable sequence of collected
// bytes, and support random-access reads for connectors that need them.
// Object-store, mail, and issue-tracker connectors are out of scope; only
// the filesystem connector (fssource) is a concrete implementation here.
package source

import (
	"context"
	"errors"
	"io"

	"github.com/querent-ai/querent-go/internal/corepb"
)

// ErrorKind is the closed source-layer error taxonomy.
type ErrorKind int

const (
	ErrConnection ErrorKind = iota
	ErrPolling
	ErrNotSupported
	ErrIO
	ErrNotFound
	ErrUnauthorized
	ErrService
	ErrInternal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrConnection:
		return "connection"
	case ErrPolling:
		return "polling"
	case ErrNotSupported:
		return "not_supported"
	case ErrIO:
		return "io"
	case ErrNotFound:
		return "not_found"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrService:
		return "service"
	default:
		return "internal"
	}
}

// Error is the generic source-layer error envelope.
type Error struct {
	Kind  ErrorKind
	Cause error
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

func Wrap(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// NotFound reports whether err (or something it wraps) is a not-found Error.
func NotFound(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == ErrNotFound
	}
	return false
}

// Source is the connector interface a Collector polls. PollData returns a
// finite, non-restartable channel: the channel is closed once every item
// (or the first error) has been delivered.
type Source interface {
	CheckConnectivity(ctx context.Context) error
	PollData(ctx context.Context) (<-chan corepb.CollectedBytes, <-chan error)
	GetSlice(ctx context.Context, path string, offset, length int64) ([]byte, error)
	GetSliceStream(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error)
	GetAll(ctx context.Context, path string) ([]byte, error)
	FileNumBytes(ctx context.Context, path string) (int64, error)
	CopyTo(ctx context.Context, path string, w io.Writer) error
}
