package storage

import (
	"context"
	"io"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/meltwater/blobfetch/storage/backend"
	"github.com/meltwater/blobfetch/storage/common"
)

// Storage is a place that files can be fetched from and listed.
type Storage interface {
	// Get writes the content of the object at the given path to the given writer.
	Get(ctx context.Context, p string, w io.Writer) error

	// List lists the objects found under the given prefix.
	List(ctx context.Context, p string) ([]common.FileEntry, error)
}

type storage struct {
	logger  log.Logger
	b       backend.Backend
	timeout time.Duration
}

// New creates a new default storage. A zero timeout leaves the caller's context untouched.
func New(l log.Logger, b backend.Backend, timeout time.Duration) Storage {
	return &storage{l, b, timeout}
}

// Get writes the object at the given path to the given writer.
func (s *storage) Get(ctx context.Context, p string, w io.Writer) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	level.Debug(s.logger).Log("msg", "fetching object", "path", p)

	return s.b.Get(ctx, p, w)
}

// List lists the objects under the given prefix.
func (s *storage) List(ctx context.Context, p string) ([]common.FileEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	level.Debug(s.logger).Log("msg", "listing objects", "prefix", p)

	return s.b.List(ctx, p)
}

func (s *storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, s.timeout)
}
