// Package plugin for blobfetch.
package plugin

import (
	"context"
	"fmt"
	"io"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/meltwater/blobfetch/archive"
	"github.com/meltwater/blobfetch/fetch"
	"github.com/meltwater/blobfetch/internal"
	"github.com/meltwater/blobfetch/storage"
	"github.com/meltwater/blobfetch/storage/backend"
	"github.com/meltwater/blobfetch/storage/common"
)

// Plugin stores metadata about current plugin.
type Plugin struct {
	logger log.Logger

	Config Config
}

// New creates a new plugin.
func New(logger log.Logger) *Plugin {
	return &Plugin{logger: logger}
}

// Exec entry point of Plugin, where the magic happens.
func (p *Plugin) Exec(ctx context.Context) error {
	cfg := p.Config

	if err := cfg.validate(); err != nil {
		return Error{"[IMPORTANT] invalid configuration", err}
	}

	level.Debug(p.logger).Log("msg", "fetching blob", "backend", cfg.Backend, "blob", cfg.Blob, "output", cfg.Output)

	var opts []fetch.Option

	if m, _ := cfg.fileMode(); m != 0 {
		opts = append(opts, fetch.WithFileMode(m))
	}

	if cfg.MetricsFile != "" {
		opts = append(opts, fetch.WithMetricsFile(cfg.MetricsFile))
	}

	if cfg.Extract {
		format, err := cfg.archiveFormat()
		if err != nil {
			return Error{"[IMPORTANT] invalid configuration", fmt.Errorf("%w, %w", common.ErrConfiguration, err)}
		}

		a, err := archive.FromFormat(p.logger, format,
			archive.WithSkipSymlinks(cfg.SkipSymlinks),
			archive.WithPreserveMetadata(cfg.PreserveMetadata),
		)
		if err != nil {
			return Error{"[IMPORTANT] invalid configuration", fmt.Errorf("%w, %w", common.ErrConfiguration, err)}
		}

		opts = append(opts, fetch.WithExtract(a))
	}

	s, closeFn, err := p.storage()
	if err != nil {
		return Error{"[IMPORTANT] initialize storage", err}
	}
	defer closeFn()

	f := fetch.New(log.With(p.logger, "component", "fetcher"), s, opts...)

	if err := f.Fetch(ctx, cfg.Blob, cfg.Output); err != nil {
		return Error{"[IMPORTANT] fetch blob", err}
	}

	return nil
}

// List returns the objects found under the given prefix.
func (p *Plugin) List(ctx context.Context, prefix string) ([]common.FileEntry, error) {
	if err := p.Config.validateBackend(); err != nil {
		return nil, Error{"[IMPORTANT] invalid configuration", fmt.Errorf("%w, %w", common.ErrConfiguration, err)}
	}

	s, closeFn, err := p.storage()
	if err != nil {
		return nil, Error{"[IMPORTANT] initialize storage", err}
	}
	defer closeFn()

	entries, err := s.List(ctx, prefix)
	if err != nil {
		return nil, Error{"[IMPORTANT] list blobs", err}
	}

	return entries, nil
}

// storage initializes the configured backend. The returned func releases its session.
func (p *Plugin) storage() (storage.Storage, func(), error) {
	b, err := backend.FromConfig(p.logger, p.Config.Backend, p.Config.backendConfig())
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {}
	if c, ok := b.(io.Closer); ok {
		closeFn = func() { internal.CloseWithErrLogf(p.logger, c, "backend close") }
	}

	return storage.New(log.With(p.logger, "component", "storage"), b, p.Config.StorageOperationTimeout), closeFn, nil
}
