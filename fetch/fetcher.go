package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/meltwater/blobfetch/archive"
	"github.com/meltwater/blobfetch/internal"
	"github.com/meltwater/blobfetch/storage"
	"github.com/meltwater/blobfetch/storage/common"
)

const (
	// DefaultFileMode is the permission of a fetched file.
	DefaultFileMode os.FileMode = 0644

	defaultDirPermission = 0755
)

var errExtractionAborted = errors.New("extraction aborted")

// Fetcher downloads a single blob from storage to the local file system.
type Fetcher struct {
	logger log.Logger

	s storage.Storage
	a archive.Archive

	fileMode    os.FileMode
	metricsFile string
}

// New creates a new Fetcher.
func New(logger log.Logger, s storage.Storage, opts ...Option) *Fetcher {
	options := options{fileMode: DefaultFileMode}

	for _, o := range opts {
		o.apply(&options)
	}

	return &Fetcher{
		logger:      logger,
		s:           s,
		a:           options.archive,
		fileMode:    options.fileMode,
		metricsFile: options.metricsFile,
	}
}

// Fetch downloads the named blob and writes it to dst. The destination is only
// replaced once the whole blob has been received; on any error it is left untouched.
// With an archive configured, dst is a directory the blob is extracted into.
func (f *Fetcher) Fetch(ctx context.Context, name, dst string) error {
	level.Info(f.logger).Log("msg", "fetching blob", "name", name, "local", dst)

	now := time.Now()

	var (
		written int64
		err     error
	)

	if f.a != nil {
		written, err = f.extract(ctx, name, dst)
	} else {
		written, err = f.download(ctx, name, dst)
	}

	if err != nil {
		return fmt.Errorf("fetch <%s>, %w", name, err)
	}

	took := time.Since(now)

	level.Info(f.logger).Log("msg", "blob fetched", "local", dst, "size", humanize.Bytes(uint64(written)), "took", took)

	if f.metricsFile != "" {
		m := Metadata{Blob: name, Destination: dst, SizeBytes: uint64(written), Took: took.String()}
		if err := writeMetadata(m, f.metricsFile); err != nil {
			level.Error(f.logger).Log("msg", "write fetch metadata", "err", err)
		}
	}

	return nil
}

func (f *Fetcher) download(ctx context.Context, name, dst string) (written int64, err error) {
	dir := filepath.Dir(dst)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temporary file in <%s>, %w: %w", dir, common.ErrLocalIO, err)
	}

	tmpName := tmp.Name()
	closed := false

	defer func() {
		if !closed {
			internal.CloseWithErrLogf(f.logger, tmp, "temporary file close defer")
		}

		if err != nil {
			if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				level.Warn(f.logger).Log("msg", "remove temporary file", "path", tmpName, "err", rmErr)
			}
		}
	}()

	level.Debug(f.logger).Log("msg", "downloading blob", "name", name, "tmp", tmpName)

	if err := f.s.Get(ctx, name, tmp); err != nil {
		return 0, err
	}

	fi, err := tmp.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat <%s>, %w: %w", tmpName, common.ErrLocalIO, err)
	}

	if err := tmp.Chmod(f.fileMode); err != nil {
		return 0, fmt.Errorf("chmod <%s>, %w: %w", tmpName, common.ErrLocalIO, err)
	}

	closed = true
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close <%s>, %w: %w", tmpName, common.ErrLocalIO, err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		return 0, fmt.Errorf("move into <%s>, %w: %w", dst, common.ErrLocalIO, err)
	}

	return fi.Size(), nil
}

func (f *Fetcher) extract(ctx context.Context, name, dst string) (int64, error) {
	if err := os.MkdirAll(dst, defaultDirPermission); err != nil {
		return 0, fmt.Errorf("ensure directory <%s>, %w: %w", dst, common.ErrLocalIO, err)
	}

	var (
		pr, pw = io.Pipe()
		getErr = make(chan error, 1)
	)

	go func() {
		level.Debug(f.logger).Log("msg", "downloading archived blob", "name", name)

		err := f.s.Get(ctx, name, pw)
		getErr <- err

		if err := pw.CloseWithError(err); err != nil {
			level.Error(f.logger).Log("msg", "pw close", "err", err)
		}
	}()

	level.Debug(f.logger).Log("msg", "extracting archived blob", "name", name, "local", dst)

	written, err := f.a.Extract(dst, pr)
	if err != nil {
		if err := pr.CloseWithError(errExtractionAborted); err != nil {
			level.Error(f.logger).Log("msg", "pr close", "err", err)
		}
	} else if _, drainErr := io.Copy(io.Discard, pr); drainErr != nil {
		level.Debug(f.logger).Log("msg", "drain archive trailer", "err", drainErr)
	}

	// A failed download is reported over whatever the extraction made of the broken stream.
	if remoteErr := <-getErr; remoteErr != nil && !errors.Is(remoteErr, errExtractionAborted) {
		return written, remoteErr
	}

	switch {
	case err == nil:
		return written, nil
	case errors.Is(err, archive.ErrArchiveNotReadable):
		return written, fmt.Errorf("extract into <%s>, %w", dst, err)
	default:
		return written, fmt.Errorf("extract into <%s>, %w: %w", dst, common.ErrLocalIO, err)
	}
}
