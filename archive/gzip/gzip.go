package gzip

import (
	"fmt"
	"io"

	"github.com/go-kit/kit/log"
	"github.com/klauspost/compress/gzip"

	"github.com/meltwater/blobfetch/archive/tar"
	"github.com/meltwater/blobfetch/internal"
)

// Archive implements archive for gzip compressed tar streams.
type Archive struct {
	logger log.Logger

	tarArchive *tar.Archive
}

// New creates an archive that uses the .tar.gz file format.
func New(logger log.Logger, skipSymlinks, preserveMetadata bool) *Archive {
	return &Archive{logger, tar.New(logger, skipSymlinks, preserveMetadata)}
}

// Extract reads content from the given archive reader and restores it to the destination, returns written bytes.
func (a *Archive) Extract(dst string, r io.Reader) (int64, error) {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("gzip reader, %w: %w", tar.ErrArchiveNotReadable, err)
	}

	defer internal.CloseWithErrLogf(a.logger, gzr, "gzip reader")

	return a.tarArchive.Extract(dst, gzr)
}
