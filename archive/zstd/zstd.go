package zstd

import (
	"fmt"
	"io"

	"github.com/go-kit/kit/log"
	"github.com/klauspost/compress/zstd"

	"github.com/meltwater/blobfetch/archive/tar"
)

// Archive implements archive for zstd compressed tar streams.
type Archive struct {
	logger log.Logger

	tarArchive *tar.Archive
}

// New creates an archive that uses the .tar.zst file format.
func New(logger log.Logger, skipSymlinks, preserveMetadata bool) *Archive {
	return &Archive{logger, tar.New(logger, skipSymlinks, preserveMetadata)}
}

// Extract reads content from the given archive reader and restores it to the destination, returns written bytes.
func (a *Archive) Extract(dst string, r io.Reader) (int64, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("zstd reader, %w: %w", tar.ErrArchiveNotReadable, err)
	}

	defer zr.Close()

	return a.tarArchive.Extract(dst, zr)
}
