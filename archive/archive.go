package archive

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/meltwater/blobfetch/archive/gzip"
	"github.com/meltwater/blobfetch/archive/tar"
	"github.com/meltwater/blobfetch/archive/zstd"
)

const (
	// Auto picks the format from the blob name.
	Auto = "auto"
	// Gzip is .tar.gz archive format.
	Gzip = "gzip"
	// Tar is .tar archive format.
	Tar = "tar"
	// Zstd is .tar.zst archive format.
	Zstd = "zstd"
)

var (
	// ErrArchiveNotReadable means that given archive not readable/corrupted.
	ErrArchiveNotReadable = tar.ErrArchiveNotReadable
	// ErrUnsafeEntry means an entry would be written, or would point, outside the destination.
	ErrUnsafeEntry = tar.ErrUnsafeEntry
	// ErrUnknownFormat is returned for an unsupported or undetectable archive format.
	ErrUnknownFormat = errors.New("unknown archive format")
)

// Archive is an interface that defines exposed behavior of archive formats.
type Archive interface {
	// Extract reads content from the given archive reader and restores it to the destination, returns written bytes.
	Extract(dst string, r io.Reader) (int64, error)
}

// FromFormat decides Archive implementation for given format.
func FromFormat(logger log.Logger, format string, opts ...Option) (Archive, error) {
	options := options{}

	for _, o := range opts {
		o.apply(&options)
	}

	switch format {
	case Gzip:
		return gzip.New(logger, options.skipSymlinks, options.preserveMetadata), nil
	case Tar:
		return tar.New(logger, options.skipSymlinks, options.preserveMetadata), nil
	case Zstd:
		return zstd.New(logger, options.skipSymlinks, options.preserveMetadata), nil
	default:
		level.Error(logger).Log("msg", "unknown archive format", "format", format)
		return nil, fmt.Errorf("%w <%s>", ErrUnknownFormat, format)
	}
}

// DetectFormat returns the archive format implied by the extension of the given name.
func DetectFormat(name string) (string, error) {
	lower := strings.ToLower(name)

	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return Gzip, nil
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return Zstd, nil
	case strings.HasSuffix(lower, ".tar"):
		return Tar, nil
	default:
		return "", fmt.Errorf("%w, cannot detect from <%s>", ErrUnknownFormat, name)
	}
}
