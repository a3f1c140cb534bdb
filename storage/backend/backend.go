package backend

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/meltwater/blobfetch/storage/backend/azure"
	"github.com/meltwater/blobfetch/storage/backend/filesystem"
	"github.com/meltwater/blobfetch/storage/backend/gcs"
	"github.com/meltwater/blobfetch/storage/backend/https"
	"github.com/meltwater/blobfetch/storage/backend/s3"
	"github.com/meltwater/blobfetch/storage/backend/sftp"
	"github.com/meltwater/blobfetch/storage/common"
)

const (
	// Azure type of the corresponding backend represented as string constant.
	Azure = "azure"
	// FileSystem type of the corresponding backend represented as string constant.
	FileSystem = "filesystem"
	// GCS type of the corresponding backend represented as string constant.
	GCS = "gcs"
	// HTTPS type of the corresponding backend represented as string constant.
	HTTPS = "https"
	// S3 type of the corresponding backend represented as string constant.
	S3 = "s3"
	// SFTP type of the corresponding backend represented as string constant.
	SFTP = "sftp"
)

// ErrUnknownBackend is returned for a backend type that is not registered.
var ErrUnknownBackend = errors.New("unknown backend")

// Backend implements operations for fetching objects from a remote store.
type Backend interface {
	// Get writes downloaded content to the given writer.
	Get(ctx context.Context, p string, w io.Writer) error

	// List contents of the given directory by given key from remote storage.
	List(ctx context.Context, p string) ([]common.FileEntry, error)
}

// Config configures the selected backend.
type Config struct {
	Debug bool

	Azure      azure.Config
	FileSystem filesystem.Config
	GCS        gcs.Config
	HTTPS      https.Config
	S3         s3.Config
	SFTP       sftp.Config
}

// FromConfig creates new Backend by initializing using given configuration.
func FromConfig(l log.Logger, backedType string, cfg Config) (Backend, error) {
	var (
		b   Backend
		err error
	)

	switch backedType {
	case Azure:
		level.Debug(l).Log("msg", "using azure blob as backend")
		b, err = azure.New(log.With(l, "backend", Azure), cfg.Azure)
	case S3:
		level.Debug(l).Log("msg", "using aws s3 as backend")
		b, err = s3.New(log.With(l, "backend", S3), cfg.S3, cfg.Debug)
	case GCS:
		level.Debug(l).Log("msg", "using gc storage as backend")
		b, err = gcs.New(log.With(l, "backend", GCS), cfg.GCS)
	case HTTPS:
		level.Debug(l).Log("msg", "using https as backend")
		b, err = https.New(log.With(l, "backend", HTTPS), cfg.HTTPS)
	case SFTP:
		level.Debug(l).Log("msg", "using sftp as backend")
		b, err = sftp.New(log.With(l, "backend", SFTP), cfg.SFTP)
	case FileSystem:
		level.Debug(l).Log("msg", "using filesystem as backend")
		b, err = filesystem.New(log.With(l, "backend", FileSystem), cfg.FileSystem)
	default:
		return nil, fmt.Errorf("%w <%s>", ErrUnknownBackend, backedType)
	}

	if err != nil {
		return nil, fmt.Errorf("initialize backend <%s>, %w", backedType, err)
	}

	return b, nil
}
