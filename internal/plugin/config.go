package plugin

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/meltwater/blobfetch/archive"
	"github.com/meltwater/blobfetch/internal"
	"github.com/meltwater/blobfetch/storage/backend"
	"github.com/meltwater/blobfetch/storage/backend/azure"
	"github.com/meltwater/blobfetch/storage/backend/filesystem"
	"github.com/meltwater/blobfetch/storage/backend/gcs"
	"github.com/meltwater/blobfetch/storage/backend/https"
	"github.com/meltwater/blobfetch/storage/backend/s3"
	"github.com/meltwater/blobfetch/storage/backend/sftp"
	"github.com/meltwater/blobfetch/storage/common"
)

// DefaultOutput is the file a blob is written to when no output is given.
const DefaultOutput = "downloaded_blob.txt"

// Config plugin-specific parameters and secrets.
type Config struct {
	Backend     string
	Blob        string
	Output      string
	FileMode    string
	MetricsFile string

	// Modes
	Debug   bool
	Extract bool

	// Optional
	ArchiveFormat           string
	SkipSymlinks            bool
	PreserveMetadata        bool
	StorageOperationTimeout time.Duration

	// Backend
	S3         s3.Config
	FileSystem filesystem.Config
	SFTP       sftp.Config
	Azure      azure.Config
	GCS        gcs.Config
	HTTPS      https.Config
}

// validate reports every missing or invalid parameter of a fetch at once.
// Nothing is dialed here; the selected backend still validates its own
// parameters, azure's are checked upfront so they end up in the same report.
func (c Config) validate() error {
	errs := &internal.MultiError{}

	if strings.TrimSpace(c.Blob) == "" {
		errs.Add(errors.New("blob name is required"))
	}

	if strings.TrimSpace(c.Output) == "" {
		errs.Add(errors.New("output path is required"))
	}

	if err := c.validateBackend(); err != nil {
		errs.Add(err)
	}

	if _, err := c.fileMode(); err != nil {
		errs.Add(err)
	}

	if c.Extract {
		if _, err := c.archiveFormat(); err != nil {
			errs.Add(err)
		}
	}

	if err := errs.Err(); err != nil {
		return fmt.Errorf("%w, %w", common.ErrConfiguration, err)
	}

	return nil
}

func (c Config) validateBackend() error {
	switch c.Backend {
	case "":
		return errors.New("backend is required")
	case backend.Azure:
		// Validate already tags its report with common.ErrConfiguration.
		return c.Azure.Validate()
	case backend.S3, backend.GCS, backend.HTTPS, backend.SFTP, backend.FileSystem:
		return nil
	default:
		return fmt.Errorf("%w <%s>", backend.ErrUnknownBackend, c.Backend)
	}
}

// fileMode parses the octal permission of the written file. Empty keeps the fetcher default.
func (c Config) fileMode() (os.FileMode, error) {
	if c.FileMode == "" {
		return 0, nil
	}

	m, err := strconv.ParseUint(c.FileMode, 8, 32)
	if err != nil || m == 0 || m > 0777 {
		return 0, fmt.Errorf("file mode <%s> is not an octal permission", c.FileMode)
	}

	return os.FileMode(m), nil
}

func (c Config) archiveFormat() (string, error) {
	if c.ArchiveFormat == "" || c.ArchiveFormat == archive.Auto {
		return archive.DetectFormat(c.Blob)
	}

	switch c.ArchiveFormat {
	case archive.Gzip, archive.Tar, archive.Zstd:
		return c.ArchiveFormat, nil
	default:
		return "", fmt.Errorf("%w <%s>", archive.ErrUnknownFormat, c.ArchiveFormat)
	}
}

func (c Config) backendConfig() backend.Config {
	return backend.Config{
		Debug:      c.Debug,
		Azure:      c.Azure,
		FileSystem: c.FileSystem,
		GCS:        c.GCS,
		HTTPS:      c.HTTPS,
		S3:         c.S3,
		SFTP:       c.SFTP,
	}
}
