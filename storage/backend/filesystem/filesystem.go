package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/meltwater/blobfetch/internal"
	"github.com/meltwater/blobfetch/storage/common"
)

// Backend is an file system implementation of the Backend.
type Backend struct {
	logger log.Logger

	root string
}

// New creates a Backend backend serving objects below the given root directory.
func New(l log.Logger, c Config) (*Backend, error) {
	if strings.TrimSpace(c.Root) == "" {
		return nil, fmt.Errorf("%w, filesystem root is required", common.ErrConfiguration)
	}

	root, err := filepath.Abs(filepath.Clean(c.Root))
	if err != nil {
		return nil, fmt.Errorf("root, %w: %w", common.ErrConfiguration, err)
	}

	level.Debug(l).Log("msg", "serving objects from local directory", "root", root)

	return &Backend{logger: l, root: root}, nil
}

// Get writes downloaded content to the given writer.
func (b *Backend) Get(ctx context.Context, p string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	absPath := b.path(p)

	rc, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf("get the object <%s>, %w: %w", absPath, classify(err), err)
	}

	defer internal.CloseWithErrLogf(b.logger, rc, "reader close defer")

	fi, err := rc.Stat()
	if err != nil {
		return fmt.Errorf("stat the object <%s>, %w: %w", absPath, common.ErrTransfer, err)
	}

	if fi.IsDir() {
		return fmt.Errorf("get the object <%s>, %w: is a directory", absPath, common.ErrNotFound)
	}

	_, err = common.Copy(w, rc)

	return err
}

// List contents of the given directory by given key from remote storage.
func (b *Backend) List(ctx context.Context, p string) ([]common.FileEntry, error) {
	var entries []common.FileEntry

	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)
		if !strings.HasPrefix(rel, p) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}

		entries = append(entries, common.FileEntry{
			Path:         rel,
			Size:         fi.Size(),
			LastModified: fi.ModTime(),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk <%s>, %w: %w", b.root, classify(err), err)
	}

	return entries, nil
}

// path resolves an object name below the root, never outside of it.
func (b *Backend) path(p string) string {
	return filepath.Join(b.root, filepath.FromSlash(filepath.Clean("/"+p)))
}

func classify(err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return common.ErrNotFound
	case errors.Is(err, os.ErrPermission):
		return common.ErrAuthentication
	default:
		return common.ErrTransfer
	}
}
