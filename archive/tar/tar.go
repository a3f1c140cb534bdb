package tar

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/meltwater/blobfetch/internal"
)

const defaultDirPermission = 0755

var (
	// ErrArchiveNotReadable means that given archive not readable/corrupted.
	ErrArchiveNotReadable = errors.New("archive not readable")
	// ErrUnsafeEntry means an entry would be written, or would point, outside the destination.
	ErrUnsafeEntry = fmt.Errorf("%w, unsafe entry", ErrArchiveNotReadable)
)

// Archive implements archive for tar.
type Archive struct {
	logger           log.Logger
	skipSymlinks     bool
	preserveMetadata bool
}

// New creates an archive that uses the .tar file format.
func New(logger log.Logger, skipSymlinks, preserveMetadata bool) *Archive {
	return &Archive{logger, skipSymlinks, preserveMetadata}
}

// Extract reads content from the given archive reader and restores it to the destination, returns written bytes.
// Entry names are always resolved below dst, absolute names and parent references included.
// Entries are never written through a symbolic link, and links may not point outside dst.
func (a *Archive) Extract(dst string, r io.Reader) (int64, error) {
	type dirEntry struct {
		h      *tar.Header
		target string
	}

	var (
		written int64
		tr      = tar.NewReader(r)
		dirs    []dirEntry
	)

	dst = filepath.Clean(dst)

	for {
		h, err := tr.Next()

		switch {
		case err == io.EOF:
			for i := len(dirs) - 1; i >= 0; i-- {
				if err := restoreMetadata(dirs[i].h, dirs[i].target); err != nil {
					level.Warn(a.logger).Log("msg", "could not restore dir metadata", "path", dirs[i].target, "err", err)
				}
			}

			return written, nil
		case err != nil:
			return written, fmt.Errorf("tar reader, %w: %w", ErrArchiveNotReadable, err)
		case h == nil:
			continue
		}

		target := targetPath(dst, h.Name)

		level.Debug(a.logger).Log("msg", "extracting archive", "path", target)

		if err := checkParents(dst, target); err != nil {
			return written, err
		}

		if err := os.MkdirAll(filepath.Dir(target), defaultDirPermission); err != nil {
			return written, fmt.Errorf("ensure directory <%s>, %w", target, err)
		}

		switch h.Typeflag {
		case tar.TypeDir:
			if err := extractDir(h, target); err != nil {
				return written, err
			}

			if a.preserveMetadata {
				dirs = append(dirs, dirEntry{h, target})
			}
		case tar.TypeReg, tar.TypeRegA: // nolint: staticcheck
			n, err := extractRegular(h, tr, target)
			written += n

			if err != nil {
				return written, fmt.Errorf("extract regular file, %w", err)
			}

			if a.preserveMetadata {
				if err := restoreMetadata(h, target); err != nil {
					level.Warn(a.logger).Log("msg", "could not restore metadata", "path", target, "err", err)
				}
			}
		case tar.TypeSymlink:
			if a.skipSymlinks {
				level.Debug(a.logger).Log("msg", "skipping symbolic link", "path", target)
				continue
			}

			if !inside(dst, resolveLink(target, h.Linkname)) {
				return written, fmt.Errorf("%w, symbolic link <%s> points to <%s>", ErrUnsafeEntry, h.Name, h.Linkname)
			}

			if err := extractSymlink(h, target); err != nil {
				return written, fmt.Errorf("extract symbolic link, %w", err)
			}

			if a.preserveMetadata {
				if err := lchown(target, h.Uid, h.Gid); err != nil {
					level.Warn(a.logger).Log("msg", "could not restore symlink metadata", "path", target, "err", err)
				}
			}
		case tar.TypeLink:
			source := targetPath(dst, h.Linkname)
			if err := checkParents(dst, source); err != nil {
				return written, err
			}

			if err := extractLink(source, target); err != nil {
				return written, fmt.Errorf("extract link, %w", err)
			}
		case tar.TypeXGlobalHeader:
			continue
		default:
			level.Warn(a.logger).Log("msg", "skipping unsupported entry", "path", target, "type", string(h.Typeflag))
		}
	}
}

func targetPath(dst, name string) string {
	return filepath.Join(dst, filepath.FromSlash(path.Clean("/"+filepath.ToSlash(name))))
}

// resolveLink returns the path a symbolic link at target with the given link name refers to.
func resolveLink(target, linkname string) string {
	linkname = filepath.FromSlash(linkname)
	if filepath.IsAbs(linkname) {
		return filepath.Clean(linkname)
	}

	return filepath.Join(filepath.Dir(target), linkname)
}

func inside(dst, p string) bool {
	rel, err := filepath.Rel(dst, p)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// checkParents fails when a directory between dst and target is a symbolic link.
func checkParents(dst, target string) error {
	rel, err := filepath.Rel(dst, filepath.Dir(target))
	if err != nil {
		return fmt.Errorf("%w, <%s>: %w", ErrUnsafeEntry, target, err)
	}

	if rel == "." {
		return nil
	}

	current := dst

	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)

		fi, err := os.Lstat(current)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("stat <%s>, %w", current, err)
		}

		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w, <%s> is below symbolic link <%s>", ErrUnsafeEntry, target, current)
		}
	}

	return nil
}

func restoreMetadata(h *tar.Header, target string) error {
	if err := os.Chmod(target, os.FileMode(h.Mode).Perm()); err != nil {
		return err
	}

	atime := h.AccessTime
	if atime.IsZero() {
		atime = h.ModTime
	}

	if err := os.Chtimes(target, atime, h.ModTime); err != nil {
		return err
	}

	return chown(target, h.Uid, h.Gid)
}

func extractDir(h *tar.Header, target string) error {
	if fi, err := os.Lstat(target); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("remove symbolic link <%s>, %w", target, err)
		}
	}

	if err := os.MkdirAll(target, os.FileMode(h.Mode).Perm()|0700); err != nil {
		return fmt.Errorf("create directory <%s>, %w", target, err)
	}

	return nil
}

func extractRegular(h *tar.Header, tr io.Reader, target string) (n int64, err error) {
	if err := unlink(target); err != nil {
		return 0, fmt.Errorf("unlink <%s>, %w", target, err)
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(h.Mode).Perm())
	if err != nil {
		return 0, fmt.Errorf("open extracted file for writing <%s>, %w", target, err)
	}

	defer internal.CloseWithErrCapturef(&err, f, "extract regular <%s>", target)

	er := &errReader{r: tr}

	written, err := io.Copy(f, er)
	if err != nil {
		if er.err != nil {
			return written, fmt.Errorf("read archived file <%s>, %w: %w", target, ErrArchiveNotReadable, err)
		}

		return written, fmt.Errorf("copy extracted file for writing <%s>, %w", target, err)
	}

	return written, nil
}

type errReader struct {
	r   io.Reader
	err error
}

func (e *errReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && err != io.EOF {
		e.err = err
	}

	return n, err
}

func extractSymlink(h *tar.Header, target string) error {
	if err := unlink(target); err != nil {
		return fmt.Errorf("unlink <%s>, %w", target, err)
	}

	return os.Symlink(h.Linkname, target)
}

func extractLink(oldname, target string) error {
	if err := unlink(target); err != nil {
		return fmt.Errorf("unlink <%s>, %w", target, err)
	}

	return os.Link(oldname, target)
}

func unlink(path string) error {
	fi, err := os.Lstat(path)
	if err != nil || fi.IsDir() {
		return nil
	}

	return os.Remove(path)
}
