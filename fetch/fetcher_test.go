package fetch

import (
	stdtar "archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/klauspost/compress/gzip"

	"github.com/meltwater/blobfetch/archive"
	"github.com/meltwater/blobfetch/storage"
	"github.com/meltwater/blobfetch/storage/backend/filesystem"
	"github.com/meltwater/blobfetch/storage/common"
	"github.com/meltwater/blobfetch/test"
)

func newFilesystemStorage(t *testing.T, blobs map[string][]byte) storage.Storage {
	t.Helper()

	root := t.TempDir()

	for name, content := range blobs {
		p := filepath.Join(root, filepath.FromSlash(name))
		test.Ok(t, os.MkdirAll(filepath.Dir(p), 0755))
		test.Ok(t, os.WriteFile(p, content, 0600))
	}

	b, err := filesystem.New(log.NewNopLogger(), filesystem.Config{Root: root})
	test.Ok(t, err)

	return storage.New(log.NewNopLogger(), b, 0)
}

// failingStorage writes a prefix of its content and then fails with the given error.
type failingStorage struct {
	content []byte
	err     error
	calls   int
}

func (s *failingStorage) Get(_ context.Context, _ string, w io.Writer) error {
	s.calls++

	if _, err := w.Write(s.content); err != nil {
		return err
	}

	return s.err
}

func (s *failingStorage) List(context.Context, string) ([]common.FileEntry, error) {
	return nil, common.ErrNotImplemented
}

func assertNoLeftovers(t *testing.T, dir string, expected ...string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	test.Ok(t, err)

	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}

	if expected == nil {
		expected = []string{}
	}

	test.Equals(t, expected, names)
}

func TestFetchHelloWorld(t *testing.T) {
	s := newFilesystemStorage(t, map[string][]byte{"hello.txt": []byte("hello world")})
	dir := t.TempDir()
	dst := filepath.Join(dir, "downloaded_blob.txt")

	test.Ok(t, New(log.NewNopLogger(), s).Fetch(context.Background(), "hello.txt", dst))

	test.EqualFileContent(t, dst, []byte("hello world"))

	fi, err := os.Stat(dst)
	test.Ok(t, err)
	test.Equals(t, int64(11), fi.Size())

	if runtime.GOOS != "windows" {
		test.Equals(t, DefaultFileMode, fi.Mode().Perm())
	}

	assertNoLeftovers(t, dir, "downloaded_blob.txt")
}

func TestFetchRoundTripBinary(t *testing.T) {
	content := make([]byte, 3<<20)
	for i := range content {
		content[i] = byte(i % 251)
	}

	s := newFilesystemStorage(t, map[string][]byte{"nested/blob.bin": content})
	dst := filepath.Join(t.TempDir(), "blob.bin")

	test.Ok(t, New(log.NewNopLogger(), s).Fetch(context.Background(), "nested/blob.bin", dst))
	test.EqualFileContent(t, dst, content)
}

func TestFetchOverwritesExistingFile(t *testing.T) {
	s := newFilesystemStorage(t, map[string][]byte{"hello.txt": []byte("hello world")})
	dst := filepath.Join(t.TempDir(), "out.txt")
	test.Ok(t, os.WriteFile(dst, []byte("previous content that is longer"), 0644))

	f := New(log.NewNopLogger(), s)

	test.Ok(t, f.Fetch(context.Background(), "hello.txt", dst))
	test.EqualFileContent(t, dst, []byte("hello world"))

	test.Ok(t, f.Fetch(context.Background(), "hello.txt", dst))
	test.EqualFileContent(t, dst, []byte("hello world"))
}

func TestFetchMissingBlob(t *testing.T) {
	s := newFilesystemStorage(t, map[string][]byte{"hello.txt": []byte("hello world")})
	f := New(log.NewNopLogger(), s)

	t.Run("no file is created", func(t *testing.T) {
		dir := t.TempDir()
		dst := filepath.Join(dir, "downloaded_blob.txt")

		err := f.Fetch(context.Background(), "missing.txt", dst)
		test.ErrorIs(t, err, common.ErrNotFound)
		test.NotExists(t, dst)
		assertNoLeftovers(t, dir)
	})

	t.Run("existing file is untouched", func(t *testing.T) {
		dir := t.TempDir()
		dst := filepath.Join(dir, "downloaded_blob.txt")
		test.Ok(t, os.WriteFile(dst, []byte("keep me"), 0644))

		err := f.Fetch(context.Background(), "missing.txt", dst)
		test.ErrorIs(t, err, common.ErrNotFound)
		test.EqualFileContent(t, dst, []byte("keep me"))
		assertNoLeftovers(t, dir, "downloaded_blob.txt")
	})
}

func TestFetchTransferFailureLeavesDestinationUntouched(t *testing.T) {
	s := &failingStorage{
		content: []byte("partial"),
		err:     fmt.Errorf("copy the object, %w: %w", common.ErrTransfer, io.ErrUnexpectedEOF),
	}

	dir := t.TempDir()
	dst := filepath.Join(dir, "out.txt")
	test.Ok(t, os.WriteFile(dst, []byte("complete old content"), 0644))

	err := New(log.NewNopLogger(), s).Fetch(context.Background(), "blob", dst)
	test.ErrorIs(t, err, common.ErrTransfer)
	test.EqualFileContent(t, dst, []byte("complete old content"))
	assertNoLeftovers(t, dir, "out.txt")
}

func TestFetchUnwritableDestination(t *testing.T) {
	s := &failingStorage{}
	dst := filepath.Join(t.TempDir(), "does", "not", "exist", "out.txt")

	err := New(log.NewNopLogger(), s).Fetch(context.Background(), "hello.txt", dst)
	test.ErrorIs(t, err, common.ErrLocalIO)
	test.Equals(t, 0, s.calls)
}

func TestFetchDestinationIsDirectory(t *testing.T) {
	s := newFilesystemStorage(t, map[string][]byte{"hello.txt": []byte("hello world")})
	dir := t.TempDir()
	dst := filepath.Join(dir, "taken")
	test.Ok(t, os.MkdirAll(filepath.Join(dst, "child"), 0755))

	err := New(log.NewNopLogger(), s).Fetch(context.Background(), "hello.txt", dst)
	test.ErrorIs(t, err, common.ErrLocalIO)
	assertNoLeftovers(t, dir, "taken")
}

func TestFetchWritesMetadata(t *testing.T) {
	s := newFilesystemStorage(t, map[string][]byte{"hello.txt": []byte("hello world")})
	dir := t.TempDir()
	metrics := filepath.Join(dir, "metrics", "fetch.json")

	f := New(log.NewNopLogger(), s, WithMetricsFile(metrics), WithFileMode(0600))
	test.Ok(t, f.Fetch(context.Background(), "hello.txt", filepath.Join(dir, "a.txt")))
	test.Ok(t, f.Fetch(context.Background(), "hello.txt", filepath.Join(dir, "b.txt")))

	content, err := os.ReadFile(metrics)
	test.Ok(t, err)

	var entries []Metadata
	test.Ok(t, json.Unmarshal(content, &entries))
	test.Equals(t, 2, len(entries))
	test.Equals(t, "hello.txt", entries[0].Blob)
	test.Equals(t, filepath.Join(dir, "b.txt"), entries[1].Destination)
	test.Equals(t, uint64(11), entries[1].SizeBytes)

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(filepath.Join(dir, "a.txt"))
		test.Ok(t, err)
		test.Equals(t, os.FileMode(0600), fi.Mode().Perm())
	}
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer

	gw := gzip.NewWriter(&buf)
	tw := stdtar.NewWriter(gw)

	for name, content := range files {
		test.Ok(t, tw.WriteHeader(&stdtar.Header{Name: name, Mode: 0644, Size: int64(len(content)), Typeflag: stdtar.TypeReg}))
		_, err := tw.Write([]byte(content))
		test.Ok(t, err)
	}

	test.Ok(t, tw.Close())
	test.Ok(t, gw.Close())

	return buf.Bytes()
}

func TestFetchExtract(t *testing.T) {
	s := newFilesystemStorage(t, map[string][]byte{
		"bundle.tar.gz": tarGz(t, map[string]string{"a/one.txt": "one", "two.txt": "two"}),
	})

	a, err := archive.FromFormat(log.NewNopLogger(), archive.Gzip)
	test.Ok(t, err)

	dst := filepath.Join(t.TempDir(), "out")

	test.Ok(t, New(log.NewNopLogger(), s, WithExtract(a)).Fetch(context.Background(), "bundle.tar.gz", dst))

	test.EqualFileContent(t, filepath.Join(dst, "a", "one.txt"), []byte("one"))
	test.EqualFileContent(t, filepath.Join(dst, "two.txt"), []byte("two"))
}

func TestFetchExtractMissingBlob(t *testing.T) {
	s := newFilesystemStorage(t, nil)

	a, err := archive.FromFormat(log.NewNopLogger(), archive.Gzip)
	test.Ok(t, err)

	err = New(log.NewNopLogger(), s, WithExtract(a)).Fetch(context.Background(), "missing.tar.gz", t.TempDir())
	test.ErrorIs(t, err, common.ErrNotFound)
}

func TestFetchExtractCorruptArchive(t *testing.T) {
	s := newFilesystemStorage(t, map[string][]byte{"bundle.tar.gz": []byte("definitely not gzip")})

	a, err := archive.FromFormat(log.NewNopLogger(), archive.Gzip)
	test.Ok(t, err)

	err = New(log.NewNopLogger(), s, WithExtract(a)).Fetch(context.Background(), "bundle.tar.gz", t.TempDir())
	test.ErrorIs(t, err, archive.ErrArchiveNotReadable)
	test.Assert(t, !errors.Is(err, common.ErrLocalIO), "corrupt archive must not be reported as local io failure: %v", err)
}

func TestFetchExtractRemoteFailure(t *testing.T) {
	full := tarGz(t, map[string]string{"big.txt": string(bytes.Repeat([]byte("x"), 1<<16))})

	s := &failingStorage{
		content: full[:len(full)/2],
		err:     fmt.Errorf("copy the object, %w: %w", common.ErrTransfer, io.ErrUnexpectedEOF),
	}

	a, err := archive.FromFormat(log.NewNopLogger(), archive.Gzip)
	test.Ok(t, err)

	err = New(log.NewNopLogger(), s, WithExtract(a)).Fetch(context.Background(), "bundle.tar.gz", t.TempDir())
	test.ErrorIs(t, err, common.ErrTransfer)
}
