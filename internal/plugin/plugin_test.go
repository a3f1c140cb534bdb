package plugin

import (
	stdtar "archive/tar"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/go-kit/kit/log"

	"github.com/meltwater/blobfetch/archive"
	"github.com/meltwater/blobfetch/storage/backend"
	"github.com/meltwater/blobfetch/storage/backend/azure"
	"github.com/meltwater/blobfetch/storage/backend/filesystem"
	"github.com/meltwater/blobfetch/storage/common"
	"github.com/meltwater/blobfetch/test"
)

func newFilesystemPlugin(t *testing.T, blobs map[string][]byte) *Plugin {
	t.Helper()

	root := t.TempDir()

	for name, content := range blobs {
		p := filepath.Join(root, filepath.FromSlash(name))
		test.Ok(t, os.MkdirAll(filepath.Dir(p), 0755))
		test.Ok(t, os.WriteFile(p, content, 0600))
	}

	p := New(log.NewNopLogger())
	p.Config = Config{
		Backend:    backend.FileSystem,
		Output:     filepath.Join(t.TempDir(), DefaultOutput),
		FileSystem: filesystem.Config{Root: root},
	}

	return p
}

func TestExecFetchesBlob(t *testing.T) {
	p := newFilesystemPlugin(t, map[string][]byte{"hello.txt": []byte("hello world")})
	p.Config.Blob = "hello.txt"

	test.Ok(t, p.Exec(context.Background()))
	test.EqualFileContent(t, p.Config.Output, []byte("hello world"))
}

func TestExecAppliesFileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("windows has no posix permissions")
	}

	p := newFilesystemPlugin(t, map[string][]byte{"hello.txt": []byte("hello world")})
	p.Config.Blob = "hello.txt"
	p.Config.FileMode = "0600"

	test.Ok(t, p.Exec(context.Background()))

	fi, err := os.Stat(p.Config.Output)
	test.Ok(t, err)
	test.Equals(t, os.FileMode(0600), fi.Mode().Perm())
}

func TestExecMissingBlob(t *testing.T) {
	p := newFilesystemPlugin(t, map[string][]byte{"hello.txt": []byte("hello world")})
	p.Config.Blob = "missing.txt"

	err := p.Exec(context.Background())
	test.ErrorIs(t, err, common.ErrNotFound)
	test.NotExists(t, p.Config.Output)

	var pErr Error
	test.Assert(t, errors.As(err, &pErr), "expected plugin error, got %T", err)
}

func TestExecExtractDetectsFormat(t *testing.T) {
	var buf bytes.Buffer

	tw := stdtar.NewWriter(&buf)
	test.Ok(t, tw.WriteHeader(&stdtar.Header{Name: "inside.txt", Mode: 0644, Size: 6, Typeflag: stdtar.TypeReg}))
	_, err := tw.Write([]byte("inside"))
	test.Ok(t, err)
	test.Ok(t, tw.Close())

	p := newFilesystemPlugin(t, map[string][]byte{"bundle.tar": buf.Bytes()})
	p.Config.Blob = "bundle.tar"
	p.Config.Extract = true
	p.Config.ArchiveFormat = archive.Auto
	p.Config.Output = t.TempDir()

	test.Ok(t, p.Exec(context.Background()))
	test.EqualFileContent(t, filepath.Join(p.Config.Output, "inside.txt"), []byte("inside"))
}

func TestExecInvalidConfiguration(t *testing.T) {
	for name, cfg := range map[string]Config{
		"missing blob":    {Backend: backend.FileSystem, Output: DefaultOutput, FileSystem: filesystem.Config{Root: "."}},
		"missing output":  {Backend: backend.FileSystem, Blob: "hello.txt", FileSystem: filesystem.Config{Root: "."}},
		"missing backend": {Blob: "hello.txt", Output: DefaultOutput},
		"unknown backend": {Backend: "ftp", Blob: "hello.txt", Output: DefaultOutput},
		"undetectable archive": {
			Backend: backend.FileSystem, Blob: "hello.txt", Output: ".", Extract: true,
			FileSystem: filesystem.Config{Root: "."},
		},
		"invalid file mode": {
			Backend: backend.FileSystem, Blob: "hello.txt", Output: DefaultOutput, FileMode: "rw-r--r--",
			FileSystem: filesystem.Config{Root: "."},
		},
		"file mode out of range": {
			Backend: backend.FileSystem, Blob: "hello.txt", Output: DefaultOutput, FileMode: "1777",
			FileSystem: filesystem.Config{Root: "."},
		},
		"unknown archive format": {
			Backend: backend.FileSystem, Blob: "hello.tar", Output: ".", Extract: true, ArchiveFormat: "rar",
			FileSystem: filesystem.Config{Root: "."},
		},
	} {
		t.Run(name, func(t *testing.T) {
			p := New(log.NewNopLogger())
			p.Config = cfg

			test.ErrorIs(t, p.Exec(context.Background()), common.ErrConfiguration)
		})
	}
}

func TestExecAzureMissingFieldsFailBeforeDialing(t *testing.T) {
	complete := azure.Config{
		AccountURL:    "https://127.0.0.1:1/devstoreaccount1",
		ContainerName: "demo",
		ClientID:      "client",
		ClientSecret:  "secret",
		TenantID:      "tenant",
	}

	for name, mutate := range map[string]func(c *azure.Config){
		"account url":    func(c *azure.Config) { c.AccountURL = "" },
		"container name": func(c *azure.Config) { c.ContainerName = "" },
		"client id":      func(c *azure.Config) { c.ClientID = "" },
		"client secret":  func(c *azure.Config) { c.ClientSecret = "" },
		"tenant id":      func(c *azure.Config) { c.TenantID = "" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := complete
			mutate(&cfg)

			dst := filepath.Join(t.TempDir(), DefaultOutput)

			p := New(log.NewNopLogger())
			p.Config = Config{Backend: backend.Azure, Blob: "hello.txt", Output: dst, Azure: cfg}

			test.ErrorIs(t, p.Exec(context.Background()), common.ErrConfiguration)
			test.NotExists(t, dst)
		})
	}

	t.Run("every missing field is reported", func(t *testing.T) {
		p := New(log.NewNopLogger())
		p.Config = Config{Backend: backend.Azure, Output: DefaultOutput}

		err := p.Exec(context.Background())
		test.ErrorIs(t, err, common.ErrConfiguration)

		for _, field := range []string{"blob name", "container name", "account url", "client id", "client secret", "tenant id"} {
			test.Assert(t, bytes.Contains([]byte(err.Error()), []byte(field)), "expected <%s> in: %v", field, err)
		}
	})
}

func TestList(t *testing.T) {
	p := newFilesystemPlugin(t, map[string][]byte{
		"reports/a.txt": []byte("a"),
		"reports/b.txt": []byte("bb"),
		"other.txt":     []byte("ccc"),
	})

	entries, err := p.List(context.Background(), "reports/")
	test.Ok(t, err)
	test.Equals(t, 2, len(entries))
	test.Equals(t, "reports/a.txt", entries[0].Path)
	test.Equals(t, int64(2), entries[1].Size)
}

func TestListUnknownBackend(t *testing.T) {
	p := New(log.NewNopLogger())
	p.Config.Backend = "ftp"

	_, err := p.List(context.Background(), "")
	test.ErrorIs(t, err, backend.ErrUnknownBackend)
}
