package backend

import (
	"testing"

	"github.com/go-kit/kit/log"

	"github.com/meltwater/blobfetch/storage/backend/filesystem"
	"github.com/meltwater/blobfetch/storage/backend/https"
	"github.com/meltwater/blobfetch/storage/common"
	"github.com/meltwater/blobfetch/test"
)

func TestFromConfigUnknownBackend(t *testing.T) {
	_, err := FromConfig(log.NewNopLogger(), "ftp", Config{})
	test.ErrorIs(t, err, ErrUnknownBackend)
}

func TestFromConfigFileSystem(t *testing.T) {
	b, err := FromConfig(log.NewNopLogger(), FileSystem, Config{FileSystem: filesystem.Config{Root: t.TempDir()}})
	test.Ok(t, err)
	test.Assert(t, b != nil, "expected a backend")
}

func TestFromConfigAzureMissingCredentials(t *testing.T) {
	b, err := FromConfig(log.NewNopLogger(), Azure, Config{})
	test.ErrorIs(t, err, common.ErrConfiguration)
	test.Assert(t, b == nil, "expected no backend")
}

func TestFromConfigHTTPS(t *testing.T) {
	b, err := FromConfig(log.NewNopLogger(), HTTPS, Config{HTTPS: https.Config{BaseURL: "https://example.com/blobs"}})
	test.Ok(t, err)
	test.Assert(t, b != nil, "expected a backend")

	_, err = FromConfig(log.NewNopLogger(), HTTPS, Config{})
	test.ErrorIs(t, err, common.ErrConfiguration)
}
