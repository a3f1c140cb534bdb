//go:build integration
// +build integration

package azure

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/go-kit/kit/log"

	"github.com/meltwater/blobfetch/storage/common"
	"github.com/meltwater/blobfetch/test"
)

const (
	defaultBlobStorageURL = "127.0.0.1:10000"
	defaultAccountName    = "devstoreaccount1"
	defaultAccountKey     = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
)

func TestAzuriteRoundTrip(t *testing.T) {
	cfg := Config{
		AccountName:    defaultAccountName,
		AccountKey:     defaultAccountKey,
		BlobStorageURL: getEnv("TEST_AZURITE_URL", defaultBlobStorageURL),
		Azurite:        true,
		ContainerName:  "blobfetch-round-trip",
	}

	seed(t, cfg, "hello.txt", []byte("hello world"))

	b, err := New(log.NewNopLogger(), cfg)
	test.Ok(t, err)

	var buf bytes.Buffer
	test.Ok(t, b.Get(context.Background(), "hello.txt", &buf))
	test.Equals(t, "hello world", buf.String())

	err = b.Get(context.Background(), "missing.txt", &bytes.Buffer{})
	test.ErrorIs(t, err, common.ErrNotFound)

	entries, err := b.List(context.Background(), "")
	test.Ok(t, err)
	test.Equals(t, 1, len(entries))
	test.Equals(t, "hello.txt", entries[0].Path)
}

func seed(t *testing.T, cfg Config, name string, content []byte) {
	t.Helper()

	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	test.Ok(t, err)

	client, err := azblob.NewClientWithSharedKeyCredential(cfg.serviceURL(), cred, nil)
	test.Ok(t, err)

	ctx := context.Background()

	_, err = client.CreateContainer(ctx, cfg.ContainerName, nil)
	test.Ok(t, err)

	t.Cleanup(func() {
		if _, err := client.DeleteContainer(ctx, cfg.ContainerName, nil); err != nil {
			t.Logf("failed to delete container: %v", err)
		}
	})

	_, err = client.UploadBuffer(ctx, cfg.ContainerName, name, content, nil)
	test.Ok(t, err)
}

func getEnv(key, defaultVal string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return defaultVal
}
