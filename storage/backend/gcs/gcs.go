package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	gcstorage "cloud.google.com/go/storage"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/meltwater/blobfetch/internal"
	"github.com/meltwater/blobfetch/storage/common"
)

// Backend implements storage.Backend for Google Cloud Storage.
type Backend struct {
	logger log.Logger

	bucket string
	client *gcstorage.Client
}

// New creates a Google Cloud Storage backend.
func New(l log.Logger, c Config) (*Backend, error) {
	if c.Bucket == "" {
		return nil, fmt.Errorf("%w, gcs bucket name is required", common.ErrConfiguration)
	}

	client, err := gcstorage.NewClient(context.Background(), clientOptions(l, c)...)
	if err != nil {
		return nil, fmt.Errorf("gcs client initialization, %w: %w", common.ErrAuthentication, err)
	}

	return &Backend{
		logger: l,
		bucket: c.Bucket,
		client: client,
	}, nil
}

func clientOptions(l log.Logger, c Config) []option.ClientOption {
	var opts []option.ClientOption

	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}

	switch {
	case c.JSONKey != "":
		level.Info(l).Log("msg", "using service account key authentication")
		opts = append(opts, option.WithCredentialsJSON([]byte(c.JSONKey)))
	case c.AccessToken != "":
		level.Info(l).Log("msg", "using access token authentication")
		opts = append(opts, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: c.AccessToken,
			TokenType:   "Bearer",
		})))
	case c.Unauthenticated:
		level.Warn(l).Log("msg", "no GCS credentials provided, proceeding with anonymous access")
		opts = append(opts, option.WithoutAuthentication())
	default:
		level.Info(l).Log("msg", "using application default credentials")
	}

	return opts
}

// Close releases the underlying client.
func (b *Backend) Close() error {
	return b.client.Close()
}

// Get writes downloaded content to the given writer.
func (b *Backend) Get(ctx context.Context, p string, w io.Writer) error {
	obj := b.client.Bucket(b.bucket).Object(p).Retryer(gcstorage.WithPolicy(gcstorage.RetryNever))

	r, err := obj.NewReader(ctx)
	if err != nil {
		return fmt.Errorf("get the object <%s/%s>, %w: %w", b.bucket, p, classify(err), err)
	}

	defer internal.CloseWithErrLogf(b.logger, r, "object reader, close defer")

	_, err = common.Copy(w, r)

	return err
}

// List contents of the given directory by given key from remote storage.
func (b *Backend) List(ctx context.Context, p string) ([]common.FileEntry, error) {
	var (
		entries []common.FileEntry
		it      = b.client.Bucket(b.bucket).Objects(ctx, &gcstorage.Query{Prefix: p})
	)

	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("list objects, %w: %w", classify(err), err)
		}

		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}

		entries = append(entries, common.FileEntry{
			Path:         attrs.Name,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		})
	}

	return entries, nil
}

// classify maps a Cloud Storage error onto the storage error taxonomy.
func classify(err error) error {
	if errors.Is(err, gcstorage.ErrObjectNotExist) || errors.Is(err, gcstorage.ErrBucketNotExist) {
		return common.ErrNotFound
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return common.ErrNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			return common.ErrAuthentication
		}
	}

	return common.ErrTransfer
}
