package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/meltwater/blobfetch/internal"
	"github.com/meltwater/blobfetch/storage/common"
)

const defaultRoleSessionName = "blobfetch"

// Backend implements storage.Backend for AWs S3.
type Backend struct {
	logger log.Logger

	bucket string
	client *s3.Client
}

// New creates an S3 backend.
func New(l log.Logger, c Config, debug bool) (*Backend, error) {
	if c.Region == "" || c.Bucket == "" {
		return nil, fmt.Errorf("%w, missing required S3 configuration: region or bucket not specified", common.ErrConfiguration)
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(c.Region),
		config.WithRetryMaxAttempts(1),
	}

	if debug {
		opts = append(opts, config.WithClientLogMode(aws.LogRequest|aws.LogResponse))
	}

	if c.Key != "" && c.Secret != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.Key, c.Secret, "")))
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		level.Error(l).Log("msg", "could not load AWS configuration", "error", err)
		return nil, fmt.Errorf("load aws configuration, %w: %w", common.ErrConfiguration, err)
	}

	switch {
	case c.AssumeRoleARN != "" && c.OIDCTokenID != "":
		level.Info(l).Log("msg", "assuming role with web identity", "role", c.AssumeRoleARN)
		cfg.Credentials = aws.NewCredentialsCache(assumeRoleWithWebIdentity(cfg, c))
	case c.AssumeRoleARN != "":
		level.Info(l).Log("msg", "assuming role", "role", c.AssumeRoleARN)
		cfg.Credentials = aws.NewCredentialsCache(assumeRole(cfg, c))
	case c.Key == "" || c.Secret == "":
		level.Warn(l).Log("msg", "no AWS credentials provided, falling back to the default credential chain")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = c.PathStyle
	})

	return &Backend{
		logger: l,
		bucket: c.Bucket,
		client: client,
	}, nil
}

// Get writes downloaded content to the given writer. Writers that support
// random access are filled through the transfer manager.
func (b *Backend) Get(ctx context.Context, p string, w io.Writer) error {
	in := &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(p),
	}

	if wa, ok := w.(io.WriterAt); ok {
		return b.download(ctx, in, wa)
	}

	out, err := b.client.GetObject(ctx, in)
	if err != nil {
		return fmt.Errorf("get the object <%s/%s>, %w: %w", b.bucket, p, classify(err), err)
	}

	defer internal.CloseWithErrLogf(b.logger, out.Body, "response body, close defer")

	_, err = common.Copy(w, out.Body)

	return err
}

func (b *Backend) download(ctx context.Context, in *s3.GetObjectInput, w io.WriterAt) error {
	downloader := manager.NewDownloader(b.client, func(d *manager.Downloader) {
		d.Concurrency = 1
	})

	tw := &trackingWriterAt{w: w}

	n, err := downloader.Download(ctx, tw, in)
	if err != nil {
		if tw.err != nil {
			return fmt.Errorf("write the object, %w: %w", common.ErrLocalIO, err)
		}

		return fmt.Errorf("download the object <%s/%s>, %w: %w", *in.Bucket, *in.Key, classify(err), err)
	}

	level.Debug(b.logger).Log("msg", "downloaded object", "key", *in.Key, "size", n)

	return nil
}

// List contents of the given directory by given key from remote storage.
func (b *Backend) List(ctx context.Context, p string) ([]common.FileEntry, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(p),
	}

	var (
		entries   []common.FileEntry
		paginator = s3.NewListObjectsV2Paginator(b.client, in)
	)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects, %w: %w", classify(err), err)
		}

		for _, item := range page.Contents {
			entries = append(entries, common.FileEntry{
				Path:         aws.ToString(item.Key),
				Size:         aws.ToInt64(item.Size),
				LastModified: aws.ToTime(item.LastModified),
			})
		}
	}

	return entries, nil
}

func assumeRole(cfg aws.Config, c Config) aws.CredentialsProvider {
	return stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), c.AssumeRoleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = roleSessionName(c)
		if c.ExternalID != "" {
			o.ExternalID = aws.String(c.ExternalID)
		}
	})
}

func assumeRoleWithWebIdentity(cfg aws.Config, c Config) aws.CredentialsProvider {
	return stscreds.NewWebIdentityRoleProvider(sts.NewFromConfig(cfg), c.AssumeRoleARN, identityToken(c.OIDCTokenID),
		func(o *stscreds.WebIdentityRoleOptions) {
			o.RoleSessionName = roleSessionName(c)
		})
}

func roleSessionName(c Config) string {
	if c.AssumeRoleSessionName != "" {
		return c.AssumeRoleSessionName
	}

	return defaultRoleSessionName
}

// identityToken hands a static OIDC token to the web identity provider.
type identityToken string

func (t identityToken) GetIdentityToken() ([]byte, error) {
	return []byte(t), nil
}

type trackingWriterAt struct {
	w   io.WriterAt
	err error
}

func (t *trackingWriterAt) WriteAt(p []byte, off int64) (int, error) {
	n, err := t.w.WriteAt(p, off)
	if err != nil {
		t.err = err
	}

	return n, err
}

// classify maps an S3 SDK error onto the storage error taxonomy.
func classify(err error) error {
	var (
		noSuchKey    *types.NoSuchKey
		noSuchBucket *types.NoSuchBucket
		notFound     *types.NotFound
	)

	if errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) || errors.As(err, &notFound) {
		return common.ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return common.ErrNotFound
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken", "AllAccessDisabled":
			return common.ErrAuthentication
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return common.ErrNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			return common.ErrAuthentication
		}
	}

	return common.ErrTransfer
}
