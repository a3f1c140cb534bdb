package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/meltwater/blobfetch/internal"
	"github.com/meltwater/blobfetch/storage/common"
)

// Backend implements storage.Backend for Azure Blob Storage.
type Backend struct {
	logger        log.Logger
	client        *azblob.Client
	containerName string
}

// New creates an AzureBlob backend. Constructing the credential and the client
// performs no network call; the token is only acquired by the first request.
func New(l log.Logger, c Config) (*Backend, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var (
		serviceURL = c.serviceURL()
		opts       = &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Retry: policy.RetryOptions{MaxRetries: c.maxRetries()},
			},
		}
		client *azblob.Client
	)

	level.Info(l).Log("msg", "using blob storage service", "url", serviceURL, "auth", c.authMethod())

	switch c.authMethod() {
	case authOIDC:
		// The OIDC token handed out by the CI system is used directly as the client assertion.
		oidcToken := c.OIDCTokenID
		getAssertion := func(context.Context) (string, error) {
			return oidcToken, nil
		}

		cred, err := azidentity.NewClientAssertionCredential(c.TenantID, c.ClientID, getAssertion, nil)
		if err != nil {
			return nil, fmt.Errorf("azure, failed to create OIDC client assertion credential, %w: %w", common.ErrAuthentication, err)
		}

		client, err = azblob.NewClient(serviceURL, cred, opts)
		if err != nil {
			return nil, fmt.Errorf("azure, failed to create client with OIDC, %w: %w", common.ErrConfiguration, err)
		}
	case authServicePrincipal:
		cred, err := azidentity.NewClientSecretCredential(c.TenantID, c.ClientID, c.ClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("azure, failed to create service principal credential, %w: %w", common.ErrAuthentication, err)
		}

		client, err = azblob.NewClient(serviceURL, cred, opts)
		if err != nil {
			return nil, fmt.Errorf("azure, failed to create client with service principal, %w: %w", common.ErrConfiguration, err)
		}
	case authSharedKey:
		cred, err := azblob.NewSharedKeyCredential(c.accountName(), c.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("azure, invalid shared key credentials, %w: %w", common.ErrAuthentication, err)
		}

		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, opts)
		if err != nil {
			return nil, fmt.Errorf("azure, failed to create client with shared key, %w: %w", common.ErrConfiguration, err)
		}
	}

	return newBackend(l, client, c.ContainerName), nil
}

func newBackend(l log.Logger, client *azblob.Client, containerName string) *Backend {
	return &Backend{
		logger:        l,
		client:        client,
		containerName: containerName,
	}
}

// Get writes downloaded content to the given writer.
func (b *Backend) Get(ctx context.Context, p string, w io.Writer) error {
	blobClient := b.container().NewBlobClient(p)

	level.Debug(b.logger).Log("msg", "downloading blob", "container", b.containerName, "name", p)

	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return fmt.Errorf("get the object <%s/%s>, %w: %w", b.containerName, p, classify(err), err)
	}

	defer internal.CloseWithErrLogf(b.logger, resp.Body, "response body, close defer")

	written, err := common.Copy(w, resp.Body)
	if err != nil {
		return err
	}

	level.Debug(b.logger).Log("msg", "downloaded blob", "name", p, "size", humanize.Bytes(uint64(written)))

	return nil
}

// List contents of the given directory by given key from remote storage.
func (b *Backend) List(ctx context.Context, p string) ([]common.FileEntry, error) {
	level.Info(b.logger).Log("msg", "listing blobs", "container", b.containerName, "prefix", p)

	var opts container.ListBlobsFlatOptions
	if p != "" {
		opts.Prefix = &p
	}

	var (
		entries []common.FileEntry
		pager   = b.container().NewListBlobsFlatPager(&opts)
	)

	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list blobs, %w: %w", classify(err), err)
		}

		for _, blobInfo := range resp.Segment.BlobItems {
			if blobInfo.Name == nil || blobInfo.Properties == nil {
				continue
			}

			entry := common.FileEntry{Path: *blobInfo.Name}
			if blobInfo.Properties.ContentLength != nil {
				entry.Size = *blobInfo.Properties.ContentLength
			}
			if blobInfo.Properties.LastModified != nil {
				entry.LastModified = *blobInfo.Properties.LastModified
			}

			entries = append(entries, entry)
		}
	}

	level.Info(b.logger).Log("msg", "listed blobs", "prefix", p, "count", len(entries))

	return entries, nil
}

func (b *Backend) container() *container.Client {
	return b.client.ServiceClient().NewContainerClient(b.containerName)
}

// classify maps an Azure SDK error onto the storage error taxonomy.
func classify(err error) error {
	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return common.ErrAuthentication
	}

	if bloberror.HasCode(err, bloberror.ContainerNotFound, bloberror.BlobNotFound, bloberror.ResourceNotFound) {
		return common.ErrNotFound
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return common.ErrNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			return common.ErrAuthentication
		}
	}

	return common.ErrTransfer
}
