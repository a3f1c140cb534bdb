package https

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/meltwater/blobfetch/internal"
	"github.com/meltwater/blobfetch/storage/common"
)

// Backend fetches blobs over plain https, either from a base url or through presigned urls.
type Backend struct {
	logger log.Logger

	client *http.Client
	links  *linkClient

	baseURL  string
	sasToken string
	token    string
}

// New creates an https backend.
func New(l log.Logger, c Config) (*Backend, error) {
	if c.BaseURL == "" && c.LinkEndpoint == "" {
		return nil, fmt.Errorf("%w, https base url or link endpoint is required", common.ErrConfiguration)
	}

	for _, raw := range []string{c.BaseURL, c.LinkEndpoint} {
		if raw == "" {
			continue
		}

		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("%w, <%s> is not an absolute url", common.ErrConfiguration, raw)
		}
	}

	client := &http.Client{}
	if c.SkipVerify {
		level.Warn(l).Log("msg", "tls verification is disabled")
		client.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
	}

	return newBackend(l, client, c), nil
}

func newBackend(l log.Logger, client *http.Client, c Config) *Backend {
	b := &Backend{
		logger:   l,
		client:   client,
		baseURL:  strings.TrimSuffix(c.BaseURL, "/"),
		sasToken: strings.TrimPrefix(c.SASToken, "?"),
		token:    c.Token,
	}

	if c.LinkEndpoint != "" {
		b.links = newLinkClient(l, client, c.LinkEndpoint, c.Token)
	}

	return b
}

// Get writes downloaded content to the given writer.
func (b *Backend) Get(ctx context.Context, p string, w io.Writer) error {
	req, err := b.request(ctx, p)
	if err != nil {
		return fmt.Errorf("get the object <%s>, %w", p, err)
	}

	level.Debug(b.logger).Log("msg", "downloading blob", "url", redact(req.URL))

	resp, err := do(b.client, req)
	if err != nil {
		return fmt.Errorf("get the object <%s>, %w", p, err)
	}

	defer internal.CloseWithErrLogf(b.logger, resp.Body, "response body, close defer")

	written, err := common.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("get the object <%s>, %w", p, err)
	}

	level.Debug(b.logger).Log("msg", "downloaded blob", "name", p, "size", humanize.Bytes(uint64(written)))

	return nil
}

// List contents of the given directory by given key from remote storage.
func (b *Backend) List(ctx context.Context, p string) ([]common.FileEntry, error) {
	if b.links == nil {
		return nil, fmt.Errorf("list over https needs a link endpoint, %w", common.ErrNotImplemented)
	}

	entries, err := b.links.entries(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("list entries, %w", err)
	}

	return entries, nil
}

func (b *Backend) request(ctx context.Context, p string) (*http.Request, error) {
	if b.links != nil {
		link, err := b.links.downloadURL(ctx, p)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
		if err != nil {
			var uerr *url.Error
			if errors.As(err, &uerr) {
				uerr.URL = "<presigned url>"
			}

			return nil, fmt.Errorf("presigned url, %w: %w", common.ErrTransfer, err)
		}

		return req, nil
	}

	u := b.baseURL + "/" + escapePath(p)
	if b.sasToken != "" {
		u += "?" + b.sasToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("blob url, %w: %w", common.ErrConfiguration, err)
	}

	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	return req, nil
}

func escapePath(p string) string {
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return strings.Join(segments, "/")
}
