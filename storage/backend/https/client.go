package https

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-kit/kit/log"

	"github.com/meltwater/blobfetch/internal"
	"github.com/meltwater/blobfetch/storage/common"
)

const (
	downloadEndpoint    = "/download?name=%s"
	listEntriesEndpoint = "/list_entries?prefix=%s"
)

// linkClient talks to a service that hands out presigned download urls.
type linkClient struct {
	logger log.Logger

	client   *http.Client
	endpoint string
	token    string
}

func newLinkClient(l log.Logger, client *http.Client, endpoint, token string) *linkClient {
	return &linkClient{
		logger:   l,
		client:   client,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		token:    token,
	}
}

// downloadURL returns the presigned url of the named blob.
func (c *linkClient) downloadURL(ctx context.Context, name string) (string, error) {
	resp, err := c.get(ctx, fmt.Sprintf(downloadEndpoint, url.QueryEscape(name)))
	if err != nil {
		return "", err
	}

	defer internal.CloseWithErrLogf(c.logger, resp.Body, "link response body, close defer")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read presigned url, %w: %w", common.ErrTransfer, err)
	}

	link := strings.TrimSpace(string(body))
	if link == "" {
		return "", fmt.Errorf("empty presigned url for <%s>, %w", name, common.ErrTransfer)
	}

	return link, nil
}

// entries lists the blobs under the given prefix.
func (c *linkClient) entries(ctx context.Context, prefix string) ([]common.FileEntry, error) {
	resp, err := c.get(ctx, fmt.Sprintf(listEntriesEndpoint, url.QueryEscape(prefix)))
	if err != nil {
		return nil, err
	}

	defer internal.CloseWithErrLogf(c.logger, resp.Body, "list response body, close defer")

	var entries []common.FileEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode entries, %w: %w", common.ErrTransfer, err)
	}

	return entries, nil
}

func (c *linkClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request, %w: %w", common.ErrConfiguration, err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return do(c.client, req)
}

// do sends the request and maps every non 200 response onto the error taxonomy.
func do(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = redact(req.URL)
		}

		return nil, fmt.Errorf("request <%s>, %w: %w", redact(req.URL), common.ErrTransfer, err)
	}

	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()

	return nil, fmt.Errorf("request <%s>, %w: status %d", redact(req.URL), classify(resp.StatusCode), resp.StatusCode)
}

func classify(status int) error {
	switch status {
	case http.StatusNotFound:
		return common.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return common.ErrAuthentication
	default:
		return common.ErrTransfer
	}
}

// redact drops the query, presigned and SAS urls carry their credentials there.
func redact(u *url.URL) string {
	c := *u
	c.RawQuery = ""

	return c.String()
}
