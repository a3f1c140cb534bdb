package gcs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	gcstorage "cloud.google.com/go/storage"
	"github.com/go-kit/kit/log"
	"google.golang.org/api/googleapi"

	"github.com/meltwater/blobfetch/storage/common"
	"github.com/meltwater/blobfetch/test"
)

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(log.NewNopLogger(), Config{Unauthenticated: true})
	test.ErrorIs(t, err, common.ErrConfiguration)
}

func TestNewUnauthenticated(t *testing.T) {
	b, err := New(log.NewNopLogger(), Config{Bucket: "demo", Endpoint: "http://127.0.0.1:4443/storage/v1/", Unauthenticated: true})
	test.Ok(t, err)
	test.Ok(t, b.Close())
}

func TestClientOptions(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  Config
		exp  int
	}{
		{"default credentials", Config{}, 0},
		{"endpoint only", Config{Endpoint: "http://localhost"}, 1},
		{"json key", Config{JSONKey: "{}"}, 1},
		{"access token with endpoint", Config{AccessToken: "token", Endpoint: "http://localhost"}, 2},
		{"unauthenticated", Config{Unauthenticated: true}, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			test.Equals(t, tc.exp, len(clientOptions(log.NewNopLogger(), tc.cfg)))
		})
	}
}

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		exp  error
	}{
		{"object", fmt.Errorf("reader, %w", gcstorage.ErrObjectNotExist), common.ErrNotFound},
		{"bucket", gcstorage.ErrBucketNotExist, common.ErrNotFound},
		{"api 404", &googleapi.Error{Code: http.StatusNotFound}, common.ErrNotFound},
		{"api 401", &googleapi.Error{Code: http.StatusUnauthorized}, common.ErrAuthentication},
		{"api 403", &googleapi.Error{Code: http.StatusForbidden}, common.ErrAuthentication},
		{"api 500", &googleapi.Error{Code: http.StatusInternalServerError}, common.ErrTransfer},
		{"network", errors.New("unexpected EOF"), common.ErrTransfer},
	} {
		t.Run(tc.name, func(t *testing.T) {
			test.Assert(t, classify(tc.err) == tc.exp, "expected %v, got %v", tc.exp, classify(tc.err))
		})
	}
}
