package azure

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/meltwater/blobfetch/internal"
	"github.com/meltwater/blobfetch/storage/common"
)

const (
	// DefaultBlobStorageURL is the public cloud blob endpoint suffix.
	DefaultBlobStorageURL = "blob.core.windows.net"

	// DefaultBlobMaxRetryRequests disables retries: a fetch is a single attempt.
	DefaultBlobMaxRetryRequests = -1
)

// Config is a structure to store Azure backend configuration.
type Config struct {
	// Authentication - OIDC (Priority 0, highest)
	OIDCTokenID string // OIDC token ID for authentication
	TenantID    string // Azure Tenant ID (required for OIDC and service principal)

	// Authentication - Service Principal (Priority 1)
	ClientID     string // Azure Application (Client) ID
	ClientSecret string // Azure Application Secret

	// Authentication - Shared Key (Priority 2, fallback)
	AccountName string // Azure Storage Account Name
	AccountKey  string // Azure Storage Account Key

	// Storage Configuration
	AccountURL       string // Full service URL, takes precedence over AccountName + BlobStorageURL
	ContainerName    string
	BlobStorageURL   string
	Azurite          bool
	MaxRetryRequests int
}

type authMethod int

const (
	authServicePrincipal authMethod = iota
	authOIDC
	authSharedKey
)

func (m authMethod) String() string {
	switch m {
	case authOIDC:
		return "oidc"
	case authSharedKey:
		return "shared key"
	default:
		return "service principal"
	}
}

func (c Config) authMethod() authMethod {
	switch {
	case c.OIDCTokenID != "":
		return authOIDC
	case c.AccountKey != "" && c.ClientSecret == "":
		return authSharedKey
	default:
		return authServicePrincipal
	}
}

// Validate reports every missing parameter at once, wrapped with common.ErrConfiguration.
func (c Config) Validate() error {
	errs := &internal.MultiError{}

	if c.ContainerName == "" {
		errs.Add(errors.New("azure container name is required"))
	}

	if c.AccountURL == "" && c.AccountName == "" {
		errs.Add(errors.New("azure storage account url or account name is required"))
	}

	if c.AccountURL != "" {
		if u, err := url.Parse(c.AccountURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs.Add(fmt.Errorf("azure storage account url <%s> is not an absolute url", c.AccountURL))
		}
	}

	switch c.authMethod() {
	case authOIDC:
		if c.TenantID == "" {
			errs.Add(errors.New("azure tenant id is required when using OIDC authentication"))
		}
		if c.ClientID == "" {
			errs.Add(errors.New("azure client id is required when using OIDC authentication"))
		}
	case authSharedKey:
		if c.accountName() == "" {
			errs.Add(errors.New("azure account name is required when using shared key authentication"))
		}
	case authServicePrincipal:
		if c.ClientID == "" {
			errs.Add(errors.New("azure client id is required"))
		}
		if c.ClientSecret == "" {
			errs.Add(errors.New("azure client secret is required"))
		}
		if c.TenantID == "" {
			errs.Add(errors.New("azure tenant id is required"))
		}
	}

	if err := errs.Err(); err != nil {
		return fmt.Errorf("%w, %w", common.ErrConfiguration, err)
	}

	return nil
}

// serviceURL returns the blob service endpoint of the storage account.
func (c Config) serviceURL() string {
	if c.AccountURL != "" {
		return c.AccountURL
	}

	blobStorageURL := c.BlobStorageURL
	if blobStorageURL == "" {
		blobStorageURL = DefaultBlobStorageURL
	}

	if c.Azurite {
		return fmt.Sprintf("http://%s/%s", blobStorageURL, c.AccountName)
	}

	return fmt.Sprintf("https://%s.%s", c.AccountName, blobStorageURL)
}

// accountName returns the configured account name or derives it from the account URL,
// either the first host label or, for path style endpoints like Azurite, the first path segment.
func (c Config) accountName() string {
	if c.AccountName != "" {
		return c.AccountName
	}

	u, err := url.Parse(c.AccountURL)
	if err != nil || u.Host == "" {
		return ""
	}

	if c.Azurite || u.Port() != "" {
		return strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)[0]
	}

	return strings.SplitN(u.Hostname(), ".", 2)[0]
}

func (c Config) maxRetries() int32 {
	if c.MaxRetryRequests <= 0 {
		return DefaultBlobMaxRetryRequests
	}

	return int32(c.MaxRetryRequests)
}
