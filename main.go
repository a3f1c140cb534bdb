package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/urfave/cli/v2"

	"github.com/meltwater/blobfetch/archive"
	"github.com/meltwater/blobfetch/internal"
	"github.com/meltwater/blobfetch/internal/plugin"
	"github.com/meltwater/blobfetch/storage/backend"
	"github.com/meltwater/blobfetch/storage/backend/azure"
	"github.com/meltwater/blobfetch/storage/backend/filesystem"
	"github.com/meltwater/blobfetch/storage/backend/gcs"
	"github.com/meltwater/blobfetch/storage/backend/https"
	"github.com/meltwater/blobfetch/storage/backend/s3"
	"github.com/meltwater/blobfetch/storage/backend/sftp"
)

//nolint:gochecknoglobals
var (
	version = "0.0.0"
	commit  = ""
	date    = ""
)

func main() {
	app := cli.NewApp()
	app.Name = "blobfetch"
	app.Usage = "fetch a single blob from object storage to a local file"
	app.Version = fmt.Sprintf("%s - %s (%s)", version, commit, date)
	app.Flags = flags()
	app.Action = run
	app.Commands = []*cli.Command{
		{
			Name:  "list",
			Usage: "list blobs of the configured container",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "prefix",
					Usage:   "only list blobs whose name starts with the prefix",
					EnvVars: []string{"PLUGIN_PREFIX"},
				},
			},
			Action: list,
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		// Logger args
		&cli.StringFlag{
			Name:    "log.level",
			Aliases: []string{"ll"},
			Usage:   "log filtering level. ('error', 'warn', 'info', 'debug')",
			Value:   internal.LogLevelInfo,
			EnvVars: []string{"PLUGIN_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log.format",
			Aliases: []string{"lf"},
			Usage:   "log format to use. ('logfmt', 'json')",
			Value:   internal.LogFormatLogfmt,
			EnvVars: []string{"PLUGIN_LOG_FORMAT", "LOG_FORMAT"},
		},

		// Config args
		&cli.StringFlag{
			Name:    "backend",
			Aliases: []string{"b"},
			Usage:   "storage backend to use (azure, s3, gcs, https, sftp, filesystem)",
			Value:   backend.Azure,
			EnvVars: []string{"PLUGIN_BACKEND"},
		},
		&cli.StringFlag{
			Name:    "blob",
			Usage:   "name of the blob to fetch",
			EnvVars: []string{"AZURE_STORAGE_BLOB_NAME", "PLUGIN_BLOB"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "local file the blob is written to, a directory when extracting",
			Value:   plugin.DefaultOutput,
			EnvVars: []string{"PLUGIN_OUTPUT"},
		},
		&cli.BoolFlag{
			Name:    "extract",
			Usage:   "extract the blob as an archive into the output directory",
			EnvVars: []string{"PLUGIN_EXTRACT"},
		},
		&cli.StringFlag{
			Name:    "archive-format",
			Aliases: []string{"arcfmt"},
			Usage:   "archive format to extract with (auto, tar, gzip, zstd)",
			Value:   archive.Auto,
			EnvVars: []string{"PLUGIN_ARCHIVE_FORMAT"},
		},
		&cli.BoolFlag{
			Name:    "skip-symlinks",
			Usage:   "skip symbolic links while extracting",
			EnvVars: []string{"PLUGIN_SKIP_SYMLINKS"},
		},
		&cli.BoolFlag{
			Name:    "preserve-metadata",
			Usage:   "restore file permissions, ownership and times while extracting",
			EnvVars: []string{"PLUGIN_PRESERVE_METADATA"},
		},
		&cli.StringFlag{
			Name:    "file-mode",
			Usage:   "octal permission of the written file",
			Value:   "0644",
			EnvVars: []string{"PLUGIN_FILE_MODE"},
		},
		&cli.StringFlag{
			Name:    "metrics-file",
			Usage:   "file the fetch metadata is appended to as JSON",
			EnvVars: []string{"PLUGIN_METRICS_FILE"},
		},
		&cli.DurationFlag{
			Name:    "backend.operation-timeout",
			Aliases: []string{"stopt"},
			Usage:   "timeout value to use for each storage operation, zero disables it",
			EnvVars: []string{"PLUGIN_BACKEND_OPERATION_TIMEOUT", "BACKEND_OPERATION_TIMEOUT"},
		},
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"d"},
			Usage:   "debug",
			EnvVars: []string{"PLUGIN_DEBUG", "DEBUG"},
		},

		// Azure args
		&cli.StringFlag{
			Name:    "azure.client-id",
			Usage:   "Azure application (client) id",
			EnvVars: []string{"AZURE_CLIENT_ID", "PLUGIN_AZURE_CLIENT_ID"},
		},
		&cli.StringFlag{
			Name:    "azure.client-secret",
			Usage:   "Azure application client secret",
			EnvVars: []string{"AZURE_CLIENT_SECRET", "PLUGIN_AZURE_CLIENT_SECRET"},
		},
		&cli.StringFlag{
			Name:    "azure.tenant-id",
			Usage:   "Azure tenant id",
			EnvVars: []string{"AZURE_TENANT_ID", "PLUGIN_AZURE_TENANT_ID"},
		},
		&cli.StringFlag{
			Name:    "azure.account-url",
			Usage:   "Azure blob service url of the storage account",
			EnvVars: []string{"AZURE_STORAGE_ACCOUNT_URL", "PLUGIN_AZURE_ACCOUNT_URL"},
		},
		&cli.StringFlag{
			Name:    "azure.container-name",
			Usage:   "Azure blob storage container",
			EnvVars: []string{"AZURE_STORAGE_CONTAINER_NAME", "PLUGIN_CONTAINER"},
		},
		&cli.StringFlag{
			Name:    "azure.account-name",
			Usage:   "Azure storage account name, used when no account url is given",
			EnvVars: []string{"AZURE_ACCOUNT_NAME", "PLUGIN_ACCOUNT_NAME"},
		},
		&cli.StringFlag{
			Name:    "azure.account-key",
			Usage:   "Azure storage account key for shared key authentication",
			EnvVars: []string{"AZURE_ACCOUNT_KEY", "PLUGIN_ACCOUNT_KEY"},
		},
		&cli.StringFlag{
			Name:    "azure.oidc-token-id",
			Usage:   "OIDC token used as client assertion",
			EnvVars: []string{"AZURE_OIDC_TOKEN_ID", "PLUGIN_OIDC_TOKEN_ID"},
		},
		&cli.StringFlag{
			Name:    "azure.blob-storage-url",
			Usage:   "Azure blob storage endpoint suffix",
			Value:   azure.DefaultBlobStorageURL,
			EnvVars: []string{"AZURE_BLOB_STORAGE_URL", "PLUGIN_BLOB_STORAGE_URL"},
		},
		&cli.BoolFlag{
			Name:    "azure.azurite",
			Usage:   "use the Azurite path style service url",
			EnvVars: []string{"AZURE_AZURITE", "PLUGIN_AZURITE"},
		},
		&cli.IntFlag{
			Name:    "azure.blob-max-retry-requests",
			Usage:   "Azure blob storage max retry requests, zero or less means a single attempt",
			EnvVars: []string{"AZURE_BLOB_MAX_RETRY_REQUESTS", "PLUGIN_BLOB_MAX_RETRY_REQUESTS"},
		},

		// S3 specific args
		&cli.StringFlag{
			Name:    "endpoint",
			Aliases: []string{"e"},
			Usage:   "endpoint for the s3 connection",
			EnvVars: []string{"PLUGIN_ENDPOINT", "S3_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "access-key",
			Aliases: []string{"akey"},
			Usage:   "AWS access key",
			EnvVars: []string{"PLUGIN_ACCESS_KEY", "AWS_ACCESS_KEY_ID", "CACHE_AWS_ACCESS_KEY_ID"},
		},
		&cli.StringFlag{
			Name:    "secret-key",
			Aliases: []string{"skey"},
			Usage:   "AWS secret key",
			EnvVars: []string{"PLUGIN_SECRET_KEY", "AWS_SECRET_ACCESS_KEY", "CACHE_AWS_SECRET_ACCESS_KEY"},
		},
		&cli.StringFlag{
			Name:    "bucket",
			Aliases: []string{"bckt"},
			Usage:   "AWS bucket name or GCS bucket name",
			EnvVars: []string{"PLUGIN_BUCKET", "S3_BUCKET", "GCS_BUCKET"},
		},
		&cli.StringFlag{
			Name:    "region",
			Aliases: []string{"reg"},
			Usage:   "AWS bucket region. (us-east-1, eu-west-1, ...)",
			EnvVars: []string{"PLUGIN_REGION", "S3_REGION"},
		},
		&cli.BoolFlag{
			Name:    "path-style",
			Aliases: []string{"ps"},
			Usage:   "AWS path style to use for bucket paths. (true for minio, false for aws)",
			EnvVars: []string{"PLUGIN_PATH_STYLE", "AWS_PLUGIN_PATH_STYLE"},
		},
		&cli.StringFlag{
			Name:    "assume-role-arn",
			Usage:   "AWS IAM role ARN to assume",
			EnvVars: []string{"PLUGIN_ASSUME_ROLE_ARN", "AWS_ASSUME_ROLE_ARN"},
		},
		&cli.StringFlag{
			Name:    "assume-role-session-name",
			Usage:   "AWS role session name",
			EnvVars: []string{"PLUGIN_ASSUME_ROLE_SESSION_NAME"},
		},
		&cli.StringFlag{
			Name:    "external-id",
			Usage:   "external id to use when assuming a role",
			EnvVars: []string{"PLUGIN_EXTERNAL_ID"},
		},
		&cli.StringFlag{
			Name:    "oidc-token-id",
			Usage:   "OIDC web identity token exchanged for the assumed role",
			EnvVars: []string{"PLUGIN_OIDC_TOKEN_ID_AWS", "AWS_WEB_IDENTITY_TOKEN"},
		},

		// GCS specific configuration
		&cli.StringFlag{
			Name:    "gcs.endpoint",
			Usage:   "endpoint for the GCS connection",
			EnvVars: []string{"PLUGIN_GCS_ENDPOINT", "GCS_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "gcs.api-key",
			Usage:   "Google service account JSON key",
			EnvVars: []string{"PLUGIN_JSON_KEY", "GCS_CACHE_JSON_KEY"},
		},
		&cli.StringFlag{
			Name:    "gcs.access-token",
			Usage:   "Google OAuth2 access token",
			EnvVars: []string{"PLUGIN_GCS_ACCESS_TOKEN", "GCS_ACCESS_TOKEN"},
		},
		&cli.BoolFlag{
			Name:    "gcs.unauthenticated",
			Usage:   "connect without credentials, for emulators",
			EnvVars: []string{"PLUGIN_GCS_UNAUTHENTICATED"},
		},

		// HTTPS specific configuration
		&cli.StringFlag{
			Name:    "https.base-url",
			Usage:   "base url the blob name is appended to",
			EnvVars: []string{"PLUGIN_HTTPS_BASE_URL"},
		},
		&cli.StringFlag{
			Name:    "https.sas-token",
			Usage:   "query appended to the blob url, e.g. an Azure shared access signature",
			EnvVars: []string{"PLUGIN_HTTPS_SAS_TOKEN", "AZURE_STORAGE_SAS_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "https.link-endpoint",
			Usage:   "service handing out presigned download urls",
			EnvVars: []string{"PLUGIN_HTTPS_LINK_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "https.token",
			Usage:   "bearer token sent to the base url or link endpoint",
			EnvVars: []string{"PLUGIN_HTTPS_TOKEN"},
		},
		&cli.BoolFlag{
			Name:    "https.skip-verify",
			Usage:   "skip tls verification",
			EnvVars: []string{"PLUGIN_HTTPS_SKIP_VERIFY"},
		},

		// SFTP specific configuration
		&cli.StringFlag{
			Name:    "sftp.root",
			Usage:   "sftp remote root directory",
			EnvVars: []string{"PLUGIN_SFTP_ROOT", "SFTP_ROOT"},
		},
		&cli.StringFlag{
			Name:    "sftp.username",
			Usage:   "sftp username",
			EnvVars: []string{"PLUGIN_SFTP_USERNAME", "SFTP_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "sftp.password",
			Usage:   "sftp password",
			EnvVars: []string{"PLUGIN_SFTP_PASSWORD", "SFTP_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "sftp.public-key-file",
			Usage:   "sftp private key file path",
			EnvVars: []string{"PLUGIN_SFTP_PUBLIC_KEY_FILE", "SFTP_PUBLIC_KEY_FILE"},
		},
		&cli.StringFlag{
			Name:    "sftp.auth-method",
			Usage:   "sftp auth method, PASSWORD or PUBLIC_KEY_FILE",
			Value:   string(sftp.SSHAuthMethodPassword),
			EnvVars: []string{"PLUGIN_SFTP_AUTH_METHOD", "SFTP_AUTH_METHOD"},
		},
		&cli.StringFlag{
			Name:    "sftp.host",
			Usage:   "sftp host",
			EnvVars: []string{"PLUGIN_SFTP_HOST", "SFTP_HOST"},
		},
		&cli.StringFlag{
			Name:    "sftp.port",
			Usage:   "sftp port",
			Value:   "22",
			EnvVars: []string{"PLUGIN_SFTP_PORT", "SFTP_PORT"},
		},
		&cli.StringFlag{
			Name:    "sftp.host-key",
			Usage:   "pinned sftp host key in authorized_keys format",
			EnvVars: []string{"PLUGIN_SFTP_HOST_KEY", "SFTP_HOST_KEY"},
		},

		// Filesystem specific configuration
		&cli.StringFlag{
			Name:    "filesystem.root",
			Usage:   "local directory blobs are served from",
			EnvVars: []string{"PLUGIN_FILESYSTEM_ROOT"},
		},
	}
}

func run(c *cli.Context) error {
	logger := internal.NewLogger(c.String("log.level"), c.String("log.format"), "blobfetch")

	p := newPlugin(c, logger)

	if err := p.Exec(c.Context); err != nil {
		logError(logger, err)

		return err
	}

	return nil
}

func list(c *cli.Context) error {
	logger := internal.NewLogger(c.String("log.level"), c.String("log.format"), "blobfetch")

	p := newPlugin(c, logger)

	entries, err := p.List(c.Context, c.String("prefix"))
	if err != nil {
		logError(logger, err)

		return err
	}

	for _, e := range entries {
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", e.LastModified.Format("2006-01-02 15:04:05"), humanize.Bytes(uint64(e.Size)), e.Path)
	}

	return nil
}

func newPlugin(c *cli.Context, logger log.Logger) *plugin.Plugin {
	p := plugin.New(log.With(logger, "component", "plugin"))

	p.Config = plugin.Config{
		Backend:                 c.String("backend"),
		Blob:                    c.String("blob"),
		Output:                  c.String("output"),
		FileMode:                c.String("file-mode"),
		MetricsFile:             c.String("metrics-file"),
		Debug:                   c.Bool("debug"),
		Extract:                 c.Bool("extract"),
		ArchiveFormat:           c.String("archive-format"),
		SkipSymlinks:            c.Bool("skip-symlinks"),
		PreserveMetadata:        c.Bool("preserve-metadata"),
		StorageOperationTimeout: c.Duration("backend.operation-timeout"),

		Azure: azure.Config{
			OIDCTokenID:      c.String("azure.oidc-token-id"),
			TenantID:         c.String("azure.tenant-id"),
			ClientID:         c.String("azure.client-id"),
			ClientSecret:     c.String("azure.client-secret"),
			AccountName:      c.String("azure.account-name"),
			AccountKey:       c.String("azure.account-key"),
			AccountURL:       c.String("azure.account-url"),
			ContainerName:    c.String("azure.container-name"),
			BlobStorageURL:   c.String("azure.blob-storage-url"),
			Azurite:          c.Bool("azure.azurite"),
			MaxRetryRequests: c.Int("azure.blob-max-retry-requests"),
		},
		S3: s3.Config{
			Bucket:                c.String("bucket"),
			Region:                c.String("region"),
			PathStyle:             c.Bool("path-style"),
			Endpoint:              c.String("endpoint"),
			Key:                   c.String("access-key"),
			Secret:                c.String("secret-key"),
			AssumeRoleARN:         c.String("assume-role-arn"),
			AssumeRoleSessionName: c.String("assume-role-session-name"),
			ExternalID:            c.String("external-id"),
			OIDCTokenID:           c.String("oidc-token-id"),
		},
		GCS: gcs.Config{
			Bucket:          c.String("bucket"),
			Endpoint:        c.String("gcs.endpoint"),
			JSONKey:         c.String("gcs.api-key"),
			AccessToken:     c.String("gcs.access-token"),
			Unauthenticated: c.Bool("gcs.unauthenticated"),
		},
		HTTPS: https.Config{
			BaseURL:      c.String("https.base-url"),
			SASToken:     c.String("https.sas-token"),
			LinkEndpoint: c.String("https.link-endpoint"),
			Token:        c.String("https.token"),
			SkipVerify:   c.Bool("https.skip-verify"),
		},
		SFTP: sftp.Config{
			Root:     c.String("sftp.root"),
			Username: c.String("sftp.username"),
			Auth: sftp.SSHAuth{
				Password:      c.String("sftp.password"),
				PublicKeyFile: c.String("sftp.public-key-file"),
				Method:        sftp.SSHAuthMethod(c.String("sftp.auth-method")),
			},
			Host:    c.String("sftp.host"),
			Port:    c.String("sftp.port"),
			HostKey: c.String("sftp.host-key"),
		},
		FileSystem: filesystem.Config{
			Root: c.String("filesystem.root"),
		},
	}

	return p
}

func logError(logger log.Logger, err error) {
	var e plugin.Error
	if errors.As(err, &e) {
		level.Error(logger).Log("msg", "plugin failed", "err", e)
		return
	}

	level.Error(logger).Log("msg", "failed to run", "err", err)
}
