package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/meltwater/blobfetch/internal"
	"github.com/meltwater/blobfetch/storage/common"
)

const defaultPort = "22"

// Backend implements storage.Backend for sFTP.
type Backend struct {
	logger log.Logger

	root      string
	client    *sftp.Client
	sshClient *ssh.Client
}

// New creates a new sFTP backend. The SSH session is opened here and held until Close.
func New(l log.Logger, c Config) (*Backend, error) {
	if c.Host == "" || c.Username == "" {
		return nil, fmt.Errorf("%w, sftp host and username are required", common.ErrConfiguration)
	}

	authMethod, err := authMethod(c)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := hostKeyCallback(l, c)
	if err != nil {
		return nil, err
	}

	port := c.Port
	if port == "" {
		port = defaultPort
	}

	sshClient, err := ssh.Dial("tcp", net.JoinHostPort(c.Host, port), &ssh.ClientConfig{
		User:            c.Username,
		Auth:            authMethod,
		HostKeyCallback: hostKeyCallback,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to ssh, %w: %w", classify(err), err)
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		internal.CloseWithErrLogf(l, sshClient, "ssh client, close on sftp failure")
		return nil, fmt.Errorf("unable to connect to sftp, %w: %w", common.ErrTransfer, err)
	}

	level.Info(l).Log("msg", "connected to sftp server", "host", c.Host, "root", c.Root)

	return &Backend{
		logger:    l,
		root:      c.Root,
		client:    client,
		sshClient: sshClient,
	}, nil
}

// Close releases the sftp session and the underlying SSH connection.
func (b *Backend) Close() error {
	errs := &internal.MultiError{}
	errs.Add(b.client.Close())
	errs.Add(b.sshClient.Close())

	return errs.Err()
}

// Get writes downloaded content to the given writer. The sftp client has no
// context support, so only a context that is already done is honored.
func (b *Backend) Get(ctx context.Context, p string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	absPath := path.Join(b.root, path.Clean("/"+p))

	rc, err := b.client.Open(absPath)
	if err != nil {
		return fmt.Errorf("get the object <%s>, %w: %w", absPath, classify(err), err)
	}

	defer internal.CloseWithErrLogf(b.logger, rc, "reader close defer")

	_, err = common.Copy(w, rc)

	return err
}

// List contents of the given directory by given key from remote storage.
func (b *Backend) List(ctx context.Context, p string) ([]common.FileEntry, error) {
	var (
		entries []common.FileEntry
		walker  = b.client.Walk(b.root)
	)

	for walker.Step() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := walker.Err(); err != nil {
			return nil, fmt.Errorf("walk <%s>, %w: %w", walker.Path(), classify(err), err)
		}

		fi := walker.Stat()
		if fi.IsDir() {
			continue
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(walker.Path(), b.root), "/")
		if !strings.HasPrefix(rel, p) {
			continue
		}

		entries = append(entries, common.FileEntry{
			Path:         rel,
			Size:         fi.Size(),
			LastModified: fi.ModTime(),
		})
	}

	return entries, nil
}

func authMethod(c Config) ([]ssh.AuthMethod, error) {
	switch c.Auth.Method {
	case SSHAuthMethodPassword:
		return []ssh.AuthMethod{ssh.Password(c.Auth.Password)}, nil
	case SSHAuthMethodPublicKeyFile:
		pkAuthMethod, err := readPublicKeyFile(c.Auth.PublicKeyFile)
		return []ssh.AuthMethod{pkAuthMethod}, err
	default:
		return nil, fmt.Errorf("%w, unknown ssh auth method <%s>", common.ErrConfiguration, c.Auth.Method)
	}
}

func readPublicKeyFile(file string) (ssh.AuthMethod, error) {
	buffer, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("unable to read file <%s>, %w: %w", file, common.ErrConfiguration, err)
	}

	key, err := ssh.ParsePrivateKey(buffer)
	if err != nil {
		return nil, fmt.Errorf("unable to parse private key, %w: %w", common.ErrConfiguration, err)
	}

	return ssh.PublicKeys(key), nil
}

func hostKeyCallback(l log.Logger, c Config) (ssh.HostKeyCallback, error) {
	if c.HostKey == "" {
		level.Warn(l).Log("msg", "no sftp host key configured, server identity is not verified")
		return ssh.InsecureIgnoreHostKey(), nil // nolint: gosec
	}

	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(c.HostKey))
	if err != nil {
		return nil, fmt.Errorf("unable to parse host key, %w: %w", common.ErrConfiguration, err)
	}

	return ssh.FixedHostKey(key), nil
}

// classify maps an sftp or ssh error onto the storage error taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return common.ErrNotFound
	case errors.Is(err, os.ErrPermission):
		return common.ErrAuthentication
	case strings.Contains(err.Error(), "unable to authenticate"):
		return common.ErrAuthentication
	}

	return common.ErrTransfer
}
