package sftp

// SSHAuthMethod describes the type of authentication method.
type SSHAuthMethod string

const (
	// SSHAuthMethodPassword authenticates with a password.
	SSHAuthMethodPassword SSHAuthMethod = "PASSWORD"
	// SSHAuthMethodPublicKeyFile authenticates with a private key read from a file.
	SSHAuthMethodPublicKeyFile SSHAuthMethod = "PUBLIC_KEY_FILE"
)

// SSHAuth is a structure to store authentication information for SSH connection.
type SSHAuth struct {
	Password      string
	PublicKeyFile string
	Method        SSHAuthMethod
}

// Config is a structure to store sFTP backend configuration.
type Config struct {
	Root     string
	Username string
	Auth     SSHAuth
	Host     string
	Port     string
	// HostKey pins the server key, in authorized_keys format. Empty disables verification.
	HostKey string
}
