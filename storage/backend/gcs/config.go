package gcs

// Config is a structure to store Cloud Storage backend configuration.
type Config struct {
	Bucket   string
	Endpoint string

	// JSONKey is a service account key; AccessToken a bare OAuth2 token.
	// Without either, application default credentials are used unless
	// Unauthenticated is set, which is meant for emulators.
	JSONKey         string
	AccessToken     string
	Unauthenticated bool
}
