package s3

// Config is a structure to store S3  backend configuration.
type Config struct {
	Bucket    string
	Region    string
	PathStyle bool // Use path style instead of domain style. Should be true for minio and false for AWS.
	Endpoint  string

	Key    string
	Secret string

	AssumeRoleARN         string
	AssumeRoleSessionName string
	ExternalID            string
	OIDCTokenID           string // Web identity token exchanged for AssumeRoleARN credentials
}
