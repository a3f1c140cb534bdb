package https

// Config is a structure to store https backend configuration.
type Config struct {
	// BaseURL is joined with the blob name when no link endpoint is set.
	BaseURL string
	// SASToken is appended as query to every direct blob url, e.g. an Azure shared access signature.
	SASToken string

	// LinkEndpoint hands out presigned download urls and lists entries.
	LinkEndpoint string
	// Token is sent as bearer token to the link endpoint and the base url, never to presigned urls.
	Token string

	SkipVerify bool
}
