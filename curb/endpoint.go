package curb

import "strings"

// DefaultBaseURL is the production Curb API.
const DefaultBaseURL = "https://app.energycurb.com"

const (
	entryPointPath = "/api"
	tokenPath      = "/oauth2/token"
)

// TokenURL returns the OAuth2 token endpoint for the given API base URL.
func TokenURL(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/") + tokenPath
}
