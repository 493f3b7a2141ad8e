package httpclient

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// UserAgent is sent with every request made through this package
const UserAgent = "protocdl (+https://github.com/binary-install/protocdl)"

// DefaultTimeout bounds a whole request including reading the body
const DefaultTimeout = 5 * time.Minute

// NewGitHubClient creates an HTTP client for GitHub release downloads.
// It adds the token from the GITHUB_TOKEN environment variable to requests
// for GitHub hosts, which raises the anonymous rate limit on CI runners.
func NewGitHubClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &gitHubTransport{
			Base: http.DefaultTransport,
		},
	}
}

// gitHubTransport is a RoundTripper that adds GitHub authentication
type gitHubTransport struct {
	Base http.RoundTripper
}

// RoundTrip implements the http.RoundTripper interface
func (t *gitHubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	req2 := req.Clone(req.Context())
	decorate(req2)
	return t.Base.RoundTrip(req2)
}

// NewRequest creates a GET request carrying the same headers the client transport adds.
func NewRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	decorate(req)
	return req, nil
}

func decorate(req *http.Request) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}
	if isGitHubHost(req.URL) {
		if token := os.Getenv("GITHUB_TOKEN"); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// isGitHubHost reports whether the URL points at a GitHub host. Release
// downloads redirect to objects.githubusercontent.com, which is included.
func isGitHubHost(u *url.URL) bool {
	if u == nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "github.com" ||
		host == "api.github.com" ||
		host == "githubusercontent.com" ||
		strings.HasSuffix(host, ".githubusercontent.com")
}
