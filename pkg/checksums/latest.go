package checksums

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/go-github/v60/github"
	"github.com/pkg/errors"
)

const (
	upstreamOwner = "protocolbuffers"
	upstreamRepo  = "protobuf"
)

// NewGitHubClient returns a client authenticated with GITHUB_TOKEN when set
func NewGitHubClient(httpClient *http.Client) *github.Client {
	client := github.NewClient(httpClient)
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		client = client.WithAuthToken(token)
	}
	return client
}

// ResolveVersion returns version unchanged unless it is "latest" or empty, in
// which case the newest upstream protobuf release is looked up. The leading
// "v" of the tag is removed.
func ResolveVersion(ctx context.Context, client *github.Client, version string) (string, error) {
	if version != "latest" && version != "" {
		return strings.TrimPrefix(version, "v"), nil
	}

	release, resp, err := client.Repositories.GetLatestRelease(ctx, upstreamOwner, upstreamRepo)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			releases, _, err := client.Repositories.ListReleases(ctx, upstreamOwner, upstreamRepo, &github.ListOptions{
				PerPage: 1,
			})
			if err != nil {
				return "", errors.Wrap(err, "failed to fetch releases")
			}
			if len(releases) == 0 {
				return "", fmt.Errorf("no releases found for %s/%s", upstreamOwner, upstreamRepo)
			}
			release = releases[0]
		} else {
			return "", errors.Wrap(err, "failed to fetch latest release")
		}
	}

	tag := release.GetTagName()
	if tag == "" {
		return "", fmt.Errorf("empty tag name returned from GitHub")
	}
	return strings.TrimPrefix(tag, "v"), nil
}
