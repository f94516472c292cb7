package githubsdk

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/imroc/req/v3"
	"github.com/givlyn/backupd/internal/utils"
	"github.com/givlyn/backupd/internal/version"
)

const (
	HeaderAccept     = "Accept"
	HeaderAPIVersion = "X-GitHub-Api-Version"
	HeaderHostID     = "X-Backupd-Host"

	mediaTypeJSON = "application/vnd.github+json"
	apiVersion    = "2022-11-28"
)

// GitHubSDK is a client for the GitHub git data API (refs, commits, trees, blobs)
type GitHubSDK struct {
	client *req.Client
	config *Config
}

// New creates a new GitHubSDK client. Requests are never retried by the client itself,
// callers decide which calls are retryable.
func New(config *Config) (*GitHubSDK, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := req.C().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetUserAgent(version.UserAgent()).
		SetCommonHeader(HeaderAccept, mediaTypeJSON).
		SetCommonHeader(HeaderAPIVersion, apiVersion).
		SetCommonHeader(HeaderHostID, utils.HostID).
		SetCommonRetryCount(0).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if config.Token != "" {
		client.SetCommonBearerAuthToken(config.Token)
	}

	if config.Debug {
		client.EnableDumpAllWithoutBody()
	}

	return &GitHubSDK{
		client: client,
		config: config,
	}, nil
}

// HasToken reports whether write credentials were configured
func (s *GitHubSDK) HasToken() bool {
	return s.config.Token != ""
}

// Repo returns the git data API bound to one repository
func (s *GitHubSDK) Repo(owner, name string) *RepoAPI {
	return &RepoAPI{
		client: s.client,
		owner:  owner,
		name:   name,
	}
}

// repoPath builds /repos/{owner}/{repo}/{suffix...}, escaping each segment.
// Branch names may contain slashes, those are kept as path separators.
func repoPath(owner, name string, suffix ...string) string {
	var b strings.Builder
	b.WriteString("/repos/")
	b.WriteString(url.PathEscape(owner))
	b.WriteString("/")
	b.WriteString(url.PathEscape(name))
	for _, s := range suffix {
		for _, seg := range strings.Split(s, "/") {
			if seg == "" {
				continue
			}
			b.WriteString("/")
			b.WriteString(url.PathEscape(seg))
		}
	}
	return b.String()
}

func (s *GitHubSDK) String() string {
	return fmt.Sprintf("GitHubSDK(%s, token=%s)", s.config.BaseURL, utils.MaskSecret(s.config.Token))
}
