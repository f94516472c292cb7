package githubsdk

import (
	"net/url"
	"time"
)

const (
	DefaultBaseURL = "https://api.github.com"
	DefaultTimeout = 60 * time.Second
)

// Config is the configuration for the GitHubSDK
type Config struct {
	BaseURL string        // BaseURL defaults to DefaultBaseURL
	Token   string        // Token is optional here, writes fail without it
	Timeout time.Duration // Timeout per request, defaults to DefaultTimeout
	Debug   bool          // Debug dumps request/response headers
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidBaseURL
	}

	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	return nil
}
