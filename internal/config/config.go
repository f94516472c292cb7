package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/givlyn/backupd/internal/utils"
)

const (
	DefaultAddr        = "127.0.0.1:8080"
	DefaultBranch      = "main"
	DefaultBackupRate  = "6-M"
	DefaultIgnoreFile  = ".backupignore"
	DefaultLeaseTTL    = 30 * time.Minute
	DefaultDebounce    = 30 * time.Second
	DefaultHTTPTimeout = 60 * time.Second
)

var (
	home, _        = os.UserHomeDir()
	DefaultDataDir = filepath.Join(home, ".backupd")
)

// DefaultIgnoreTokens are matched as substrings of the slash separated relative path.
// Directories are also tested with a trailing slash, so ".git/" skips the .git dir
// without skipping .gitignore.
var DefaultIgnoreTokens = []string{
	".git/",
	"node_modules/",
	"dist/",
	"build/",
	".cache/",
	".next/",
	"coverage/",
	"tmp/",
	".env",
	".backupd/",
	"backupd.yaml",
}

// DefaultBinaryExtensions are uploaded base64 encoded, everything else as utf-8 text
var DefaultBinaryExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".ico", ".bmp", ".tiff", ".avif",
	".pdf",
	".zip", ".tar", ".gz", ".tgz", ".bz2", ".xz", ".7z", ".rar",
	".woff", ".woff2", ".ttf", ".otf", ".eot",
	".mp3", ".mp4", ".wav", ".ogg", ".webm", ".mov", ".avi",
	".lockb",
}

var (
	ErrNoRoot       = errors.New("config: walk root missing")
	ErrRootNotDir   = errors.New("config: walk root is not a directory")
	ErrNoRepository = errors.New("config: github owner, repo and branch are required")
	ErrInvalidAddr  = errors.New("config: http addr missing")
	ErrInvalidRetry = errors.New("config: retry max_attempts must be >= 1 and base_delay >= 0")
)

type Config struct {
	DataDir  string         `mapstructure:"data_dir" yaml:"data_dir"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
	GitHub   GitHubConfig   `mapstructure:"github" yaml:"github"`
	Walk     WalkConfig     `mapstructure:"walk" yaml:"walk"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Lock     LockConfig     `mapstructure:"lock" yaml:"lock"`
	History  HistoryConfig  `mapstructure:"history" yaml:"history"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	Watch    WatchConfig    `mapstructure:"watch" yaml:"watch"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type HTTPConfig struct {
	Addr       string `mapstructure:"addr" yaml:"addr"`
	CertFile   string `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile    string `mapstructure:"key_file" yaml:"key_file"`
	AuthToken  string `mapstructure:"auth_token" yaml:"auth_token"`
	BackupRate string `mapstructure:"backup_rate" yaml:"backup_rate"`
}

type GitHubConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Token   string        `mapstructure:"token" yaml:"token"`
	Owner   string        `mapstructure:"owner" yaml:"owner"`
	Repo    string        `mapstructure:"repo" yaml:"repo"`
	Branch  string        `mapstructure:"branch" yaml:"branch"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type WalkConfig struct {
	Root             string   `mapstructure:"root" yaml:"root"`
	IgnoreTokens     []string `mapstructure:"ignore_tokens" yaml:"ignore_tokens"`
	IgnoreGlobs      []string `mapstructure:"ignore_globs" yaml:"ignore_globs"`
	IgnoreFile       string   `mapstructure:"ignore_file" yaml:"ignore_file"`
	BinaryExtensions []string `mapstructure:"binary_extensions" yaml:"binary_extensions"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
}

type LockConfig struct {
	// FileLock additionally takes a flock in DataDir so two processes on one host never overlap
	FileLock bool `mapstructure:"file_lock" yaml:"file_lock"`
	// RedisURL enables a lease shared by every instance pointing at the same redis
	RedisURL string        `mapstructure:"redis_url" yaml:"redis_url"`
	LeaseTTL time.Duration `mapstructure:"lease_ttl" yaml:"lease_ttl"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

type ScheduleConfig struct {
	Cron string `mapstructure:"cron" yaml:"cron"`
}

type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// Defaults returns the flat viper keys and their default values
func Defaults() map[string]any {
	return map[string]any{
		"data_dir":               DefaultDataDir,
		"http.addr":              DefaultAddr,
		"http.cert_file":         "",
		"http.key_file":          "",
		"http.auth_token":        "",
		"http.backup_rate":       DefaultBackupRate,
		"github.base_url":        "https://api.github.com",
		"github.token":           "",
		"github.owner":           "",
		"github.repo":            "",
		"github.branch":          DefaultBranch,
		"github.timeout":         DefaultHTTPTimeout,
		"walk.root":              ".",
		"walk.ignore_tokens":     DefaultIgnoreTokens,
		"walk.ignore_globs":      []string{},
		"walk.ignore_file":       DefaultIgnoreFile,
		"walk.binary_extensions": DefaultBinaryExtensions,
		"retry.max_attempts":     3,
		"retry.base_delay":       2 * time.Second,
		"lock.file_lock":         true,
		"lock.redis_url":         "",
		"lock.lease_ttl":         DefaultLeaseTTL,
		"history.enabled":        true,
		"history.path":           "",
		"schedule.cron":          "",
		"watch.enabled":          false,
		"watch.debounce":         DefaultDebounce,
		"log.level":              "info",
		"log.file":               "",
	}
}

// Validate resolves paths and checks everything a backup run needs except the
// github token, which is checked per run so the server can report it as a 400.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return ErrInvalidAddr
	}

	if c.GitHub.Owner == "" || c.GitHub.Repo == "" || c.GitHub.Branch == "" {
		return ErrNoRepository
	}

	if c.Walk.Root == "" {
		return ErrNoRoot
	}
	root, err := utils.ResolvePath(c.Walk.Root)
	if err != nil {
		return fmt.Errorf("config: resolve walk root: %w", err)
	}
	if !utils.DirExists(root) {
		return fmt.Errorf("%w: %s", ErrRootNotDir, root)
	}
	c.Walk.Root = root

	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	dataDir, err := utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("config: resolve data dir: %w", err)
	}
	c.DataDir = dataDir

	if c.History.Path == "" {
		c.History.Path = filepath.Join(c.DataDir, "history.db")
	}

	if c.Retry.MaxAttempts < 1 || c.Retry.BaseDelay < 0 {
		return ErrInvalidRetry
	}

	if c.Lock.LeaseTTL <= 0 {
		c.Lock.LeaseTTL = DefaultLeaseTTL
	}

	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = DefaultDebounce
	}

	c.Walk.BinaryExtensions = normalizeExtensions(c.Walk.BinaryExtensions)

	return nil
}

// LockKey identifies the branch a run mutates
func (c *Config) LockKey() string {
	return c.GitHub.Owner + "/" + c.GitHub.Repo + "/" + c.GitHub.Branch
}

func (c *Config) Target() string {
	return fmt.Sprintf("%s/%s@%s", c.GitHub.Owner, c.GitHub.Repo, c.GitHub.Branch)
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() *Config {
	cp := *c
	cp.GitHub.Token = utils.MaskSecret(c.GitHub.Token)
	cp.HTTP.AuthToken = utils.MaskSecret(c.HTTP.AuthToken)
	return &cp
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
