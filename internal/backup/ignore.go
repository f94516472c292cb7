package backup

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	gitignore "github.com/sabhiram/go-gitignore"
)

var ErrInvalidGlob = errors.New("invalid ignore glob")

// IgnoreRules decides which walked paths are excluded from a backup.
// A path is ignored when any of the following hold:
//   - it contains one of the tokens as a substring (directories are also tested with a trailing "/")
//   - it matches one of the doublestar globs
//   - it matches the gitignore-style ignore file found in the walk root
type IgnoreRules struct {
	tokens mapset.Set[string]
	globs  mapset.Set[string]
	file   *gitignore.GitIgnore
}

func NewIgnoreRules(tokens, globs []string) (*IgnoreRules, error) {
	r := &IgnoreRules{
		tokens: mapset.NewThreadUnsafeSet[string](),
		globs:  mapset.NewThreadUnsafeSet[string](),
	}

	for _, tok := range tokens {
		if tok = strings.TrimSpace(tok); tok != "" {
			r.tokens.Add(tok)
		}
	}

	for _, g := range globs {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidGlob, g)
		}
		r.globs.Add(g)
	}

	return r, nil
}

// WithIgnoreFile returns a copy of the rules extended with the patterns of path.
// A missing file is not an error, the rules are returned unchanged.
func (r *IgnoreRules) WithIgnoreFile(path string) (*IgnoreRules, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return r, nil
	}

	compiled, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		return nil, fmt.Errorf("compile ignore file %s: %w", path, err)
	}
	slog.Debug("ignore file loaded", "path", path)

	return &IgnoreRules{
		tokens: r.tokens,
		globs:  r.globs,
		file:   compiled,
	}, nil
}

// ShouldIgnore reports whether relPath (slash separated, relative to the root) is excluded
func (r *IgnoreRules) ShouldIgnore(relPath string, isDir bool) bool {
	candidates := []string{relPath}
	if isDir {
		candidates = append(candidates, relPath+"/")
	}

	for _, p := range candidates {
		if r.containsToken(p) {
			return true
		}
	}

	if r.matchesGlob(relPath) {
		return true
	}

	if r.file != nil {
		for _, p := range candidates {
			if r.file.MatchesPath(p) {
				return true
			}
		}
	}

	return false
}

// Tokens returns the configured substring tokens
func (r *IgnoreRules) Tokens() []string {
	return r.tokens.ToSlice()
}

func (r *IgnoreRules) containsToken(p string) bool {
	found := false
	r.tokens.Each(func(tok string) bool {
		found = strings.Contains(p, tok)
		return found
	})
	return found
}

func (r *IgnoreRules) matchesGlob(p string) bool {
	found := false
	r.globs.Each(func(g string) bool {
		ok, _ := doublestar.Match(g, p)
		found = ok
		return found
	})
	return found
}
