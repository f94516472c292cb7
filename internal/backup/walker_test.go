package backup

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/givlyn/backupd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, content, 0o644))
	}
}

func defaultWalker(t *testing.T) *TreeWalker {
	t.Helper()
	rules, err := NewIgnoreRules(config.DefaultIgnoreTokens, nil)
	require.NoError(t, err)
	return NewTreeWalker(rules, config.DefaultIgnoreFile, config.DefaultBinaryExtensions)
}

func relPaths(files []*FileEntry) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.RelPath)
	}
	return out
}

func TestWalk_AppliesIgnoreTokens(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string][]byte{
		"src/app.tsx":                 []byte("export default App\n"),
		".gitignore":                  []byte("node_modules\n"),
		".git/HEAD":                   []byte("ref: refs/heads/main\n"),
		"node_modules/react/index.js": []byte("module.exports = {}\n"),
		"web/node_modules/x.js":       []byte("x\n"),
		"dist/bundle.js":              []byte("bundle\n"),
		".env":                        []byte("SECRET=1\n"),
		".env.local":                  []byte("SECRET=2\n"),
		"docs/readme.md":              []byte("# docs\n"),
	})

	files, err := defaultWalker(t).Walk(context.Background(), root)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{".gitignore", "docs/readme.md", "src/app.tsx"}, relPaths(files))
}

func TestWalk_ClassifiesBinary(t *testing.T) {
	root := t.TempDir()
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	writeTree(t, root, map[string][]byte{
		"public/logo.PNG": png,
		"bun.lockb":       {0x00, 0x01},
		"notes.txt":       []byte("plain\n"),
		"weird.dat":       {0xff, 0xfe, 0x00},
	})

	files, err := defaultWalker(t).Walk(context.Background(), root)
	require.NoError(t, err)

	byPath := map[string]*FileEntry{}
	for _, f := range files {
		byPath[f.RelPath] = f
	}

	require.Len(t, byPath, 4)
	assert.True(t, byPath["public/logo.PNG"].Binary)
	assert.Equal(t, png, byPath["public/logo.PNG"].Content)
	assert.True(t, byPath["bun.lockb"].Binary)
	assert.False(t, byPath["notes.txt"].Binary)
	// not a binary extension but not valid utf-8 either
	assert.True(t, byPath["weird.dat"].Binary)
}

func TestWalk_IgnoreFileAndGlobs(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string][]byte{
		".backupignore":          []byte("# local\n*.log\nprivate/\n"),
		"server/debug.log":       []byte("log\n"),
		"team/private/plan.md":   []byte("plan\n"),
		"team/public/plan.md":    []byte("plan\n"),
		"supabase/seed.sql":      []byte("insert\n"),
		"supabase/functions/a.ts": []byte("a\n"),
	})

	rules, err := NewIgnoreRules(nil, []string{"supabase/*.sql"})
	require.NoError(t, err)
	walker := NewTreeWalker(rules, ".backupignore", nil)

	files, err := walker.Walk(context.Background(), root)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{".backupignore", "supabase/functions/a.ts", "team/public/plan.md"}, relPaths(files))
}

func TestWalk_IsRestartable(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string][]byte{"a.txt": []byte("a\n")})
	walker := defaultWalker(t)

	first, err := walker.Walk(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, first, 1)

	writeTree(t, root, map[string][]byte{"b.txt": []byte("b\n")})
	second, err := walker.Walk(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, relPaths(second))
}

func TestWalk_ReadErrorAborts(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}

	root := t.TempDir()
	writeTree(t, root, map[string][]byte{"ok.txt": []byte("ok\n"), "secret.txt": []byte("no\n")})
	require.NoError(t, os.Chmod(filepath.Join(root, "secret.txt"), 0o000))
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(root, "secret.txt"), 0o644) })

	files, err := defaultWalker(t).Walk(context.Background(), root)
	assert.Error(t, err)
	assert.Nil(t, files)
}

func TestWalk_SkipsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	root := t.TempDir()
	writeTree(t, root, map[string][]byte{"real.txt": []byte("real\n")})
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")))

	files, err := defaultWalker(t).Walk(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"real.txt"}, relPaths(files))
}

func TestWalk_CanceledContext(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string][]byte{"a.txt": []byte("a\n")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := defaultWalker(t).Walk(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIgnoreRules(t *testing.T) {
	rules, err := NewIgnoreRules([]string{".git/", "backup-server.js", " ", ".git/"}, []string{"**/*.tmp"})
	require.NoError(t, err)

	assert.Len(t, rules.Tokens(), 2)
	assert.True(t, rules.ShouldIgnore(".git", true))
	assert.True(t, rules.ShouldIgnore("pkg/.git/config", false))
	assert.False(t, rules.ShouldIgnore(".gitignore", false))
	assert.False(t, rules.ShouldIgnore(".github", true))
	assert.True(t, rules.ShouldIgnore("scripts/backup-server.js", false))
	assert.True(t, rules.ShouldIgnore("a/b/c.tmp", false))
	assert.False(t, rules.ShouldIgnore("a/b/c.ts", false))

	_, err = NewIgnoreRules(nil, []string{"[unclosed"})
	assert.ErrorIs(t, err, ErrInvalidGlob)
}

func TestIsBinary(t *testing.T) {
	w := NewTreeWalker(&IgnoreRules{}, "", []string{"png", ".TAR.GZ"})
	assert.True(t, w.IsBinary("a/b.PNG"))
	assert.True(t, w.IsBinary("release.tar.gz"))
	assert.False(t, w.IsBinary("png.txt"))
}
