package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{name: "empty path", input: "", wantError: true},
		{name: "relative path", input: "./test", wantError: false},
		{name: "home path", input: "~/test", wantError: false},
		{name: "absolute path", input: "/tmp/test", wantError: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ResolvePath(tt.input)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(result))
		})
	}
}

func TestRelSlashPath(t *testing.T) {
	base := t.TempDir()
	rel, err := RelSlashPath(base, filepath.Join(base, "a", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a/b/c.txt", rel)
}

func TestEnsureParentAndExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "nested", "deeper", "file.db")

	require.NoError(t, EnsureParent(file))
	assert.True(t, DirExists(filepath.Dir(file)))
	assert.False(t, FileExists(file))

	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.True(t, FileExists(file))
	assert.False(t, DirExists(file))
}
