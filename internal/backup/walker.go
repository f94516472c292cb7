package backup

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/givlyn/backupd/internal/utils"
)

// TreeWalker enumerates the files of a local tree for one backup run.
// Every Walk starts from scratch, nothing is cached between runs.
type TreeWalker struct {
	rules      *IgnoreRules
	ignoreFile string
	binaryExts mapset.Set[string]
}

// NewTreeWalker creates a walker. ignoreFile is the name of an optional gitignore-style
// file looked up in the walk root, empty disables it.
func NewTreeWalker(rules *IgnoreRules, ignoreFile string, binaryExtensions []string) *TreeWalker {
	exts := mapset.NewThreadUnsafeSet[string]()
	for _, ext := range binaryExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts.Add(ext)
	}

	return &TreeWalker{
		rules:      rules,
		ignoreFile: ignoreFile,
		binaryExts: exts,
	}
}

// IsBinary classifies a path by its extension, case-insensitively
func (w *TreeWalker) IsBinary(relPath string) bool {
	lower := strings.ToLower(relPath)
	found := false
	w.binaryExts.Each(func(ext string) bool {
		found = strings.HasSuffix(lower, ext)
		return found
	})
	return found
}

// Walk reads every non-ignored regular file under root. Any read error aborts the walk.
// Entries are returned in lexical walk order.
func (w *TreeWalker) Walk(ctx context.Context, root string) ([]*FileEntry, error) {
	rules := w.rules
	if w.ignoreFile != "" {
		withFile, err := rules.WithIgnoreFile(filepath.Join(root, w.ignoreFile))
		if err != nil {
			return nil, err
		}
		rules = withFile
	}

	var files []*FileEntry
	var skippedDirs, skippedFiles int

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk %s: %w", path, walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if path == root {
			return nil
		}

		relPath, err := utils.RelSlashPath(root, path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}

		if rules.ShouldIgnore(relPath, d.IsDir()) {
			if d.IsDir() {
				skippedDirs++
				return filepath.SkipDir
			}
			skippedFiles++
			return nil
		}

		if d.IsDir() {
			return nil
		}

		// symlinks, sockets, devices
		if !d.Type().IsRegular() {
			slog.Debug("walk skip irregular file", "path", relPath, "type", d.Type().String())
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", relPath, err)
		}

		binary := w.IsBinary(relPath)
		if !binary && !utf8.Valid(content) {
			// sending invalid utf-8 as text would change the bytes, and with them the blob id
			slog.Debug("walk invalid utf-8, sending as binary", "path", relPath)
			binary = true
		}

		files = append(files, &FileEntry{
			RelPath: relPath,
			Binary:  binary,
			Content: content,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local walk failed: %w", err)
	}

	slog.Debug("walk complete", "root", root, "files", len(files), "ignoredDirs", skippedDirs, "ignoredFiles", skippedFiles)
	return files, nil
}
