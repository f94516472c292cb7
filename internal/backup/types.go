package backup

import (
	"encoding/base64"

	"github.com/givlyn/backupd/internal/githubsdk"
)

// ContentID is a git blob id: 40 lowercase hex chars
type ContentID string

// Short returns the 7 character abbreviation git shows in logs
func (id ContentID) Short() string {
	if len(id) <= 7 {
		return string(id)
	}
	return string(id[:7])
}

// FileEntry is one file found by the walker. It lives for a single run only.
type FileEntry struct {
	RelPath string // slash separated, relative to the walk root
	Binary  bool
	Content []byte
}

// Encoding is the encoding the payload is sent with
func (f *FileEntry) Encoding() string {
	if f.Binary {
		return githubsdk.EncodingBase64
	}
	return githubsdk.EncodingUTF8
}

// Payload is the file content as sent to the blob API
func (f *FileEntry) Payload() string {
	if f.Binary {
		return base64.StdEncoding.EncodeToString(f.Content)
	}
	return string(f.Content)
}

func (f *FileEntry) Size() int64 {
	return int64(len(f.Content))
}

// RemoteTreeIndex maps a blob path on the branch tip to its content id
type RemoteTreeIndex map[string]ContentID

// TreeChangeEntry is one row of the tree sent to the create-tree call
type TreeChangeEntry struct {
	Path      string
	Mode      string
	Type      string
	ContentID ContentID
}

func newTreeChange(path string, id ContentID) TreeChangeEntry {
	return TreeChangeEntry{
		Path:      path,
		Mode:      githubsdk.ModeFile,
		Type:      githubsdk.ObjectTypeBlob,
		ContentID: id,
	}
}

func (e TreeChangeEntry) toAPI() githubsdk.TreeEntry {
	return githubsdk.TreeEntry{
		Path: e.Path,
		Mode: e.Mode,
		Type: e.Type,
		SHA:  string(e.ContentID),
	}
}
