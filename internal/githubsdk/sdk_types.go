package githubsdk

const (
	ObjectTypeBlob   = "blob"
	ObjectTypeTree   = "tree"
	ObjectTypeCommit = "commit"

	ModeFile       = "100644"
	ModeExecutable = "100755"
	ModeDir        = "040000"

	EncodingUTF8   = "utf-8"
	EncodingBase64 = "base64"
)

type ObjectRef struct {
	SHA  string `json:"sha"`
	Type string `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Ref is a git reference, e.g. refs/heads/main
type Ref struct {
	Ref    string    `json:"ref"`
	Object ObjectRef `json:"object"`
}

type Commit struct {
	SHA     string      `json:"sha"`
	Message string      `json:"message"`
	Tree    ObjectRef   `json:"tree"`
	Parents []ObjectRef `json:"parents"`
}

type TreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
	Size int64  `json:"size,omitempty"`
}

type Tree struct {
	SHA       string      `json:"sha"`
	Entries   []TreeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

type Blob struct {
	SHA string `json:"sha"`
	URL string `json:"url,omitempty"`
}

type CreateBlobParams struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type CreateTreeParams struct {
	BaseTree string      `json:"base_tree,omitempty"`
	Entries  []TreeEntry `json:"tree"`
}

type CreateCommitParams struct {
	Message string   `json:"message"`
	Tree    string   `json:"tree"`
	Parents []string `json:"parents"`
}

type UpdateRefParams struct {
	SHA   string `json:"sha"`
	Force bool   `json:"force"`
}
