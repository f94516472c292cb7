package backup

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/givlyn/backupd/internal/githubsdk"
)

var errFakeUnavailable = &githubsdk.APIError{StatusCode: http.StatusBadGateway, Operation: "fake", Message: "Bad Gateway"}

// fakeGitStore is an in-memory GitStore with one repository.
// Trees are stored flat (path -> blob id), like a recursive listing.
type fakeGitStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	trees   map[string]map[string]string
	commits map[string]*githubsdk.Commit
	refs    map[string]string

	calls map[string]int

	// hooks return a non-nil error to fail the call
	failBlob      func(content []byte) error
	failTree      func() error
	failCommit    func() error
	failUpdateRef func() error
	failGetRef    func(call int) error
	beforeGetRef  func(call int)
}

func newFakeGitStore() *fakeGitStore {
	return &fakeGitStore{
		blobs:   map[string][]byte{},
		trees:   map[string]map[string]string{},
		commits: map[string]*githubsdk.Commit{},
		refs:    map[string]string{},
		calls:   map[string]int{},
	}
}

// seed creates an initial commit on branch holding files
func (s *fakeGitStore) seed(branch string, files map[string][]byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	flat := map[string]string{}
	for path, content := range files {
		id := string(ComputeContentID(content))
		s.blobs[id] = content
		flat[path] = id
	}
	treeID := s.storeTree(flat)
	commitID := s.storeCommit("initial", treeID, nil)
	s.refs[branch] = commitID
	return commitID
}

func (s *fakeGitStore) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *fakeGitStore) writeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls["CreateBlob"] + s.calls["CreateTree"] + s.calls["CreateCommit"] + s.calls["UpdateRef"]
}

// branchFiles returns the full content of the branch tip
func (s *fakeGitStore) branchFiles(branch string) map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	commit := s.commits[s.refs[branch]]
	out := map[string][]byte{}
	for path, id := range s.trees[commit.Tree.SHA] {
		out[path] = s.blobs[id]
	}
	return out
}

func (s *fakeGitStore) tipCommit(branch string) *githubsdk.Commit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits[s.refs[branch]]
}

func (s *fakeGitStore) storeTree(flat map[string]string) string {
	paths := make([]string, 0, len(flat))
	for p := range flat {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha1.New()
	for _, p := range paths {
		fmt.Fprintf(h, "%s %s\n", p, flat[p])
	}
	id := hex.EncodeToString(h.Sum(nil))
	s.trees[id] = flat
	return id
}

func (s *fakeGitStore) storeCommit(message, tree string, parents []string) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s\n%s\n%s\n%d", tree, strings.Join(parents, ","), message, len(s.commits))
	id := hex.EncodeToString(h.Sum(nil))

	refs := make([]githubsdk.ObjectRef, 0, len(parents))
	for _, p := range parents {
		refs = append(refs, githubsdk.ObjectRef{SHA: p})
	}
	s.commits[id] = &githubsdk.Commit{
		SHA:     id,
		Message: message,
		Tree:    githubsdk.ObjectRef{SHA: tree},
		Parents: refs,
	}
	return id
}

func notFound(op string) error {
	return &githubsdk.APIError{StatusCode: http.StatusNotFound, Operation: op, Message: "Not Found"}
}

func (s *fakeGitStore) GetRef(ctx context.Context, branch string) (*githubsdk.Ref, error) {
	s.mu.Lock()
	s.calls["GetRef"]++
	call := s.calls["GetRef"]
	hook := s.beforeGetRef
	s.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGetRef != nil {
		if err := s.failGetRef(call); err != nil {
			return nil, err
		}
	}
	sha, ok := s.refs[branch]
	if !ok {
		return nil, notFound("get ref")
	}
	return &githubsdk.Ref{
		Ref:    "refs/heads/" + branch,
		Object: githubsdk.ObjectRef{SHA: sha, Type: githubsdk.ObjectTypeCommit},
	}, nil
}

func (s *fakeGitStore) GetCommit(ctx context.Context, sha string) (*githubsdk.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["GetCommit"]++
	c, ok := s.commits[sha]
	if !ok {
		return nil, notFound("get commit")
	}
	cp := *c
	return &cp, nil
}

func (s *fakeGitStore) GetTree(ctx context.Context, sha string, recursive bool) (*githubsdk.Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["GetTree"]++
	flat, ok := s.trees[sha]
	if !ok {
		return nil, notFound("get tree")
	}

	dirs := map[string]bool{}
	tree := &githubsdk.Tree{SHA: sha}
	for path, id := range flat {
		tree.Entries = append(tree.Entries, githubsdk.TreeEntry{
			Path: path,
			Mode: githubsdk.ModeFile,
			Type: githubsdk.ObjectTypeBlob,
			SHA:  id,
			Size: int64(len(s.blobs[id])),
		})
		for dir := parentDir(path); dir != ""; dir = parentDir(dir) {
			dirs[dir] = true
		}
	}
	for dir := range dirs {
		tree.Entries = append(tree.Entries, githubsdk.TreeEntry{
			Path: dir,
			Mode: githubsdk.ModeDir,
			Type: githubsdk.ObjectTypeTree,
			SHA:  "tree-" + dir,
		})
	}
	return tree, nil
}

func parentDir(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

func (s *fakeGitStore) CreateBlob(ctx context.Context, params *githubsdk.CreateBlobParams) (*githubsdk.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["CreateBlob"]++

	content, err := DecodeContent(params.Content, params.Encoding)
	if err != nil {
		return nil, &githubsdk.APIError{StatusCode: http.StatusUnprocessableEntity, Operation: "create blob", Message: err.Error()}
	}
	if s.failBlob != nil {
		if err := s.failBlob(content); err != nil {
			return nil, err
		}
	}

	id := string(ComputeContentID(content))
	s.blobs[id] = content
	return &githubsdk.Blob{SHA: id}, nil
}

func (s *fakeGitStore) CreateTree(ctx context.Context, params *githubsdk.CreateTreeParams) (*githubsdk.Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["CreateTree"]++

	if s.failTree != nil {
		if err := s.failTree(); err != nil {
			return nil, err
		}
	}

	flat := map[string]string{}
	if params.BaseTree != "" {
		base, ok := s.trees[params.BaseTree]
		if !ok {
			return nil, notFound("create tree")
		}
		for p, id := range base {
			flat[p] = id
		}
	}
	for _, e := range params.Entries {
		if _, ok := s.blobs[e.SHA]; !ok {
			return nil, &githubsdk.APIError{StatusCode: http.StatusUnprocessableEntity, Operation: "create tree", Message: "unknown blob " + e.SHA}
		}
		flat[e.Path] = e.SHA
	}
	return &githubsdk.Tree{SHA: s.storeTree(flat)}, nil
}

func (s *fakeGitStore) CreateCommit(ctx context.Context, params *githubsdk.CreateCommitParams) (*githubsdk.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["CreateCommit"]++

	if s.failCommit != nil {
		if err := s.failCommit(); err != nil {
			return nil, err
		}
	}
	if _, ok := s.trees[params.Tree]; !ok {
		return nil, notFound("create commit")
	}
	id := s.storeCommit(params.Message, params.Tree, params.Parents)
	cp := *s.commits[id]
	return &cp, nil
}

func (s *fakeGitStore) UpdateRef(ctx context.Context, branch string, params *githubsdk.UpdateRefParams) (*githubsdk.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["UpdateRef"]++

	if s.failUpdateRef != nil {
		if err := s.failUpdateRef(); err != nil {
			return nil, err
		}
	}

	commit, ok := s.commits[params.SHA]
	if !ok {
		return nil, notFound("update ref")
	}
	current := s.refs[branch]
	if !params.Force && !hasParent(commit, current) {
		return nil, &githubsdk.APIError{StatusCode: http.StatusUnprocessableEntity, Operation: "update ref", Message: "Update is not a fast forward"}
	}
	s.refs[branch] = params.SHA
	return &githubsdk.Ref{Ref: "refs/heads/" + branch, Object: githubsdk.ObjectRef{SHA: params.SHA}}, nil
}

func hasParent(c *githubsdk.Commit, sha string) bool {
	for _, p := range c.Parents {
		if p.SHA == sha {
			return true
		}
	}
	return false
}

// moveBranch simulates another writer pushing to branch
func (s *fakeGitStore) moveBranch(branch string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tip := s.commits[s.refs[branch]]
	s.refs[branch] = s.storeCommit("someone else", tip.Tree.SHA, []string{tip.SHA})
}

var _ GitStore = (*fakeGitStore)(nil)

var errFlaky = errors.New("connection reset")
