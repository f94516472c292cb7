package metrics

import (
	"context"
	"time"

	"github.com/givlyn/backupd/internal/backup"
	"github.com/givlyn/backupd/internal/githubsdk"
)

// InstrumentGitStore wraps store so every call is counted and timed
func (m *Metrics) InstrumentGitStore(store backup.GitStore) backup.GitStore {
	return &instrumentedStore{next: store, m: m}
}

type instrumentedStore struct {
	next backup.GitStore
	m    *Metrics
}

func observe[T any](m *Metrics, op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	res, err := fn()
	m.RecordRemoteCall(op, time.Since(start), err)
	return res, err
}

func (s *instrumentedStore) GetRef(ctx context.Context, branch string) (*githubsdk.Ref, error) {
	return observe(s.m, "get_ref", func() (*githubsdk.Ref, error) {
		return s.next.GetRef(ctx, branch)
	})
}

func (s *instrumentedStore) GetCommit(ctx context.Context, sha string) (*githubsdk.Commit, error) {
	return observe(s.m, "get_commit", func() (*githubsdk.Commit, error) {
		return s.next.GetCommit(ctx, sha)
	})
}

func (s *instrumentedStore) GetTree(ctx context.Context, sha string, recursive bool) (*githubsdk.Tree, error) {
	return observe(s.m, "get_tree", func() (*githubsdk.Tree, error) {
		return s.next.GetTree(ctx, sha, recursive)
	})
}

func (s *instrumentedStore) CreateBlob(ctx context.Context, params *githubsdk.CreateBlobParams) (*githubsdk.Blob, error) {
	return observe(s.m, "create_blob", func() (*githubsdk.Blob, error) {
		return s.next.CreateBlob(ctx, params)
	})
}

func (s *instrumentedStore) CreateTree(ctx context.Context, params *githubsdk.CreateTreeParams) (*githubsdk.Tree, error) {
	return observe(s.m, "create_tree", func() (*githubsdk.Tree, error) {
		return s.next.CreateTree(ctx, params)
	})
}

func (s *instrumentedStore) CreateCommit(ctx context.Context, params *githubsdk.CreateCommitParams) (*githubsdk.Commit, error) {
	return observe(s.m, "create_commit", func() (*githubsdk.Commit, error) {
		return s.next.CreateCommit(ctx, params)
	})
}

func (s *instrumentedStore) UpdateRef(ctx context.Context, branch string, params *githubsdk.UpdateRefParams) (*githubsdk.Ref, error) {
	return observe(s.m, "update_ref", func() (*githubsdk.Ref, error) {
		return s.next.UpdateRef(ctx, branch, params)
	})
}
