package backup

import (
	"context"

	"github.com/givlyn/backupd/internal/githubsdk"
)

// GitStore is the remote object store a run reads from and writes to.
// *githubsdk.RepoAPI implements it for one repository.
type GitStore interface {
	GetRef(ctx context.Context, branch string) (*githubsdk.Ref, error)
	GetCommit(ctx context.Context, sha string) (*githubsdk.Commit, error)
	GetTree(ctx context.Context, sha string, recursive bool) (*githubsdk.Tree, error)
	CreateBlob(ctx context.Context, params *githubsdk.CreateBlobParams) (*githubsdk.Blob, error)
	CreateTree(ctx context.Context, params *githubsdk.CreateTreeParams) (*githubsdk.Tree, error)
	CreateCommit(ctx context.Context, params *githubsdk.CreateCommitParams) (*githubsdk.Commit, error)
	UpdateRef(ctx context.Context, branch string, params *githubsdk.UpdateRefParams) (*githubsdk.Ref, error)
}

var _ GitStore = (*githubsdk.RepoAPI)(nil)
