package githubsdk

import (
	"context"
	"fmt"

	"github.com/imroc/req/v3"
)

// RepoAPI exposes the git data endpoints of one repository
type RepoAPI struct {
	client *req.Client
	owner  string
	name   string
}

func (r *RepoAPI) Owner() string { return r.owner }
func (r *RepoAPI) Name() string  { return r.name }

// GetRef resolves refs/heads/{branch}
func (r *RepoAPI) GetRef(ctx context.Context, branch string) (ref *Ref, err error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&ref).
		Get(repoPath(r.owner, r.name, "git/ref/heads", branch))

	if err := handleAPIError(resp, err, "get ref"); err != nil {
		return nil, err
	}
	if ref == nil || ref.Object.SHA == "" {
		return nil, fmt.Errorf("get ref %s: %w", branch, ErrEmptyResponse)
	}

	return ref, nil
}

func (r *RepoAPI) GetCommit(ctx context.Context, sha string) (commit *Commit, err error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&commit).
		Get(repoPath(r.owner, r.name, "git/commits", sha))

	if err := handleAPIError(resp, err, "get commit"); err != nil {
		return nil, err
	}
	if commit == nil || commit.Tree.SHA == "" {
		return nil, fmt.Errorf("get commit %s: %w", sha, ErrEmptyResponse)
	}

	return commit, nil
}

// GetTree fetches a tree, flattened to every descendant when recursive is set
func (r *RepoAPI) GetTree(ctx context.Context, sha string, recursive bool) (tree *Tree, err error) {
	request := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&tree)
	if recursive {
		request.SetQueryParam("recursive", "1")
	}

	resp, err := request.Get(repoPath(r.owner, r.name, "git/trees", sha))
	if err := handleAPIError(resp, err, "get tree"); err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, fmt.Errorf("get tree %s: %w", sha, ErrEmptyResponse)
	}

	return tree, nil
}

func (r *RepoAPI) CreateBlob(ctx context.Context, params *CreateBlobParams) (blob *Blob, err error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&blob).
		Post(repoPath(r.owner, r.name, "git/blobs"))

	if err := handleAPIError(resp, err, "create blob"); err != nil {
		return nil, err
	}
	if blob == nil || blob.SHA == "" {
		return nil, fmt.Errorf("create blob: %w", ErrEmptyResponse)
	}

	return blob, nil
}

func (r *RepoAPI) CreateTree(ctx context.Context, params *CreateTreeParams) (tree *Tree, err error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&tree).
		Post(repoPath(r.owner, r.name, "git/trees"))

	if err := handleAPIError(resp, err, "create tree"); err != nil {
		return nil, err
	}
	if tree == nil || tree.SHA == "" {
		return nil, fmt.Errorf("create tree: %w", ErrEmptyResponse)
	}

	return tree, nil
}

func (r *RepoAPI) CreateCommit(ctx context.Context, params *CreateCommitParams) (commit *Commit, err error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&commit).
		Post(repoPath(r.owner, r.name, "git/commits"))

	if err := handleAPIError(resp, err, "create commit"); err != nil {
		return nil, err
	}
	if commit == nil || commit.SHA == "" {
		return nil, fmt.Errorf("create commit: %w", ErrEmptyResponse)
	}

	return commit, nil
}

// UpdateRef moves refs/heads/{branch}. With Force unset GitHub rejects non fast-forward moves with 422.
func (r *RepoAPI) UpdateRef(ctx context.Context, branch string, params *UpdateRefParams) (ref *Ref, err error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&ref).
		Patch(repoPath(r.owner, r.name, "git/refs/heads", branch))

	if err := handleAPIError(resp, err, "update ref"); err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, fmt.Errorf("update ref %s: %w", branch, ErrEmptyResponse)
	}

	return ref, nil
}
