package backup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/givlyn/backupd/internal/githubsdk"
)

// RemoteState is the branch tip a run diffs against. It is read once per run and never mutated.
type RemoteState struct {
	CommitID  ContentID
	TreeID    ContentID
	Index     RemoteTreeIndex
	Truncated bool
}

// SnapshotReader reads the remote branch tip: ref, commit, recursive tree
type SnapshotReader struct {
	git GitStore
}

func NewSnapshotReader(git GitStore) *SnapshotReader {
	return &SnapshotReader{git: git}
}

// ReadRemoteState resolves branch to its commit and root tree and indexes every blob path.
// Reads are not retried: without a valid base state the run has nothing to diff against.
func (r *SnapshotReader) ReadRemoteState(ctx context.Context, branch string) (*RemoteState, error) {
	ref, err := r.git.GetRef(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("get ref %s: %w", branch, err)
	}

	commit, err := r.git.GetCommit(ctx, ref.Object.SHA)
	if err != nil {
		return nil, fmt.Errorf("get commit %s: %w", ContentID(ref.Object.SHA).Short(), err)
	}

	tree, err := r.git.GetTree(ctx, commit.Tree.SHA, true)
	if err != nil {
		return nil, fmt.Errorf("get tree %s: %w", ContentID(commit.Tree.SHA).Short(), err)
	}

	index := make(RemoteTreeIndex, len(tree.Entries))
	for _, entry := range tree.Entries {
		if entry.Type != githubsdk.ObjectTypeBlob {
			continue
		}
		index[entry.Path] = ContentID(entry.SHA)
	}

	if tree.Truncated {
		slog.Warn("remote tree listing truncated, unlisted files will be uploaded again", "branch", branch, "entries", len(index))
	}

	slog.Debug("remote state", "branch", branch, "commit", ContentID(commit.SHA).Short(), "tree", ContentID(commit.Tree.SHA).Short(), "blobs", len(index))

	return &RemoteState{
		CommitID:  ContentID(ref.Object.SHA),
		TreeID:    ContentID(commit.Tree.SHA),
		Index:     index,
		Truncated: tree.Truncated,
	}, nil
}
