package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/givlyn/backupd/internal/githubsdk"
	"github.com/givlyn/backupd/internal/retry"
)

var ErrConcurrentModification = errors.New("branch moved during backup")

const (
	StageTree   = "tree"
	StageCommit = "commit"
	StageRef    = "ref"
)

const commitTimeLayout = "2006-01-02 15:04:05 UTC"

// PublishError reports the publish step that failed. Objects created by earlier
// steps are left unreferenced on the remote.
type PublishError struct {
	Stage string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Stage, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

type PublishRequest struct {
	Branch         string
	BaseTreeID     ContentID
	ParentCommitID ContentID
	Changes        []TreeChangeEntry
	Modified       int
	Added          int
}

// Publisher turns tree changes into a commit on the branch:
// create tree, create commit, move the ref (fast-forward only)
type Publisher struct {
	git    GitStore
	policy retry.Policy
	now    func() time.Time
}

func NewPublisher(git GitStore, policy retry.Policy) *Publisher {
	return &Publisher{git: git, policy: policy, now: time.Now}
}

// CommitMessage is the message of an automated backup commit
func CommitMessage(at time.Time, modified, added int) string {
	return fmt.Sprintf("Automated backup - %s\n\nModified: %d\nNew: %d", at.UTC().Format(commitTimeLayout), modified, added)
}

// Publish returns the id of the new commit the branch now points at
func (p *Publisher) Publish(ctx context.Context, req *PublishRequest) (ContentID, error) {
	entries := make([]githubsdk.TreeEntry, 0, len(req.Changes))
	for _, change := range req.Changes {
		entries = append(entries, change.toAPI())
	}

	tree, err := retry.Do(ctx, p.policy, func(ctx context.Context) (*githubsdk.Tree, error) {
		return p.git.CreateTree(ctx, &githubsdk.CreateTreeParams{
			BaseTree: string(req.BaseTreeID),
			Entries:  entries,
		})
	})
	if err != nil {
		return "", &PublishError{Stage: StageTree, Err: err}
	}
	slog.Debug("publish tree created", "tree", ContentID(tree.SHA).Short(), "entries", len(entries))

	message := CommitMessage(p.now(), req.Modified, req.Added)
	commit, err := retry.Do(ctx, p.policy, func(ctx context.Context) (*githubsdk.Commit, error) {
		return p.git.CreateCommit(ctx, &githubsdk.CreateCommitParams{
			Message: message,
			Tree:    tree.SHA,
			Parents: []string{string(req.ParentCommitID)},
		})
	})
	if err != nil {
		return "", &PublishError{Stage: StageCommit, Err: err}
	}
	commitID := ContentID(commit.SHA)
	slog.Debug("publish commit created", "commit", commitID.Short(), "parent", req.ParentCommitID.Short())

	if err := p.updateRef(ctx, req.Branch, req.ParentCommitID, commitID); err != nil {
		return "", &PublishError{Stage: StageRef, Err: err}
	}

	return commitID, nil
}

func (p *Publisher) updateRef(ctx context.Context, branch string, parent, commit ContentID) error {
	current, err := p.git.GetRef(ctx, branch)
	if err != nil {
		return fmt.Errorf("re-read ref %s: %w", branch, err)
	}
	if ContentID(current.Object.SHA) != parent {
		return fmt.Errorf("%w: %s is at %s, expected %s", ErrConcurrentModification, branch, ContentID(current.Object.SHA).Short(), parent.Short())
	}

	return retry.Run(ctx, p.policy, func(ctx context.Context) error {
		_, err := p.git.UpdateRef(ctx, branch, &githubsdk.UpdateRefParams{
			SHA:   string(commit),
			Force: false,
		})
		if apiErr, ok := githubsdk.AsAPIError(err); ok && apiErr.IsUnprocessable() {
			// not a fast-forward anymore, retrying cannot fix it
			return retry.Stop(fmt.Errorf("%w: %v", ErrConcurrentModification, apiErr))
		}
		return err
	})
}
