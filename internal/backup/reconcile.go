package backup

import (
	"context"
	"errors"
	"log/slog"

	"github.com/givlyn/backupd/internal/githubsdk"
	"github.com/givlyn/backupd/internal/retry"
)

const (
	FallbackStale   = "stale"
	FallbackDropped = "dropped"
)

// Counts summarizes one reconcile pass
type Counts struct {
	Total         int   `json:"total"`
	Reused        int   `json:"reused"`
	Uploaded      int   `json:"uploaded"`
	Modified      int   `json:"modified"`
	Added         int   `json:"added"`
	Failed        int   `json:"failed"`
	Dropped       int   `json:"dropped"`
	// Unlisted are uploads of files missing from a truncated remote listing.
	// They may already exist on the branch, so they count as neither modified nor added.
	Unlisted      int   `json:"unlisted"`
	BytesUploaded int64 `json:"bytesUploaded"`
}

// FileFailure is a file whose upload failed on every attempt.
// Fallback is "stale" when the previous remote id was kept, "dropped" when the file was left out.
type FileFailure struct {
	Path     string `json:"path"`
	Error    string `json:"error"`
	Fallback string `json:"fallback"`
}

type ReconcileResult struct {
	Changes  []TreeChangeEntry
	Counts   Counts
	Failures []FileFailure
}

// NoChanges reports whether nothing was uploaded, in which case no commit must be made
func (r *ReconcileResult) NoChanges() bool {
	return r.Counts.Uploaded == 0
}

// Reconciler decides per file whether the remote blob can be reused or a new one is needed.
// Files are processed one at a time in walk order.
type Reconciler struct {
	git       GitStore
	policy    retry.Policy
	// truncated is set when index came from a truncated listing
	truncated bool
}

func NewReconciler(git GitStore, policy retry.Policy) *Reconciler {
	return &Reconciler{git: git, policy: policy}
}

// Reconcile builds the tree changes for files against index.
// Upload failures are absorbed into the result, only a done ctx returns an error.
func (r *Reconciler) Reconcile(ctx context.Context, files []*FileEntry, index RemoteTreeIndex) (*ReconcileResult, error) {
	res := &ReconcileResult{
		Changes: make([]TreeChangeEntry, 0, len(files)),
	}
	res.Counts.Total = len(files)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		localID := ComputeContentID(file.Content)
		remoteID, existed := index[file.RelPath]

		if existed && remoteID == localID {
			res.Changes = append(res.Changes, newTreeChange(file.RelPath, remoteID))
			res.Counts.Reused++
			continue
		}

		newID, err := r.upload(ctx, file)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}

			res.Counts.Failed++
			failure := FileFailure{Path: file.RelPath, Error: err.Error()}
			if existed {
				failure.Fallback = FallbackStale
				res.Changes = append(res.Changes, newTreeChange(file.RelPath, remoteID))
			} else {
				failure.Fallback = FallbackDropped
				res.Counts.Dropped++
			}
			res.Failures = append(res.Failures, failure)
			slog.Warn("upload failed", "path", file.RelPath, "fallback", failure.Fallback, "error", err)
			continue
		}

		if newID != localID {
			// the store hashed different bytes than we did, the next run will upload it again
			slog.Warn("upload id mismatch", "path", file.RelPath, "local", localID.Short(), "remote", newID.Short())
		}

		res.Changes = append(res.Changes, newTreeChange(file.RelPath, newID))
		res.Counts.Uploaded++
		res.Counts.BytesUploaded += file.Size()
		switch {
		case existed:
			res.Counts.Modified++
			slog.Debug("upload modified", "path", file.RelPath, "id", newID.Short())
		case r.truncated:
			res.Counts.Unlisted++
			slog.Debug("upload unlisted", "path", file.RelPath, "id", newID.Short())
		default:
			res.Counts.Added++
			slog.Debug("upload new", "path", file.RelPath, "id", newID.Short())
		}
	}

	return res, nil
}

func (r *Reconciler) upload(ctx context.Context, file *FileEntry) (ContentID, error) {
	params := &githubsdk.CreateBlobParams{
		Content:  file.Payload(),
		Encoding: file.Encoding(),
	}

	blob, err := retry.Do(ctx, r.policy, func(ctx context.Context) (*githubsdk.Blob, error) {
		return r.git.CreateBlob(ctx, params)
	})
	if err != nil {
		return "", err
	}
	return ContentID(blob.SHA), nil
}
