package backup

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/givlyn/backupd/internal/backup"
	"github.com/givlyn/backupd/internal/history"
	"github.com/givlyn/backupd/internal/server/handlers/api"
	"github.com/google/uuid"
)

var errHistoryDisabled = errors.New("run history is disabled")

type Runner interface {
	Run(ctx context.Context, trigger string) (*backup.RunReport, error)
}

type HistoryStore interface {
	List(ctx context.Context, limit int) ([]*backup.RunReport, error)
	Get(ctx context.Context, id uuid.UUID) (*backup.RunReport, error)
}

type BackupHandler struct {
	runner  Runner
	history HistoryStore
}

// New creates the handler. history may be nil when the journal is disabled.
func New(runner Runner, history HistoryStore) *BackupHandler {
	return &BackupHandler{runner: runner, history: history}
}

// Backup runs one backup and reports its summary
func (h *BackupHandler) Backup(ctx *gin.Context) {
	// a started run is not tied to the client connection
	runCtx := context.WithoutCancel(ctx.Request.Context())

	report, err := h.runner.Run(runCtx, backup.TriggerAPI)
	if err != nil {
		status, code := statusForError(err)
		message := "Backup failed"
		if report != nil && report.Status == backup.StatusSkipped {
			message = report.Message()
		}
		api.AbortWithMessage(ctx, status, code, message, err)
		return
	}

	if report.NoChanges() {
		ctx.PureJSON(http.StatusOK, &NoChangesResponse{
			Success:      true,
			Message:      report.Message(),
			RunID:        report.ID.String(),
			FilesChecked: report.Counts.Total,
			FilesReused:  report.Counts.Reused,
			Failed:       report.Failures,
		})
		return
	}

	ctx.PureJSON(http.StatusOK, &BackupResponse{
		Success: true,
		Message: report.Message(),
		RunID:   report.ID.String(),
		Commit:  report.ShortCommit(),
		Stats: &BackupStats{
			TotalFiles:    report.Counts.Total,
			FilesReused:   report.Counts.Reused,
			FilesModified: report.Counts.Modified,
			FilesNew:      report.Counts.Added,
			APICallsSaved: report.APICallsSaved(),
			Efficiency:    report.Efficiency(),
		},
		Failed: report.Failures,
	})
}

func (h *BackupHandler) ListRuns(ctx *gin.Context) {
	if h.history == nil {
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeHistoryDisabled, errHistoryDisabled)
		return
	}

	var req ListRunsRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	runs, err := h.history.List(ctx.Request.Context(), req.Limit)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &ListRunsResponse{Runs: runs})
}

func (h *BackupHandler) GetRun(ctx *gin.Context) {
	if h.history == nil {
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeHistoryDisabled, errHistoryDisabled)
		return
	}

	var req GetRunRequest
	if err := ctx.ShouldBindUri(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	run, err := h.history.Get(ctx.Request.Context(), uuid.MustParse(req.ID))
	if errors.Is(err, history.ErrRunNotFound) {
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeRunNotFound, err)
		return
	} else if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	ctx.PureJSON(http.StatusOK, run)
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, backup.ErrMissingCredentials):
		return http.StatusBadRequest, api.CodeMissingCredentials
	case errors.Is(err, backup.ErrBackupInProgress):
		return http.StatusConflict, api.CodeBackupInProgress
	case errors.Is(err, backup.ErrConcurrentModification):
		return http.StatusConflict, api.CodeConcurrentModification
	default:
		return http.StatusInternalServerError, api.CodeBackupFailed
	}
}
