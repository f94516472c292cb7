package backup

import "github.com/givlyn/backupd/internal/backup"

type BackupStats struct {
	TotalFiles    int    `json:"totalFiles"`
	FilesReused   int    `json:"filesReused"`
	FilesModified int    `json:"filesModified"`
	FilesNew      int    `json:"filesNew"`
	APICallsSaved int    `json:"apiCallsSaved"`
	Efficiency    string `json:"efficiency"`
}

// BackupResponse is returned when a run committed changes
type BackupResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	RunID   string               `json:"runId"`
	Commit  string               `json:"commit,omitempty"`
	Stats   *BackupStats         `json:"stats,omitempty"`
	Failed  []backup.FileFailure `json:"failed,omitempty"`
}

// NoChangesResponse is returned when nothing had to be uploaded
type NoChangesResponse struct {
	Success      bool                 `json:"success"`
	Message      string               `json:"message"`
	RunID        string               `json:"runId"`
	FilesChecked int                  `json:"filesChecked"`
	FilesReused  int                  `json:"filesReused"`
	Failed       []backup.FileFailure `json:"failed,omitempty"`
}

type ListRunsRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

type ListRunsResponse struct {
	Runs []*backup.RunReport `json:"runs"`
}

type GetRunRequest struct {
	ID string `uri:"id" binding:"required,uuid"`
}
