package api

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeUnauthorized   = "E_UNAUTHORIZED"    // missing or wrong bearer token
	CodeNotFound       = "E_NOT_FOUND"       // route or resource not found

	// Backup errors
	CodeMissingCredentials     = "E_MISSING_CREDENTIALS"     // no github token configured
	CodeBackupInProgress       = "E_BACKUP_IN_PROGRESS"      // another run holds the branch lock
	CodeConcurrentModification = "E_CONCURRENT_MODIFICATION" // the branch moved while the run was publishing
	CodeBackupFailed           = "E_BACKUP_FAILED"           // remote read, walk or publish failed
	CodeHistoryDisabled        = "E_HISTORY_DISABLED"        // run history is not enabled
	CodeRunNotFound            = "E_RUN_NOT_FOUND"           // no run with the given id
)
