package api

import "fmt"

// APIError is the body of every non-2xx response
type APIError struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: code=%s, message=%s, error=%s", e.Code, e.Message, e.Err)
}

func NewAPIError(code, message string, err error) *APIError {
	apiErr := &APIError{Code: code, Message: message}
	if err != nil {
		apiErr.Err = err.Error()
	}
	if apiErr.Message == "" {
		apiErr.Message = apiErr.Err
	}
	return apiErr
}
