package githubsdk

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
)

var (
	ErrInvalidBaseURL = errors.New("sdk: invalid base url")
	ErrEmptyResponse  = errors.New("sdk: empty response")
)

// APIError is the error body GitHub returns for 4xx/5xx responses
type APIError struct {
	StatusCode       int    `json:"-"`
	Operation        string `json:"-"`
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api error: %s status=%d message=%q", e.Operation, e.StatusCode, e.Message)
}

// IsNotFound reports 404s, GitHub also uses 404 for repositories the token cannot see
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnprocessable reports 422s, e.g. a non fast-forward ref update
func (e *APIError) IsUnprocessable() bool {
	return e.StatusCode == http.StatusUnprocessableEntity
}

// AsAPIError unwraps err into an *APIError
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// handleAPIError is a helper function that handles the common error pattern
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s: %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Operation:  operation,
		}
		if body := resp.Bytes(); len(body) > 0 {
			if err := jsonUnmarshal(body, apiErr); err != nil || apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	return nil
}
