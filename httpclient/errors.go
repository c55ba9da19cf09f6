package httpclient

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kroma-labs/dbcleaner-go/httpserver"
)

// APIError is returned when the admin API answers with a 4xx or 5xx status.
type APIError struct {
	StatusCode int
	Message    string
	Errors     []httpserver.Error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "httpclient: admin API returned %d", e.StatusCode)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for _, fe := range e.Errors {
		fmt.Fprintf(&b, "; %s: %s", fe.Field, fe.Message)
	}
	return b.String()
}

// StatusCode returns the HTTP status of err when it wraps an *APIError,
// or 0 otherwise.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
