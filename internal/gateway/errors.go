package gateway

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// APIError is a non-2xx (or body-level failure) reply from the pass gateway.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("pass gateway: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("pass gateway: %s (status %d)", http.StatusText(e.StatusCode), e.StatusCode)
}

// newAPIError extracts a server-provided message and field-error map when
// present; the caller falls back to a generic per-action message otherwise.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	for _, path := range []string{"message", "error", "detail"} {
		if m := gjson.GetBytes(body, path); m.Type == gjson.String && m.String() != "" {
			apiErr.Message = m.String()
			break
		}
	}

	if errs := gjson.GetBytes(body, "errors"); errs.IsObject() {
		apiErr.Fields = make(map[string]string)
		errs.ForEach(func(key, value gjson.Result) bool {
			apiErr.Fields[key.String()] = value.String()
			return true
		})
	}
	return apiErr
}
