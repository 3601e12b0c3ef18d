// ABOUTME: Error taxonomy for backend calls
// ABOUTME: 401 session-fatal sentinel, 422 field errors, generic status errors

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned for any 401 response. It is session-fatal:
// the owning session must drop to the unauthenticated state rather than
// retry the operation.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is a non-2xx response outside the 401/422 taxonomy.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("backend returned %d: %s", e.Code, body)
}

// ValidationError is a 422 response carrying per-field messages. It is
// recovered locally: the caller annotates the offending form fields and
// does not retry automatically.
type ValidationError struct {
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for field, msgs := range e.Fields {
		parts = append(parts, field+": "+strings.Join(msgs, "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// FieldErrors returns the messages for a single field, or nil.
func (e *ValidationError) FieldErrors(field string) []string {
	return e.Fields[field]
}

// validationPayload mirrors the backend's 422 response body.
type validationPayload struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// decodeError maps a non-2xx response into the error taxonomy. The body
// is consumed.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusUnprocessableEntity:
		var payload validationPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return &ValidationError{Message: string(body)}
		}
		return &ValidationError{Message: payload.Message, Fields: payload.Errors}
	default:
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
}
