package openpayments

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidResponse marks a remote payload that failed schema validation.
var ErrInvalidResponse = errors.New("invalid open payments response")

// Error is a non-2xx answer from an authorization or resource server.
type Error struct {
	StatusCode  int
	Code        string
	Description string
	Method      string
	URL         string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidResponse, fmt.Sprintf(format, args...))
}

// parseError understands both {"error":{"code","description"}} and the
// flat GNAP form {"error":"code","error_description":"..."}.
func parseError(method, url string, status int, body []byte) *Error {
	e := &Error{StatusCode: status, Method: method, URL: url}
	var envelope struct {
		Error       json.RawMessage `json:"error"`
		Description string          `json:"error_description"`
		Message     string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return e
	}
	var nested struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	}
	var flat string
	switch {
	case len(envelope.Error) == 0:
	case json.Unmarshal(envelope.Error, &nested) == nil:
		e.Code, e.Description = nested.Code, nested.Description
	case json.Unmarshal(envelope.Error, &flat) == nil:
		e.Code = flat
	}
	if e.Description == "" {
		e.Description = envelope.Description
	}
	if e.Description == "" {
		e.Description = envelope.Message
	}
	return e
}
