package errors

import (
	"encoding/json"
	"net/http"
)

// ToJSON renders the flat envelope used by the dashboard: {error, message, details}.
func (e *APIError) ToJSON() ([]byte, error) {
	body := map[string]interface{}{
		"error": e.Code,
	}
	if e.Message != "" {
		body["message"] = e.Message
	}
	if e.Type != "" && e.Type != e.Code {
		body["type"] = e.Type
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	return json.Marshal(body)
}

func New(httpStatus int, code, errType, message string) *APIError {
	return &APIError{HTTPStatus: httpStatus, Code: code, Type: errType, Message: message}
}

func (e *APIError) WithDetails(details map[string]interface{}) *APIError {
	e.Details = details
	return e
}

// WithDetail sets a single details entry.
func (e *APIError) WithDetail(key string, value interface{}) *APIError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsCritical reports errors that require the user to re-authenticate.
func (e *APIError) IsCritical() bool {
	switch e.HTTPStatus {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return e.Code == "reauth_required"
}
