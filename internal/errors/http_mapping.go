package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// FromError maps the error taxonomy onto the HTTP envelope returned to dashboard clients.
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if As(err, &apiErr) {
		return apiErr
	}
	if ce, ok := AsConfig(err); ok {
		return New(http.StatusInternalServerError, "config_error", "config_error", ce.Error())
	}
	if IsUnauthenticated(err) {
		return New(http.StatusUnauthorized, "unauthenticated", "authentication_error",
			"Not authenticated with the CRM. Visit /auth to connect your account.")
	}
	if ue, ok := AsUpstream(err); ok {
		mapped := MapHTTPError(ue.Status, ue.Body)
		if ue.Err != nil {
			mapped = MapNetworkError(ue.Err)
		}
		out := New(http.StatusInternalServerError, "upstream_error", mapped.Type, mapped.Message).
			WithDetail("endpoint", ue.Endpoint).
			WithDetail("upstream_code", mapped.Code)
		if ue.Status > 0 {
			out.WithDetail("status", ue.Status)
		}
		if len(ue.Body) > 0 {
			var decoded any
			if json.Unmarshal(ue.Body, &decoded) == nil {
				out.WithDetail("upstream", decoded)
			} else {
				out.WithDetail("upstream_raw", truncate(string(ue.Body), 2048))
			}
		}
		return out
	}
	var ae *UpstreamAuthError
	if As(err, &ae) {
		out := New(http.StatusInternalServerError, "token_exchange_failed", "authentication_error", ae.Error())
		if ae.Status > 0 {
			out.WithDetail("status", ae.Status)
		}
		return out
	}
	return New(http.StatusInternalServerError, "server_error", "server_error", err.Error())
}

// MapHTTPError maps HTTP status codes and upstream payloads to standardized errors.
func MapHTTPError(statusCode int, upstreamBody []byte) *APIError {
	upstreamMsg := extractUpstreamMessage(upstreamBody)

	switch statusCode {
	case http.StatusBadRequest:
		return New(statusCode, "invalid_request_error", "invalid_request_error", firstNonEmpty(upstreamMsg, "Invalid request"))
	case http.StatusUnauthorized:
		return New(statusCode, "invalid_token", "authentication_error", firstNonEmpty(upstreamMsg, "Invalid authentication"))
	case http.StatusForbidden:
		return New(statusCode, "permission_denied", "permission_error", firstNonEmpty(upstreamMsg, "Permission denied"))
	case http.StatusNotFound:
		return New(statusCode, "not_found", "invalid_request_error", firstNonEmpty(upstreamMsg, "Resource not found"))
	case http.StatusUnprocessableEntity:
		return New(statusCode, "unprocessable_entity", "invalid_request_error", firstNonEmpty(upstreamMsg, "Unprocessable entity"))
	case http.StatusTooManyRequests:
		return New(statusCode, "rate_limit_exceeded", "rate_limit_error", firstNonEmpty(upstreamMsg, "Rate limit exceeded"))
	case http.StatusInternalServerError:
		return New(statusCode, "server_error", "server_error", firstNonEmpty(upstreamMsg, "Internal server error"))
	case http.StatusBadGateway:
		return New(statusCode, "bad_gateway", "server_error", firstNonEmpty(upstreamMsg, "Bad gateway"))
	case http.StatusServiceUnavailable:
		return New(statusCode, "service_unavailable", "server_error", firstNonEmpty(upstreamMsg, "Service temporarily unavailable"))
	case http.StatusGatewayTimeout:
		return New(statusCode, "timeout", "timeout_error", firstNonEmpty(upstreamMsg, "Request timeout"))
	default:
		return New(statusCode, "unknown_error", "server_error", firstNonEmpty(upstreamMsg, fmt.Sprintf("HTTP %d error", statusCode)))
	}
}

// extractUpstreamMessage understands both {"error":{"message":..}} and the
// CRM's flat {"message":..} / {"msg":..} bodies.
func extractUpstreamMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var jsonErr map[string]interface{}
	if err := json.Unmarshal(body, &jsonErr); err == nil {
		if errObj, ok := jsonErr["error"].(map[string]interface{}); ok {
			if msg, ok := errObj["message"].(string); ok && msg != "" {
				return msg
			}
		}
		for _, key := range []string{"message", "msg", "error"} {
			if msg, ok := jsonErr[key].(string); ok && msg != "" {
				return msg
			}
		}
	}
	return truncate(string(body), 200)
}

func firstNonEmpty(strs ...string) string {
	for _, s := range strs {
		if s != "" {
			return s
		}
	}
	return ""
}
