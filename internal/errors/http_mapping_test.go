package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func TestFromErrorUnauthenticated(t *testing.T) {
	got := FromError(fmt.Errorf("proxy: %w", ErrUnauthenticated))
	if got.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", got.HTTPStatus)
	}
	if got.Code != "unauthenticated" || got.Message == "" {
		t.Fatalf("unexpected envelope: %+v", got)
	}
}

func TestFromErrorUpstreamPassesBodyThrough(t *testing.T) {
	err := &UpstreamError{Endpoint: "/contacts/", Status: 422, Body: []byte(`{"message":"locationId required"}`)}
	got := FromError(err)
	if got.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got.HTTPStatus)
	}
	if got.Details["status"] != 422 {
		t.Fatalf("expected upstream status in details, got %v", got.Details)
	}
	upstream, ok := got.Details["upstream"].(map[string]interface{})
	if !ok || upstream["message"] != "locationId required" {
		t.Fatalf("expected decoded upstream body, got %v", got.Details["upstream"])
	}
	if got.Message != "locationId required" {
		t.Fatalf("expected upstream message, got %q", got.Message)
	}
}

func TestFromErrorUpstreamNetwork(t *testing.T) {
	err := &UpstreamError{Endpoint: "/opportunities/search", Err: context.DeadlineExceeded}
	got := FromError(err)
	if got.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got.HTTPStatus)
	}
	if got.Details["upstream_code"] != "timeout" {
		t.Fatalf("expected timeout classification, got %v", got.Details["upstream_code"])
	}
}

func TestFromErrorConfig(t *testing.T) {
	got := FromError(&ConfigError{Field: "CLIENT_ID"})
	if got.HTTPStatus != http.StatusInternalServerError || got.Code != "config_error" {
		t.Fatalf("unexpected envelope: %+v", got)
	}
}

func TestAPIErrorToJSON(t *testing.T) {
	body, err := New(http.StatusUnauthorized, "unauthenticated", "authentication_error", "visit /auth").ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	want := `{"error":"unauthenticated","message":"visit /auth","type":"authentication_error"}`
	if string(body) != want {
		t.Fatalf("unexpected json %s", body)
	}
}
