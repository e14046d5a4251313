package integration

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/rhuss/chatserver/pkg/api"
)

func TestInvalidJSON(t *testing.T) {
	resp, err := http.Post(
		testEnv.BaseURL()+"/api/register",
		"application/json",
		bytes.NewReader([]byte(`{invalid json`)),
	)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}

	var errResp api.ErrorResponse
	decodeJSON(t, resp, &errResp)

	if errResp.Error == nil {
		t.Fatal("error object is nil")
	}
	if errResp.Error.Type != api.ErrorTypeInvalidRequest {
		t.Errorf("error.type = %q, want %q", errResp.Error.Type, api.ErrorTypeInvalidRequest)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	registerUser(t, "Taken", "taken@example.com", "correct-horse")

	tests := []struct {
		name    string
		path    string
		body    any
		status  int
		errType api.ErrorType
	}{
		{
			name:    "duplicate email",
			path:    "/api/register",
			body:    api.CreateUser{Fullname: "Again", Email: "taken@example.com", Password: "correct-horse"},
			status:  http.StatusConflict,
			errType: api.ErrorTypeConflict,
		},
		{
			name:    "wrong password",
			path:    "/api/login",
			body:    api.LoginUser{Email: "taken@example.com", Password: "incorrect"},
			status:  http.StatusUnauthorized,
			errType: api.ErrorTypeUnauthorized,
		},
		{
			name:    "invalid email",
			path:    "/api/register",
			body:    api.CreateUser{Fullname: "X", Email: "nope", Password: "correct-horse"},
			status:  http.StatusBadRequest,
			errType: api.ErrorTypeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, testEnv.BaseURL()+tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			var errResp api.ErrorResponse
			decodeJSON(t, resp, &errResp)
			if errResp.Error == nil || errResp.Error.Type != tt.errType {
				t.Errorf("error = %+v, want type %q", errResp.Error, tt.errType)
			}
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	resp, err := http.Get(testEnv.BaseURL() + "/api/unknown")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	readBody(t, resp)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
