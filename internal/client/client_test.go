package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNew_URLs(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantURL  string
		wantRoot string
		wantErr  bool
	}{
		{"adds trailing slash", "https://api.example.com/v4/acct", "https://api.example.com/v4/acct/", "https://api.example.com/v4", false},
		{"collapses slashes", "https://api.example.com/v4/acct///", "https://api.example.com/v4/acct/", "https://api.example.com/v4", false},
		{"host only", "http://127.0.0.1:8080", "http://127.0.0.1:8080/", "http://127.0.0.1:8080", false},
		{"relative rejected", "api.example.com/v4", "", "", true},
		{"path rejected", "/v4/acct", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(nil, tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if c.URL() != tt.wantURL {
				t.Errorf("URL() = %q, want %q", c.URL(), tt.wantURL)
			}
			if c.RootURL() != tt.wantRoot {
				t.Errorf("RootURL() = %q, want %q", c.RootURL(), tt.wantRoot)
			}
		})
	}
}

func TestConnect(t *testing.T) {
	t.Setenv("USER", "fallback")

	c, err := Connect("/acct/db", "", "pw")
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if want := DefaultURLBase + "/acct/db/"; c.URL() != want {
		t.Errorf("URL() = %q, want %q", c.URL(), want)
	}
	auth, ok := c.auth.(BasicAuth)
	if !ok || auth.Username != "fallback" || auth.Password != "pw" {
		t.Errorf("auth = %#v, want BasicAuth for fallback", c.auth)
	}

	if _, err := Connect("/acct", "user", ""); err == nil {
		t.Error("expected error without password")
	}
}

func TestExpandURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", DefaultURLBase + "/"},
		{"/", DefaultURLBase + "/"},
		{"/acct/db", DefaultURLBase + "/acct/db"},
		{"https://example.com/v1/x", "https://example.com/v1/x"},
	}

	for _, tt := range tests {
		if got := ExpandURL(tt.raw); got != tt.want {
			t.Errorf("ExpandURL(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}

	c, err := Connect("", "user", "pw")
	if err != nil {
		t.Fatalf("Connect with empty URL returned error: %v", err)
	}
	if want := DefaultURLBase + "/"; c.URL() != want {
		t.Errorf("URL() = %q, want %q", c.URL(), want)
	}
}

func TestChangePath(t *testing.T) {
	c, err := New(nil, "https://api.example.com/v4/acct")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	tests := []struct {
		path string
		want string
	}{
		{"projects/p1", "https://api.example.com/v4/acct/projects/p1/"},
		{"/other/projects", "https://api.example.com/v4/other/projects/"},
		{"/", "https://api.example.com/v4/"},
	}

	for _, tt := range tests {
		sub, err := c.ChangePath(tt.path)
		if err != nil {
			t.Fatalf("ChangePath(%q) error: %v", tt.path, err)
		}
		if sub.URL() != tt.want {
			t.Errorf("ChangePath(%q).URL() = %q, want %q", tt.path, sub.URL(), tt.want)
		}
		if sub.RootURL() != c.RootURL() {
			t.Errorf("ChangePath(%q) changed root to %q", tt.path, sub.RootURL())
		}
	}
	if c.URL() != "https://api.example.com/v4/acct/" {
		t.Errorf("parent URL changed to %q", c.URL())
	}
}

func TestClient_RequestsAndParams(t *testing.T) {
	type seen struct {
		method, path, query, contentType, body, auth, requestID string
	}
	var got seen

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = seen{
			method:      r.Method,
			path:        r.URL.Path,
			query:       r.URL.RawQuery,
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
			auth:        r.Header.Get("Authorization"),
			requestID:   r.Header.Get("X-Request-ID"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	t.Cleanup(server.Close)

	c, err := New(TokenAuth{Token: "t0k"}, server.URL+"/v4/acct")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := testContext(t)

	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.Get(ctx, "/docs", url.Values{"limit": {"5"}}, &out); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !out.OK {
		t.Error("response not decoded")
	}
	if got.method != http.MethodGet || got.path != "/v4/acct/docs/" || got.query != "limit=5" {
		t.Errorf("GET request = %+v", got)
	}
	if got.auth != "Bearer t0k" {
		t.Errorf("Authorization = %q, want bearer token", got.auth)
	}
	if got.requestID == "" {
		t.Error("X-Request-ID not set")
	}

	if err := c.Post(ctx, "topics/create", url.Values{"name": {"food"}}, nil); err != nil {
		t.Fatalf("Post returned error: %v", err)
	}
	if got.method != http.MethodPost || got.body != "name=food" || got.contentType != formContentType {
		t.Errorf("POST request = %+v", got)
	}

	if err := c.Patch(ctx, "doc", []byte(`{"a":1}`), "application/json", url.Values{"v": {"2"}}, nil); err != nil {
		t.Fatalf("Patch returned error: %v", err)
	}
	if got.method != http.MethodPatch || got.body != `{"a":1}` || got.query != "v=2" {
		t.Errorf("PATCH request = %+v", got)
	}

	if _, err := c.UploadDocuments(ctx, []map[string]any{{"text": "hi"}}); err != nil {
		t.Fatalf("UploadDocuments returned error: %v", err)
	}
	if got.path != "/v4/acct/upload_documents/" || got.body != `[{"text":"hi"}]` || got.contentType != jsonContentType {
		t.Errorf("upload request = %+v", got)
	}

	if err := c.Delete(ctx, "topics/t1", nil, nil); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if got.method != http.MethodDelete {
		t.Errorf("method = %q, want DELETE", got.method)
	}
}

func TestClient_Documentation(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("API docs"))
	}))
	t.Cleanup(server.Close)

	c, _ := New(nil, server.URL+"/v4/acct/db")
	doc, err := c.Documentation(testContext(t))
	if err != nil {
		t.Fatalf("Documentation returned error: %v", err)
	}
	if doc != "API docs" || gotPath != "/v4/" {
		t.Errorf("Documentation = %q from %q, want API docs from /v4/", doc, gotPath)
	}
}

func TestClient_StatusError(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"server error", http.StatusInternalServerError},
		{"unauthorized", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("  nope  "))
			}))
			t.Cleanup(server.Close)

			c, _ := New(nil, server.URL+"/v4")
			err := c.Get(testContext(t), "meta", nil, nil)

			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("error = %v, want *StatusError", err)
			}
			if se.StatusCode != tt.status || se.Method != http.MethodGet {
				t.Errorf("StatusError = %+v", se)
			}
			if se.Body != "nope" {
				t.Errorf("Body = %q, want trimmed body", se.Body)
			}
			if !strings.Contains(se.Error(), "/v4/meta/") {
				t.Errorf("Error() = %q, want URL included", se.Error())
			}
		})
	}
}

func TestClient_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	t.Cleanup(server.Close)

	c, _ := New(nil, server.URL)
	var out map[string]any
	err := c.Get(testContext(t), "x", nil, &out)
	if err == nil || !strings.HasPrefix(err.Error(), "decode response:") {
		t.Errorf("error = %v, want decode response error", err)
	}
}

func TestClient_AuthErrorStopsRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(server.Close)

	c, _ := New(BasicAuth{}, server.URL)
	if err := c.Get(testContext(t), "", nil, nil); err == nil {
		t.Fatal("expected authentication error")
	}
	if called {
		t.Error("request sent despite auth failure")
	}
}

func TestBasicAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := (BasicAuth{Username: "u", Password: "p"}).Authenticate(req); err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	user, pass, ok := req.BasicAuth()
	if !ok || user != "u" || pass != "p" {
		t.Errorf("BasicAuth() = %q, %q, %v", user, pass, ok)
	}
}

func TestAuthFunc(t *testing.T) {
	auth := AuthFunc(func(r *http.Request) error {
		r.Header.Set("X-Key", "k")
		return nil
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_ = auth.Authenticate(req)
	if req.Header.Get("X-Key") != "k" {
		t.Error("AuthFunc not applied")
	}
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{Method: "GET", URL: "https://x/y/", StatusCode: 500}
	want := "api GET https://x/y/ returned status 500"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	var target *StatusError
	if !errors.As(error(err), &target) {
		t.Error("errors.As failed")
	}
}
