package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hpungsan/grimoire/internal/config"
	"github.com/hpungsan/grimoire/internal/item"
	"github.com/hpungsan/grimoire/internal/repo"
)

func setupServer(t *testing.T) (*http.Server, *repo.Repository) {
	t.Helper()
	cfg := config.DefaultConfig()
	r, err := repo.Open(context.Background(), t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("repo.Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	srv, err := NewServer(r, cfg, zerolog.Nop(), "test")
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv, r
}

func serve(srv *http.Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Addr(t *testing.T) {
	srv, _ := setupServer(t)
	if srv.Addr != "127.0.0.1:8484" {
		t.Errorf("Addr = %q, want 127.0.0.1:8484", srv.Addr)
	}
}

func TestServer_RootRedirects(t *testing.T) {
	srv, _ := setupServer(t)

	rec := serve(srv, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if rec.Header().Get("Location") != "/items" {
		t.Errorf("Location = %q, want /items", rec.Header().Get("Location"))
	}
}

func TestServer_SecurityHeadersAndRequestID(t *testing.T) {
	srv, _ := setupServer(t)

	rec := serve(srv, httptest.NewRequest("GET", "/items", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected X-Frame-Options header")
	}
	if !strings.Contains(rec.Header().Get("Content-Security-Policy"), "default-src 'self'") {
		t.Error("expected Content-Security-Policy header")
	}
	if _, err := uuid.Parse(rec.Header().Get(RequestIDHeader)); err != nil {
		t.Errorf("request id %q is not a UUID", rec.Header().Get(RequestIDHeader))
	}
}

func TestServer_KeepsClientRequestID(t *testing.T) {
	srv, _ := setupServer(t)
	id := uuid.NewString()

	req := httptest.NewRequest("GET", "/items", nil)
	req.Header.Set(RequestIDHeader, id)
	rec := serve(srv, req)

	if rec.Header().Get(RequestIDHeader) != id {
		t.Errorf("request id = %q, want %q", rec.Header().Get(RequestIDHeader), id)
	}

	req = httptest.NewRequest("GET", "/items", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	rec = serve(srv, req)
	if rec.Header().Get(RequestIDHeader) == "not-a-uuid" {
		t.Error("malformed request id should be replaced")
	}
}

func TestServer_RoutesPathValues(t *testing.T) {
	srv, r := setupServer(t)
	name, content := "routed", "body"
	it, err := r.Create(context.Background(), item.Candidate{
		Category: item.CategoryPrompt,
		Fields:   item.Fields{Name: &name, Content: &content},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := httptest.NewRequest("GET", "/items/"+it.ID, nil)
	req.Header.Set("Accept", "application/json")
	if rec := serve(srv, req); rec.Code != http.StatusOK {
		t.Fatalf("detail status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest("GET", "/items/"+it.ID+"/history", nil)
	if rec := serve(srv, req); rec.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200", rec.Code)
	}

	// /items/search must not be captured by /items/{id}
	req = httptest.NewRequest("GET", "/items/search?q=routed", nil)
	if rec := serve(srv, req); !strings.Contains(rec.Body.String(), "routed") {
		t.Error("expected search page with result")
	}

	req = httptest.NewRequest("DELETE", "/items/"+it.ID, nil)
	req.Header.Set("Accept", "application/json")
	if rec := serve(srv, req); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rec.Code)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv, _ := setupServer(t)

	rec := serve(srv, httptest.NewRequest("POST", "/items", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv, r := setupServer(t)
	name, content := "metered", "body"
	if _, err := r.Create(context.Background(), item.Candidate{
		Category: item.CategoryPrompt,
		Fields:   item.Fields{Name: &name, Content: &content},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := serve(srv, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `grimoire_repository_operations_total{operation="create",status="ok"} 1`) {
		t.Errorf("expected create counter in metrics output:\n%s", rec.Body.String())
	}
}

func TestServer_StaticAssets(t *testing.T) {
	srv, _ := setupServer(t)

	rec := serve(srv, httptest.NewRequest("GET", "/static/style.css", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/css") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
}
