package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedPostsToAPIEmbedAndParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Fatalf("expected /api/embed, got %s", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Input) != 2 {
			t.Fatalf("expected 2 inputs, got %d", len(req.Input))
		}
		json.NewEncoder(w).Encode(embedResponse{
			Embeddings: [][]float64{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	defer srv.Close()

	e := New(Config{BaseURL: srv.URL, Model: "test-model", Dim: 2})
	out, err := e.Embed(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(out) != 2 || len(out[0]) != 2 {
		t.Fatalf("unexpected shape: %+v", out)
	}
	if out[1][1] != float32(0.4) {
		t.Fatalf("expected 0.4, got %f", out[1][1])
	}
}

func TestEmbedEmptyInputIsNoop(t *testing.T) {
	e := New(Config{Dim: 2})
	out, err := e.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil output for empty input, got %+v", out)
	}
}

func TestEmbedSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	e := New(Config{BaseURL: srv.URL, Dim: 2})
	if _, err := e.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected an error from a 500 response")
	}
}

func TestDimReturnsConfiguredDimension(t *testing.T) {
	e := New(Config{Dim: 768})
	if e.Dim() != 768 {
		t.Fatalf("expected dim 768, got %d", e.Dim())
	}
}
