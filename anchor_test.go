//go:build cgo

package anchor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/anchorsh/anchor/internal/model"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	cfg.Vector.Dim = 4
	rt, err := New(cfg)
	if err != nil {
		t.Fatalf("opening runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestIngestThenSearchRoundTrips(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	res, err := rt.Ingest(ctx, []byte("Alice met Bob in Paris to discuss the quarterly budget."), "/tmp/notes.txt", model.ProvenanceInternal, nil, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.CompoundID == "" {
		t.Fatal("expected a non-empty compound id")
	}

	resp, err := rt.Search(ctx, SearchRequest{Query: "alice budget", MaxChars: 2000})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Context) == 0 {
		t.Fatal("expected packed context from the ingested content")
	}
}

func TestIngestRejectsEmptyContent(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.Ingest(context.Background(), nil, "/tmp/empty.txt", model.ProvenanceInternal, nil, nil)
	if err == nil {
		t.Fatal("expected an error for empty content")
	}
	var anchorErr *Error
	if !errors.As(err, &anchorErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if anchorErr.Kind != KindInvalidInput {
		t.Fatalf("expected KindInvalidInput, got %v", anchorErr.Kind)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.Search(context.Background(), SearchRequest{Query: ""})
	if err == nil {
		t.Fatal("expected an error for an empty query")
	}
}

func TestSearchOnEmptyStoreReturnsEmptyStrategy(t *testing.T) {
	rt := newTestRuntime(t)
	resp, err := rt.Search(context.Background(), SearchRequest{Query: "anything at all"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Strategy != "empty" {
		t.Fatalf("expected empty strategy on an empty store, got %q", resp.Strategy)
	}
}

func TestIngestRejectsInvalidUTF8(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.Ingest(context.Background(), []byte{0xff, 0xfe, 0xfd}, "/tmp/bad.bin", model.ProvenanceInternal, nil, nil)
	if err == nil {
		t.Fatal("expected an error for invalid UTF-8 content")
	}
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8, got %v", err)
	}
}

func TestGetCompoundNotFound(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.GetCompound(context.Background(), "does-not-exist")
	if !errors.Is(err, ErrCompoundNotFound) {
		t.Fatalf("expected ErrCompoundNotFound, got %v", err)
	}
	var anchorErr *Error
	if !errors.As(err, &anchorErr) || anchorErr.Kind != KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestGetAtomNotFound(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.GetAtom(context.Background(), "does-not-exist")
	if !errors.Is(err, ErrAtomNotFound) {
		t.Fatalf("expected ErrAtomNotFound, got %v", err)
	}
}

func TestGetCompoundAfterIngest(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	res, err := rt.Ingest(ctx, []byte("Alice met Bob in Paris."), "/tmp/a.txt", model.ProvenanceInternal, nil, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	compound, err := rt.GetCompound(ctx, res.CompoundID)
	if err != nil {
		t.Fatalf("get compound: %v", err)
	}
	if compound.ID != res.CompoundID {
		t.Fatalf("expected compound id %q, got %q", res.CompoundID, compound.ID)
	}
}

