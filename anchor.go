// Package anchor is a local-first personal knowledge engine: it
// decomposes ingested content into compounds, molecules, and atoms,
// builds a bipartite atom/tag graph, detects near-duplicate drift, and
// answers free-text queries with the Semantic Search Executor.
package anchor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/anchorsh/anchor/internal/embedding"
	"github.com/anchorsh/anchor/internal/ingest"
	"github.com/anchorsh/anchor/internal/model"
	"github.com/anchorsh/anchor/internal/query"
	"github.com/anchorsh/anchor/internal/resource"
	"github.com/anchorsh/anchor/internal/search"
	"github.com/anchorsh/anchor/internal/store"
	"github.com/anchorsh/anchor/internal/vectorindex"
)

// Runtime is the main entry point. Unlike a global-singleton engine, a
// caller can construct as many independent Runtimes as it needs (one per
// database), each owning its own store, vector index, and pipelines.
type Runtime struct {
	cfg      Config
	store    *store.Store
	vectors  *vectorindex.Index
	embedder embedding.Embedder
	resource *resource.Monitor
	pipeline *ingest.Pipeline
	executor *search.Executor
}

// IngestResult is the outcome of a single Ingest call.
type IngestResult struct {
	Status     string
	CompoundID string
	NMolecules int
	NEntities  int
	Warnings   []string
}

// SearchRequest is the Universal Semantic Search API's input.
type SearchRequest struct {
	Query           string
	MaxChars        int
	CodeWeight      float64
	Buckets         []string
	Provenance      []model.Provenance
	IncludeVariants bool
}

// SearchResponse is the Universal Semantic Search API's output.
type SearchResponse struct {
	Context  string
	Results  []search.Result
	Strategy string
	Partial  bool
}

// New opens the store, vector index, embedder, resource monitor, and
// ingestion pipeline described by cfg, applying spec.md §6's documented
// defaults for any zero-valued field.
func New(cfg Config) (*Runtime, error) {
	dbPath := cfg.resolveDBPath()

	if cfg.Vector.Dim == 0 {
		cfg.Vector.Dim = 768
	}
	if cfg.Search.MaxCharsDefault == 0 {
		cfg.Search.MaxCharsDefault = DefaultConfig().Search.MaxCharsDefault
	}
	if cfg.Search.MaxCharsLimit == 0 {
		cfg.Search.MaxCharsLimit = DefaultConfig().Search.MaxCharsLimit
	}
	if cfg.Search.CodeWeightDefault == 0 {
		cfg.Search.CodeWeightDefault = DefaultConfig().Search.CodeWeightDefault
	}
	if cfg.Buckets.Default == "" {
		cfg.Buckets.Default = "inbox"
	}

	st, err := store.New(dbPath, cfg.Vector.Dim)
	if err != nil {
		return nil, NewError(KindFatal, "anchor.New", fmt.Errorf("opening store: %w", err))
	}

	vectors, err := vectorindex.New(context.Background(), st.DB())
	if err != nil {
		st.Close()
		return nil, NewError(KindFatal, "anchor.New", fmt.Errorf("opening vector index: %w", err))
	}

	embedder := embedding.New(embedding.Config{
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		APIKey:  cfg.Embedding.APIKey,
		Dim:     cfg.Vector.Dim,
	})

	pipeline := ingest.New(st, vectors, embedder, ingest.Config{
		MaxContentBytes: cfg.Ingest.MaxContentBytes,
		ChunkBytes:      cfg.Ingest.ChunkBytes,
		OverlapBytes:    cfg.Ingest.OverlapBytes,
		DriftThreshold:  cfg.Vector.DriftThreshold,
		DefaultBucket:   cfg.Buckets.Default,
	})

	mon := resource.New(resource.Config{
		GCCooldown:            msToDuration(cfg.Resource.GCCooldownMS),
		MemoryMonitorInterval: msToDuration(cfg.Resource.MemoryMonitorIntervalMS),
		HeapCriticalPct:       cfg.Resource.HeapCriticalPct,
		CeilingBytes:          cfg.Resource.CeilingBytes,
	}, func() {
		// The resource monitor's only cache-flush hook today: nothing in
		// Anchor keeps an evictable in-memory cache beyond the SQLite page
		// cache, which runtime.GC() alone cannot shrink, so this is a no-op
		// sized for future caches (e.g. a hot-query result cache) without
		// one yet. The ingestion abort itself runs through
		// Monitor.Exhausted, not this callback.
	})
	pipeline.SetResourceMonitor(mon)

	rt := &Runtime{
		cfg:      cfg,
		store:    st,
		vectors:  vectors,
		embedder: embedder,
		pipeline: pipeline,
		executor: search.New(st, vectors, embedder),
	}

	if err := mon.Start(context.Background()); err != nil {
		st.Close()
		return nil, NewError(KindFatal, "anchor.New", fmt.Errorf("starting resource monitor: %w", err))
	}
	rt.resource = mon

	slog.Info("anchor runtime opened", "db_path", dbPath, "vector_dim", cfg.Vector.Dim)
	return rt, nil
}

// Close releases the resource monitor, ingestion pipeline, and store.
func (r *Runtime) Close() error {
	r.resource.Close()
	r.pipeline.Close()
	return r.store.Close()
}

// Ingest decomposes content into a compound/molecule/atom tree, derives
// tags, runs the drift gate, and commits everything transactionally
// (spec §4.7). provenance, buckets, and tags may be zero-valued: the
// pipeline treats an empty provenance as internal and empty buckets as
// the configured default bucket; nil tags add no user tags.
func (r *Runtime) Ingest(ctx context.Context, content []byte, path string, provenance model.Provenance, buckets, tags []string) (IngestResult, error) {
	if len(content) == 0 {
		return IngestResult{}, NewError(KindInvalidInput, "anchor.Ingest", fmt.Errorf("empty content for %s", path))
	}
	if !utf8.Valid(content) {
		return IngestResult{}, NewError(KindInvalidInput, "anchor.Ingest", fmt.Errorf("%w: %s", ErrInvalidUTF8, path))
	}

	slog.Info("ingest starting", "path", path, "bytes", len(content), "provenance", provenance)
	res, err := r.pipeline.Enqueue(ctx, content, path, provenance, buckets, tags)
	if err != nil {
		slog.Error("ingest failed", "path", path, "error", err)
		return IngestResult{}, mapIngestErr(err)
	}
	slog.Info("ingest finished", "path", path, "compound_id", res.CompoundID, "molecules", res.NMolecules, "atoms", res.NEntities)
	return IngestResult{
		Status:     res.Status,
		CompoundID: res.CompoundID,
		NMolecules: res.NMolecules,
		NEntities:  res.NEntities,
		Warnings:   res.Warnings,
	}, nil
}

// Search runs the Query Planner and the Semantic Search Executor over
// req and returns a packed, byte-budgeted context (spec §4.8, §4.9).
func (r *Runtime) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return SearchResponse{}, NewError(KindInvalidInput, "anchor.Search", ErrEmptyQuery)
	}

	maxChars := req.MaxChars
	if maxChars <= 0 {
		maxChars = r.cfg.Search.MaxCharsDefault
	}
	if maxChars > r.cfg.Search.MaxCharsLimit {
		maxChars = r.cfg.Search.MaxCharsLimit
	}
	codeWeight := req.CodeWeight
	if codeWeight == 0 {
		codeWeight = r.cfg.Search.CodeWeightDefault
	}

	plan := query.Build(req.Query, maxChars, codeWeight)
	filters := search.Filters{
		Buckets:         req.Buckets,
		Provenance:      req.Provenance,
		IncludeVariants: req.IncludeVariants,
	}

	start := time.Now()
	resp := r.executor.Search(ctx, plan, req.Query, filters, maxChars)
	elapsedMS := time.Since(start).Milliseconds()

	out := SearchResponse{
		Context:  resp.Context,
		Results:  resp.Results,
		Strategy: resp.Strategy,
		Partial:  resp.Metadata.Partial,
	}

	if err := r.store.LogQuery(ctx, req.Query, resp.Strategy, len(resp.Results), elapsedMS, resp.Metadata.Partial); err != nil {
		// Offline tuning data is disposable; never fail a search over it.
		slog.Warn("search: logging query failed", "error", err)
	}

	if resp.Metadata.Err != "" {
		slog.Error("search failed", "query", req.Query, "phase", resp.Metadata.Phase, "error", resp.Metadata.Err)
		return out, NewError(KindPartial, "anchor.Search", fmt.Errorf("%s", resp.Metadata.Err))
	}
	slog.Info("search completed", "query", req.Query, "strategy", resp.Strategy, "results", len(resp.Results), "elapsed_ms", elapsedMS, "partial", resp.Metadata.Partial)
	return out, nil
}

// GetCompound retrieves a single compound by id.
func (r *Runtime) GetCompound(ctx context.Context, id string) (model.Compound, error) {
	c, err := r.store.GetCompound(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Compound{}, NewError(KindNotFound, "anchor.GetCompound", ErrCompoundNotFound)
		}
		return model.Compound{}, NewError(KindTransientStore, "anchor.GetCompound", err)
	}
	return *c, nil
}

// GetAtom retrieves a single atom by id.
func (r *Runtime) GetAtom(ctx context.Context, id string) (model.Atom, error) {
	a, err := r.store.GetAtom(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Atom{}, NewError(KindNotFound, "anchor.GetAtom", ErrAtomNotFound)
		}
		return model.Atom{}, NewError(KindTransientStore, "anchor.GetAtom", err)
	}
	return *a, nil
}

func mapIngestErr(err error) error {
	if err == context.DeadlineExceeded || err == context.Canceled {
		return NewError(KindPartial, "anchor.Ingest", err)
	}
	if errors.Is(err, ingest.ErrResourceExhausted) {
		return NewError(KindResourceExhausted, "anchor.Ingest", ErrResourceExhausted)
	}
	return NewError(KindTransientStore, "anchor.Ingest", err)
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
