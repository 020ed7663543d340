// Package ingest implements the pipeline that turns raw content bytes
// into a stored compound: atomize, embed, drift-gate, derive tags, and
// commit everything in a single transaction. Content under the size
// gate takes the single-shot path; larger content streams through
// overlapping windows processed serially against the same compound.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/anchorsh/anchor/internal/atomizer"
	"github.com/anchorsh/anchor/internal/embedding"
	"github.com/anchorsh/anchor/internal/fingerprint"
	"github.com/anchorsh/anchor/internal/model"
	"github.com/anchorsh/anchor/internal/resource"
	"github.com/anchorsh/anchor/internal/store"
	"github.com/anchorsh/anchor/internal/vectorindex"
)

// ErrResourceExhausted is returned when a resource monitor wired in via
// SetResourceMonitor reports the heap still over its ceiling after a GC
// attempt; the current ingestion is aborted at entry, before any
// atomizing or embedding work begins, or between streaming windows,
// before the next window is atomized. Nothing is committed either way.
var ErrResourceExhausted = errors.New("ingest: resource ceiling exceeded")

// Config carries the ingest.* and vector.* options the pipeline needs.
type Config struct {
	MaxContentBytes int
	ChunkBytes      int
	OverlapBytes    int
	DriftThreshold  float64
	DefaultBucket   string
	QueueDepth      int
}

// Result is the Ingest API's return value.
type Result struct {
	Status     string
	CompoundID string
	NMolecules int
	NEntities  int
	Warnings   []string
}

// Pipeline owns the size gate, drift gate, and the single serial worker
// that drains the backpressure queue.
type Pipeline struct {
	store    *store.Store
	vectors  *vectorindex.Index
	embedder embedding.Embedder
	cfg      Config
	queue    chan job
	monitor  *resource.Monitor
}

type job struct {
	ctx        context.Context
	content    []byte
	path       string
	provenance model.Provenance
	buckets    []string
	tags       []string
	result     chan jobResult
}

type jobResult struct {
	res Result
	err error
}

// New constructs a Pipeline backed by st, vectors, and embedder. The
// returned Pipeline starts a single background worker draining its
// bounded queue; call Close to stop it.
func New(st *store.Store, vectors *vectorindex.Index, embedder embedding.Embedder, cfg Config) *Pipeline {
	if cfg.ChunkBytes <= 0 {
		cfg.ChunkBytes = 100 * 1024
	}
	if cfg.OverlapBytes <= 0 {
		cfg.OverlapBytes = 1024
	}
	if cfg.MaxContentBytes <= 0 {
		cfg.MaxContentBytes = 500 * 1024
	}
	if cfg.DriftThreshold <= 0 {
		cfg.DriftThreshold = 0.05
	}
	if cfg.DefaultBucket == "" {
		cfg.DefaultBucket = "inbox"
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1
	}

	p := &Pipeline{
		store:    st,
		vectors:  vectors,
		embedder: embedder,
		cfg:      cfg,
		queue:    make(chan job, cfg.QueueDepth),
	}
	go p.worker()
	return p
}

// Close stops the background worker. Pending Enqueue calls that have
// not yet been accepted onto the queue will block until their context
// is canceled.
func (p *Pipeline) Close() { close(p.queue) }

// SetResourceMonitor wires mon's heap-ceiling signal into the pipeline:
// once mon reports Exhausted, Ingest aborts cleanly instead of atomizing
// or embedding further content. mon may be nil, in which case the
// pipeline never aborts for resource reasons.
func (p *Pipeline) SetResourceMonitor(mon *resource.Monitor) { p.monitor = mon }

func (p *Pipeline) worker() {
	for j := range p.queue {
		res, err := p.Ingest(j.ctx, j.content, j.path, j.provenance, j.buckets, j.tags)
		j.result <- jobResult{res: res, err: err}
	}
}

// Enqueue submits content to the bounded single-producer-single-consumer
// queue, blocking the caller if the queue is full (the file-watcher
// collaborator's backpressure contract) and waits for the result.
func (p *Pipeline) Enqueue(ctx context.Context, content []byte, path string, provenance model.Provenance, buckets, tags []string) (Result, error) {
	resultCh := make(chan jobResult, 1)
	j := job{ctx: ctx, content: content, path: path, provenance: provenance, buckets: buckets, tags: tags, result: resultCh}

	select {
	case p.queue <- j:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case r := <-resultCh:
		return r.res, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Ingest runs the size gate and dispatches to the single-shot or
// streaming path. It is safe to call directly (bypassing the queue) when
// a caller already serializes its own ingestion.
func (p *Pipeline) Ingest(ctx context.Context, content []byte, path string, provenance model.Provenance, buckets, userTags []string) (Result, error) {
	if len(content) == 0 {
		return Result{}, fmt.Errorf("ingest %s: empty content", path)
	}
	if p.monitor != nil && p.monitor.Exhausted() {
		slog.Warn("ingest aborted: heap ceiling exceeded", "path", path, "bytes", len(content))
		return Result{}, fmt.Errorf("ingest %s: %w", path, ErrResourceExhausted)
	}
	if len(buckets) == 0 {
		buckets = []string{p.cfg.DefaultBucket}
	}
	if provenance == "" {
		provenance = model.ProvenanceInternal
	}

	slog.Debug("ingest dispatching", "path", path, "bytes", len(content), "provenance", provenance)
	if len(content) > p.cfg.MaxContentBytes {
		return p.ingestStreaming(ctx, content, path, provenance, buckets, userTags)
	}
	return p.ingestSingleShot(ctx, content, path, provenance, buckets, userTags)
}

func (p *Pipeline) ingestSingleShot(ctx context.Context, content []byte, path string, provenance model.Provenance, buckets, userTags []string) (Result, error) {
	compound, molecules, atoms, err := atomizer.Atomize(content, path, provenance)
	if err != nil {
		return Result{}, fmt.Errorf("atomizing %s: %w", path, err)
	}

	variants, err := p.driftGate(ctx, molecules)
	if err != nil {
		return Result{}, fmt.Errorf("drift gate for %s: %w", path, err)
	}

	return p.commit(ctx, compound, molecules, atoms, variants, buckets, userTags)
}

func (p *Pipeline) ingestStreaming(ctx context.Context, content []byte, path string, provenance model.Provenance, buckets, userTags []string) (Result, error) {
	canonical := atomizer.Canonicalize(content)
	compoundID := atomizer.CompoundID(path, canonical)
	compound := model.Compound{
		ID:         compoundID,
		Path:       path,
		Body:       canonical,
		IngestedAt: time.Now(),
		Provenance: provenance,
		Signature:  fingerprint.Fingerprint(canonical),
	}

	var allMolecules []model.Molecule
	var allAtoms []model.Atom
	seq := 0

	windows := computeWindows(canonical, p.cfg.ChunkBytes)
	slog.Debug("ingest streaming", "path", path, "windows", len(windows), "bytes", len(content))

	for _, w := range windows {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}
		if p.monitor != nil && p.monitor.Exhausted() {
			slog.Warn("ingest aborted mid-stream: heap ceiling exceeded", "path", path, "window_start", w.start)
			return Result{}, fmt.Errorf("ingest %s: %w", path, ErrResourceExhausted)
		}

		// Read slightly past the core window so a sentence or
		// paragraph spanning the boundary completes correctly; drop
		// anything that starts inside the overlap tail, since the
		// next window will regenerate it as part of its own core
		// range. This keeps the committed molecule set gap-free and
		// duplicate-free despite the overlapping reads.
		extendedEnd := w.end + p.cfg.OverlapBytes
		if extendedEnd > len(canonical) {
			extendedEnd = len(canonical)
		}

		molecules, atoms, next := atomizer.AtomizeSpans(canonical, w.start, extendedEnd, compoundID, seq, provenance)
		seq = next

		kept := make(map[string]bool, len(molecules))
		for _, m := range molecules {
			if m.StartByte >= w.end {
				continue
			}
			allMolecules = append(allMolecules, m)
			kept[m.ID] = true
		}
		for _, a := range atoms {
			if kept[a.MoleculeID] {
				allAtoms = append(allAtoms, a)
			}
		}
	}

	variants, err := p.driftGate(ctx, allMolecules)
	if err != nil {
		return Result{}, fmt.Errorf("drift gate for %s: %w", path, err)
	}

	return p.commit(ctx, compound, allMolecules, allAtoms, variants, buckets, userTags)
}

func (p *Pipeline) commit(ctx context.Context, compound model.Compound, molecules []model.Molecule, atoms []model.Atom, variants []model.VariantEdge, buckets, userTags []string) (Result, error) {
	// A compound whose every molecule drifted to an existing one is
	// itself a pure duplicate; mark it variant too so the default census
	// (internal/store's AtomPositions) excludes it the same way it
	// excludes the molecules that triggered the exclusion.
	if allMoleculesVariant(molecules) {
		compound.Provenance = model.ProvenanceVariant
	}

	batch := buildBatch(compound, molecules, atoms, variants, buckets, userTags)

	if err := p.store.WriteIngestBatch(ctx, batch); err != nil {
		slog.Error("ingest commit failed", "compound_id", compound.ID, "path", compound.Path, "error", err)
		return Result{}, fmt.Errorf("writing ingest batch for %s: %w", compound.Path, err)
	}
	slog.Info("ingest committed", "compound_id", compound.ID, "path", compound.Path,
		"molecules", len(molecules), "variant_edges", len(variants), "provenance", compound.Provenance)

	var warnings []string
	if batch.SkippedTags > 0 {
		warnings = append(warnings, fmt.Sprintf("skipped %d oversized tag(s)", batch.SkippedTags))
	}

	return Result{
		Status:     "ok",
		CompoundID: compound.ID,
		NMolecules: len(molecules),
		NEntities:  countUniqueAtoms(atoms),
		Warnings:   warnings,
	}, nil
}

// driftGate queries the 1-nearest neighbor for each molecule's
// embedding; a distance under the configured threshold marks the
// molecule a variant of its nearest neighbor's owning molecule instead
// of adding it to the vector index.
func (p *Pipeline) driftGate(ctx context.Context, molecules []model.Molecule) ([]model.VariantEdge, error) {
	if len(molecules) == 0 {
		return nil, nil
	}

	// A molecule replayed from an already-ingested compound keeps its
	// previously assigned vector_id untouched, so replay never re-embeds
	// or re-gates it. Without this, a replayed molecule would always be
	// its own nearest neighbor and get flagged as a variant of itself.
	pending := make([]int, 0, len(molecules))
	for i := range molecules {
		existing, err := p.store.MoleculeVectorID(ctx, molecules[i].ID)
		if err != nil {
			return nil, fmt.Errorf("checking existing vector id: %w", err)
		}
		if existing != nil {
			molecules[i].VectorID = existing
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	texts := make([]string, len(pending))
	for j, i := range pending {
		texts[j] = molecules[i].Content
	}
	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("computing embeddings: %w", err)
	}

	// Molecules indexed earlier in this same call are not in the Store
	// yet, so MoleculeByVectorID cannot resolve them; track them here.
	assigned := make(map[int64]string, len(pending))

	var variants []model.VariantEdge
	for j, i := range pending {
		if j >= len(embeddings) {
			break
		}
		emb := embeddings[j]
		molecules[i].Embedding = emb

		neighbors, err := p.vectors.Search(ctx, emb, 1)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}

		if len(neighbors) > 0 && neighbors[0].Distance < p.cfg.DriftThreshold {
			targetID := molecules[i].ID
			if id, ok := assigned[neighbors[0].VectorID]; ok {
				targetID = id
			} else if target, err := p.store.MoleculeByVectorID(ctx, neighbors[0].VectorID); err == nil && target != nil {
				targetID = target.ID
			}
			molecules[i].Provenance = model.ProvenanceVariant
			slog.Debug("drift gate: molecule flagged as variant", "molecule_id", molecules[i].ID, "target_id", targetID, "distance", neighbors[0].Distance)
			variants = append(variants, model.VariantEdge{
				SourceID: molecules[i].ID,
				TargetID: targetID,
				Relation: model.RelationIsVariantOf,
				Weight:   1 - neighbors[0].Distance,
			})
			continue
		}

		vectorID := p.vectors.NextID()
		if err := p.vectors.Add(ctx, vectorID, emb); err != nil {
			return nil, fmt.Errorf("adding to vector index: %w", err)
		}
		molecules[i].VectorID = &vectorID
		assigned[vectorID] = molecules[i].ID
	}
	return variants, nil
}

// buildBatch derives atom positions (one per atom label and per molecule
// tag) and tag edges (one per atom, tag, and bucket), deduplicating both
// in memory with a hash set before they ever reach the Store.
func buildBatch(compound model.Compound, molecules []model.Molecule, atoms []model.Atom, variants []model.VariantEdge, buckets, userTags []string) store.IngestBatch {
	moleculeByID := make(map[string]model.Molecule, len(molecules))
	for _, m := range molecules {
		moleculeByID[m.ID] = m
	}

	seenPositions := make(map[string]bool)
	var positions []model.AtomPosition
	addPosition := func(term string, offset int) {
		key := term + "\x00" + fmt.Sprint(offset)
		if seenPositions[key] {
			return
		}
		seenPositions[key] = true
		positions = append(positions, model.AtomPosition{Term: term, CompoundID: compound.ID, ByteOffset: offset})
	}

	for _, a := range atoms {
		addPosition(a.Label, moleculeByID[a.MoleculeID].StartByte)
	}
	for _, m := range molecules {
		for _, tag := range m.Tags {
			addPosition(string(tag), m.StartByte)
		}
	}

	seenEdges := make(map[string]bool)
	var edges []model.TagEdge
	skipped := 0
	addEdge := func(atomID, tag, bucket string) {
		if len(tag) > model.MaxTagBytes {
			skipped++
			return
		}
		key := atomID + "\x00" + tag + "\x00" + bucket
		if seenEdges[key] {
			return
		}
		seenEdges[key] = true
		edges = append(edges, model.TagEdge{AtomID: atomID, Tag: tag, Bucket: bucket})
	}

	for _, a := range atoms {
		allTags := make([]string, 0, len(a.Tags)+len(userTags))
		for _, t := range a.Tags {
			allTags = append(allTags, string(t))
		}
		allTags = append(allTags, userTags...)
		for _, bucket := range buckets {
			for _, tag := range allTags {
				addEdge(a.ID, tag, bucket)
			}
		}
	}

	return store.IngestBatch{
		Compound:      compound,
		Molecules:     molecules,
		Atoms:         atoms,
		AtomPositions: positions,
		TagEdges:      edges,
		VariantEdges:  variants,
		SkippedTags:   skipped,
	}
}

// allMoleculesVariant reports whether every molecule in a non-empty set
// was gated as a variant by the drift gate.
func allMoleculesVariant(molecules []model.Molecule) bool {
	if len(molecules) == 0 {
		return false
	}
	for _, m := range molecules {
		if m.Provenance != model.ProvenanceVariant {
			return false
		}
	}
	return true
}

func countUniqueAtoms(atoms []model.Atom) int {
	seen := make(map[string]bool, len(atoms))
	for _, a := range atoms {
		seen[a.ID] = true
	}
	return len(seen)
}

const lookaheadBytes = 5 * 1024

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

type win struct{ start, end int }

// computeWindows partitions canonical into serial, non-overlapping core
// windows of roughly chunkBytes, preferring to end each window at a
// paragraph, then sentence, then line break found within a lookahead
// past the nominal boundary.
func computeWindows(canonical string, chunkBytes int) []win {
	n := len(canonical)
	if n == 0 {
		return nil
	}

	var windows []win
	start := 0
	for start < n {
		nominalEnd := start + chunkBytes
		if nominalEnd >= n {
			windows = append(windows, win{start, n})
			break
		}
		limit := nominalEnd + lookaheadBytes
		if limit > n {
			limit = n
		}
		windows = append(windows, win{start, findBreak(canonical, nominalEnd, limit)})
		start = windows[len(windows)-1].end
	}
	return windows
}

func findBreak(text string, from, limit int) int {
	search := text[from:limit]
	if i := strings.Index(search, "\n\n"); i >= 0 {
		return from + i + 2
	}
	if loc := sentenceEnd.FindStringIndex(search); loc != nil {
		return from + loc[1]
	}
	if i := strings.IndexByte(search, '\n'); i >= 0 {
		return from + i + 1
	}
	return from
}
