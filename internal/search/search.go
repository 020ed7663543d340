// Package search implements the Semantic Search Executor: per-term
// census, elastic radius, window inflation and merging, scoring,
// dedup/aggregation, and byte-budget packing.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/anchorsh/anchor/internal/byterange"
	"github.com/anchorsh/anchor/internal/embedding"
	"github.com/anchorsh/anchor/internal/inflate"
	"github.com/anchorsh/anchor/internal/model"
	"github.com/anchorsh/anchor/internal/query"
	"github.com/anchorsh/anchor/internal/store"
	"github.com/anchorsh/anchor/internal/vectorindex"
)

const (
	censusCapPerTerm = 50
	minRadius        = 200
	maxRadius        = 32000
)

// Filters scopes a search to buckets, provenance, and a deadline.
type Filters struct {
	Buckets         []string
	Provenance      []model.Provenance
	IncludeVariants bool
	Deadline        time.Time
}

func (f Filters) storeFilters() store.Filters {
	return store.Filters{Buckets: f.Buckets, Provenance: f.Provenance, IncludeVariants: f.IncludeVariants}
}

// Result is one packed span of context.
type Result struct {
	CompoundID string
	StartByte  int
	EndByte    int
	Content    string
	Tags       []model.Tag
	Provenance model.Provenance
	Score      float64
	Hits       int
}

// Metadata describes how a search was carried out.
type Metadata struct {
	Strategy  string
	Partial   bool
	TotalHits int
	Phase     string
	Err       string
}

// Response is the Semantic Search Executor's contract output.
type Response struct {
	Context  string
	Results  []Result
	Strategy string
	Metadata Metadata
}

// Executor owns the Store and, optionally, the Vector Index and
// Embedder a vector-hybrid search needs. Both may be nil, in which case
// scoring falls back to text-only.
type Executor struct {
	store    *store.Store
	vectors  *vectorindex.Index
	embedder embedding.Embedder
}

// New constructs an Executor. vectors and embedder may be nil.
func New(st *store.Store, vectors *vectorindex.Index, embedder embedding.Embedder) *Executor {
	return &Executor{store: st, vectors: vectors, embedder: embedder}
}

// Search runs the full census -> radius -> inflate -> score -> dedup ->
// pack pipeline described by the contract. queryText is the planner's
// original raw query, used only for the optional vector-hybrid pass.
func (e *Executor) Search(ctx context.Context, plan query.Plan, queryText string, filters Filters, maxChars int) Response {
	phase := "Parsed"

	directSet := make(map[string]bool, len(plan.DirectTerms))
	for _, t := range plan.DirectTerms {
		directSet[t] = true
	}
	allTerms := append(append([]string{}, plan.DirectTerms...), plan.RelatedTerms...)

	// (a) Census.
	positions := make(map[string][]model.AtomPosition, len(allTerms))
	totalHits := 0
	for _, term := range allTerms {
		locs, err := e.store.AtomPositions(ctx, term, filters.storeFilters(), censusCapPerTerm)
		if err != nil {
			slog.Error("search census failed", "term", term, "error", err)
			return Response{Strategy: "empty", Metadata: Metadata{Strategy: "empty", Phase: phase, Err: err.Error()}}
		}
		positions[term] = locs
		totalHits += len(locs)
	}
	phase = "CensusDone"

	if totalHits == 0 {
		slog.Info("search census found no hits", "terms", len(allTerms))
		return Response{Strategy: "empty", Metadata: Metadata{Strategy: "empty", Phase: phase}}
	}
	if deadlinePassed(filters.Deadline) {
		slog.Warn("search deadline passed before inflation", "total_hits", totalHits)
		return Response{Strategy: "empty", Metadata: Metadata{Strategy: "empty", Phase: phase, Partial: true, TotalHits: totalHits}}
	}

	// (b) Elastic radius.
	radius := clampInt(maxChars/(2*totalHits), minRadius, maxRadius)

	// (c) Inflate.
	var windows []inflate.Window
	for _, term := range allTerms {
		budget := plan.RelatedBudget
		if directSet[term] {
			budget = plan.DirectBudget
		}
		k := budget / (2 * radius)
		if k < 3 {
			k = 3
		}
		locs := positions[term]
		if len(locs) > k {
			locs = locs[:k]
		}
		for _, loc := range locs {
			w, err := inflate.Around(ctx, e.store, loc.CompoundID, loc.ByteOffset, radius)
			if err != nil {
				continue
			}
			windows = append(windows, w)
		}
	}
	windows, err := e.mergeWindows(ctx, windows, 4*radius)
	if err != nil {
		slog.Error("search window merge failed", "error", err)
		return Response{Strategy: "empty", Metadata: Metadata{Strategy: "empty", Phase: phase, Err: err.Error()}}
	}
	phase = "Inflated"
	slog.Debug("search inflated windows", "radius", radius, "windows", len(windows), "total_hits", totalHits)

	results := e.toResults(ctx, windows)

	if deadlinePassed(filters.Deadline) {
		return e.pack(results, maxChars, phase, true, totalHits)
	}

	// (d) Scoring.
	vectorScores := e.vectorHybrid(ctx, queryText)
	for i := range results {
		results[i].Score = score(results[i], plan, directSet, filters, vectorScores)
	}
	phase = "Scored"

	// (e) Dedup and aggregate.
	results = dedupAndAggregate(results)

	return e.pack(results, maxChars, "Packed", false, totalHits)
}

// mergeWindows merges windows from the same compound that overlap or
// abut within maxWindow bytes, provided the merged span doesn't exceed
// maxWindow (4*radius, per the contract). Windows are otherwise kept
// separate.
func (e *Executor) mergeWindows(ctx context.Context, windows []inflate.Window, maxWindow int) ([]inflate.Window, error) {
	if len(windows) == 0 {
		return windows, nil
	}
	sort.SliceStable(windows, func(i, j int) bool {
		if windows[i].CompoundID != windows[j].CompoundID {
			return windows[i].CompoundID < windows[j].CompoundID
		}
		return windows[i].Start < windows[j].Start
	})

	out := []inflate.Window{windows[0]}
	for _, w := range windows[1:] {
		last := out[len(out)-1]
		if last.Overlaps(w) || last.Abuts(w, maxWindow) {
			union := w.End - last.Start
			if union <= maxWindow {
				merged, err := inflate.Merge(ctx, e.store, last, w)
				if err != nil {
					return nil, err
				}
				out[len(out)-1] = merged
				continue
			}
		}
		out = append(out, w)
	}
	return out, nil
}

func (e *Executor) toResults(ctx context.Context, windows []inflate.Window) []Result {
	results := make([]Result, 0, len(windows))
	for _, w := range windows {
		tags, provenance, err := e.store.MoleculeTagsAt(ctx, w.CompoundID, w.Start)
		if err != nil {
			tags = nil
		}
		results = append(results, Result{
			CompoundID: w.CompoundID,
			StartByte:  w.Start,
			EndByte:    w.End,
			Content:    w.Content,
			Tags:       tags,
			Provenance: provenance,
			Score:      1.0, // base score before (d)'s additive boosts
		})
	}
	return results
}

// vectorHybrid embeds queryText once and returns similarity scores for
// the nearest neighbors, keyed by vector_id. Returns nil when vector
// search is unavailable, per the text-only fallback.
func (e *Executor) vectorHybrid(ctx context.Context, queryText string) map[int64]float64 {
	if e.vectors == nil || e.embedder == nil || queryText == "" {
		return nil
	}
	embeddings, err := e.embedder.Embed(ctx, []string{queryText})
	if err != nil || len(embeddings) == 0 {
		return nil
	}
	neighbors, err := e.vectors.Search(ctx, embeddings[0], 20)
	if err != nil || len(neighbors) == 0 {
		return nil
	}
	var maxDist float64
	for _, n := range neighbors {
		if n.Distance > maxDist {
			maxDist = n.Distance
		}
	}
	out := make(map[int64]float64, len(neighbors))
	for _, n := range neighbors {
		out[n.VectorID] = vectorindex.Similarity(n.Distance, maxDist)
	}
	return out
}

func score(r Result, plan query.Plan, directSet map[string]bool, filters Filters, vectorScores map[int64]float64) float64 {
	textScore := r.Score

	// Intersection boost.
	matches := 0
	for term := range directSet {
		if containsTerm(r.Content, term) {
			matches++
		}
	}
	textScore += float64(matches*matches) * 50

	// Provenance boost.
	for _, p := range filters.Provenance {
		if p == model.ProvenanceInternal && r.Provenance == model.ProvenanceInternal {
			textScore *= 2.0
		}
		if p == model.ProvenanceExternal && r.Provenance == model.ProvenanceExternal {
			textScore *= 1.5
		}
	}

	// Code penalty.
	tagStrings := make([]string, len(r.Tags))
	for i, t := range r.Tags {
		tagStrings[i] = string(t)
	}
	if plan.AppliesCodePenalty(tagStrings) {
		textScore *= plan.CodeWeight
	}

	finalScore := textScore
	if vectorScores != nil {
		// A result's window doesn't carry its own vector_id (that lives
		// on the molecule it was inflated from), so the hybrid bonus here
		// is the same for every result: it is derived from the best
		// similarity among the query's vector neighbors, whichever
		// compound those neighbors belong to.
		if vs, ok := bestVectorScore(vectorScores); ok {
			vectorScore := vs * 100
			finalScore += vectorScore
			finalScore += min(textScore, vectorScore) * 0.5
		}
	}

	return finalScore
}

func bestVectorScore(vectorScores map[int64]float64) (float64, bool) {
	best, ok := 0.0, false
	for _, v := range vectorScores {
		if !ok || v > best {
			best = v
			ok = true
		}
	}
	return best, ok
}

func containsTerm(content, term string) bool {
	return len(term) > 0 && strings.Contains(strings.ToLower(content), term)
}

func dedupAndAggregate(results []Result) []Result {
	type key struct {
		compoundID string
		startByte  int
	}
	index := make(map[key]int, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		k := key{r.CompoundID, r.StartByte}
		if i, ok := index[k]; ok {
			out[i].Hits++
			out[i].Score += 0.2 * r.Score
			continue
		}
		r.Hits = 1
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

func (e *Executor) pack(results []Result, maxChars int, phase string, partial bool, totalHits int) Response {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	used := 0
	var packed []Result
	var built strings.Builder
	for _, r := range results {
		remaining := maxChars - used
		if remaining <= 0 {
			break
		}
		header := fmt.Sprintf("[source: %s, provenance: %s]\n", r.CompoundID, r.Provenance)
		content := r.Content
		if len(header)+len(content) > remaining {
			budget := remaining - len(header)
			if budget <= 0 {
				break
			}
			content = string(byterange.TruncateToBoundary([]byte(content), budget))
		}
		built.WriteString(header)
		built.WriteString(content)
		used += len(header) + len(content)
		packed = append(packed, r)
	}

	slog.Debug("search packed results", "packed", len(packed), "used_chars", used, "max_chars", maxChars, "partial", partial)
	return Response{
		Context:  built.String(),
		Results:  packed,
		Strategy: "hybrid",
		Metadata: Metadata{Strategy: "hybrid", Phase: phase, Partial: partial, TotalHits: totalHits},
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func deadlinePassed(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}
