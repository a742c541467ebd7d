package codesearch

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/codesearch-core/codesearch/internal/chunk"
	coreerrors "github.com/codesearch-core/codesearch/internal/errors"
	"github.com/codesearch-core/codesearch/internal/filterdsl"
	"github.com/codesearch-core/codesearch/internal/providers"
	"github.com/codesearch-core/codesearch/internal/search"
	"github.com/codesearch-core/codesearch/internal/store"
)

// approxTokensPerChar mirrors internal/chunk's TokensPerChar constant; kept
// local so this package does not need the chunker solely for that number.
const approxTokensPerChar = 4

// MatchResult is one chunk returned by FindCode, carrying every component
// score for transparency the way SPEC_FULL.md §6 describes.
type MatchResult struct {
	ChunkID         string
	FilePath        string
	LineStart       int
	LineEnd         int
	ContentPreview  string
	DenseScore      float64
	SparseScore     float64
	CombinedScore   float64
	RerankScore     float64
	HasRerank       bool
	SemanticCategory string
	RelatedSymbols  []string
}

// Summary reports how FindCode executed its pipeline, for callers that
// want to distinguish "no results" from "dense embedder unavailable".
type Summary struct {
	QueryText       string
	Intent          string
	CandidateCount  int
	ReturnedCount   int
	TokenBudget     int
	TokensUsed      int
	DenseAvailable  bool
	SparseAvailable bool
	Reranked        bool
	Warnings        []string
}

// FindOptions carries the optional parameters named in SPEC_FULL.md §6's
// FindCode signature.
type FindOptions struct {
	Intent         string
	FocusLanguages []string
	TokenLimit     int
}

const defaultTokenLimit = 4000

// FindCode is the single query operation exposed to external collaborators.
// It runs the retrieval pipeline described in SPEC_FULL.md §4.10: embed the
// query, translate the filter, search dense and sparse concurrently, fuse
// by min-max weighted sum, drop stale filesystem results, optionally
// rerank, apply intent weighting, and assemble within a token budget.
func (s *Service) FindCode(ctx context.Context, queryText string, opts FindOptions) ([]MatchResult, Summary, error) {
	tokenLimit := opts.TokenLimit
	if tokenLimit <= 0 {
		tokenLimit = defaultTokenLimit
	}
	intent := search.ParseIntent(opts.Intent)

	summary := Summary{
		QueryText:   queryText,
		Intent:      string(intent),
		TokenBudget: tokenLimit,
	}

	backendFilter, err := s.translateFilter(opts.FocusLanguages)
	if err != nil {
		return nil, summary, err
	}

	limit := 20
	overFetch := limit * s.overFetchFactor
	if overFetch < limit {
		overFetch = limit
	}

	var denseHits, sparseHits []providers.SearchHit
	var denseErr, sparseErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := s.embedding.EmbedQuery(gctx, queryText, providers.EmbedOptions{InputType: "query"})
		if err != nil {
			denseErr = err
			return nil // dense failure degrades to sparse-only, not fatal
		}
		hits, err := s.vectorStore.Search(gctx, vec, backendFilter, overFetch)
		if err != nil {
			denseErr = err
			return nil
		}
		denseHits = hits
		return nil
	})
	g.Go(func() error {
		hybrid, ok := s.vectorStore.(*providers.HybridVectorStore)
		if !ok {
			return nil
		}
		hits, err := hybrid.SearchSparseText(gctx, queryText, backendFilter, overFetch)
		if err != nil {
			sparseErr = err
			return nil
		}
		sparseHits = hits
		return nil
	})
	_ = g.Wait()

	summary.DenseAvailable = denseErr == nil
	summary.SparseAvailable = sparseErr == nil

	if denseErr != nil {
		summary.Warnings = append(summary.Warnings, "dense search unavailable: "+denseErr.Error())
	}
	if sparseErr != nil {
		summary.Warnings = append(summary.Warnings, "sparse search unavailable: "+sparseErr.Error())
	}
	if denseErr != nil && sparseErr != nil {
		return []MatchResult{}, summary, nil
	}

	denseResults := toVectorResults(denseHits)
	sparseResults := toBM25Results(sparseHits)
	fused := s.fusion.Fuse(denseResults, sparseResults)

	payloadByID := make(map[string]map[string]any, len(denseHits)+len(sparseHits))
	for _, h := range denseHits {
		payloadByID[h.ID] = h.Payload
	}
	for _, h := range sparseHits {
		if _, ok := payloadByID[h.ID]; !ok {
			payloadByID[h.ID] = h.Payload
		}
	}

	live := s.filterLiveness(ctx, fused, payloadByID, &summary)
	summary.CandidateCount = len(live)

	if s.reranker != nil && len(live) > 0 {
		s.applyRerank(ctx, queryText, live, payloadByID, &summary)
	}

	s.applyIntentWeights(live, payloadByID, intent)

	sort.Slice(live, func(i, j int) bool {
		return live[i].CombinedScore > live[j].CombinedScore
	})

	matches := s.assemble(live, payloadByID, tokenLimit, &summary)
	summary.ReturnedCount = len(matches)

	return matches, summary, nil
}

// scoredCandidate threads a fused result's scores through rerank and intent
// weighting, keeping ChunkID stable while CombinedScore mutates in place.
type scoredCandidate struct {
	ChunkID       string
	DenseScore    float64
	SparseScore   float64
	CombinedScore float64
	RerankScore   float64
	HasRerank     bool
	MatchedTerms  []string
}

func (s *Service) filterLiveness(ctx context.Context, fused []*search.CombinedResult, payloads map[string]map[string]any, summary *Summary) []*scoredCandidate {
	live := make([]*scoredCandidate, 0, len(fused))
	for _, f := range fused {
		payload := payloads[f.ChunkID]
		filePath, _ := payload["file_path"].(string)
		if filePath == "" {
			continue
		}
		if !s.isLive(ctx, filePath, payload) {
			continue
		}
		live = append(live, &scoredCandidate{
			ChunkID:       f.ChunkID,
			DenseScore:    f.DenseScore,
			SparseScore:   f.SparseScore,
			CombinedScore: f.Combined,
			MatchedTerms:  f.MatchedTerms,
		})
	}
	return live
}

// isLive reports whether a chunk's source file still exists on disk with
// unchanged content, per SPEC_FULL.md §4.10 step 5. The manifest is the
// source of truth for content_hash; a payload that lacks one is treated as
// unknown and left in (filesystem existence alone gates it).
func (s *Service) isLive(ctx context.Context, filePath string, payload map[string]any) bool {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return false
	}
	recordedHash, _ := payload["content_hash"].(string)
	if recordedHash == "" {
		return true
	}
	sum := blake3.Sum256(data)
	currentHash := hex.EncodeToString(sum[:])

	rel, err := filepath.Rel(s.projectRoot, filePath)
	if err != nil {
		rel = filePath
	}
	entry, ok, err := s.manifest.Get(ctx, rel)
	if err != nil || !ok {
		return currentHash == recordedHash
	}
	return entry.ContentHash == currentHash
}

func (s *Service) applyRerank(ctx context.Context, queryText string, candidates []*scoredCandidate, payloads map[string]map[string]any, summary *Summary) {
	topN := s.rerankTopK
	if topN > len(candidates) {
		topN = len(candidates)
	}
	if topN == 0 {
		return
	}

	docs := make([]string, topN)
	for i := 0; i < topN; i++ {
		content, _ := payloads[candidates[i].ChunkID]["content"].(string)
		docs[i] = content
	}

	reranked, err := s.reranker.Rerank(ctx, queryText, docs, topN)
	if err != nil {
		summary.Warnings = append(summary.Warnings, "rerank unavailable: "+err.Error())
		return
	}

	for _, r := range reranked {
		if r.Index < 0 || r.Index >= topN {
			continue
		}
		candidates[r.Index].RerankScore = r.Score
		candidates[r.Index].HasRerank = true
		candidates[r.Index].CombinedScore = r.Score
	}
	summary.Reranked = true
}

// applyIntentWeights multiplies whatever score is current (rerank if set,
// combined otherwise) by the per-category intent multiplier, run after
// rerank per this pipeline's Open Question resolution.
func (s *Service) applyIntentWeights(candidates []*scoredCandidate, payloads map[string]map[string]any, intent search.QueryIntent) {
	if intent == search.IntentGeneral {
		return
	}
	for _, c := range candidates {
		category, _ := payloads[c.ChunkID]["semantic_category"].(string)
		weight := search.IntentWeight(intent, chunk.SemanticCategory(category))
		c.CombinedScore *= weight
	}
}

func (s *Service) assemble(candidates []*scoredCandidate, payloads map[string]map[string]any, tokenLimit int, summary *Summary) []MatchResult {
	matches := make([]MatchResult, 0, len(candidates))
	tokensUsed := 0

	for _, c := range candidates {
		payload := payloads[c.ChunkID]
		content, _ := payload["content"].(string)
		estimatedTokens := len(content) / approxTokensPerChar
		if estimatedTokens == 0 {
			estimatedTokens = 1
		}
		if tokensUsed > 0 && tokensUsed+estimatedTokens > tokenLimit {
			break
		}

		lineStart, _ := payload["line_start"].(int)
		lineEnd, _ := payload["line_end"].(int)
		filePath, _ := payload["file_path"].(string)
		category, _ := payload["semantic_category"].(string)
		related, _ := payload["related_symbols"].([]string)

		matches = append(matches, MatchResult{
			ChunkID:          c.ChunkID,
			FilePath:         filePath,
			LineStart:        lineStart,
			LineEnd:          lineEnd,
			ContentPreview:   previewOf(content),
			DenseScore:       c.DenseScore,
			SparseScore:      c.SparseScore,
			CombinedScore:    c.CombinedScore,
			RerankScore:      c.RerankScore,
			HasRerank:        c.HasRerank,
			SemanticCategory: category,
			RelatedSymbols:   related,
		})
		tokensUsed += estimatedTokens
	}

	summary.TokensUsed = tokensUsed
	return matches
}

func (s *Service) translateFilter(focusLanguages []string) (any, error) {
	if len(focusLanguages) == 0 {
		return nil, nil
	}
	pred := filterdsl.In("language", toAnySlice(focusLanguages)...)
	if err := filterdsl.Validate(pred); err != nil {
		return nil, coreerrors.ValidationError("invalid focus language filter", err)
	}
	evaluator, err := filterdsl.ToInProcessEvaluator(pred)
	if err != nil {
		return nil, coreerrors.ValidationError("translating focus language filter", err)
	}
	return evaluator, nil
}

const previewLines = 6

func previewOf(content string) string {
	if content == "" {
		return ""
	}
	lines := strings.Split(content, "\n")
	if len(lines) <= previewLines {
		return content
	}
	return strings.Join(lines[:previewLines], "\n") + "\n…"
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func toVectorResults(hits []providers.SearchHit) []*store.VectorResult {
	out := make([]*store.VectorResult, len(hits))
	for i, h := range hits {
		out[i] = &store.VectorResult{ID: h.ID, Score: float32(h.Score)}
	}
	return out
}

func toBM25Results(hits []providers.SearchHit) []*store.BM25Result {
	out := make([]*store.BM25Result, len(hits))
	for i, h := range hits {
		out[i] = &store.BM25Result{DocID: h.ID, Score: h.Score}
	}
	return out
}
