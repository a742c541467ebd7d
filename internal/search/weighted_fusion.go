package search

import (
	"sort"

	"github.com/codesearch-core/codesearch/internal/store"
)

// DefaultFusionAlpha is the default dense/sparse balance for WeightedSumFusion.
const DefaultFusionAlpha = 0.5

// CombinedResult is one chunk id after weighted-sum fusion of a dense and a
// sparse result set. Unlike FusedResult (RRF, rank-based), every score here
// is a min-max normalized similarity/relevance value in [0, 1].
type CombinedResult struct {
	ChunkID      string
	Combined     float64 // α·normalize(dense) + (1-α)·normalize(sparse)
	DenseScore   float64 // raw, pre-normalization
	SparseScore  float64 // raw, pre-normalization
	HasDense     bool
	HasSparse    bool
	MatchedTerms []string
}

// WeightedSumFusion implements the retrieval pipeline's merge step: for
// each chunk id appearing in either the dense or the sparse result set,
// combined = α·normalize(dense) + (1-α)·normalize(sparse), with
// normalization mapping each score set into [0,1] by min-max inside that
// set. A chunk present in only one set contributes only that component;
// the other term is zero. This is the one and only fusion law this type
// implements; it deliberately does not rank by reciprocal rank the way
// RRFFusion does (see DESIGN.md).
type WeightedSumFusion struct {
	Alpha float64
}

// NewWeightedSumFusion builds a WeightedSumFusion with the given dense
// weight. alpha is clamped to [0,1]; values outside that range fall back
// to DefaultFusionAlpha.
func NewWeightedSumFusion(alpha float64) *WeightedSumFusion {
	if alpha < 0 || alpha > 1 {
		alpha = DefaultFusionAlpha
	}
	return &WeightedSumFusion{Alpha: alpha}
}

// Fuse merges dense and sparse result sets by min-max normalized weighted
// sum. Results are sorted by Combined score descending, ties broken by
// chunk id for determinism.
func (f *WeightedSumFusion) Fuse(dense []*store.VectorResult, sparse []*store.BM25Result) []*CombinedResult {
	if len(dense) == 0 && len(sparse) == 0 {
		return []*CombinedResult{}
	}

	byID := make(map[string]*CombinedResult, len(dense)+len(sparse))
	order := func(id string) *CombinedResult {
		if r, ok := byID[id]; ok {
			return r
		}
		r := &CombinedResult{ChunkID: id}
		byID[id] = r
		return r
	}

	denseMin, denseMax := minMaxVector(dense)
	for _, r := range dense {
		c := order(r.ID)
		c.DenseScore = float64(r.Score)
		c.HasDense = true
	}

	sparseMin, sparseMax := minMaxBM25(sparse)
	for _, r := range sparse {
		c := order(r.DocID)
		c.SparseScore = r.Score
		c.HasSparse = true
		c.MatchedTerms = r.MatchedTerms
	}

	alpha := f.Alpha

	results := make([]*CombinedResult, 0, len(byID))
	for _, c := range byID {
		var denseNorm, sparseNorm float64
		if c.HasDense {
			denseNorm = normalizeScore(c.DenseScore, denseMin, denseMax)
		}
		if c.HasSparse {
			sparseNorm = normalizeScore(c.SparseScore, sparseMin, sparseMax)
		}
		c.Combined = alpha*denseNorm + (1-alpha)*sparseNorm
		results = append(results, c)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Combined != results[j].Combined {
			return results[i].Combined > results[j].Combined
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	return results
}

func minMaxVector(results []*store.VectorResult) (float64, float64) {
	if len(results) == 0 {
		return 0, 0
	}
	min, max := float64(results[0].Score), float64(results[0].Score)
	for _, r := range results[1:] {
		s := float64(r.Score)
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return min, max
}

func minMaxBM25(results []*store.BM25Result) (float64, float64) {
	if len(results) == 0 {
		return 0, 0
	}
	min, max := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	return min, max
}

// normalizeScore maps score into [0,1] given the min/max of its result set.
// A degenerate set (min == max) maps every member to 1.0 rather than
// dividing by zero.
func normalizeScore(score, min, max float64) float64 {
	if max == min {
		return 1.0
	}
	return (score - min) / (max - min)
}
