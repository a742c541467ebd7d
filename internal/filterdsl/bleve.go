package filterdsl

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	coreerrors "github.com/codesearch-core/codesearch/internal/errors"
)

// ToBleveQuery translates a Predicate into a bleve query.Query, the second
// translation target (alongside the in-process evaluator): it gives the
// sparse/BM25 side of the hybrid store a native filter language, combined
// with the keyword query via bleve.NewConjunctionQuery the same way the
// pack's bleve-based exact searcher combines a QueryStringQuery with
// per-field match/wildcard queries.
//
// Geospatial and other constructs bleve's query package does not expose
// through this translation fail at translation time with Validation; none
// are in KnownFields today, so every reachable Predicate translates.
func ToBleveQuery(p Predicate) (query.Query, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	return toBleve(p)
}

func toBleve(p Predicate) (query.Query, error) {
	switch p.Op {
	case OpAnd:
		children, err := toBleveAll(p.Children)
		if err != nil {
			return nil, err
		}
		return bleve.NewConjunctionQuery(children...), nil
	case OpOr:
		children, err := toBleveAll(p.Children)
		if err != nil {
			return nil, err
		}
		return bleve.NewDisjunctionQuery(children...), nil
	case OpNot:
		inner, err := toBleve(*p.Child)
		if err != nil {
			return nil, err
		}
		// bleve has no direct negation query; a boolean query with the
		// inner query as "must not" and a match-all as "must" expresses it.
		boolQ := bleve.NewBooleanQuery()
		boolQ.AddMust(bleve.NewMatchAllQuery())
		boolQ.AddMustNot(inner)
		return boolQ, nil
	case OpEq:
		q := bleve.NewMatchQuery(fmt.Sprintf("%v", p.Value))
		q.SetField(p.Field)
		return q, nil
	case OpIn:
		alts := make([]query.Query, 0, len(p.Values))
		for _, v := range p.Values {
			q := bleve.NewMatchQuery(fmt.Sprintf("%v", v))
			q.SetField(p.Field)
			alts = append(alts, q)
		}
		return bleve.NewDisjunctionQuery(alts...), nil
	case OpRange:
		q := bleve.NewNumericRangeInclusiveQuery(p.Min, p.Max, boolPtr(p.MinInclude), boolPtr(p.MaxInclude))
		q.SetField(p.Field)
		return q, nil
	case OpExists:
		// bleve has no direct "field exists" query; a wildcard query over
		// the field matches any indexed value, which is the closest native
		// equivalent.
		q := bleve.NewWildcardQuery("*")
		q.SetField(p.Field)
		return q, nil
	case OpPrefixMatch:
		q := bleve.NewPrefixQuery(p.Prefix)
		q.SetField(p.Field)
		return q, nil
	default:
		return nil, coreerrors.New(coreerrors.ErrCodeInvalidQuery, fmt.Sprintf("bleve translation: unsupported operator %q", p.Op), nil)
	}
}

func toBleveAll(preds []Predicate) ([]query.Query, error) {
	out := make([]query.Query, 0, len(preds))
	for _, p := range preds {
		q, err := toBleve(p)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func boolPtr(b bool) *bool { return &b }
