package filterdsl

import "strings"

// ToInProcessEvaluator translates a Predicate into a pure function over a
// payload map, the translation target used by the in-process HNSW dense
// store (internal/providers.HybridVectorStore), which has no native filter
// language of its own and evaluates predicates against the payload
// side-table directly.
func ToInProcessEvaluator(p Predicate) (func(map[string]any) bool, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	return compile(p), nil
}

func compile(p Predicate) func(map[string]any) bool {
	switch p.Op {
	case OpAnd:
		fns := compileAll(p.Children)
		return func(payload map[string]any) bool {
			for _, fn := range fns {
				if !fn(payload) {
					return false
				}
			}
			return true
		}
	case OpOr:
		fns := compileAll(p.Children)
		return func(payload map[string]any) bool {
			for _, fn := range fns {
				if fn(payload) {
					return true
				}
			}
			return false
		}
	case OpNot:
		inner := compile(*p.Child)
		return func(payload map[string]any) bool { return !inner(payload) }
	case OpEq:
		field, value := p.Field, p.Value
		return func(payload map[string]any) bool {
			v, ok := payload[field]
			return ok && equalValue(v, value)
		}
	case OpIn:
		field, values := p.Field, p.Values
		return func(payload map[string]any) bool {
			v, ok := payload[field]
			if !ok {
				return false
			}
			for _, candidate := range values {
				if equalValue(v, candidate) {
					return true
				}
			}
			return false
		}
	case OpRange:
		field, min, max, minInc, maxInc := p.Field, p.Min, p.Max, p.MinInclude, p.MaxInclude
		return func(payload map[string]any) bool {
			v, ok := toFloat(payload[field])
			if !ok {
				return false
			}
			if min != nil {
				if minInc {
					if v < *min {
						return false
					}
				} else if v <= *min {
					return false
				}
			}
			if max != nil {
				if maxInc {
					if v > *max {
						return false
					}
				} else if v >= *max {
					return false
				}
			}
			return true
		}
	case OpExists:
		field := p.Field
		return func(payload map[string]any) bool {
			_, ok := payload[field]
			return ok
		}
	case OpPrefixMatch:
		field, prefix := p.Field, p.Prefix
		return func(payload map[string]any) bool {
			v, ok := payload[field].(string)
			return ok && strings.HasPrefix(v, prefix)
		}
	default:
		return func(map[string]any) bool { return true }
	}
}

func compileAll(preds []Predicate) []func(map[string]any) bool {
	fns := make([]func(map[string]any) bool, len(preds))
	for i, p := range preds {
		fns[i] = compile(p)
	}
	return fns
}

func equalValue(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}
