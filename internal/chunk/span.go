package chunk

import "fmt"

// Span is an immutable location descriptor: a file path paired with a byte
// range and the line/column range that byte range covers. Line and column
// are computed once, at construction time, from the file content; a Span
// never recomputes them and never outlives the content it was built from.
type Span struct {
	FilePath  string
	ByteStart uint32
	ByteEnd   uint32
	LineStart uint32
	ColStart  uint32
	LineEnd   uint32
	ColEnd    uint32
}

// NewSpan computes line/column positions for [byteStart, byteEnd) within
// content and returns the resulting Span. content must be the full file
// content the byte range is relative to.
func NewSpan(filePath string, byteStart, byteEnd uint32, content []byte) (Span, error) {
	if byteEnd < byteStart {
		return Span{}, fmt.Errorf("chunk: invalid span: byte_end %d < byte_start %d", byteEnd, byteStart)
	}
	if int(byteEnd) > len(content) {
		return Span{}, fmt.Errorf("chunk: invalid span: byte_end %d exceeds content length %d", byteEnd, len(content))
	}

	lineStart, colStart := lineCol(content, byteStart)
	lineEnd, colEnd := lineCol(content, byteEnd)

	return Span{
		FilePath:  filePath,
		ByteStart: byteStart,
		ByteEnd:   byteEnd,
		LineStart: lineStart,
		ColStart:  colStart,
		LineEnd:   lineEnd,
		ColEnd:    colEnd,
	}, nil
}

// lineCol returns the 1-indexed line and 0-indexed column of byte offset pos
// within content.
func lineCol(content []byte, pos uint32) (line, col uint32) {
	line = 1
	col = 0
	limit := pos
	if int(limit) > len(content) {
		limit = uint32(len(content))
	}
	for i := uint32(0); i < limit; i++ {
		if content[i] == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return line, col
}

// Equal reports structural equality: two spans are equal iff all fields match.
func (s Span) Equal(o Span) bool {
	return s == o
}

// Intersects reports whether s and o overlap within the same file.
func (s Span) Intersects(o Span) bool {
	if s.FilePath != o.FilePath {
		return false
	}
	return s.ByteStart < o.ByteEnd && o.ByteStart < s.ByteEnd
}

// Contains reports whether o lies entirely within s, in the same file.
func (s Span) Contains(o Span) bool {
	if s.FilePath != o.FilePath {
		return false
	}
	return s.ByteStart <= o.ByteStart && o.ByteEnd <= s.ByteEnd
}

// Adjacent reports whether s and o touch end-to-end with no gap, in the same file.
func (s Span) Adjacent(o Span) bool {
	if s.FilePath != o.FilePath {
		return false
	}
	return s.ByteEnd == o.ByteStart || o.ByteEnd == s.ByteStart
}

// SpanGroup is the result of composing two or more spans from the same file
// into a single covering range via Union.
type SpanGroup struct {
	FilePath string
	Spans    []Span
	ByteMin  uint32
	ByteMax  uint32
}

// Union merges a and b into a SpanGroup. Both spans must share a file path.
func Union(a, b Span) (SpanGroup, error) {
	if a.FilePath != b.FilePath {
		return SpanGroup{}, fmt.Errorf("chunk: cannot union spans from different files: %q, %q", a.FilePath, b.FilePath)
	}
	byteMin, byteMax := a.ByteStart, a.ByteEnd
	if b.ByteStart < byteMin {
		byteMin = b.ByteStart
	}
	if b.ByteEnd > byteMax {
		byteMax = b.ByteEnd
	}
	return SpanGroup{
		FilePath: a.FilePath,
		Spans:    []Span{a, b},
		ByteMin:  byteMin,
		ByteMax:  byteMax,
	}, nil
}
