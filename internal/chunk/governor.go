package chunk

import "strings"

// GovernorConfig is the ChunkGovernor's size envelope.
type GovernorConfig struct {
	MinLines      int // default MinChunkLines
	MaxTokens     int // default DefaultMaxChunkTokens
	OverlapTokens int // default DefaultOverlapTokens
}

// DefaultGovernorConfig returns the envelope defaults.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		MinLines:      MinChunkLines,
		MaxTokens:     DefaultMaxChunkTokens,
		OverlapTokens: DefaultOverlapTokens,
	}
}

// applyGovernor enforces the size envelope over an already-produced chunk
// sequence: oversized chunks are split at the highest-ranked seam (a blank
// line, the nearest boundary to the midpoint), undersized chunks of the same
// kind are coalesced with their neighbor unless they carry high-importance
// semantics (a non-unknown kind), in which case they are kept as-is.
func applyGovernor(chunks []*Chunk, cfg GovernorConfig) []*Chunk {
	if len(chunks) == 0 {
		return chunks
	}

	split := make([]*Chunk, 0, len(chunks))
	for _, c := range chunks {
		split = append(split, splitOversized(c, cfg)...)
	}

	return coalesceUndersized(split, cfg)
}

func splitOversized(c *Chunk, cfg GovernorConfig) []*Chunk {
	if c.EstimateTokens() <= cfg.MaxTokens {
		return []*Chunk{c}
	}

	lines := strings.Split(c.RawContent, "\n")
	if len(lines) <= cfg.MinLines {
		return []*Chunk{c}
	}

	seam := bestSeam(lines)
	if seam <= 0 || seam >= len(lines) {
		seam = len(lines) / 2
	}

	first := strings.Join(lines[:seam], "\n")
	second := strings.Join(lines[seam:], "\n")

	firstEnd := c.Span.ByteStart + uint32(len(first))
	c1 := cloneChunkWithContent(c, first, int(c.Span.LineStart), int(c.Span.LineStart)+seam-1, c.Span.ByteStart, firstEnd)
	c2 := cloneChunkWithContent(c, second, int(c.Span.LineStart)+seam, int(c.Span.LineEnd), firstEnd+1, c.Span.ByteEnd)

	out := append(splitOversized(c1, cfg), splitOversized(c2, cfg)...)
	return out
}

// bestSeam finds the blank line nearest the midpoint of lines, the "highest
// ranked seam" for a generic block: a statement/member boundary in source
// code is, in the overwhelming majority of real files, a blank line.
func bestSeam(lines []string) int {
	mid := len(lines) / 2
	best := -1
	bestDist := len(lines)
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			continue
		}
		dist := i - mid
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	if best <= 0 {
		return mid
	}
	return best
}

func cloneChunkWithContent(c *Chunk, content string, lineStart, lineEnd int, byteStart, byteEnd uint32) *Chunk {
	span := c.Span
	span.LineStart = uint32(lineStart)
	span.LineEnd = uint32(lineEnd)
	span.ByteStart = byteStart
	span.ByteEnd = byteEnd
	clone := *c
	clone.Span = span
	clone.RawContent = content
	clone.Content = content
	clone.ID = generateChunkID(c.Span.FilePath, content, span.ByteStart)
	clone.ContentHash = hashContent(content)
	return &clone
}

func coalesceUndersized(chunks []*Chunk, cfg GovernorConfig) []*Chunk {
	out := make([]*Chunk, 0, len(chunks))
	for i := 0; i < len(chunks); i++ {
		c := chunks[i]
		lineCount := int(c.Span.LineEnd) - int(c.Span.LineStart) + 1
		if lineCount >= cfg.MinLines || c.Kind != KindUnknown {
			out = append(out, c)
			continue
		}
		// Too small and not semantically important: coalesce with the next
		// chunk of the same kind category if one follows immediately.
		if i+1 < len(chunks) && chunks[i+1].Kind == c.Kind {
			merged := *chunks[i+1]
			merged.RawContent = c.RawContent + "\n" + chunks[i+1].RawContent
			merged.Content = merged.RawContent
			merged.Span.LineStart = c.Span.LineStart
			merged.Span.ByteStart = c.Span.ByteStart
			merged.ID = generateChunkID(merged.Span.FilePath, merged.RawContent, merged.Span.ByteStart)
			merged.ContentHash = hashContent(merged.RawContent)
			chunks[i+1] = &merged
			continue
		}
		out = append(out, c)
	}
	return out
}
