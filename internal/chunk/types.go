package chunk

import (
	"context"
	"time"
)

// Chunk size defaults (based on 2025 RAG research).
const (
	DefaultMaxChunkTokens = 512 // Optimal for 85-90% recall
	DefaultOverlapTokens  = 64  // ~12.5% overlap
	MinChunkTokens        = 100 // Minimum viable chunk
	MinChunkLines         = 3   // ChunkGovernor floor before coalescing
	TokensPerChar         = 4   // Rough approximation: 4 chars = 1 token
)

// ChunkKind classifies the semantic role a chunk plays in its source file.
type ChunkKind string

const (
	KindFunction      ChunkKind = "function"
	KindType          ChunkKind = "class_or_type"
	KindMethod        ChunkKind = "method"
	KindBlock         ChunkKind = "block"
	KindComment       ChunkKind = "comment"
	KindImport        ChunkKind = "import"
	KindModulePrelude ChunkKind = "module_prelude"
	KindUnknown       ChunkKind = "unknown"
)

// SemanticCategory is the coarse classification a grammar registry entry
// assigns to an AST node kind.
type SemanticCategory string

const (
	CategoryDefinition  SemanticCategory = "definition"
	CategoryInvocation  SemanticCategory = "invocation"
	CategoryControlFlow SemanticCategory = "control_flow"
	CategoryLiteral     SemanticCategory = "literal"
	CategoryUnknown     SemanticCategory = "unknown"
)

// SemanticMetadata is populated only by the AST-semantic chunking strategy.
// It holds no live AST handles: every field is plain data, collapsed out of
// the parser's own tree at construction time so it can cross component
// boundaries and be serialized without re-entering a cyclic graph.
type SemanticMetadata struct {
	ASTNodeType      string
	Category         SemanticCategory
	Importance       float64
	ReferencedSymbols []string
}

// Chunk is an immutable, content-addressed fragment of a source file.
type Chunk struct {
	ID               string // canonical UUIDv7-shaped text, content-derived; see generateChunkID
	Span             Span
	Content          string // exactly f[Span.ByteStart:Span.ByteEnd]; identical to RawContent
	RawContent       string // just the symbol, no surrounding context
	Context          string // file-level context (package/imports) that sits outside the span, empty for delimiter chunks
	Language         string // go, typescript, python, etc.
	Kind             ChunkKind
	SemanticMetadata *SemanticMetadata // nil for delimiter-heuristic chunks
	ContentHash      [32]byte          // Blake3-256 of RawContent
	CreatedAt        time.Time
	Symbols          []*Symbol         // legacy per-chunk symbol list, kept for search highlighting
	Metadata         map[string]string // free-form, not part of the identity or the embedding payload
}

// EmbeddingText returns the text actually handed to an embedder or a BM25
// indexer: Context prepended to Content when present, so file-level
// imports/package declarations still inform retrieval even though they sit
// outside the chunk's span. This is deliberately not part of Content — the
// span byte range never covers Context, since it is not contiguous with the
// node in the source file.
func (c *Chunk) EmbeddingText() string {
	if c.Context == "" {
		return c.Content
	}
	return c.Context + "\n\n" + c.Content
}

// FilePath is a convenience accessor mirroring the teacher's flat FilePath field.
func (c *Chunk) FilePath() string { return c.Span.FilePath }

// StartLine and EndLine mirror the teacher's flat line fields, derived from Span.
func (c *Chunk) StartLine() int { return int(c.Span.LineStart) }
func (c *Chunk) EndLine() int   { return int(c.Span.LineEnd) }

// EmbeddingProjection is the flat, stable dictionary produced by
// SerializeForEmbedding: the text payload handed to an embedder and the
// shape of the vector-store payload. It never invokes a computed accessor
// that could re-enter the chunk's own graph — every value here is a plain
// field read.
type EmbeddingProjection struct {
	ID        string
	File      string
	Language  string
	Kind      ChunkKind
	LineStart int
	LineEnd   int
	Content   string
}

// SerializeForEmbedding produces c's flat embedding projection.
func (c *Chunk) SerializeForEmbedding() EmbeddingProjection {
	return EmbeddingProjection{
		ID:        c.ID,
		File:      c.Span.FilePath,
		Language:  c.Language,
		Kind:      c.Kind,
		LineStart: int(c.Span.LineStart),
		LineEnd:   int(c.Span.LineEnd),
		Content:   c.EmbeddingText(),
	}
}

// EstimateTokens is a cheap, on-demand estimate, never persisted. It is
// monotone in content length and reproducible for identical content, per
// the token-estimator Open Question resolution.
func (c *Chunk) EstimateTokens() int {
	n := len(c.Content) / TokensPerChar
	if n == 0 && len(c.Content) > 0 {
		n = 1
	}
	return n
}

// FileInput is input for the Chunker interface.
type FileInput struct {
	Path     string // relative path
	Content  []byte // file content
	Language string // go, typescript, python, etc; empty if undetermined
}

// Chunker is the interface for splitting a file into semantic chunks.
// Implementations must be deterministic: identical (content, language,
// governor settings) must yield byte-identical chunks, including ids.
type Chunker interface {
	// Chunk splits a file into semantic chunks. A file whose language has
	// neither an AST grammar nor a delimiter-family mapping yields
	// (nil, ErrUnsupportedLanguage), not a silent fallback to line chunks.
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)

	// SupportedExtensions returns file extensions this chunker handles.
	SupportedExtensions() []string
}

// SymbolType represents the kind of code symbol extracted during parsing.
type SymbolType string

const (
	SymbolTypeFunction  SymbolType = "function"
	SymbolTypeClass     SymbolType = "class"
	SymbolTypeInterface SymbolType = "interface"
	SymbolTypeType      SymbolType = "type"
	SymbolTypeVariable  SymbolType = "variable"
	SymbolTypeConstant  SymbolType = "constant"
	SymbolTypeMethod    SymbolType = "method"
)

// Symbol represents a code symbol extracted from parsing.
type Symbol struct {
	Name       string
	Type       SymbolType
	StartLine  int
	EndLine    int
	Signature  string
	DocComment string
}

// Tree represents a parsed AST.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node represents a node in the AST.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point represents a position in the source code.
type Point struct {
	Row    uint32 // 0-indexed line number
	Column uint32
}

// LanguageConfig holds grammar registry configuration for a supported language.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// Node types that indicate function declarations.
	FunctionTypes []string

	// Node types that indicate class/struct definitions.
	ClassTypes []string

	// Node types that indicate interface definitions.
	InterfaceTypes []string

	// Node types that indicate method definitions.
	MethodTypes []string

	// Node types that indicate type definitions.
	TypeDefTypes []string

	// Node types that indicate constant declarations.
	ConstantTypes []string

	// Node types that indicate variable declarations.
	VariableTypes []string

	// Node type for the name identifier.
	NameField string
}
