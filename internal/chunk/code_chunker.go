package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// CodeChunkerOptions configures the code chunker behavior.
type CodeChunkerOptions struct {
	MaxChunkTokens             int // default DefaultMaxChunkTokens
	OverlapTokens              int // default DefaultOverlapTokens
	MinLines                   int // default MinChunkLines
	AllowUnmappedPassthrough   bool
}

// CodeChunker implements AST-aware code chunking using tree-sitter, with a
// delimiter-heuristic fallback for languages with no grammar.
type CodeChunker struct {
	parser    *Parser
	extractor *SymbolExtractor
	registry  *LanguageRegistry
	grammar   *GrammarRegistry
	options   CodeChunkerOptions
	governor  GovernorConfig
}

// NewCodeChunker creates a new code chunker with default options.
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithOptions(CodeChunkerOptions{})
}

// NewCodeChunkerWithOptions creates a new code chunker with custom options.
func NewCodeChunkerWithOptions(opts CodeChunkerOptions) *CodeChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	if opts.MinLines == 0 {
		opts.MinLines = MinChunkLines
	}

	registry := DefaultRegistry()
	return &CodeChunker{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
		grammar:   NewGrammarRegistry(registry),
		options:   opts,
		governor: GovernorConfig{
			MinLines:      opts.MinLines,
			MaxTokens:     opts.MaxChunkTokens,
			OverlapTokens: opts.OverlapTokens,
		},
	}
}

// Close releases chunker resources.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// SupportedExtensions returns file extensions this chunker handles via its
// AST grammars. Delimiter-family extensions are handled too but are not
// counted here since they carry no AST capability.
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// Chunk splits a file into semantic chunks. See ErrUnsupportedLanguage for
// the no-silent-fallback contract.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	ext := strings.ToLower(filepath.Ext(file.Path))
	_, hasFamily := DelimiterFamilyForExtension(ext)

	if _, supported := c.registry.GetByName(file.Language); supported {
		tree, err := c.parser.Parse(ctx, file.Content, file.Language)
		if err != nil {
			if hasFamily {
				return c.chunkByDelimiterFamily(file, extensionFamilies[ext])
			}
			return nil, fmt.Errorf("chunk: parse failed for %s and no delimiter family mapped: %w", file.Path, err)
		}
		return c.chunkAST(tree, file)
	}

	if hasFamily {
		return c.chunkByDelimiterFamily(file, extensionFamilies[ext])
	}

	if c.options.AllowUnmappedPassthrough {
		return c.wholeFilePassthrough(file)
	}

	return nil, ErrUnsupportedLanguage
}

// wholeFilePassthrough is the explicit opt-in escape hatch (see SPEC_FULL.md
// §9 Open Question on unmapped-language behavior); it is never reached
// unless a caller has set AllowUnmappedPassthrough.
func (c *CodeChunker) wholeFilePassthrough(file *FileInput) ([]*Chunk, error) {
	raw := string(file.Content)
	chunk, err := c.buildChunk(file, raw, 1, KindUnknown, nil)
	if err != nil {
		return nil, err
	}
	return []*Chunk{chunk}, nil
}

func (c *CodeChunker) chunkAST(tree *Tree, file *FileInput) ([]*Chunk, error) {
	fileContext := c.extractFileContext(tree, file.Content, file.Language)
	fileContext = c.enrichContextWithFilePath(file.Path, file.Language, fileContext)

	symbolNodes := c.findSymbolNodes(tree, file.Language)
	if len(symbolNodes) == 0 {
		return nil, nil
	}

	chunks := make([]*Chunk, 0, len(symbolNodes))
	for _, node := range symbolNodes {
		nodeChunks := c.createChunksFromNode(node, tree, file, fileContext)
		chunks = append(chunks, nodeChunks...)
	}

	return applyGovernor(chunks, c.governor), nil
}

// symbolNodeInfo holds a symbol node with its extracted symbol info.
type symbolNodeInfo struct {
	node   *Node
	symbol *Symbol
}

// findSymbolNodes finds all top-level symbol-defining nodes.
func (c *CodeChunker) findSymbolNodes(tree *Tree, language string) []*symbolNodeInfo {
	config, ok := c.registry.GetByName(language)
	if !ok {
		return []*symbolNodeInfo{}
	}

	var symbolNodes []*symbolNodeInfo

	symbolTypes := make(map[string]SymbolType)
	for _, t := range config.FunctionTypes {
		symbolTypes[t] = SymbolTypeFunction
	}
	for _, t := range config.MethodTypes {
		symbolTypes[t] = SymbolTypeMethod
	}
	for _, t := range config.ClassTypes {
		symbolTypes[t] = SymbolTypeClass
	}
	for _, t := range config.InterfaceTypes {
		symbolTypes[t] = SymbolTypeInterface
	}
	for _, t := range config.TypeDefTypes {
		symbolTypes[t] = SymbolTypeType
	}
	for _, t := range config.ConstantTypes {
		symbolTypes[t] = SymbolTypeConstant
	}
	for _, t := range config.VariableTypes {
		symbolTypes[t] = SymbolTypeVariable
	}

	tree.Root.Walk(func(n *Node) bool {
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			sym := c.extractor.extractSpecialSymbol(n, tree.Source, language)
			if sym != nil {
				symbolNodes = append(symbolNodes, &symbolNodeInfo{node: n, symbol: sym})
				return true
			}
		}

		if symType, isSymbol := symbolTypes[n.Type]; isSymbol {
			sym := c.extractSymbol(n, tree, symType, language)
			if sym != nil {
				symbolNodes = append(symbolNodes, &symbolNodeInfo{node: n, symbol: sym})
			}
		}
		return true
	})

	return symbolNodes
}

func (c *CodeChunker) extractSymbol(n *Node, tree *Tree, symType SymbolType, language string) *Symbol {
	config, _ := c.registry.GetByName(language)
	name := c.extractor.extractName(n, tree.Source, config, language)
	if name == "" {
		return nil
	}

	return &Symbol{
		Name:       name,
		Type:       symType,
		StartLine:  int(n.StartPoint.Row) + 1,
		EndLine:    int(n.EndPoint.Row) + 1,
		DocComment: c.extractor.extractDocComment(n, tree.Source, language),
	}
}

// symbolKindToChunkKind maps a tree-sitter symbol classification onto the
// spec's coarser ChunkKind set.
func symbolKindToChunkKind(t SymbolType) ChunkKind {
	switch t {
	case SymbolTypeFunction:
		return KindFunction
	case SymbolTypeMethod:
		return KindMethod
	case SymbolTypeClass, SymbolTypeInterface, SymbolTypeType:
		return KindType
	default:
		return KindBlock
	}
}

// createChunksFromNode creates one or more chunks from a symbol node.
func (c *CodeChunker) createChunksFromNode(info *symbolNodeInfo, tree *Tree, file *FileInput, fileContext string) []*Chunk {
	node := info.node
	byteStart := node.StartByte
	lineStart := int(node.StartPoint.Row) + 1

	if info.symbol.DocComment != "" {
		widened := c.docCommentStartByte(node, tree.Source, info.symbol.DocComment)
		lineStart -= strings.Count(string(tree.Source[widened:byteStart]), "\n")
		byteStart = widened
	}
	rawContent := string(tree.Source[byteStart:node.EndByte])

	kind := symbolKindToChunkKind(info.symbol.Type)
	category, weight := c.grammar.Classify(tree.Language, node.Type, 1.0, contextWeightFor(info.symbol.Name))

	meta := &SemanticMetadata{
		ASTNodeType: node.Type,
		Category:    category,
		Importance:  weight,
	}

	chunk, err := c.buildChunkWithContext(file, rawContent, fileContext, lineStart, int(node.EndPoint.Row)+1, byteStart, node.EndByte, kind, meta)
	if err != nil {
		return nil
	}
	chunk.Symbols = []*Symbol{info.symbol}
	return []*Chunk{chunk}
}

// contextWeightFor gives exported/public identifiers a small importance
// boost over unexported ones, the "in-file contextual weight" dimension.
func contextWeightFor(name string) float64 {
	if name == "" {
		return 1.0
	}
	r := name[0]
	if r >= 'A' && r <= 'Z' {
		return 1.1
	}
	return 0.9
}

// docCommentStartByte walks backward from n's start to the first byte of its
// leading doc comment, so the caller can widen both the chunk's span and its
// raw content to cover it.
func (c *CodeChunker) docCommentStartByte(n *Node, source []byte, docComment string) uint32 {
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}

	docLines := strings.Count(docComment, "\n") + 1
	for i := 0; i < docLines && lineStart > 0; i++ {
		lineStart--
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}
	}

	return uint32(lineStart)
}

func (c *CodeChunker) extractFileContext(tree *Tree, source []byte, language string) string {
	var parts []string

	switch language {
	case "go":
		parts = c.extractGoContext(tree, source)
	case "typescript", "tsx":
		parts = c.extractTSContext(tree, source)
	case "javascript", "jsx":
		parts = c.extractJSContext(tree, source)
	case "python":
		parts = c.extractPythonContext(tree, source)
	}

	return strings.Join(parts, "\n\n")
}

func (c *CodeChunker) extractGoContext(tree *Tree, source []byte) []string {
	var parts []string
	for _, node := range tree.Root.Children {
		if node.Type == "package_clause" {
			parts = append(parts, node.GetContent(source))
			break
		}
	}
	for _, node := range tree.Root.Children {
		if node.Type == "import_declaration" {
			parts = append(parts, node.GetContent(source))
		}
	}
	return parts
}

func (c *CodeChunker) extractTSContext(tree *Tree, source []byte) []string {
	return c.extractJSContext(tree, source)
}

func (c *CodeChunker) extractJSContext(tree *Tree, source []byte) []string {
	var parts []string
	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}
	return parts
}

func (c *CodeChunker) extractPythonContext(tree *Tree, source []byte) []string {
	var parts []string
	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" || node.Type == "import_from_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}
	return parts
}

// enrichContextWithFilePath prepends a file path marker to the context so
// embedding models retain file location and scope.
func (c *CodeChunker) enrichContextWithFilePath(filePath, language, existingContext string) string {
	if filePath == "" {
		return existingContext
	}

	var marker string
	switch language {
	case "python":
		marker = fmt.Sprintf("# File: %s", filePath)
	default:
		marker = fmt.Sprintf("// File: %s", filePath)
	}

	if existingContext == "" {
		return marker
	}
	return marker + "\n" + existingContext
}

// buildChunk constructs a chunk with no surrounding context (used by the
// delimiter-heuristic and passthrough paths).
func (c *CodeChunker) buildChunk(file *FileInput, raw string, startLine int, kind ChunkKind, meta *SemanticMetadata) (*Chunk, error) {
	return c.buildChunkWithContext(file, raw, "", startLine, startLine+strings.Count(raw, "\n"), 0, uint32(len(raw)), kind, meta)
}

// buildChunkWithContext is the single construction point for every Chunk
// this package emits; it is the only place a Span, content hash, and
// content-addressed ID are computed together. Content is always exactly
// raw — the literal substring of the file spanned by byteStart:byteEnd —
// never fileContext-prefixed text, since fileContext (package clause,
// imports) generally isn't contiguous with the node in the source file and
// widening the span to cover it would be a lie. Callers that want the
// richer context-enriched text for embedding or BM25 indexing use
// Chunk.EmbeddingText instead.
func (c *CodeChunker) buildChunkWithContext(file *FileInput, raw, fileContext string, lineStart, lineEnd int, byteStart, byteEnd uint32, kind ChunkKind, meta *SemanticMetadata) (*Chunk, error) {
	span := Span{
		FilePath:  file.Path,
		ByteStart: byteStart,
		ByteEnd:   byteEnd,
		LineStart: uint32(lineStart),
		LineEnd:   uint32(lineEnd),
	}

	return &Chunk{
		ID:               generateChunkID(file.Path, raw, byteStart),
		Span:             span,
		Content:          raw,
		RawContent:       raw,
		Context:          fileContext,
		Language:         file.Language,
		Kind:             kind,
		SemanticMetadata: meta,
		ContentHash:      hashContent(raw),
		CreatedAt:        time.Now(),
		Metadata:         make(map[string]string),
	}, nil
}

// hashContent returns the Blake3-256 digest of raw chunk content, the
// content_hash field of the data model.
func hashContent(raw string) [32]byte {
	return blake3.Sum256([]byte(raw))
}

// generateChunkID derives a deterministic, UUIDv7-shaped chunk id from
// content_hash + file_path + byte_start. Identical content at the same
// location yields the same id across runs, hosts, and process restarts —
// the content-hash-stability invariant this package must satisfy. The id is
// not a clock-derived UUIDv7; see SPEC_FULL.md §9 for why a literal
// random/time-based UUIDv7 is incompatible with that invariant.
func generateChunkID(filePath, raw string, byteStart uint32) string {
	h := hashContent(raw)
	input := fmt.Sprintf("%s:%x:%d", filePath, h, byteStart)
	digest := sha256.Sum256([]byte(input))
	return formatAsUUIDv7Shaped(digest)
}

// formatAsUUIDv7Shaped renders a 32-byte digest as canonical UUID text with
// the version nibble fixed to 7 and the RFC 4122 variant bits set, so the
// id is parseable by any UUID library even though its bits are content-
// derived rather than clock-derived.
func formatAsUUIDv7Shaped(digest [32]byte) string {
	var b [16]byte
	copy(b[:], digest[:16])
	b[6] = (b[6] & 0x0f) | 0x70 // version 7
	b[8] = (b[8] & 0x3f) | 0x80 // RFC 4122 variant

	hexStr := hex.EncodeToString(b[:])
	return fmt.Sprintf("%s-%s-%s-%s-%s", hexStr[0:8], hexStr[8:12], hexStr[12:16], hexStr[16:20], hexStr[20:32])
}

// estimateTokens estimates the number of tokens in content.
func estimateTokens(content string) int {
	n := len(content) / TokensPerChar
	if n == 0 && len(content) > 0 {
		n = 1
	}
	return n
}
