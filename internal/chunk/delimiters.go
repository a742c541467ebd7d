package chunk

import (
	"strings"
	"time"
)

// DelimiterFamily names one of the block-delimiting conventions the
// heuristic chunker knows how to split. Most languages without a tree-sitter
// grammar still belong to one of these families.
type DelimiterFamily string

const (
	FamilyCStyle     DelimiterFamily = "c_style"     // { } blocks: C, Java, Rust, Swift, Kotlin...
	FamilyPythonic   DelimiterFamily = "pythonic"     // indentation blocks: Python-like (used only when no grammar)
	FamilyLisp       DelimiterFamily = "lisp"         // ( ) nesting: Lisp, Clojure, Scheme
	FamilyShell      DelimiterFamily = "shell"        // keyword blocks: bash, zsh
	FamilyMarkup     DelimiterFamily = "markup"       // tag/heading blocks: HTML, Markdown
	FamilyML         DelimiterFamily = "ml"           // let/in, begin/end: OCaml, F#, Haskell
	FamilyRuby       DelimiterFamily = "ruby"         // def/end, class/end
	FamilyMATLAB     DelimiterFamily = "matlab"       // function/end
	FamilyLaTeX      DelimiterFamily = "latex"        // \begin{}/\end{}
	FamilyFunctional DelimiterFamily = "functional"   // Elixir/Erlang-style do/end
)

// delimiterRule describes how to recognize block starts/ends and classify
// the resulting block for one family.
type delimiterRule struct {
	Family      DelimiterFamily
	BlockStarts []string // keyword or token that opens a block of interest
	CommentLine []string // single-line comment prefixes
}

// extensionFamilies maps a file extension to its delimiter family, for
// languages with no tree-sitter grammar registered. Configuration may add
// entries to this table at runtime without a code change.
var extensionFamilies = map[string]delimiterRule{
	".c":     {Family: FamilyCStyle, BlockStarts: []string{"if", "for", "while", "switch"}, CommentLine: []string{"//"}},
	".h":     {Family: FamilyCStyle, BlockStarts: []string{"if", "for", "while", "switch"}, CommentLine: []string{"//"}},
	".cpp":   {Family: FamilyCStyle, BlockStarts: []string{"if", "for", "while", "switch", "class"}, CommentLine: []string{"//"}},
	".hpp":   {Family: FamilyCStyle, BlockStarts: []string{"if", "for", "while", "switch", "class"}, CommentLine: []string{"//"}},
	".java":  {Family: FamilyCStyle, BlockStarts: []string{"if", "for", "while", "class", "interface"}, CommentLine: []string{"//"}},
	".rs":    {Family: FamilyCStyle, BlockStarts: []string{"fn", "impl", "struct", "enum", "trait"}, CommentLine: []string{"//"}},
	".swift": {Family: FamilyCStyle, BlockStarts: []string{"func", "class", "struct", "enum"}, CommentLine: []string{"//"}},
	".kt":    {Family: FamilyCStyle, BlockStarts: []string{"fun", "class", "object"}, CommentLine: []string{"//"}},
	".cs":    {Family: FamilyCStyle, BlockStarts: []string{"class", "void", "public", "private"}, CommentLine: []string{"//"}},

	".clj": {Family: FamilyLisp, BlockStarts: []string{"defn", "def", "defmacro"}, CommentLine: []string{";"}},
	".scm": {Family: FamilyLisp, BlockStarts: []string{"define"}, CommentLine: []string{";"}},
	".lisp": {Family: FamilyLisp, BlockStarts: []string{"defun", "defvar"}, CommentLine: []string{";"}},

	".sh":   {Family: FamilyShell, BlockStarts: []string{"function", "if", "for", "while", "case"}, CommentLine: []string{"#"}},
	".bash": {Family: FamilyShell, BlockStarts: []string{"function", "if", "for", "while", "case"}, CommentLine: []string{"#"}},
	".zsh":  {Family: FamilyShell, BlockStarts: []string{"function", "if", "for", "while", "case"}, CommentLine: []string{"#"}},

	".html": {Family: FamilyMarkup, BlockStarts: []string{"<"}, CommentLine: nil},
	".md":   {Family: FamilyMarkup, BlockStarts: []string{"#"}, CommentLine: nil},
	".mdx":  {Family: FamilyMarkup, BlockStarts: []string{"#"}, CommentLine: nil},

	".ml":  {Family: FamilyML, BlockStarts: []string{"let", "module", "type"}, CommentLine: nil},
	".hs":  {Family: FamilyML, BlockStarts: []string{"data", "module", "class", "instance"}, CommentLine: []string{"--"}},
	".fsx": {Family: FamilyML, BlockStarts: []string{"let", "module", "type"}, CommentLine: nil},

	".rb": {Family: FamilyRuby, BlockStarts: []string{"def", "class", "module"}, CommentLine: []string{"#"}},
	".m":  {Family: FamilyMATLAB, BlockStarts: []string{"function"}, CommentLine: []string{"%"}},

	".tex": {Family: FamilyLaTeX, BlockStarts: []string{"\\begin", "\\section", "\\subsection"}, CommentLine: []string{"%"}},

	".ex":  {Family: FamilyFunctional, BlockStarts: []string{"def", "defmodule"}, CommentLine: []string{"#"}},
	".exs": {Family: FamilyFunctional, BlockStarts: []string{"def", "defmodule"}, CommentLine: []string{"#"}},
	".erl": {Family: FamilyFunctional, BlockStarts: []string{"-module", "-spec"}, CommentLine: []string{"%"}},
}

// DelimiterFamilyForExtension returns the family registered for ext, if any.
func DelimiterFamilyForExtension(ext string) (DelimiterFamily, bool) {
	ext = strings.ToLower(ext)
	rule, ok := extensionFamilies[ext]
	if !ok {
		return "", false
	}
	return rule.Family, true
}

// chunkByDelimiterFamily is the delimiter-heuristic strategy: it finds
// probable block starts via the family's keyword/token table and coarse
// comment lines, and classifies the resulting blocks (block or comment).
// It never returns silently-line-sliced noise for a family it does
// not recognize — callers must only invoke this once a family is known.
func (c *CodeChunker) chunkByDelimiterFamily(file *FileInput, rule delimiterRule) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	lines := strings.Split(content, "\n")
	var blocks []delimiterBlock
	var current *delimiterBlock

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		kind := classifyDelimiterLine(trimmed, rule)

		if kind == KindBlock && startsBlock(trimmed, rule) {
			if current != nil {
				current.endLine = i
				blocks = append(blocks, *current)
			}
			current = &delimiterBlock{startLine: i + 1, endLine: i + 1, kind: KindBlock}
			continue
		}
		if current == nil {
			current = &delimiterBlock{startLine: i + 1, endLine: i + 1, kind: kind}
		}
	}
	if current != nil {
		current.endLine = len(lines)
		blocks = append(blocks, *current)
	}

	now := time.Now()
	chunks := make([]*Chunk, 0, len(blocks))
	for _, b := range blocks {
		if b.startLine > b.endLine {
			continue
		}
		blockLines := lines[b.startLine-1 : b.endLine]
		raw := strings.Join(blockLines, "\n")
		if strings.TrimSpace(raw) == "" {
			continue
		}
		off := 0
		for _, l := range lines[:b.startLine-1] {
			off += len(l) + 1
		}
		chunk, err := c.buildChunkWithContext(file, raw, "", b.startLine, b.endLine, uint32(off), uint32(off+len(raw)), b.kind, nil)
		if err != nil {
			continue
		}
		chunks = append(chunks, chunk)
	}

	return applyGovernor(chunks, c.governor), nil
}

type delimiterBlock struct {
	startLine int
	endLine   int
	kind      ChunkKind
}

func classifyDelimiterLine(trimmed string, rule delimiterRule) ChunkKind {
	if trimmed == "" {
		return KindBlock
	}
	for _, prefix := range rule.CommentLine {
		if strings.HasPrefix(trimmed, prefix) {
			return KindComment
		}
	}
	if startsBlock(trimmed, rule) {
		return KindBlock
	}
	return KindBlock
}

func startsBlock(trimmed string, rule delimiterRule) bool {
	for _, kw := range rule.BlockStarts {
		if strings.HasPrefix(trimmed, kw) {
			return true
		}
	}
	return false
}
