package chunk

import "errors"

// ErrUnsupportedLanguage is returned when a file's language has neither an
// AST grammar nor a delimiter-family mapping. Silent fallback to naive
// line-based chunking is forbidden: it would pollute the retrieval corpus
// with unclassified noise. Callers that want an opt-in escape hatch should
// set CodeChunkerOptions.AllowUnmappedPassthrough.
var ErrUnsupportedLanguage = errors.New("chunk: language has no grammar or delimiter-family mapping")
