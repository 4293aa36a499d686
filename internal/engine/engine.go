// Package engine is the boundary to the PDF library. The rule engine only
// sees text; everything about PDF structure, stream filters and serialization
// stays behind the Engine interface.
package engine

import (
	"errors"
	"fmt"

	"pdf-redactor/internal/models"
)

// Engine extracts and rewrites the text of PDF documents.
type Engine interface {
	// ExtractText returns the text shown on all pages, one line per text
	// line or text object.
	ExtractText(path string) (string, error)
	// Rewrite applies substitute to the text of every text-showing operator
	// and returns the serialized document. Nothing is written to disk.
	Rewrite(path string, substitute func(string) string) (Result, error)
	// Inspect returns document metadata.
	Inspect(path string) (models.DocumentInfo, error)
}

// Result is a rewritten document held in memory.
type Result struct {
	Data             []byte
	ChangedOperators int
}

// Options controls how rewritten documents are encoded.
type Options struct {
	// Compress re-encodes modified content streams with Flate and keeps
	// object and cross-reference streams. When false, page content streams
	// are written decoded.
	Compress bool
	// Level is the Flate compression level, 0-9.
	Level int
}

// ErrIncompleteRedaction is reported when a rewritten document does not show
// the redacted text, typically because a match spans several text operators.
var ErrIncompleteRedaction = errors.New("replacements do not line up with text operators and could not be rewritten")

// EngineError reports a failure of the PDF library for one document.
type EngineError struct {
	Op   string
	Path string
	Err  error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}
