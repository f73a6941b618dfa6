// Package classify maps a (document, offset) pair to a region classification
// used for input mode selection. Parsing is done with tree-sitter; the
// classifier itself is a pure read-only walk over the syntax tree.
package classify

import (
	"context"
	"fmt"

	sitter "github.com/mitjafelicijan/go-tree-sitter"
	"github.com/mitjafelicijan/go-tree-sitter/bash"
	"github.com/mitjafelicijan/go-tree-sitter/c"
	"github.com/mitjafelicijan/go-tree-sitter/cpp"
	"github.com/mitjafelicijan/go-tree-sitter/golang"
	"github.com/mitjafelicijan/go-tree-sitter/javascript"
	"github.com/mitjafelicijan/go-tree-sitter/python"
	"github.com/mitjafelicijan/go-tree-sitter/typescript/tsx"
	"github.com/mitjafelicijan/go-tree-sitter/typescript/typescript"
)

// languageFor maps a language identifier (as reported by editor plugins)
// to a tree-sitter grammar.
func languageFor(id string) *sitter.Language {
	switch id {
	case "go":
		return golang.GetLanguage()
	case "c":
		return c.GetLanguage()
	case "cpp", "c++":
		return cpp.GetLanguage()
	case "javascript", "js":
		return javascript.GetLanguage()
	case "typescript", "ts":
		return typescript.GetLanguage()
	case "tsx":
		return tsx.GetLanguage()
	case "python", "py":
		return python.GetLanguage()
	case "bash", "sh", "shell":
		return bash.GetLanguage()
	default:
		return nil
	}
}

// SupportedLanguages lists the language identifiers the classifier can parse.
func SupportedLanguages() []string {
	return []string{"go", "c", "cpp", "javascript", "typescript", "tsx", "python", "bash"}
}

// Document is a parsed mirror of one editing surface's text. The session
// owning the surface replaces the source on every document-change sync, so
// classification never races a mutation.
type Document struct {
	language string
	parser   *sitter.Parser
	source   []byte
	tree     *sitter.Tree
}

// NewDocument parses source under the given language identifier.
// Returns an error for unsupported languages.
func NewDocument(language string, source []byte) (*Document, error) {
	lang := languageFor(language)
	if lang == nil {
		return nil, fmt.Errorf("classify: unsupported language %q", language)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	d := &Document{
		language: language,
		parser:   parser,
	}
	if err := d.SetSource(source); err != nil {
		return nil, err
	}
	return d, nil
}

// Language returns the document's language identifier.
func (d *Document) Language() string {
	return d.language
}

// Source returns the current document text.
func (d *Document) Source() []byte {
	return d.source
}

// SetSource replaces the document text and reparses. The previous tree is
// discarded; incremental parsing is not worth the edit bookkeeping at the
// sizes editor plugins sync.
func (d *Document) SetSource(source []byte) error {
	tree, err := d.parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return fmt.Errorf("classify: parse: %w", err)
	}
	d.source = source
	d.tree = tree
	return nil
}

// Len returns the document length in bytes.
func (d *Document) Len() int {
	return len(d.source)
}

// root returns the syntax tree root, or nil if parsing never succeeded.
func (d *Document) root() *sitter.Node {
	if d.tree == nil {
		return nil
	}
	return d.tree.RootNode()
}

// pointAt converts a byte offset into a tree-sitter row/column point.
func (d *Document) pointAt(offset int) sitter.Point {
	if offset > len(d.source) {
		offset = len(d.source)
	}
	var pt sitter.Point
	for i := 0; i < offset; i++ {
		if d.source[i] == '\n' {
			pt.Row++
			pt.Column = 0
		} else {
			pt.Column++
		}
	}
	return pt
}

// OffsetAt converts a zero-based line/column position to a byte offset.
// Positions past the end of a line clamp to the line end; lines past the
// end of the document clamp to the document end.
func (d *Document) OffsetAt(line, column int) int {
	row := 0
	lineStart := 0
	for i := 0; i < len(d.source); i++ {
		if row == line {
			break
		}
		if d.source[i] == '\n' {
			row++
			lineStart = i + 1
		}
	}
	if row < line {
		return len(d.source)
	}

	offset := lineStart
	for col := 0; col < column && offset < len(d.source); col++ {
		if d.source[offset] == '\n' {
			break
		}
		offset++
	}
	return offset
}
