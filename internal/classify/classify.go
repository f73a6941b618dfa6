package classify

import (
	"fmt"
	"strings"

	sitter "github.com/mitjafelicijan/go-tree-sitter"

	"imeswitchd/internal/mode"
)

// Node types that represent comments across the supported grammars.
var commentNodeTypes = map[string]bool{
	"comment":       true,
	"line_comment":  true,
	"block_comment": true,
	"doc_comment":   true,
}

// Node types that represent string, char, or template literals.
var stringNodeTypes = map[string]bool{
	"string":                     true,
	"string_literal":             true,
	"interpreted_string_literal": true,
	"raw_string_literal":         true,
	"template_string":            true,
	"string_fragment":            true,
	"string_content":             true,
	"char_literal":               true,
	"character_literal":          true,
	"rune_literal":               true,
	"heredoc_body":               true,
	"concatenated_string":        true,
}

// Doc-comment markers and tags. A comment is promoted to documentation when
// it opens with a doc marker or contains a recognized doc tag.
var docPrefixes = []string{"/**", "///", "//!", "'''", "\"\"\""}

var docTags = []string{
	"@param", "@return", "@returns", "@author", "@throws", "@see",
	"@deprecated", "@since", ":param", ":return", ":rtype",
}

// Classify determines the region kind at a byte offset in doc.
//
// Resolution order: comment (refined to documentation), string literal,
// code, undetermined. Any failure while walking the tree is recovered and
// reported as an undetermined classification; Classify never panics or
// returns an error to its caller.
func Classify(doc *Document, offset int) (c mode.Classification) {
	defer func() {
		if r := recover(); r != nil {
			c = mode.Undecided(fmt.Sprintf("tree walk failed: %v", r))
		}
	}()

	if doc == nil {
		return mode.Undecided("no document")
	}
	root := doc.root()
	if root == nil {
		return mode.Undecided("document not parsed")
	}
	if root.NamedChildCount() == 0 {
		return mode.Undecided("empty document")
	}
	if offset < 0 {
		return mode.Undecided("offset out of range")
	}

	pt := doc.pointAt(offset)
	node := root.NamedDescendantForPointRange(pt, pt)
	if node == nil {
		return mode.Undecided("no element at offset")
	}

	if comment := ancestorOfTypes(node, commentNodeTypes); comment != nil {
		return classifyComment(comment.Content(doc.source))
	}
	if str := ancestorOfTypes(node, stringNodeTypes); str != nil {
		return classifyStringLiteral(stripDelimiters(str.Content(doc.source)))
	}
	return mode.Classification{
		Kind:          mode.RegionCode,
		Confidence:    0.8,
		SuggestedMode: mode.Latin,
		Description:   node.Type(),
	}
}

// ancestorOfTypes returns node or its nearest ancestor whose type is in the
// set, or nil if none up to the root matches.
func ancestorOfTypes(node *sitter.Node, types map[string]bool) *sitter.Node {
	for n := node; n != nil; n = n.Parent() {
		if types[n.Type()] {
			return n
		}
	}
	return nil
}

// classifyComment distinguishes plain comments from documentation comments.
// Documentation is a refinement of comment, checked only once the offset is
// already known to be inside a comment node.
func classifyComment(text string) mode.Classification {
	trimmed := strings.TrimSpace(text)
	for _, p := range docPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return mode.Classification{
				Kind:          mode.RegionDoc,
				Confidence:    1.0,
				SuggestedMode: mode.Native,
				Description:   "doc comment marker",
			}
		}
	}
	lower := strings.ToLower(trimmed)
	for _, tag := range docTags {
		if strings.Contains(lower, tag) {
			return mode.Classification{
				Kind:          mode.RegionDoc,
				Confidence:    0.9,
				SuggestedMode: mode.Native,
				Description:   "doc tag " + tag,
			}
		}
	}
	return mode.Classification{
		Kind:          mode.RegionComment,
		Confidence:    1.0,
		SuggestedMode: mode.Native,
		Description:   "comment",
	}
}

// classifyStringLiteral derives confidence and suggested mode from the
// literal's content (delimiters already stripped).
func classifyStringLiteral(content string) mode.Classification {
	runes := []rune(content)

	switch {
	case len(runes) == 0:
		return mode.Classification{
			Kind:          mode.RegionString,
			Confidence:    0.5,
			SuggestedMode: mode.Native,
			Description:   "empty string literal",
		}
	case containsCJK(runes):
		return mode.Classification{
			Kind:          mode.RegionString,
			Confidence:    1.0,
			SuggestedMode: mode.Native,
			Description:   "string literal with CJK content",
		}
	case len(runes) < 5:
		m := mode.Native
		if asciiOnly(runes) {
			m = mode.Latin
		}
		return mode.Classification{
			Kind:          mode.RegionString,
			Confidence:    0.6,
			SuggestedMode: m,
			Description:   "short string literal",
		}
	case asciiOnly(runes):
		return mode.Classification{
			Kind:          mode.RegionString,
			Confidence:    0.9,
			SuggestedMode: mode.Latin,
			Description:   "ascii string literal",
		}
	default:
		// Mixed content defaults to native.
		return mode.Classification{
			Kind:          mode.RegionString,
			Confidence:    0.7,
			SuggestedMode: mode.Native,
			Description:   "mixed string literal",
		}
	}
}

// containsCJK reports whether any rune falls in the unified CJK blocks
// (U+4E00-U+9FFF, U+3400-U+4DBF, U+20000-U+2A6DF).
func containsCJK(runes []rune) bool {
	for _, r := range runes {
		if (r >= 0x4E00 && r <= 0x9FFF) ||
			(r >= 0x3400 && r <= 0x4DBF) ||
			(r >= 0x20000 && r <= 0x2A6DF) {
			return true
		}
	}
	return false
}

// asciiOnly reports whether the content consists solely of ASCII letters,
// digits, space, and common punctuation.
const asciiPunct = `!@#$%^&*()_+-=[]{}|;':",./<>?`

func asciiOnly(runes []rune) bool {
	for _, r := range runes {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == ' ':
		case strings.ContainsRune(asciiPunct, r):
		default:
			return false
		}
	}
	return true
}

// stripDelimiters removes quote-style delimiters from a raw literal.
// Handles triple quotes, backticks, and single/double quotes.
func stripDelimiters(raw string) string {
	for _, d := range []string{`"""`, "'''", "```"} {
		if strings.HasPrefix(raw, d) && strings.HasSuffix(raw, d) && len(raw) >= 2*len(d) {
			return raw[len(d) : len(raw)-len(d)]
		}
	}
	for _, d := range []string{`"`, "'", "`"} {
		if strings.HasPrefix(raw, d) && strings.HasSuffix(raw, d) && len(raw) >= 2 {
			return raw[1 : len(raw)-1]
		}
	}
	return raw
}
