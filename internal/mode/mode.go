// Package mode defines the value types shared by the classification and
// switching pipeline: input modes, region kinds, classifications, and
// switch requests.
package mode

import "time"

// InputMode identifies a system input method family.
type InputMode int

const (
	// Undetermined means the mode is unknown or no mode applies.
	Undetermined InputMode = iota
	// Latin is the ASCII/direct-input mode.
	Latin
	// Native is the native-script (IME composition) mode.
	Native
)

// String returns the lowercase name of the mode.
func (m InputMode) String() string {
	switch m {
	case Latin:
		return "latin"
	case Native:
		return "native"
	default:
		return "undetermined"
	}
}

// ParseInputMode parses a mode name. Unknown names map to Undetermined.
func ParseInputMode(s string) InputMode {
	switch s {
	case "latin":
		return Latin
	case "native":
		return Native
	default:
		return Undetermined
	}
}

// RegionKind is the syntactic category a cursor offset falls into.
type RegionKind int

const (
	// RegionUndetermined means no syntactic element was found at the offset.
	RegionUndetermined RegionKind = iota
	// RegionCode is ordinary source code.
	RegionCode
	// RegionComment is a line or block comment.
	RegionComment
	// RegionString is a string, char, or template literal.
	RegionString
	// RegionDoc is a documentation comment.
	RegionDoc
)

// String returns the lowercase name of the region kind.
func (k RegionKind) String() string {
	switch k {
	case RegionCode:
		return "code"
	case RegionComment:
		return "comment"
	case RegionString:
		return "string"
	case RegionDoc:
		return "doc"
	default:
		return "undetermined"
	}
}

// Classification is the result of classifying a cursor offset.
// It is a value created fresh per call and never mutated.
type Classification struct {
	// Kind is the region category at the offset.
	Kind RegionKind

	// Confidence is an advisory score in [0,1]. It is threaded through
	// to listeners and history but does not gate decisions.
	Confidence float64

	// SuggestedMode is the mode the classifier would pick absent any
	// user preference.
	SuggestedMode InputMode

	// Description is a human-readable detail string (node type, failure
	// reason). Advisory only.
	Description string
}

// Undecided returns a Classification for an offset with no syntactic element,
// or for a failed tree walk.
func Undecided(reason string) Classification {
	return Classification{
		Kind:          RegionUndetermined,
		Confidence:    0,
		SuggestedMode: Undetermined,
		Description:   reason,
	}
}

// SwitchRequest describes one proposed mode switch. Ephemeral, created per
// decision cycle.
type SwitchRequest struct {
	Target      InputMode
	ContextTag  string
	RequestedAt time.Time
}
