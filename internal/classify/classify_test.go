package classify

import (
	"strings"
	"testing"

	"imeswitchd/internal/mode"
)

const goSample = `package main

// 说明文字：入口函数
func main() {
	greeting := "hello world!"
	cjk := "你好，世界"
	empty := ""
	short := "ab"
	mixed := "héllo wörld"
	tilde := "abc~def!"
	_ = greeting
	_ = cjk
	_ = empty
	_ = short
	_ = mixed
	_ = tilde
}

/**
 * @param none
 */
func documented() {}
`

func mustDocument(t *testing.T, language, source string) *Document {
	t.Helper()
	doc, err := NewDocument(language, []byte(source))
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	return doc
}

func offsetOf(t *testing.T, source, needle string) int {
	t.Helper()
	i := strings.Index(source, needle)
	if i < 0 {
		t.Fatalf("needle %q not found", needle)
	}
	return i
}

func TestClassifyRegions(t *testing.T) {
	doc := mustDocument(t, "go", goSample)

	tests := []struct {
		name       string
		offset     int
		wantKind   mode.RegionKind
		wantMode   mode.InputMode
		wantConf   float64
	}{
		{
			name:     "line comment with CJK",
			offset:   offsetOf(t, goSample, "说明文字"),
			wantKind: mode.RegionComment,
			wantMode: mode.Native,
			wantConf: 1.0,
		},
		{
			name:     "doc comment via tag",
			offset:   offsetOf(t, goSample, "@param"),
			wantKind: mode.RegionDoc,
			wantMode: mode.Native,
			wantConf: 1.0,
		},
		{
			name:     "ascii string literal",
			offset:   offsetOf(t, goSample, "hello world"),
			wantKind: mode.RegionString,
			wantMode: mode.Latin,
			wantConf: 0.9,
		},
		{
			name:     "cjk string literal",
			offset:   offsetOf(t, goSample, "你好"),
			wantKind: mode.RegionString,
			wantMode: mode.Native,
			wantConf: 1.0,
		},
		{
			name:     "short string literal",
			offset:   offsetOf(t, goSample, `"ab"`) + 1,
			wantKind: mode.RegionString,
			wantMode: mode.Latin,
			wantConf: 0.6,
		},
		{
			name:     "mixed string literal",
			offset:   offsetOf(t, goSample, "héllo"),
			wantKind: mode.RegionString,
			wantMode: mode.Native,
			wantConf: 0.7,
		},
		{
			name:     "tilde falls outside the latin punctuation set",
			offset:   offsetOf(t, goSample, "abc~def"),
			wantKind: mode.RegionString,
			wantMode: mode.Native,
			wantConf: 0.7,
		},
		{
			name:     "identifier is code",
			offset:   offsetOf(t, goSample, "greeting :="),
			wantKind: mode.RegionCode,
			wantMode: mode.Latin,
			wantConf: 0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(doc, tt.offset)
			if c.Kind != tt.wantKind {
				t.Errorf("kind = %v, want %v (%s)", c.Kind, tt.wantKind, c.Description)
			}
			if c.SuggestedMode != tt.wantMode {
				t.Errorf("mode = %v, want %v", c.SuggestedMode, tt.wantMode)
			}
			if c.Confidence != tt.wantConf {
				t.Errorf("confidence = %v, want %v", c.Confidence, tt.wantConf)
			}
		})
	}
}

func TestClassifyEmptyDocument(t *testing.T) {
	doc := mustDocument(t, "go", "")
	c := Classify(doc, 0)
	if c.Kind != mode.RegionUndetermined {
		t.Errorf("kind = %v, want undetermined", c.Kind)
	}
	if c.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", c.Confidence)
	}
}

func TestClassifyNilDocument(t *testing.T) {
	c := Classify(nil, 0)
	if c.Kind != mode.RegionUndetermined {
		t.Errorf("kind = %v, want undetermined", c.Kind)
	}
}

func TestClassifyNegativeOffset(t *testing.T) {
	doc := mustDocument(t, "go", goSample)
	c := Classify(doc, -1)
	if c.Kind != mode.RegionUndetermined {
		t.Errorf("kind = %v, want undetermined", c.Kind)
	}
}

func TestNewDocumentUnsupportedLanguage(t *testing.T) {
	if _, err := NewDocument("cobol", []byte("x")); err == nil {
		t.Fatal("expected error for unsupported language")
	}
}

func TestSetSourceReparses(t *testing.T) {
	doc := mustDocument(t, "go", "package main\n")
	src := "package main\n\n// note\n"
	if err := doc.SetSource([]byte(src)); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	c := Classify(doc, strings.Index(src, "note"))
	if c.Kind != mode.RegionComment {
		t.Errorf("kind = %v, want comment", c.Kind)
	}
}

func TestOffsetAt(t *testing.T) {
	doc := mustDocument(t, "go", "abc\ndef\n")

	tests := []struct {
		line, col, want int
	}{
		{0, 0, 0},
		{0, 2, 2},
		{1, 0, 4},
		{1, 1, 5},
		{0, 99, 3},  // clamp to line end
		{99, 0, 8},  // clamp to document end
	}
	for _, tt := range tests {
		if got := doc.OffsetAt(tt.line, tt.col); got != tt.want {
			t.Errorf("OffsetAt(%d,%d) = %d, want %d", tt.line, tt.col, got, tt.want)
		}
	}
}

func TestStripDelimiters(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`"hello"`, "hello"},
		{"'c'", "c"},
		{"`raw`", "raw"},
		{`"""doc"""`, "doc"},
		{`""`, ""},
		{"bare", "bare"},
	}
	for _, tt := range tests {
		if got := stripDelimiters(tt.in); got != tt.want {
			t.Errorf("stripDelimiters(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
