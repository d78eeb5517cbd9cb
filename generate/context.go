package generate

import (
	"strings"
	"unicode"
	"unicode/utf8"

	ghostline "github.com/Paranoid-AF/ghostline"
)

// Default context window sizes, in characters.
const (
	DefaultPrefixChars = 4000
	DefaultSuffixChars = 2000
)

// Extractor produces bounded prefix/suffix windows around a cursor.
type Extractor struct {
	PrefixChars int
	SuffixChars int
}

// NewExtractor returns an extractor with the given limits. Non-positive
// limits fall back to the defaults.
func NewExtractor(prefixChars, suffixChars int) Extractor {
	if prefixChars <= 0 {
		prefixChars = DefaultPrefixChars
	}
	if suffixChars <= 0 {
		suffixChars = DefaultSuffixChars
	}
	return Extractor{PrefixChars: prefixChars, SuffixChars: suffixChars}
}

// ExtractContext returns the last PrefixChars characters before pos and the
// first SuffixChars characters after it.
func (x Extractor) ExtractContext(doc *ghostline.Document, pos ghostline.Position) (prefix, suffix string) {
	if doc == nil || doc.Text == "" {
		return "", ""
	}
	off := offsetAt(doc.Text, pos)
	return lastChars(doc.Text[:off], x.PrefixChars), firstChars(doc.Text[off:], x.SuffixChars)
}

// ExtractContext uses the default window sizes.
func ExtractContext(doc *ghostline.Document, pos ghostline.Position) (prefix, suffix string) {
	return NewExtractor(0, 0).ExtractContext(doc, pos)
}

// IsAtMidToken reports whether the character right after pos is a word
// character. Inserting there would split a token.
func IsAtMidToken(doc *ghostline.Document, pos ghostline.Position) bool {
	if doc == nil {
		return false
	}
	off := offsetAt(doc.Text, pos)
	if off >= len(doc.Text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(doc.Text[off:])
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// offsetAt converts a line/character position to a byte offset. Positions
// past the end of a line clamp to the line end; lines past the end of the
// document clamp to the document end.
func offsetAt(text string, pos ghostline.Position) int {
	if pos.Line < 0 {
		return 0
	}
	off := 0
	for line := 0; line < pos.Line; line++ {
		i := strings.IndexByte(text[off:], '\n')
		if i < 0 {
			return len(text)
		}
		off += i + 1
	}

	end := len(text)
	if i := strings.IndexByte(text[off:], '\n'); i >= 0 {
		end = off + i
	}
	for n := 0; n < pos.Character && off < end; n++ {
		_, size := utf8.DecodeRuneInString(text[off:end])
		off += size
	}
	return off
}

func lastChars(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	off := len(s)
	for i := 0; i < n; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:off])
		off -= size
	}
	return s[off:]
}

func firstChars(s string, n int) string {
	off := 0
	for i := 0; i < n && off < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[off:])
		off += size
	}
	return s[:off]
}
