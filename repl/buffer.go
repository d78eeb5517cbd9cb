package main

import (
	"strings"
	"unicode/utf8"

	ghostline "github.com/Paranoid-AF/ghostline"
)

// Buffer is the scratch document the REPL completes against. Every entered
// line is appended; the cursor of the last entry is the trigger position.
type Buffer struct {
	URI        string
	LanguageID string
	lines      []string
	version    int
}

// NewBuffer creates an empty buffer. Seed text, if any, becomes its first lines.
func NewBuffer(uri, languageID, seed string) *Buffer {
	b := &Buffer{URI: uri, LanguageID: languageID, version: 1}
	if seed != "" {
		b.lines = strings.Split(strings.TrimSuffix(seed, "\n"), "\n")
	}
	return b
}

// Append adds line and returns the document and the position of the cursor
// inside it. cursor counts runes into line.
func (b *Buffer) Append(line string, cursor int) (*ghostline.Document, ghostline.Position) {
	b.lines = append(b.lines, line)
	b.version++
	if n := utf8.RuneCountInString(line); cursor > n {
		cursor = n
	}
	return b.Document(), ghostline.Position{Line: len(b.lines) - 1, Character: cursor}
}

// Insert splices text at pos, which must lie inside the buffer.
func (b *Buffer) Insert(pos ghostline.Position, text string) {
	if pos.Line < 0 || pos.Line >= len(b.lines) {
		return
	}
	line := []rune(b.lines[pos.Line])
	at := min(max(pos.Character, 0), len(line))
	merged := string(line[:at]) + text + string(line[at:])

	tail := append([]string(nil), b.lines[pos.Line+1:]...)
	b.lines = append(b.lines[:pos.Line], strings.Split(merged, "\n")...)
	b.lines = append(b.lines, tail...)
	b.version++
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.lines = nil
	b.version++
}

// Document returns a snapshot of the buffer.
func (b *Buffer) Document() *ghostline.Document {
	return &ghostline.Document{
		URI:        b.URI,
		LanguageID: b.LanguageID,
		Version:    b.version,
		Text:       strings.Join(b.lines, "\n"),
	}
}

// Lines returns the buffer's lines.
func (b *Buffer) Lines() []string { return b.lines }
