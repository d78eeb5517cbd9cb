package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/term"

	ghostline "github.com/Paranoid-AF/ghostline"
)

// termWriter wraps a file and converts \n to \r\n when the file is a terminal
// (needed because raw mode disables the kernel's NL→CRNL translation).
// When the file is redirected, \n passes through unchanged.
func termWriter(f *os.File) io.Writer {
	if term.IsTerminal(int(f.Fd())) {
		return &crlfWriter{w: f}
	}
	return f
}

type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	replaced := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	_, err := c.w.Write(replaced)
	return len(p), err // report original length to caller
}

// Entry is one trigger and its outcome, written as a TOML document.
type Entry struct {
	Request    RequestEntry    `toml:"request"`
	Completion CompletionEntry `toml:"completion"`
}

// RequestEntry describes the trigger.
type RequestEntry struct {
	Timestamp   time.Time `toml:"timestamp"`
	URI         string    `toml:"uri"`
	Language    string    `toml:"language"`
	Version     int       `toml:"version"`
	Line        int       `toml:"line"`
	Character   int       `toml:"character"`
	Instruction string    `toml:"instruction,omitempty"`
	Input       string    `toml:"input"`
}

// CompletionEntry describes how the session ended.
type CompletionEntry struct {
	Status        string `toml:"status"`
	Text          string `toml:"text"`
	CorrelationID string `toml:"correlation_id,omitempty"`
	Error         string `toml:"error,omitempty"`
	Updates       int    `toml:"updates"`
	ElapsedMs     int64  `toml:"elapsed_ms"`
}

// newEntry records a trigger at pos in doc.
func newEntry(doc *ghostline.Document, pos ghostline.Position, input, instruction string) *Entry {
	return &Entry{Request: RequestEntry{
		Timestamp:   time.Now().Truncate(time.Second),
		URI:         doc.URI,
		Language:    doc.LanguageID,
		Version:     doc.Version,
		Line:        pos.Line,
		Character:   pos.Character,
		Instruction: instruction,
		Input:       input,
	}}
}

// writeEntry writes a single TOML-formatted entry to w.
func writeEntry(w io.Writer, e *Entry) error {
	fmt.Fprintf(w, "# %s\n\n", strings.Repeat("═", 60))
	if err := toml.NewEncoder(w).Encode(e); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

// showBuffer prints the buffer with line numbers, marking pos when it is set.
func showBuffer(w io.Writer, lines []string, pos *ghostline.Position) {
	if len(lines) == 0 {
		fmt.Fprintln(w, "(empty)")
		return
	}
	for i, line := range lines {
		if pos != nil && pos.Line == i {
			r := []rune(line)
			at := min(pos.Character, len(r))
			line = string(r[:at]) + "▏" + string(r[at:])
		}
		fmt.Fprintf(w, "%4d  %s\n", i+1, line)
	}
}
