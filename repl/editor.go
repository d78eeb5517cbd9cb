package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
	"golang.org/x/term"

	ghostline "github.com/Paranoid-AF/ghostline"
)

// ErrInterrupt is returned when the user presses Ctrl-C.
var ErrInterrupt = errors.New("interrupted")

// Editor edits the next line of the scratch document in raw mode. It reads
// from /dev/tty so stdout can be redirected.
type Editor struct {
	tty      *os.File
	in       *bufio.Reader
	oldState *term.State
}

// NewEditor opens /dev/tty and switches to raw mode.
func NewEditor() (*Editor, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open /dev/tty")
	}
	old, err := term.MakeRaw(int(tty.Fd()))
	if err != nil {
		tty.Close()
		return nil, errors.Wrap(err, "raw mode")
	}
	return &Editor{tty: tty, in: bufio.NewReader(tty), oldState: old}, nil
}

// Close restores terminal state and closes the tty fd.
func (e *Editor) Close() {
	term.Restore(int(e.tty.Fd()), e.oldState)
	e.tty.Close()
}

// Tty returns the tty file for writing prompts/UI.
func (e *Editor) Tty() *os.File { return e.tty }

// ReadLine edits the line that follows doc. Up and Down recall the document's
// lines into the editor. The returned position is where the cursor sits in
// the document once the line is appended. Ctrl-D on an empty line returns
// io.EOF.
func (e *Editor) ReadLine(prompt string, doc []string) (string, ghostline.Position, error) {
	ls := newLineState(doc)
	e.redraw(prompt, ls)
	for {
		k, err := readKey(e.in)
		if err != nil {
			return "", ghostline.Position{}, err
		}
		switch ls.apply(k) {
		case submitted:
			fmt.Fprint(e.tty, "\r\n")
			return ls.text(), ghostline.Position{Line: len(doc), Character: ls.pos}, nil
		case endOfInput:
			fmt.Fprint(e.tty, "\r\n")
			return "", ghostline.Position{}, io.EOF
		case interrupted:
			fmt.Fprint(e.tty, "\r\n")
			return "", ghostline.Position{}, ErrInterrupt
		}
		e.redraw(prompt, ls)
	}
}

// redraw clears the terminal line and prints prompt and buffer with the
// cursor in place.
func (e *Editor) redraw(prompt string, ls *lineState) {
	fmt.Fprintf(e.tty, "\r\x1b[K%s%s", prompt, ls.text())
	if tail := len(ls.buf) - ls.pos; tail > 0 {
		fmt.Fprintf(e.tty, "\x1b[%dD", tail)
	}
}

type keyKind int

const (
	keyNone keyKind = iota
	keyRune
	keyEnter
	keyBackspace
	keyDelete
	keyLeft
	keyRight
	keyHome
	keyEnd
	keyUp
	keyDown
	keyWordLeft
	keyWordRight
	keyKillWord
	keyKillLine
	keyKillEnd
	keyEOF
	keyInterrupt
)

type key struct {
	kind keyKind
	r    rune
}

// readKey decodes one keypress, including VT100 and xterm escape sequences.
// Unknown sequences decode to keyNone.
func readKey(in *bufio.Reader) (key, error) {
	r, _, err := in.ReadRune()
	if err != nil {
		return key{}, err
	}
	switch r {
	case 3:
		return key{kind: keyInterrupt}, nil
	case 4:
		return key{kind: keyEOF}, nil
	case '\r', '\n':
		return key{kind: keyEnter}, nil
	case 127, 8:
		return key{kind: keyBackspace}, nil
	case 1:
		return key{kind: keyHome}, nil
	case 5:
		return key{kind: keyEnd}, nil
	case 2:
		return key{kind: keyLeft}, nil
	case 6:
		return key{kind: keyRight}, nil
	case 16:
		return key{kind: keyUp}, nil
	case 14:
		return key{kind: keyDown}, nil
	case 11:
		return key{kind: keyKillEnd}, nil
	case 21:
		return key{kind: keyKillLine}, nil
	case 23:
		return key{kind: keyKillWord}, nil
	case 27:
		return readEscape(in)
	}
	if r < 32 || r == unicode.ReplacementChar {
		return key{kind: keyNone}, nil
	}
	return key{kind: keyRune, r: r}, nil
}

func readEscape(in *bufio.Reader) (key, error) {
	b, err := in.ReadByte()
	if err != nil {
		return key{kind: keyNone}, nil
	}
	switch b {
	case 'b':
		return key{kind: keyWordLeft}, nil
	case 'f':
		return key{kind: keyWordRight}, nil
	case 127:
		return key{kind: keyKillWord}, nil
	case '[', 'O':
	default:
		return key{kind: keyNone}, nil
	}

	// CSI: parameter bytes, then one final byte in 0x40-0x7e.
	var params strings.Builder
	for {
		c, err := in.ReadByte()
		if err != nil {
			return key{kind: keyNone}, nil
		}
		if c >= 0x40 && c <= 0x7e {
			return csiKey(params.String(), c), nil
		}
		params.WriteByte(c)
	}
}

func csiKey(params string, final byte) key {
	// xterm reports modifiers as "1;5" (Ctrl) or "1;3" (Alt).
	_, mod, _ := strings.Cut(params, ";")
	word := mod == "5" || mod == "3"
	switch final {
	case 'A':
		return key{kind: keyUp}
	case 'B':
		return key{kind: keyDown}
	case 'C':
		if word {
			return key{kind: keyWordRight}
		}
		return key{kind: keyRight}
	case 'D':
		if word {
			return key{kind: keyWordLeft}
		}
		return key{kind: keyLeft}
	case 'H':
		return key{kind: keyHome}
	case 'F':
		return key{kind: keyEnd}
	case '~':
		switch params {
		case "1", "7":
			return key{kind: keyHome}
		case "4", "8":
			return key{kind: keyEnd}
		case "3":
			return key{kind: keyDelete}
		}
	}
	return key{kind: keyNone}
}

type editResult int

const (
	editing editResult = iota
	submitted
	endOfInput
	interrupted
)

// lineState is the line being edited. history holds the document's lines;
// browsing it replaces the edit buffer, and stepping past the newest line
// restores what was typed.
type lineState struct {
	buf     []rune
	pos     int // cursor, in runes
	history []string
	hist    int // index into history; len(history) is the new line
	draft   []rune
}

func newLineState(history []string) *lineState {
	return &lineState{history: history, hist: len(history)}
}

func (ls *lineState) text() string { return string(ls.buf) }

func (ls *lineState) apply(k key) editResult {
	switch k.kind {
	case keyInterrupt:
		return interrupted
	case keyEnter:
		return submitted
	case keyEOF:
		if len(ls.buf) == 0 {
			return endOfInput
		}
		ls.deleteRange(ls.pos, ls.pos+1)
	case keyRune:
		ls.buf = append(ls.buf[:ls.pos], append([]rune{k.r}, ls.buf[ls.pos:]...)...)
		ls.pos++
	case keyBackspace:
		ls.deleteRange(ls.pos-1, ls.pos)
	case keyDelete:
		ls.deleteRange(ls.pos, ls.pos+1)
	case keyLeft:
		ls.pos = max(ls.pos-1, 0)
	case keyRight:
		ls.pos = min(ls.pos+1, len(ls.buf))
	case keyHome:
		ls.pos = 0
	case keyEnd:
		ls.pos = len(ls.buf)
	case keyWordLeft:
		ls.pos = wordLeft(ls.buf, ls.pos)
	case keyWordRight:
		ls.pos = wordRight(ls.buf, ls.pos)
	case keyKillWord:
		ls.deleteRange(wordLeft(ls.buf, ls.pos), ls.pos)
	case keyKillLine:
		ls.buf, ls.pos = ls.buf[:0], 0
	case keyKillEnd:
		ls.buf = ls.buf[:ls.pos]
	case keyUp:
		ls.recall(ls.hist - 1)
	case keyDown:
		ls.recall(ls.hist + 1)
	}
	return editing
}

// deleteRange removes buf[from:to], clamped to the buffer.
func (ls *lineState) deleteRange(from, to int) {
	from, to = max(from, 0), min(to, len(ls.buf))
	if from >= to {
		return
	}
	ls.buf = append(ls.buf[:from], ls.buf[to:]...)
	if ls.pos > to {
		ls.pos -= to - from
	} else if ls.pos > from {
		ls.pos = from
	}
}

// recall loads document line i into the buffer with the cursor at its end.
func (ls *lineState) recall(i int) {
	if i < 0 || i > len(ls.history) || i == ls.hist {
		return
	}
	if ls.hist == len(ls.history) {
		ls.draft = append(ls.draft[:0], ls.buf...)
	}
	ls.hist = i
	if i == len(ls.history) {
		ls.buf = append([]rune(nil), ls.draft...)
	} else {
		ls.buf = []rune(ls.history[i])
	}
	ls.pos = len(ls.buf)
}

// isWordRune reports whether r is part of an identifier.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// wordLeft returns the start of the identifier at or before pos, skipping
// the punctuation and blanks in between.
func wordLeft(buf []rune, pos int) int {
	i := pos
	for i > 0 && !isWordRune(buf[i-1]) {
		i--
	}
	for i > 0 && isWordRune(buf[i-1]) {
		i--
	}
	return i
}

// wordRight returns the end of the identifier at or after pos.
func wordRight(buf []rune, pos int) int {
	i := pos
	for i < len(buf) && !isWordRune(buf[i]) {
		i++
	}
	for i < len(buf) && isWordRune(buf[i]) {
		i++
	}
	return i
}
