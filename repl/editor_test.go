package main

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readKeys(t *testing.T, input string) []key {
	t.Helper()
	in := bufio.NewReader(strings.NewReader(input))
	var keys []key
	for {
		k, err := readKey(in)
		if err == io.EOF {
			return keys
		}
		require.NoError(t, err)
		keys = append(keys, k)
	}
}

func kinds(keys []key) []keyKind {
	out := make([]keyKind, len(keys))
	for i, k := range keys {
		out[i] = k.kind
	}
	return out
}

func TestReadKeyDecodesSequences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []keyKind
	}{
		{"arrows", "\x1b[A\x1b[B\x1b[C\x1b[D", []keyKind{keyUp, keyDown, keyRight, keyLeft}},
		{"application arrows", "\x1bOA\x1bOD", []keyKind{keyUp, keyLeft}},
		{"ctrl arrows", "\x1b[1;5D\x1b[1;5C", []keyKind{keyWordLeft, keyWordRight}},
		{"alt word motion", "\x1bb\x1bf\x1b\x7f", []keyKind{keyWordLeft, keyWordRight, keyKillWord}},
		{"home end", "\x1b[H\x1b[F\x1b[1~\x1b[4~\x01\x05", []keyKind{keyHome, keyEnd, keyHome, keyEnd, keyHome, keyEnd}},
		{"delete", "\x1b[3~", []keyKind{keyDelete}},
		{"unknown csi", "\x1b[15~", []keyKind{keyNone}},
		{"controls", "\r\n\x7f\x08\x03\x04\x0b\x15\x17\x10\x0e", []keyKind{
			keyEnter, keyEnter, keyBackspace, keyBackspace, keyInterrupt, keyEOF,
			keyKillEnd, keyKillLine, keyKillWord, keyUp, keyDown,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, kinds(readKeys(t, tt.input)))
		})
	}
}

func TestReadKeyRunes(t *testing.T) {
	keys := readKeys(t, "aé→")
	require.Len(t, keys, 3)
	assert.Equal(t, []rune{'a', 'é', '→'}, []rune{keys[0].r, keys[1].r, keys[2].r})
	assert.Equal(t, keyRune, keys[2].kind)
}

// typeInto applies input to ls and returns the last result.
func typeInto(t *testing.T, ls *lineState, input string) editResult {
	t.Helper()
	res := editing
	for _, k := range readKeys(t, input) {
		res = ls.apply(k)
	}
	return res
}

func TestLineStateEditing(t *testing.T) {
	ls := newLineState(nil)
	typeInto(t, ls, "fmt.Prinln")
	typeInto(t, ls, "\x1b[D\x1b[D")
	typeInto(t, ls, "t")
	assert.Equal(t, "fmt.Println", ls.text())
	assert.Equal(t, 9, ls.pos)

	typeInto(t, ls, "\x01\x1b[3~")
	assert.Equal(t, "mt.Println", ls.text())
	assert.Equal(t, 0, ls.pos)

	typeInto(t, ls, "\x05\x7f")
	assert.Equal(t, "mt.Printl", ls.text())

	assert.Equal(t, submitted, typeInto(t, ls, "\r"))
}

func TestLineStateRuneCursor(t *testing.T) {
	ls := newLineState(nil)
	typeInto(t, ls, "s := \"héllo\"\x1b[D\x1b[D")
	assert.Equal(t, 10, ls.pos, "cursor counts runes, not bytes")
}

func TestLineStateWordMotion(t *testing.T) {
	ls := newLineState(nil)
	typeInto(t, ls, "x := foo_bar(baz)")

	typeInto(t, ls, "\x1bb")
	assert.Equal(t, 13, ls.pos)
	typeInto(t, ls, "\x1bb")
	assert.Equal(t, 5, ls.pos, "underscores stay inside an identifier")
	typeInto(t, ls, "\x1bf")
	assert.Equal(t, 12, ls.pos)

	typeInto(t, ls, "\x05\x17")
	assert.Equal(t, "x := foo_bar(", ls.text(), "kill word skips punctuation first")
	assert.Equal(t, 13, ls.pos)
}

func TestLineStateKill(t *testing.T) {
	ls := newLineState(nil)
	typeInto(t, ls, "return err\x1bb\x0b")
	assert.Equal(t, "return ", ls.text())

	typeInto(t, ls, "\x15")
	assert.Empty(t, ls.text())
	assert.Equal(t, 0, ls.pos)
}

func TestLineStateBrowsesDocumentLines(t *testing.T) {
	ls := newLineState([]string{"package main", "func main() {"})
	typeInto(t, ls, "draft")

	typeInto(t, ls, "\x1b[A")
	assert.Equal(t, "func main() {", ls.text())
	assert.Equal(t, len([]rune("func main() {")), ls.pos)

	typeInto(t, ls, "\x1b[A\x1b[A")
	assert.Equal(t, "package main", ls.text(), "stops at the first line")

	typeInto(t, ls, "\x1b[B\x1b[B")
	assert.Equal(t, "draft", ls.text(), "stepping past the last line restores the draft")

	typeInto(t, ls, "\x1b[B")
	assert.Equal(t, "draft", ls.text())
}

func TestLineStateEOFAndInterrupt(t *testing.T) {
	ls := newLineState(nil)
	assert.Equal(t, endOfInput, typeInto(t, ls, "\x04"))

	typeInto(t, ls, "ab\x01")
	assert.Equal(t, editing, typeInto(t, ls, "\x04"), "ctrl-d deletes on a non-empty line")
	assert.Equal(t, "b", ls.text())

	assert.Equal(t, interrupted, typeInto(t, ls, "\x03"))
}
