// Command ghostline-repl is an interactive test REPL for ghostline
// completions. Each entered line is appended to a scratch document and a
// completion is requested at the cursor position the line was submitted
// with. Results are written to stdout as TOML.
//
// Usage:
//
//	./ghostline-repl               # interactive, TOML on screen
//	./ghostline-repl > log.toml    # prompt on screen, TOML to file
//	./ghostline-repl -file x.py    # seed the document from a file
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	ghostline "github.com/Paranoid-AF/ghostline"
	"github.com/Paranoid-AF/ghostline/generate"
)

const prompt = "> "

// waitLimit bounds how long the REPL waits for one completion.
const waitLimit = 60 * time.Second

func main() {
	lang := flag.String("lang", "go", "language id of the scratch document")
	seed := flag.String("file", "", "seed the document with this file's content")
	flag.Parse()

	editor, err := NewEditor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer editor.Close()

	tty := termWriter(editor.Tty())

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(tty, "error: cannot determine cwd: %v\n", err)
		os.Exit(1)
	}

	uri := "file://" + filepath.Join(cwd, "scratch")
	var text string
	if *seed != "" {
		data, err := os.ReadFile(*seed)
		if err != nil {
			fmt.Fprintf(tty, "error: %v\n", err)
			os.Exit(1)
		}
		abs, _ := filepath.Abs(*seed)
		uri = "file://" + abs
		text = string(data)
	}
	buf := NewBuffer(uri, *lang, text)

	fmt.Fprintf(tty, "\033[2J\033[H") // clear screen
	fmt.Fprintf(tty, "ghostline repl\n")
	fmt.Fprintf(tty, "document: %s (%s)\n", buf.URI, buf.LanguageID)
	fmt.Fprintf(tty, "\ncommands:\n")
	fmt.Fprintf(tty, "  :accept        insert the last completion\n")
	fmt.Fprintf(tty, "  :show          print the document\n")
	fmt.Fprintf(tty, "  :instr <text>  instruction for the next triggers (empty clears)\n")
	fmt.Fprintf(tty, "  :lang <id>     change the language id\n")
	fmt.Fprintf(tty, "  :clear         empty the document\n")
	fmt.Fprintf(tty, "  :quit          exit\n\n")

	updates := make(chan struct{}, 1)
	engine := generate.NewEngine(generate.WithUpdateHandler(func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	}))
	defer engine.Close()

	if !engine.Configured() {
		fmt.Fprintf(tty, "warning: no endpoint configured; set GHOSTLINE_API_KEY or edit %s\n\n", ghostline.ConfigPath())
	}
	if dir := generate.DocumentDir(buf.URI); dir != "" {
		engine.WarmContext(context.Background(), dir)
	}

	// stdout writer: converts \n → \r\n when stdout is a terminal (raw mode),
	// passes \n through unchanged when redirected to a file.
	out := termWriter(os.Stdout)

	r := &repl{engine: engine, buf: buf, tty: tty, updates: updates}

	for {
		line, pos, err := editor.ReadLine(prompt, r.buf.Lines())
		if err == io.EOF || err == ErrInterrupt {
			break
		}
		if err != nil {
			fmt.Fprintf(tty, "read error: %v\n", err)
			break
		}

		if strings.HasPrefix(line, ":") {
			if r.command(line) {
				break
			}
			continue
		}

		entry := r.trigger(line, pos)
		if entry == nil {
			continue
		}
		if err := writeEntry(out, entry); err != nil {
			slog.Warn("failed to write entry", "error", err)
		}
	}
	r.expireLast()
}

// repl holds the state between entered lines.
type repl struct {
	engine      *generate.Engine
	buf         *Buffer
	tty         io.Writer
	updates     chan struct{}
	instruction string

	// last trigger and what it produced
	lastKey  string
	lastPos  ghostline.Position
	lastText string
}

// command runs a ":" command and reports whether the REPL should exit.
func (r *repl) command(line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case ":quit", ":q":
		return true
	case ":accept", ":a":
		if r.lastText == "" {
			fmt.Fprintf(r.tty, "nothing to accept\n")
			return false
		}
		r.buf.Insert(r.lastPos, r.lastText)
		r.engine.OnAccepted(r.lastKey)
		r.lastKey, r.lastText = "", ""
		showBuffer(r.tty, r.buf.Lines(), nil)
	case ":show", ":s":
		var pos *ghostline.Position
		if r.lastKey != "" {
			pos = &r.lastPos
		}
		showBuffer(r.tty, r.buf.Lines(), pos)
	case ":instr":
		r.instruction = arg
		if arg == "" {
			fmt.Fprintf(r.tty, "instruction cleared\n")
		} else {
			fmt.Fprintf(r.tty, "instruction: %s\n", arg)
		}
	case ":lang":
		if arg == "" {
			fmt.Fprintf(r.tty, "language: %s\n", r.buf.LanguageID)
			return false
		}
		r.buf.LanguageID = arg
		fmt.Fprintf(r.tty, "language: %s\n", arg)
	case ":clear":
		r.expireLast()
		r.buf.Reset()
		fmt.Fprintf(r.tty, "document cleared\n")
	default:
		fmt.Fprintf(r.tty, "unknown command: %s\n", name)
	}
	fmt.Fprintln(r.tty)
	return false
}

// expireLast tells the engine the previous completion was not taken.
func (r *repl) expireLast() {
	if r.lastKey != "" {
		r.engine.OnExpired(r.lastKey)
	}
	r.lastKey, r.lastText = "", ""
}

// trigger appends line, requests a completion at the position it was
// submitted with, and streams it to the terminal until the session ends.
func (r *repl) trigger(line string, at ghostline.Position) *Entry {
	r.expireLast()

	doc, pos := r.buf.Append(line, at.Character)
	key := generate.RequestKey(doc, pos)
	trig := generate.Trigger{RequestKey: key, Instruction: r.instruction}
	entry := newEntry(doc, pos, line, r.instruction)

	start := time.Now()
	r.engine.RequestCompletion(context.Background(), doc, pos, trig)
	if r.engine.Lookup(key) == nil {
		entry.Completion.Status = "suppressed"
		fmt.Fprintf(r.tty, "(no completion)\n\n")
		return entry
	}

	var shown string
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(waitLimit)

	for {
		select {
		case <-r.updates:
			entry.Completion.Updates++
		case <-ticker.C:
		case <-deadline:
			r.engine.OnExpired(key)
			entry.Completion.Status = "timeout"
			entry.Completion.Text = shown
			entry.Completion.ElapsedMs = time.Since(start).Milliseconds()
			fmt.Fprintf(r.tty, "\n(timed out)\n\n")
			return entry
		}

		// Status is read before polling so the text of a terminal session is final.
		s := r.engine.Lookup(key)
		finished := s == nil || s.Status().Terminal()
		if res := r.engine.RequestCompletion(context.Background(), doc, pos, trig); res != nil && len(res.Text) > len(shown) {
			fmt.Fprint(r.tty, res.Text[len(shown):])
			shown = res.Text
		}
		if !finished {
			continue
		}

		entry.Completion.ElapsedMs = time.Since(start).Milliseconds()
		entry.Completion.Text = shown
		status := generate.StatusCancelled
		if s != nil {
			status = s.Status()
			entry.Completion.Error = s.ErrorDetail()
		}
		entry.Completion.Status = status.String()
		if status == generate.StatusDone && shown != "" {
			entry.Completion.CorrelationID = key
			r.lastKey, r.lastPos, r.lastText = key, pos, shown
			fmt.Fprintf(r.tty, "\n[%s, %dms, :accept to insert]\n\n", status, entry.Completion.ElapsedMs)
		} else {
			detail := ""
			if entry.Completion.Error != "" {
				detail = ": " + entry.Completion.Error
			}
			fmt.Fprintf(r.tty, "\n[%s%s]\n\n", status, detail)
		}
		return entry
	}
}
