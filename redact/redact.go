// Package redact hides secret-looking shell values before source text leaves
// the machine.
package redact

import (
	"regexp"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// safeVars are environment variables that carry no secrets and help the model.
var safeVars = map[string]bool{
	"HOME": true, "USER": true, "PWD": true, "OLDPWD": true,
	"SHELL": true, "PATH": true, "LANG": true, "TERM": true,
	"EDITOR": true, "PAGER": true, "HOSTNAME": true, "LOGNAME": true,
	"TMPDIR": true, "XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true,
	"XDG_RUNTIME_DIR": true, "DISPLAY": true, "WAYLAND_DISPLAY": true,
	"HISTFILE": true, "HISTSIZE": true, "SHLVL": true,
	"COLUMNS": true, "LINES": true, "LC_ALL": true, "LC_CTYPE": true,
}

// specialParams are shell special parameters.
var specialParams = map[string]bool{
	"?": true, "!": true, "#": true, "@": true, "*": true,
	"-": true, "$": true, "_": true,
	"0": true, "1": true, "2": true, "3": true, "4": true,
	"5": true, "6": true, "7": true, "8": true, "9": true,
}

var shellLanguages = map[string]bool{
	"shellscript": true,
	"bash":        true,
	"sh":          true,
	"zsh":         true,
}

// IsShellLanguage reports whether an editor language id denotes a shell script.
func IsShellLanguage(languageID string) bool {
	return shellLanguages[strings.ToLower(languageID)]
}

func keep(name string) bool {
	return safeVars[name] || specialParams[name]
}

type span struct {
	start, end int
	repl       string
}

// Shell replaces sensitive parameter expansions with $REDACTED and sensitive
// assignment values with ***. Text outside the replaced spans is returned
// byte for byte. Input that does not parse (a window cut mid-construct) goes
// through a regex pass instead.
func Shell(src string) string {
	if !strings.ContainsAny(src, "$=") {
		return src
	}
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	prog, err := parser.Parse(strings.NewReader(src), "")
	if err != nil {
		return regexRedact(src)
	}

	var spans []span
	syntax.Walk(prog, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.ParamExp:
			if n.Param != nil && !keep(n.Param.Value) {
				spans = append(spans, span{
					start: int(n.Param.Pos().Offset()),
					end:   int(n.Param.End().Offset()),
					repl:  "REDACTED",
				})
			}
		case *syntax.Assign:
			if n.Name == nil || safeVars[n.Name.Value] || n.Value == nil || len(n.Value.Parts) == 0 {
				return true
			}
			spans = append(spans, span{
				start: int(n.Value.Pos().Offset()),
				end:   int(n.Value.End().Offset()),
				repl:  "***",
			})
			return false
		}
		return true
	})
	return splice(src, spans)
}

// splice applies non-overlapping replacements in offset order.
func splice(src string, spans []span) string {
	if len(spans) == 0 {
		return src
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var sb strings.Builder
	sb.Grow(len(src))
	last := 0
	for _, s := range spans {
		if s.start < last || s.end > len(src) || s.start > s.end {
			continue
		}
		sb.WriteString(src[last:s.start])
		sb.WriteString(s.repl)
		last = s.end
	}
	sb.WriteString(src[last:])
	return sb.String()
}

var (
	reBraceVar  = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	reSimpleVar = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	reAssign    = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)=([^\s=]\S*)`)
)

func regexRedact(src string) string {
	src = reBraceVar.ReplaceAllStringFunc(src, func(m string) string {
		if keep(reBraceVar.FindStringSubmatch(m)[1]) {
			return m
		}
		return "${REDACTED}"
	})
	src = reSimpleVar.ReplaceAllStringFunc(src, func(m string) string {
		name := reSimpleVar.FindStringSubmatch(m)[1]
		if name == "REDACTED" || keep(name) {
			return m
		}
		return "$REDACTED"
	})
	return reAssign.ReplaceAllStringFunc(src, func(m string) string {
		name := reAssign.FindStringSubmatch(m)[1]
		if safeVars[name] {
			return m
		}
		return name + "=***"
	})
}
