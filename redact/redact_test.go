package redact

import "testing"

func TestShellParamExp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple var", "echo $SECRET", "echo $REDACTED"},
		{"braced var", "echo ${SECRET}", "echo ${REDACTED}"},
		{"default value", "echo ${TOKEN:-x}", "echo ${REDACTED:-x}"},
		{"safe var HOME", "cd $HOME", "cd $HOME"},
		{"safe var PATH", "echo $PATH", "echo $PATH"},
		{"special param $?", "echo $?", "echo $?"},
		{"special param $1", "echo $1", "echo $1"},
		{"mixed safe and sensitive", "curl -H $AUTH_TOKEN $HOME/file", "curl -H $REDACTED $HOME/file"},
		{"multiple sensitive", "echo $FOO $BAR", "echo $REDACTED $REDACTED"},
		{"no vars", "ls -la", "ls -la"},
		{"empty string", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Shell(tt.input); got != tt.want {
				t.Errorf("Shell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestShellAssignment(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple assignment", "SECRET=hunter2 cmd", "SECRET=*** cmd"},
		{"export assignment", "export API_KEY=abc123", "export API_KEY=***"},
		{"quoted value", `TOKEN="a $B c"`, `TOKEN=***`},
		{"safe var assignment", "HOME=/home/user cmd", "HOME=/home/user cmd"},
		{"safe name, sensitive value", "PATH=$PATH:$SECRET_DIR", "PATH=$PATH:$REDACTED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Shell(tt.input); got != tt.want {
				t.Errorf("Shell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestShellPreservesFormatting(t *testing.T) {
	input := "#!/bin/bash\n\nif [ -n \"$TOKEN\" ]; then\n    echo   ok   # keep spacing\nfi\n"
	want := "#!/bin/bash\n\nif [ -n \"$REDACTED\" ]; then\n    echo   ok   # keep spacing\nfi\n"
	if got := Shell(input); got != want {
		t.Errorf("Shell() =\n%q\nwant\n%q", got, want)
	}
}

func TestShellSingleQuotes(t *testing.T) {
	if got := Shell("echo '$SECRET'"); got != "echo '$SECRET'" {
		t.Errorf("single-quoted var should be preserved, got %q", got)
	}
}

func TestShellRegexFallback(t *testing.T) {
	// An unterminated quote does not parse.
	got := Shell(`curl -H "Authorization: $API_TOKEN`)
	want := `curl -H "Authorization: $REDACTED`
	if got != want {
		t.Errorf("Shell() = %q, want %q", got, want)
	}
}

func TestRegexRedact(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"echo ${SECRET}", "echo ${REDACTED}"},
		{"echo $SECRET", "echo $REDACTED"},
		{"echo $HOME", "echo $HOME"},
		{"KEY=value cmd", "KEY=*** cmd"},
		{"PATH=/bin cmd", "PATH=/bin cmd"},
	}
	for _, tt := range tests {
		if got := regexRedact(tt.input); got != tt.want {
			t.Errorf("regexRedact(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIsShellLanguage(t *testing.T) {
	for _, lang := range []string{"shellscript", "bash", "sh", "zsh", "Bash"} {
		if !IsShellLanguage(lang) {
			t.Errorf("IsShellLanguage(%q) = false, want true", lang)
		}
	}
	for _, lang := range []string{"go", "python", ""} {
		if IsShellLanguage(lang) {
			t.Errorf("IsShellLanguage(%q) = true, want false", lang)
		}
	}
}
