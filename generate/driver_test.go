package generate

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDriverFailureWarningsAreLimited(t *testing.T) {
	var out bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	d := newDriver(NewThrottle(0), &fakeTransport{}, nil, func(*Session) {})
	for _, key := range []string{"a", "b", "c"} {
		d.logFailure(&Session{Key: key}, errors.New("connection refused"))
	}

	assert.Equal(t, 1, strings.Count(out.String(), "level=WARN"))
	assert.Equal(t, 2, strings.Count(out.String(), "level=DEBUG msg=\"completion failed\""))
	assert.Contains(t, out.String(), "key=a")
}
