package zmailbox

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { SetLogger(nil) })
	return &buf
}

func TestSessionLoggerAttrs(t *testing.T) {
	buf := captureLogs(t)

	sessionLogger("", "").Info("plain")
	sessionLogger("sess-1", "alice@example.com").Info("tagged")

	out := buf.String()
	assert.Contains(t, out, `msg=plain component=zmailbox`)
	assert.Contains(t, out, `msg=tagged component=zmailbox session=sess-1 account=alice@example.com`)
	assert.NotContains(t, out, "session=\n")
}

func TestDebugLogFollowsVerbose(t *testing.T) {
	buf := captureLogs(t)
	old := Verbose
	t.Cleanup(func() { Verbose = old })

	Verbose = false
	debugLog(getLogger(), "quiet")
	dumpLog(getLogger(), "quiet dump", map[string]int{"a": 1})
	assert.Empty(t, buf.String())

	Verbose = true
	debugLog(getLogger(), "loud")
	dumpLog(getLogger(), "loud dump", map[string]int{"a": 1})
	assert.Contains(t, buf.String(), "msg=loud")
	assert.Contains(t, buf.String(), "msg=\"loud dump\"")
}

func TestBuiltinLoggerLevel(t *testing.T) {
	old := Verbose
	t.Cleanup(func() { Verbose = old })

	Verbose = false
	assert.Equal(t, slog.LevelInfo, verboseLevel{}.Level())
	Verbose = true
	assert.Equal(t, slog.LevelDebug, verboseLevel{}.Level())
}
