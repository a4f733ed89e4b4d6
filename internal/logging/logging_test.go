package logging

import (
	"bytes"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestLineHandler_SimpleFormatOmitsTimestamp(t *testing.T) {
	var buf bytes.Buffer
	h := &lineHandler{writer: &buf, verbose: false}
	log := slog.New(h)

	log.Info("crew created", "crew_id", "crew-1")

	out := buf.String()
	assert.Regexp(t, "^INFO ", out)
	assert.Contains(t, out, "INFO crew created")
	assert.Contains(t, out, "crew_id=crew-1")
}

func TestLineHandler_VerboseFormatIncludesTimestamp(t *testing.T) {
	var buf bytes.Buffer
	h := &lineHandler{writer: &buf, verbose: true}
	record := slog.NewRecord(time.Now(), slog.LevelWarn, "evolution sweep stalled", 0)

	require.NoError(t, h.Handle(t.Context(), record))
	assert.Contains(t, buf.String(), record.Time.Format("2006-01-02 15:04:05")+" WARN evolution sweep stalled")
}

func TestNew_WritesToProvidedFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "evocrew-log-*.txt")
	require.NoError(t, err)
	defer f.Close()

	log := New(slog.LevelInfo, f, "simple")
	log.Info("hello")

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
