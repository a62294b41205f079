// internal/logger/logger_test.go
package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"fatal":   zerolog.FatalLevel,
		"bogus":   zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestInitializeWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acquire.log")

	require.NoError(t, Initialize("debug", path))
	defer Close()

	Info().Str("bus", "rs485-0").Msg("hello")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"bus":"rs485-0"`)
	assert.Contains(t, string(data), "hello")
}

func TestInitializeBadFile(t *testing.T) {
	err := Initialize("info", filepath.Join(t.TempDir(), "missing", "x.log"))
	assert.Error(t, err)
}

func TestLevelFiltering(t *testing.T) {
	require.NoError(t, Initialize("warn", ""))

	var buf bytes.Buffer
	SetOutput(&buf)

	Info().Msg("dropped")
	Warn().Msg("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestComponent(t *testing.T) {
	require.NoError(t, Initialize("info", ""))

	var buf bytes.Buffer
	SetOutput(&buf)

	l := Component("poller")
	l.Info().Msg("x")
	assert.Contains(t, buf.String(), `"component":"poller"`)
}
