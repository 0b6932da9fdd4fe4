package logging

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info")
	require.NotNil(t, log)

	log.Info().Msg("test message")
	assert.Contains(t, buf.String(), "test message")
}

func TestNewDefaultWriter(t *testing.T) {
	// nil writer should default to stderr console writer
	log := New(nil, "info")
	require.NotNil(t, log)
}

func TestSub(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug")
	sub := log.Sub("mymodule")
	require.NotNil(t, sub)

	sub.Info().Msg("sub message")
	output := buf.String()
	assert.Contains(t, output, "sub message")
	assert.Contains(t, output, "mymodule")
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Debug().Msg("debug msg")
	log.Info().Msg("info msg")
	assert.Empty(t, buf.String(), "debug and info should be filtered at warn level")

	log.Warn().Msg("warn msg")
	assert.Contains(t, buf.String(), "warn msg")

	buf.Reset()
	log.Error().Msg("error msg")
	assert.Contains(t, buf.String(), "error msg")
}

func TestLogGenericLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug")

	log.Log("warn").Msg("generic warn")
	assert.Contains(t, buf.String(), "generic warn")
	assert.Contains(t, buf.String(), "warn")

	buf.Reset()
	log.Log("nonsense").Msg("fallback")
	assert.Contains(t, buf.String(), "info")
}

func TestWithSink(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info")

	var mu sync.Mutex
	var got []string
	sinked := log.WithSink(func(level, message string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, level+":"+message)
	})

	sinked.Info().Msg("observed")

	// Sink delivery is asynchronous.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "info:observed", got[0])
}

func TestWithSinkFiltersLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	var mu sync.Mutex
	calls := 0
	sinked := log.WithSink(func(level, message string) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})

	// Filtered below the logger level, so the sink must not fire.
	sinked.Debug().Msg("filtered")
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"silent", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestSilentLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "silent")

	log.Debug().Msg("should not appear")
	log.Info().Msg("should not appear")
	log.Error().Msg("should not appear")

	assert.Empty(t, buf.String())
}
