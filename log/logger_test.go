package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for input, expected := range map[string]LogLevel{
		"trace":   TRACE,
		"DEBUG":   DEBUG,
		"info":    INFO,
		"warning": WARN,
		"warn":    WARN,
		"err":     ERROR,
	} {
		lvl, err := ParseLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, lvl, input)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLoggerLevelsAndPrefix(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(&buf, INFO))
	defer Init(nil, TRACE) //nolint:errcheck // reset

	l := NewLogger("work", 2)
	l.Debugf("hidden %d", 1)
	l.Infof("visible %d", 2)
	l.Errorf("boom")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INFO  ")
	assert.Contains(t, out, "[work] visible 2")
	assert.Contains(t, out, "logger_test.go")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestErrorLoggerDiscardsWhenDisabled(t *testing.T) {
	require.NoError(t, Init(nil, TRACE))
	l := ErrorLogger()
	require.NotNil(t, l)
	l.Println("nowhere")
}
