package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	require.NotNil(t, l)
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestZerologLoggerComponentAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologLoggerTo(&buf, "optimizer", zerolog.InfoLevel)
	l.Debugf("hidden")
	l.Infof("placed %d jobs", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "optimizer", entry["component"])
	assert.Equal(t, "placed 3 jobs", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	assert.Equal(t, zerolog.WarnLevel, levelFromEnv())
	t.Setenv("LOG_LEVEL", "bogus")
	assert.Equal(t, zerolog.InfoLevel, levelFromEnv())
}
