package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentLoggerFollowsOutput(t *testing.T) {
	component := GetForComponent("runner")

	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(newConsoleWriter(&bytes.Buffer{}))
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	component.Info().Str("pool", "p1").Msg("update committed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "runner", entry["component"])
	assert.Equal(t, "p1", entry["pool"])
	assert.Equal(t, "update committed", entry["message"])
}

func TestAttachFile(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(newConsoleWriter(&bytes.Buffer{}))
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	path := filepath.Join(t.TempDir(), "tfmm.log")
	require.NoError(t, AttachFile(path))

	keeperLog := GetForComponent("keeper")
	keeperLog.Warn().Msg("pool update failed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"keeper"`)
	assert.Contains(t, buf.String(), "pool update failed")
}
