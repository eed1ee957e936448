package logger

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithOrder_TagsComponentAndOrder(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", JSONOutput: true, Output: &buf})
	t.Cleanup(func() { Init(Config{Level: "info", JSONOutput: true, Output: &bytes.Buffer{}}) })

	log := WithOrder("conversation", 42)
	log.Info().Msg("realtime channel ready")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "conversation", entry["component"])
	assert.Equal(t, float64(42), entry["order_id"])
	assert.Equal(t, "realtime channel ready", entry["message"])
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "loud", JSONOutput: true, Output: &buf})
	t.Cleanup(func() { Init(Config{Level: "info", JSONOutput: true, Output: &bytes.Buffer{}}) })

	log := WithComponent("test")
	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
}
