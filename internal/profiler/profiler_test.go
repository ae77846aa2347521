package profiler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledProfilerIsNoOp(t *testing.T) {
	p := New(false)
	p.Start()
	p.OpenStage("validate")
	p.Add("k", "v")
	p.CloseStage()
	p.Stop()
	assert.Equal(t, "{}", p.AsJSONString())
	assert.False(t, p.Enabled())
}

func TestEnabledProfilerRootLatency(t *testing.T) {
	p := New(true)
	p.Start()
	p.Stop()

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(p.AsJSONString()), &doc))
	root, ok := doc["latency"].(map[string]any)
	require.True(t, ok)
	_, hasLatency := root["latency"]
	assert.True(t, hasLatency)
}

func TestNestedStages(t *testing.T) {
	p := New(true)
	p.Start()
	p.OpenStage("validate")
	p.CloseStage()
	p.OpenStage("prepare")
	p.OpenStage("transform")
	p.CloseStage()
	p.CloseStage()
	p.Stop()

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(p.AsJSONString()), &doc))
	root := doc["latency"].(map[string]any)
	_, hasValidate := root["validate"]
	_, hasPrepare := root["prepare"]
	assert.True(t, hasValidate)
	assert.True(t, hasPrepare)

	prepare := root["prepare"].(map[string]any)
	_, hasTransform := prepare["transform"]
	assert.True(t, hasTransform)
}

func TestUnclosedStageWarnsAndStillStops(t *testing.T) {
	p := New(true)
	p.Start()
	p.OpenStage("validate")
	// Deliberately never closed.
	p.Stop()
	assert.NotEqual(t, "{}", p.AsJSONString())
}

func TestScopedLatency(t *testing.T) {
	p := New(true)
	p.Start()
	func() {
		lat := StartLatency(p, "prepare")
		defer lat.Close()
	}()
	p.Stop()

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(p.AsJSONString()), &doc))
	root := doc["latency"].(map[string]any)
	_, ok := root["prepare"]
	assert.True(t, ok)
}
