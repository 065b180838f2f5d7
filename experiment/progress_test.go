package experiment

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/ablation/errors"
)

// TestCLIEmitter verifies CLIEmitter doesn't panic at any verbosity
func TestCLIEmitter(t *testing.T) {
	for _, verbosity := range []int{0, 2} {
		emitter := NewCLIEmitter(verbosity)
		emitter.EmitStage("truth", "seeding truth for 2 queries")
		emitter.EmitRound(1, 3, []string{"A", "B"}, []string{"C"})
		emitter.EmitProgress(4, map[string]interface{}{"type": "measurements"})
		emitter.EmitProgress(4, nil)
		emitter.EmitInfo("round 1 done")
		emitter.EmitError("round 1", errors.New("boom"))
		emitter.EmitComplete(map[string]interface{}{"rounds": 3})
	}
}

func TestJSONEmitter(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewJSONEmitter(&buf)

	emitter.EmitStage("truth", "seeding")
	emitter.EmitRound(2, 3, []string{"A"}, []string{"B"})
	emitter.EmitProgress(5, map[string]interface{}{"round": 2})
	emitter.EmitError("round 2", errors.New("boom"))
	emitter.EmitComplete(map[string]interface{}{"rounds": 3})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5, "one event per line")

	var events []ProgressEvent
	for _, line := range lines {
		var ev ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		assert.False(t, ev.Timestamp.IsZero())
		events = append(events, ev)
	}

	assert.Equal(t, "stage", events[0].Type)
	assert.Equal(t, "round", events[1].Type)
	assert.EqualValues(t, 2, events[1].Data["round"])
	assert.Equal(t, []interface{}{"A"}, events[1].Data["test_collections"])
	assert.Equal(t, "progress", events[2].Type)
	assert.EqualValues(t, 5, events[2].Data["count"])
	assert.EqualValues(t, 2, events[2].Data["round"])
	assert.Equal(t, "boom", events[3].Data["error"])
	assert.Equal(t, "complete", events[4].Type)
}
