package experiment

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pterm/pterm"
)

// ProgressEmitter reports experiment progress to the operator.
//
// Implementations include:
// - CLIEmitter: Pretty-printed terminal output using pterm
// - JSONEmitter: Structured JSON events, one per line
type ProgressEmitter interface {
	EmitStage(stage string, message string)
	EmitProgress(count int, metadata map[string]interface{})
	// EmitRound announces the group assignment of a starting round.
	EmitRound(round, total int, test, control []string)
	EmitComplete(summary map[string]interface{})
	EmitError(stage string, err error)
	EmitInfo(message string)
}

// ProgressEvent represents a structured JSON progress event
type ProgressEvent struct {
	Type      string                 `json:"type"`      // "stage", "progress", "round", "complete", "error", "info"
	Timestamp time.Time              `json:"timestamp"` // When this event occurred
	Data      map[string]interface{} `json:"data"`      // Event-specific data
}

// CLIEmitter outputs pretty-printed progress to terminal using pterm
type CLIEmitter struct {
	verbosity int
}

// NewCLIEmitter creates a CLI progress emitter for terminal output
func NewCLIEmitter(verbosity int) *CLIEmitter {
	return &CLIEmitter{verbosity: verbosity}
}

// EmitStage prints a stage announcement to terminal
func (e *CLIEmitter) EmitStage(stage string, message string) {
	pterm.Printf("🔄 %s: %s\n", pterm.LightCyan(stage), message)
}

// EmitProgress prints a processed count
func (e *CLIEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	if itemType, ok := metadata["type"].(string); ok {
		pterm.Printf("✅ Measured %s %s\n", pterm.Green(fmt.Sprintf("%d", count)), itemType)
	} else {
		pterm.Printf("✅ Measured %s results\n", pterm.Green(fmt.Sprintf("%d", count)))
	}
}

// EmitRound prints the round header and group assignment
func (e *CLIEmitter) EmitRound(round, total int, test, control []string) {
	pterm.DefaultSection.Printf("Round %d/%d", round, total)
	pterm.Printf("  %s %s\n", pterm.LightGreen("test:"), strings.Join(test, ", "))
	pterm.Printf("  %s %s\n", pterm.LightYellow("control:"), strings.Join(control, ", "))
}

// EmitComplete prints completion summary
func (e *CLIEmitter) EmitComplete(summary map[string]interface{}) {
	pterm.Success.Println("Experiment complete!")
	if e.verbosity >= 1 {
		keys := make([]string, 0, len(summary))
		for key := range summary {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			pterm.Printf("  %s: %v\n", key, summary[key])
		}
	}
}

// EmitError prints an error
func (e *CLIEmitter) EmitError(stage string, err error) {
	pterm.Error.Printf("Error in %s: %v\n", stage, err)
}

// EmitInfo prints informational message
func (e *CLIEmitter) EmitInfo(message string) {
	if e.verbosity >= 1 {
		pterm.Info.Println(message)
	}
}

// JSONEmitter outputs structured JSON events
type JSONEmitter struct {
	encoder *json.Encoder
}

// NewJSONEmitter creates a JSON progress emitter writing to w, or stdout
// when w is nil.
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	if w == nil {
		w = os.Stdout
	}
	return &JSONEmitter{encoder: json.NewEncoder(w)}
}

func (e *JSONEmitter) emit(eventType string, data map[string]interface{}) {
	e.encoder.Encode(ProgressEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// EmitStage emits a stage event as JSON
func (e *JSONEmitter) EmitStage(stage string, message string) {
	e.emit("stage", map[string]interface{}{
		"stage":   stage,
		"message": message,
	})
}

// EmitProgress emits a progress event as JSON
func (e *JSONEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	data := map[string]interface{}{
		"count": count,
	}
	for k, v := range metadata {
		data[k] = v
	}
	e.emit("progress", data)
}

// EmitRound emits a round event as JSON
func (e *JSONEmitter) EmitRound(round, total int, test, control []string) {
	e.emit("round", map[string]interface{}{
		"round":               round,
		"total_rounds":        total,
		"test_collections":    test,
		"control_collections": control,
	})
}

// EmitComplete emits a completion event as JSON
func (e *JSONEmitter) EmitComplete(summary map[string]interface{}) {
	e.emit("complete", summary)
}

// EmitError emits an error event as JSON
func (e *JSONEmitter) EmitError(stage string, err error) {
	e.emit("error", map[string]interface{}{
		"stage": stage,
		"error": err.Error(),
	})
}

// EmitInfo emits an info event as JSON
func (e *JSONEmitter) EmitInfo(message string) {
	e.emit("info", map[string]interface{}{
		"message": message,
	})
}

// nopEmitter discards all progress.
type nopEmitter struct{}

func (nopEmitter) EmitStage(string, string) {}
func (nopEmitter) EmitProgress(int, map[string]interface{}) {}
func (nopEmitter) EmitRound(int, int, []string, []string) {}
func (nopEmitter) EmitComplete(map[string]interface{}) {}
func (nopEmitter) EmitError(string, error) {}
func (nopEmitter) EmitInfo(string) {}
