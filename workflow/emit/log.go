package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter implements Emitter by writing structured log lines to a writer.
//
// Two output modes:
//   - Text (default): human-readable key=value lines
//   - JSON: one event per line, machine-readable
//
// Example text output:
//
//	[executor_invoked] run=run-001 step=3 executor=judge
//
// Example JSON output:
//
//	{"kind":"executor_invoked","run_id":"run-001","step":3,"executor_id":"judge"}
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter writing to w (os.Stdout when nil).
// Set jsonMode for line-delimited JSON instead of text.
func NewLogEmitter(w io.Writer, jsonMode bool) *LogEmitter {
	if w == nil {
		w = os.Stdout
	}
	return &LogEmitter{writer: w, jsonMode: jsonMode}
}

// Emit writes one event in the configured format. Write errors are swallowed:
// a broken log sink must not fail the run.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.jsonMode {
		line := struct {
			Kind       string         `json:"kind"`
			RunID      string         `json:"run_id"`
			Step       int            `json:"step"`
			ExecutorID string         `json:"executor_id,omitempty"`
			Msg        string         `json:"msg,omitempty"`
			Meta       map[string]any `json:"meta,omitempty"`
		}{event.Kind, event.RunID, event.Step, event.ExecutorID, event.Msg, event.Meta}

		data, err := json.Marshal(line)
		if err != nil {
			return
		}
		fmt.Fprintf(l.writer, "%s\n", data)
		return
	}

	fmt.Fprintf(l.writer, "[%s] run=%s step=%d", event.Kind, event.RunID, event.Step)
	if event.ExecutorID != "" {
		fmt.Fprintf(l.writer, " executor=%s", event.ExecutorID)
	}
	if event.Msg != "" {
		fmt.Fprintf(l.writer, " msg=%q", event.Msg)
	}
	for k, v := range event.Meta {
		fmt.Fprintf(l.writer, " %s=%v", k, v)
	}
	fmt.Fprintln(l.writer)
}
