package audit

import (
	"encoding/json"
	"io"
	"os"
	"sync"
)

// streamWriter encodes events as JSON lines onto an io.Writer. An optional
// closer owns the underlying sink.
type streamWriter struct {
	encoder *json.Encoder
	closer  io.Closer
	mu      sync.Mutex
}

// NewStdoutWriter creates a writer that emits events to stdout
func NewStdoutWriter() Writer {
	return newStreamWriter(os.Stdout, nil)
}

func newStreamWriter(w io.Writer, closer io.Closer) *streamWriter {
	return &streamWriter{encoder: json.NewEncoder(w), closer: closer}
}

// Write writes an event as one JSON line
func (w *streamWriter) Write(event interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.encoder.Encode(event)
}

// Close releases the sink if the writer owns one
func (w *streamWriter) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
