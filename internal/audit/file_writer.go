package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// fileWriter is a rotating-file stream writer that brackets the log with
// startup and shutdown markers, so gaps between rotated files are visible.
type fileWriter struct {
	*streamWriter
}

// NewFileWriter creates a rotating-file event writer
func NewFileWriter(filename string, maxSizeMB, maxAgeDays, maxBackups int) (Writer, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	sink := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxAge:     maxAgeDays,
		MaxBackups: maxBackups,
		LocalTime:  true,
		Compress:   true,
	}

	w := &fileWriter{streamWriter: newStreamWriter(sink, sink)}
	if err := w.Write(markerEvent(EventTypeSystemStartup, "ACL audit logging started")); err != nil {
		return nil, fmt.Errorf("write startup marker: %w", err)
	}
	return w, nil
}

// Close records a shutdown marker before releasing the file
func (w *fileWriter) Close() error {
	_ = w.Write(markerEvent(EventTypeSystemShutdown, "ACL audit logging stopped"))
	return w.streamWriter.Close()
}

func markerEvent(eventType EventType, message string) Event {
	return Event{
		Timestamp: time.Now(),
		EventType: eventType,
		EventID:   generateEventID(),
		Data:      map[string]any{"message": message},
	}
}
