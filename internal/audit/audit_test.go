package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broker-authz/go-core/pkg/types"
)

// memWriter captures written events for assertions
type memWriter struct {
	mu     sync.Mutex
	events []interface{}
}

func (w *memWriter) Write(event interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
	return nil
}

func (w *memWriter) Close() error { return nil }

func (w *memWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

func TestAsyncLogger_FlushDeliversEvents(t *testing.T) {
	w := &memWriter{}
	cfg := DefaultConfig()
	cfg.BufferSize = 8
	l := newAsyncLogger(w, cfg)
	defer l.Close()

	l.LogDecision(context.Background(), &DecisionEvent{
		Principal: types.Principal{Type: "User", Name: "alice"},
		Host:      "10.0.0.1",
		Operation: types.OpRead,
		Resource:  types.Resource{Type: types.ResourceTopic, Name: "orders"},
		Decision:  types.DecisionAllow,
	})

	require.NoError(t, l.Flush())
	require.Equal(t, 1, w.count())

	ev, ok := w.events[0].(*DecisionEvent)
	require.True(t, ok)
	assert.Equal(t, EventTypeDecision, ev.EventType)
	assert.NotEmpty(t, ev.EventID)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestAsyncLogger_OverflowDropsOldest(t *testing.T) {
	w := &memWriter{}
	cfg := DefaultConfig()
	cfg.BufferSize = 4
	cfg.FlushInterval = time.Hour // only explicit flushes
	l := &asyncLogger{
		writer:   w,
		buffer:   make([]interface{}, cfg.BufferSize),
		size:     cfg.BufferSize,
		flushCh:  make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
		interval: cfg.FlushInterval,
	}

	for i := 0; i < 6; i++ {
		l.enqueue(&Event{EventID: generateEventID()})
	}
	require.NoError(t, l.Flush())

	assert.Equal(t, 4, w.count(), "overflow should drop the oldest events, keeping the buffer size")
}

func TestAsyncLogger_CloseFlushesRemaining(t *testing.T) {
	w := &memWriter{}
	cfg := DefaultConfig()
	cfg.FlushInterval = time.Hour
	l := newAsyncLogger(w, cfg)

	l.LogAclChange(context.Background(), &AclChangeEvent{
		Operation: AclChangeAdd,
		Epoch:     1,
	})

	require.NoError(t, l.Close())
	assert.Equal(t, 1, w.count())
}

func TestStreamWriter_EmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	w := newStreamWriter(&buf, nil)

	err := w.Write(&DecisionEvent{
		EventType: EventTypeDecision,
		EventID:   "e-1",
		Principal: types.Principal{Type: "User", Name: "alice"},
		Decision:  types.DecisionDeny,
		Fault:     "acl store unavailable",
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "DENY", decoded["decision"])
	assert.Equal(t, "acl store unavailable", decoded["fault"])
}

func TestFileWriter_BracketsLogWithMarkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "acl.log")

	w, err := NewFileWriter(path, 1, 1, 1)
	require.NoError(t, err)

	require.NoError(t, w.Write(&DecisionEvent{
		EventType: EventTypeDecision,
		EventID:   "e-1",
		Decision:  types.DecisionAllow,
	}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 3)

	var first, last Event
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[2], &last))
	assert.Equal(t, EventTypeSystemStartup, first.EventType)
	assert.Equal(t, EventTypeSystemShutdown, last.EventType)
	assert.NotEmpty(t, first.EventID)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Type = "syslog"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Type = "file"
	assert.Error(t, cfg.Validate(), "file output requires a path")

	cfg.Enabled = false
	assert.NoError(t, cfg.Validate(), "disabled config is always valid")
}

func TestNewLogger_DisabledIsNop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	l, err := NewLogger(&cfg)
	require.NoError(t, err)
	l.LogDecision(context.Background(), &DecisionEvent{})
	require.NoError(t, l.Close())
}
