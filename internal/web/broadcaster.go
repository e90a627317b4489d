package web

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Event kinds.
const (
	KindLog   = "log"
	KindState = "state"
)

// StatusEvent is one SSE message: a debug log line or a state snapshot.
type StatusEvent struct {
	Time  string          `json:"t"`
	Kind  string          `json:"k"`
	Level string          `json:"l,omitempty"`
	Msg   string          `json:"msg,omitempty"`
	State json.RawMessage `json:"state,omitempty"`
}

// StatusFunc returns the current controller snapshot, ready for JSON
// encoding. It must be safe to call from any goroutine.
type StatusFunc func() any

// StatusBroadcaster distributes status messages to multiple SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// Broadcast sends a log line to all subscribed clients.
// Slow clients may miss messages (non-blocking, buffered).
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.send(StatusEvent{Kind: KindLog, Level: level, Msg: msg})
}

// PublishState sends a snapshot to all subscribed clients.
func (b *StatusBroadcaster) PublishState(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.send(StatusEvent{Kind: KindState, State: data})
	return nil
}

func (b *StatusBroadcaster) send(evt StatusEvent) {
	evt.Time = time.Now().Format(time.RFC3339Nano)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// Watch publishes src every interval until ctx is done.
func (b *StatusBroadcaster) Watch(ctx context.Context, src StatusFunc, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := b.PublishState(src()); err != nil {
				b.Broadcast("error", "status: "+err.Error())
			}
		}
	}
}

// BroadcastWriter implements io.Writer for debug.SetOutput; each Write
// becomes a log event.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.Broadcast(LevelOf(msg), msg)
	}
	return len(p), nil
}

// debug line tags and the SSE level they map to.
var levelTags = []struct{ tag, level string }{
	{"[ERROR]", "error"},
	{"[INFO]", "info"},
	{"[LIVE]", "live"},
	{"[VERBOSE]", "verbose"},
	{"[TRACE]", "trace"},
	{"[CURRENT]", "trace"},
	{"[GPIO]", "trace"},
	{"[I2C]", "trace"},
}

// LevelOf returns the level of a debug log line, "info" when untagged.
func LevelOf(line string) string {
	for _, t := range levelTags {
		if strings.Contains(line, t.tag) {
			return t.level
		}
	}
	return "info"
}
