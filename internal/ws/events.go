package ws

import (
	"encoding/json"
	"time"

	"github.com/apexmedia/cdn-sync-agent/internal/engine"
)

// QueueEvent is the wire shape streamed to dashboard subscribers.
type QueueEvent struct {
	Type      string `json:"type"` // enqueued, delivered, failed
	SessionID string `json:"sessionId"`
	Kind      string `json:"kind,omitempty"`
	Count     int    `json:"count,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Broadcaster adapts engine events into hub broadcasts. It implements
// engine.Events.
type Broadcaster struct {
	hub *Hub
}

func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

func (b *Broadcaster) OperationEnqueued(op engine.Operation) {
	b.emit(QueueEvent{
		Type:      "enqueued",
		SessionID: op.SessionID,
		Kind:      string(op.Kind),
		Count:     1,
	})
}

func (b *Broadcaster) BatchDelivered(sessionID string, count int) {
	b.emit(QueueEvent{Type: "delivered", SessionID: sessionID, Count: count})
}

func (b *Broadcaster) BatchFailed(sessionID string, count int, err error) {
	b.emit(QueueEvent{Type: "failed", SessionID: sessionID, Count: count, Error: err.Error()})
}

func (b *Broadcaster) emit(ev QueueEvent) {
	ev.Timestamp = time.Now().UnixMilli()
	msg, err := json.Marshal(ev)
	if err != nil {
		return
	}
	b.hub.Broadcast(msg)
}
