package engine

import (
	"fmt"
	"time"
)

// Kind identifies a mutation operation type. The set below is what the
// upstream API validates; unknown kinds are carried through unformatted.
type Kind string

const (
	KindMove    Kind = "move"
	KindCaption Kind = "caption"
	KindReorder Kind = "reorder"
)

// Operation is one queued mutation awaiting delivery.
type Operation struct {
	ID          string
	SessionID   string
	Kind        Kind
	ContentType string
	Timestamp   time.Time
	Payload     map[string]any
}

func (o Operation) String() string {
	return fmt.Sprintf("%s/%s/%s", o.SessionID, o.Kind, o.ID)
}
