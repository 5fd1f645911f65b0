package engine

// Events receives engine lifecycle notifications. Callbacks run on the
// enqueue or drain goroutine and must not block.
type Events interface {
	OperationEnqueued(op Operation)
	BatchDelivered(sessionID string, count int)
	BatchFailed(sessionID string, count int, err error)
}

// NopEvents discards all notifications.
type NopEvents struct{}

func (NopEvents) OperationEnqueued(Operation)    {}
func (NopEvents) BatchDelivered(string, int)     {}
func (NopEvents) BatchFailed(string, int, error) {}

// MultiEvents fans out to every registered sink.
type MultiEvents []Events

func (m MultiEvents) OperationEnqueued(op Operation) {
	for _, e := range m {
		e.OperationEnqueued(op)
	}
}

func (m MultiEvents) BatchDelivered(sessionID string, count int) {
	for _, e := range m {
		e.BatchDelivered(sessionID, count)
	}
}

func (m MultiEvents) BatchFailed(sessionID string, count int, err error) {
	for _, e := range m {
		e.BatchFailed(sessionID, count, err)
	}
}
