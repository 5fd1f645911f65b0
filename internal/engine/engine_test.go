package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/apexmedia/cdn-sync-agent/internal/api"
)

type delivery struct {
	sessionID string
	batch     api.Batch
}

// mockTransport records deliveries and can fail selected sessions a set
// number of times. It also tracks concurrent Post calls to verify the
// single-flight guard.
type mockTransport struct {
	mu         sync.Mutex
	deliveries []delivery
	failures   map[string]int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	block chan struct{} // when set, Post waits for it to close
}

func (m *mockTransport) Post(ctx context.Context, sessionID string, batch api.Batch) error {
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		max := m.maxInFlight.Load()
		if cur <= max || m.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}

	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if n := m.failures[sessionID]; n > 0 {
		m.failures[sessionID] = n - 1
		return errors.New("boom")
	}

	m.deliveries = append(m.deliveries, delivery{sessionID: sessionID, batch: cloneBatch(batch)})
	return nil
}

func cloneBatch(b api.Batch) api.Batch {
	out := make(api.Batch, len(b))
	for k, v := range b {
		out[k] = append([]map[string]any(nil), v...)
	}
	return out
}

func (m *mockTransport) sessionDeliveries(sessionID string) []delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []delivery
	for _, d := range m.deliveries {
		if d.sessionID == sessionID {
			out = append(out, d)
		}
	}
	return out
}

func newTestEngine(t *testing.T, transport api.Transport, cfg Config, opts ...Option) *Engine {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return New(transport, cfg, logger, opts...)
}

// waitIdle polls until the buffer is empty and the drain has settled.
func waitIdle(t *testing.T, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st := e.Status()
		if !st.Draining && len(st.Sessions) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("engine did not reach quiescence: %+v", e.Status())
}

func TestEnqueue_DeliversInOrder(t *testing.T) {
	transport := &mockTransport{}
	e := newTestEngine(t, transport, Config{})

	// Hold delivery until all three are buffered so they land in one batch.
	transport.block = make(chan struct{})
	e.Enqueue("S1", KindCaption, "STORIES", map[string]any{"fileName": "a.png", "caption": "one"})
	e.Enqueue("S1", KindCaption, "STORIES", map[string]any{"fileName": "b.png", "caption": "two"})
	e.Enqueue("S1", KindCaption, "STORIES", map[string]any{"fileName": "c.png", "caption": "three"})
	close(transport.block)

	waitIdle(t, e)

	var captions []string
	for _, d := range transport.sessionDeliveries("S1") {
		for _, p := range d.batch["caption"] {
			captions = append(captions, p["caption"].(string))
		}
	}

	want := []string{"one", "two", "three"}
	if len(captions) != len(want) {
		t.Fatalf("expected %d captions, got %v", len(want), captions)
	}
	for i := range want {
		if captions[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], captions[i])
		}
	}
}

func TestDrain_GroupsByKindPreservingOrder(t *testing.T) {
	transport := &mockTransport{block: make(chan struct{})}
	e := newTestEngine(t, transport, Config{})

	e.Enqueue("S1", KindMove, "STORIES", map[string]any{"fileName": "a.png", "sourcePath": "/x", "destinationPath": "/y"})
	e.Enqueue("S1", KindCaption, "STORIES", map[string]any{"fileName": "a.png", "caption": "hi"})
	e.Enqueue("S1", KindMove, "STORIES", map[string]any{"fileName": "b.png", "sourcePath": "/x", "destinationPath": "/z"})
	close(transport.block)

	waitIdle(t, e)

	deliveries := transport.sessionDeliveries("S1")
	if len(deliveries) != 1 {
		t.Fatalf("expected one batch, got %d", len(deliveries))
	}

	batch := deliveries[0].batch
	if len(batch["move"]) != 2 || len(batch["caption"]) != 1 {
		t.Fatalf("unexpected grouping: %#v", batch)
	}
	if batch["move"][0]["fileName"] != "a.png" || batch["move"][1]["fileName"] != "b.png" {
		t.Errorf("intra-kind order not preserved: %#v", batch["move"])
	}
}

func TestDrain_RetriesFailedSession(t *testing.T) {
	transport := &mockTransport{failures: map[string]int{"S1": 2}}
	e := newTestEngine(t, transport, Config{RetryDelay: 5 * time.Millisecond})

	e.Enqueue("S1", KindCaption, "STORIES", map[string]any{"fileName": "a.png", "caption": "hi"})

	waitIdle(t, e)

	deliveries := transport.sessionDeliveries("S1")
	if len(deliveries) != 1 {
		t.Fatalf("expected exactly one successful delivery, got %d", len(deliveries))
	}
	if len(deliveries[0].batch["caption"]) != 1 {
		t.Errorf("operation lost across retries: %#v", deliveries[0].batch)
	}
}

func TestDrain_FailureIsolatedPerSession(t *testing.T) {
	transport := &mockTransport{failures: map[string]int{"BAD": 3}}
	e := newTestEngine(t, transport, Config{Workers: 1, RetryDelay: time.Millisecond})

	e.Enqueue("BAD", KindCaption, "STORIES", map[string]any{"fileName": "x.png", "caption": "x"})
	e.Enqueue("GOOD", KindCaption, "STORIES", map[string]any{"fileName": "y.png", "caption": "y"})

	waitIdle(t, e)

	if len(transport.sessionDeliveries("GOOD")) != 1 {
		t.Error("healthy session blocked by failing sibling")
	}
	if len(transport.sessionDeliveries("BAD")) != 1 {
		t.Error("failing session never recovered")
	}
}

func TestSingleFlight(t *testing.T) {
	transport := &mockTransport{}
	e := newTestEngine(t, transport, Config{Workers: 1})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				e.Enqueue("S1", KindCaption, "STORIES", map[string]any{"fileName": "a.png", "caption": "c"})
			}
		}()
	}
	wg.Wait()

	waitIdle(t, e)

	if max := transport.maxInFlight.Load(); max > 1 {
		t.Errorf("expected at most one in-flight delivery for a single session, saw %d", max)
	}

	// Every enqueued operation is delivered exactly once.
	total := 0
	for _, d := range transport.sessionDeliveries("S1") {
		total += len(d.batch["caption"])
	}
	if total != 200 {
		t.Errorf("expected 200 delivered operations, got %d", total)
	}
}

func TestEnqueueDuringDrain_NotStranded(t *testing.T) {
	transport := &mockTransport{block: make(chan struct{})}
	e := newTestEngine(t, transport, Config{})

	// First enqueue starts a drain that parks inside Post.
	e.Enqueue("S1", KindMove, "STORIES", map[string]any{"fileName": "a.png", "sourcePath": "/x", "destinationPath": "/y"})

	// Wait until the drain is in flight, then enqueue behind its back.
	deadline := time.Now().Add(2 * time.Second)
	for transport.inFlight.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	e.Enqueue("S1", KindCaption, "STORIES", map[string]any{"fileName": "a.png", "caption": "hi"})
	close(transport.block)

	waitIdle(t, e)

	// Both operations delivered, in one or two cycles, with no second
	// caller ever kicking the engine.
	moves, captions := 0, 0
	for _, d := range transport.sessionDeliveries("S1") {
		moves += len(d.batch["move"])
		captions += len(d.batch["caption"])
	}
	if moves != 1 || captions != 1 {
		t.Errorf("expected 1 move and 1 caption delivered, got %d and %d", moves, captions)
	}
}

func TestReorderSequence_DeliveredInEnqueueOrder(t *testing.T) {
	transport := &mockTransport{block: make(chan struct{})}
	e := newTestEngine(t, transport, Config{})

	orders := [][]string{{"a", "b", "c"}, {"c", "a", "b"}, {"b", "c", "a"}}
	for _, order := range orders {
		files := make([]any, 0, len(order))
		for i, name := range order {
			files = append(files, map[string]any{"fileName": name, "seqNumber": i})
		}
		e.Enqueue("S1", KindReorder, "STORIES", map[string]any{"files": files})
	}
	close(transport.block)

	waitIdle(t, e)

	deliveries := transport.sessionDeliveries("S1")
	if len(deliveries) != 1 {
		t.Fatalf("expected one batch, got %d", len(deliveries))
	}

	reorders := deliveries[0].batch["reorder"]
	if len(reorders) != 3 {
		t.Fatalf("expected all 3 reorder entries, got %d", len(reorders))
	}
	for i, order := range orders {
		files := reorders[i]["files"].([]map[string]any)
		if files[0]["fileName"] != order[0] {
			t.Errorf("reorder %d: expected first file %s, got %v", i, order[0], files[0]["fileName"])
		}
	}
}

type opCapture struct {
	NopEvents
	mu  sync.Mutex
	ops []Operation
}

func (c *opCapture) OperationEnqueued(op Operation) {
	c.mu.Lock()
	c.ops = append(c.ops, op)
	c.mu.Unlock()
}

func TestTimestamps_NonDecreasingPerSession(t *testing.T) {
	transport := &mockTransport{block: make(chan struct{})}

	// A clock that steps backwards on the second call.
	base := time.Unix(1000, 0)
	times := []time.Time{base, base.Add(-time.Second), base.Add(time.Second)}
	calls := 0
	clock := func() time.Time {
		ts := times[calls%len(times)]
		calls++
		return ts
	}

	capture := &opCapture{}
	e := newTestEngine(t, transport, Config{}, WithClock(clock), WithEvents(capture))

	e.Enqueue("S1", KindCaption, "STORIES", map[string]any{"fileName": "a", "caption": "1"})
	e.Enqueue("S1", KindCaption, "STORIES", map[string]any{"fileName": "b", "caption": "2"})
	e.Enqueue("S1", KindCaption, "STORIES", map[string]any{"fileName": "c", "caption": "3"})

	capture.mu.Lock()
	if len(capture.ops) != 3 {
		t.Fatalf("expected 3 enqueued operations, got %d", len(capture.ops))
	}
	for i := 1; i < len(capture.ops); i++ {
		if capture.ops[i].Timestamp.Before(capture.ops[i-1].Timestamp) {
			t.Errorf("timestamp regressed at position %d: %v < %v",
				i, capture.ops[i].Timestamp, capture.ops[i-1].Timestamp)
		}
	}
	capture.mu.Unlock()

	close(transport.block)
	waitIdle(t, e)
}

func TestStatus_ReportsPending(t *testing.T) {
	transport := &mockTransport{block: make(chan struct{})}
	e := newTestEngine(t, transport, Config{})

	e.Enqueue("S1", KindCaption, "STORIES", map[string]any{"fileName": "a", "caption": "1"})

	st := e.Status()
	if !st.Draining {
		t.Error("expected draining status while delivery is parked")
	}

	close(transport.block)
	waitIdle(t, e)

	st = e.Status()
	if st.Draining || len(st.Sessions) != 0 {
		t.Errorf("expected idle empty status, got %+v", st)
	}
}

func TestShutdown_WaitsForDrain(t *testing.T) {
	transport := &mockTransport{}
	e := newTestEngine(t, transport, Config{})

	e.Enqueue("S1", KindCaption, "STORIES", map[string]any{"fileName": "a", "caption": "1"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// Post-shutdown enqueues are dropped, not buffered.
	e.Enqueue("S1", KindCaption, "STORIES", map[string]any{"fileName": "b", "caption": "2"})
	if st := e.Status(); len(st.Sessions) != 0 {
		t.Errorf("expected empty buffer after shutdown, got %+v", st)
	}
}

type recordingEvents struct {
	mu        sync.Mutex
	enqueued  int
	delivered int
	failed    int
}

func (r *recordingEvents) OperationEnqueued(Operation) {
	r.mu.Lock()
	r.enqueued++
	r.mu.Unlock()
}

func (r *recordingEvents) BatchDelivered(string, int) {
	r.mu.Lock()
	r.delivered++
	r.mu.Unlock()
}

func (r *recordingEvents) BatchFailed(string, int, error) {
	r.mu.Lock()
	r.failed++
	r.mu.Unlock()
}

func TestEvents_Notified(t *testing.T) {
	transport := &mockTransport{failures: map[string]int{"S1": 1}}
	rec := &recordingEvents{}
	e := newTestEngine(t, transport, Config{RetryDelay: time.Millisecond}, WithEvents(rec))

	e.Enqueue("S1", KindCaption, "STORIES", map[string]any{"fileName": "a", "caption": "1"})

	waitIdle(t, e)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.enqueued != 1 || rec.failed != 1 || rec.delivered != 1 {
		t.Errorf("expected 1 enqueued, 1 failed, 1 delivered; got %d/%d/%d",
			rec.enqueued, rec.failed, rec.delivered)
	}
}
