package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apexmedia/cdn-sync-agent/internal/api"
)

// Config holds drain loop tuning.
type Config struct {
	// Workers bounds how many session batches are posted in parallel
	// within one drain cycle.
	Workers int

	// PostTimeout bounds each transport call.
	PostTimeout time.Duration

	// RetryDelay is slept between cycles when the previous cycle had at
	// least one failed session. Zero retries immediately.
	RetryDelay time.Duration
}

// SessionStatus reports pending work for one session.
type SessionStatus struct {
	SessionID string `json:"sessionId"`
	Pending   int    `json:"pending"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	Draining bool            `json:"draining"`
	Sessions []SessionStatus `json:"sessions"`
}

// Engine buffers mutation operations per session and delivers them in
// grouped batches, guaranteeing per-session enqueue order, at most one
// drain in flight, and no silent drops: a failed session stays buffered
// and is retried on every subsequent cycle.
type Engine struct {
	transport api.Transport
	clock     func() time.Time
	events    Events
	logger    *zap.Logger

	workers     int
	postTimeout time.Duration
	retryDelay  time.Duration

	mu       sync.Mutex
	idle     *sync.Cond
	buffer   map[string][]Operation
	draining bool
	closed   bool

	closeCh chan struct{}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock injects the timestamp source. Used only for ordering and
// audit, never for control flow.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithEvents attaches a notification sink.
func WithEvents(events Events) Option {
	return func(e *Engine) { e.events = events }
}

func New(transport api.Transport, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PostTimeout <= 0 {
		cfg.PostTimeout = 30 * time.Second
	}

	e := &Engine{
		transport:   transport,
		clock:       time.Now,
		events:      NopEvents{},
		logger:      logger,
		workers:     cfg.Workers,
		postTimeout: cfg.PostTimeout,
		retryDelay:  cfg.RetryDelay,
		buffer:      make(map[string][]Operation),
		closeCh:     make(chan struct{}),
	}
	e.idle = sync.NewCond(&e.mu)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue formats and buffers one operation, then kicks a drain if none
// is in flight. It never blocks the caller and never returns an error;
// delivery failures surface through logs and the Events sink.
func (e *Engine) Enqueue(sessionID string, kind Kind, contentType string, payload map[string]any) {
	op := Operation{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Kind:        kind,
		ContentType: contentType,
		Payload:     Format(kind, contentType, payload),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.logger.Warn("enqueue after shutdown, dropping operation", zap.String("op", op.String()))
		return
	}

	op.Timestamp = e.clock()
	// Wall-clock may step backwards; timestamps within a session stay
	// non-decreasing, insertion order breaks ties.
	if ops := e.buffer[sessionID]; len(ops) > 0 && op.Timestamp.Before(ops[len(ops)-1].Timestamp) {
		op.Timestamp = ops[len(ops)-1].Timestamp
	}
	e.buffer[sessionID] = append(e.buffer[sessionID], op)

	start := !e.draining
	if start {
		e.draining = true
	}
	e.mu.Unlock()

	e.events.OperationEnqueued(op)
	e.logger.Debug("operation enqueued", zap.String("op", op.String()), zap.String("kind", string(kind)))

	if start {
		go e.drain()
	}
}

// Status returns a copy of the current queue state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{Draining: e.draining, Sessions: make([]SessionStatus, 0, len(e.buffer))}
	for sid, ops := range e.buffer {
		st.Sessions = append(st.Sessions, SessionStatus{SessionID: sid, Pending: len(ops)})
	}
	return st
}

// Shutdown stops accepting operations and waits for the in-flight drain
// to settle. Pending operations may be abandoned; the buffer is memory
// only and is not restored across restarts.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.closeCh)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.mu.Lock()
		for e.draining {
			e.idle.Wait()
		}
		e.mu.Unlock()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// drain runs delivery cycles until the buffer is empty or the engine is
// closed. Exactly one drain goroutine exists at a time; the draining
// flag is set by the Enqueue that started it and cleared here, with the
// empty-buffer recheck inside the same critical section.
func (e *Engine) drain() {
	for {
		e.mu.Lock()
		if e.closed || len(e.buffer) == 0 {
			e.draining = false
			e.idle.Broadcast()
			e.mu.Unlock()
			return
		}

		// Snapshot the pending work. Operations enqueued after this
		// point belong to the next cycle.
		snapshot := make(map[string][]Operation, len(e.buffer))
		for sid, ops := range e.buffer {
			if len(ops) == 0 {
				continue
			}
			snapshot[sid] = append([]Operation(nil), ops...)
		}
		e.mu.Unlock()

		failed := e.deliver(snapshot)

		if failed > 0 && e.retryDelay > 0 {
			select {
			case <-e.closeCh:
			case <-time.After(e.retryDelay):
			}
		}
	}
}

type sessionResult struct {
	sessionID string
	count     int
	err       error
}

// deliver posts every snapshot session once, at most workers at a time,
// and applies per-session results. Returns the number of failed sessions.
func (e *Engine) deliver(snapshot map[string][]Operation) int {
	jobs := make(chan string, len(snapshot))
	results := make(chan sessionResult, len(snapshot))

	workers := e.workers
	if workers > len(snapshot) {
		workers = len(snapshot)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sid := range jobs {
				ops := snapshot[sid]
				results <- sessionResult{sessionID: sid, count: len(ops), err: e.post(sid, ops)}
			}
		}()
	}

	for sid := range snapshot {
		jobs <- sid
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	failed := 0
	for r := range results {
		if r.err != nil {
			// Leave the session buffered; the next cycle retries it.
			// One bad session must not block its siblings.
			failed++
			e.logger.Warn("batch delivery failed",
				zap.String("session", r.sessionID),
				zap.Int("operations", r.count),
				zap.Error(r.err),
			)
			e.events.BatchFailed(r.sessionID, r.count, r.err)
			continue
		}

		e.mu.Lock()
		// Drop exactly the delivered prefix. Operations that arrived
		// mid-cycle stay buffered for the next cycle.
		if ops := e.buffer[r.sessionID]; len(ops) > r.count {
			e.buffer[r.sessionID] = ops[r.count:]
		} else {
			delete(e.buffer, r.sessionID)
		}
		e.mu.Unlock()

		e.logger.Info("batch delivered",
			zap.String("session", r.sessionID),
			zap.Int("operations", r.count),
		)
		e.events.BatchDelivered(r.sessionID, r.count)
	}

	return failed
}

func (e *Engine) post(sessionID string, ops []Operation) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.postTimeout)
	defer cancel()

	return e.transport.Post(ctx, sessionID, buildBatch(ops))
}

// buildBatch groups one session's operations by kind, preserving
// enqueue order within each kind group.
func buildBatch(ops []Operation) api.Batch {
	batch := make(api.Batch)
	for _, op := range ops {
		batch[string(op.Kind)] = append(batch[string(op.Kind)], op.Payload)
	}
	return batch
}
