package queue

import (
	"context"
	"sync"
	"time"

	"github.com/modfin/kuvert/internal/signals"
)

// Memory is an in-process delivery queue for single-node deployments and
// tests. It keeps the broker contract, enqueue order to a single consumer
// group, explicit finish/requeue, and redelivery of jobs whose visibility
// timeout elapses while a handler sits on them. Durability is process
// lifetime only.
type Memory struct {
	mu sync.Mutex

	visibility time.Duration

	pending  []*memJob
	inflight map[*memJob]time.Time

	handler Handler
	sem     chan struct{}

	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup
	once   sync.Once
}

type memJob struct {
	job       Job
	notBefore time.Time
}

func NewMemory(visibility time.Duration) *Memory {
	ctx, cancel := context.WithCancel(context.Background())
	return &Memory{
		visibility: visibility,
		inflight:   map[*memJob]time.Time{},
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (q *Memory) Publish(ctx context.Context, job Job) error {
	if err := q.ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	q.pending = append(q.pending, &memJob{job: job, notBefore: time.Now()})
	q.mu.Unlock()

	signals.Broadcast(signals.NewJobInQueue)
	return nil
}

func (q *Memory) Consume(handler Handler, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	q.handler = handler
	q.sem = make(chan struct{}, concurrency)

	q.wg.Add(1)
	go q.dispatch()
	return nil
}

func (q *Memory) Stop(ctx context.Context) error {
	q.once.Do(q.cancel)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth returns the number of jobs the queue still holds, pending plus
// in-flight.
func (q *Memory) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + len(q.inflight)
}

func (q *Memory) dispatch() {
	defer q.wg.Done()

	wake, cancel := signals.Listen(signals.NewJobInQueue)
	defer cancel()

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		q.reap()
		for q.next() {
		}

		select {
		case <-q.ctx.Done():
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}

// reap returns jobs whose visibility timeout elapsed to the head of the
// queue. The original handler may still be running, that overlap is the
// at-least-once contract.
func (q *Memory) reap() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for mj, deadline := range q.inflight {
		if deadline.Before(now) {
			delete(q.inflight, mj)
			mj.job.Attempt++
			mj.notBefore = now
			q.pending = append([]*memJob{mj}, q.pending...)
		}
	}
}

// next dispatches the first eligible pending job, reporting whether anything
// was dispatched.
func (q *Memory) next() bool {
	select {
	case q.sem <- struct{}{}:
	default:
		return false
	}

	q.mu.Lock()
	var mj *memJob
	now := time.Now()
	for i, candidate := range q.pending {
		if candidate.notBefore.After(now) {
			continue
		}
		mj = candidate
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		break
	}
	if mj == nil {
		q.mu.Unlock()
		<-q.sem
		return false
	}
	q.inflight[mj] = now.Add(q.visibility)
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer func() { <-q.sem }()
		q.handler(mj.job, &memHandle{q: q, mj: mj})
	}()
	return true
}

type memHandle struct {
	q    *Memory
	mj   *memJob
	once sync.Once
}

func (h *memHandle) Finish() {
	h.once.Do(func() {
		h.q.mu.Lock()
		delete(h.q.inflight, h.mj)
		h.q.mu.Unlock()
	})
}

func (h *memHandle) Requeue(delay time.Duration) {
	h.once.Do(func() {
		h.q.mu.Lock()
		delete(h.q.inflight, h.mj)
		h.mj.job.Attempt++
		h.mj.notBefore = time.Now().Add(delay)
		h.q.pending = append(h.q.pending, h.mj)
		h.q.mu.Unlock()

		signals.Broadcast(signals.NewJobInQueue)
	})
}

func (h *memHandle) Touch() {
	h.q.mu.Lock()
	if _, ok := h.q.inflight[h.mj]; ok {
		h.q.inflight[h.mj] = time.Now().Add(h.q.visibility)
	}
	h.q.mu.Unlock()
}
