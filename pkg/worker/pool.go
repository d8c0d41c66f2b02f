// Package worker provides a partitioned worker pool for concurrent message
// processing. Work items are keyed; items with the same key are always routed
// to the same partition and processed by a single goroutine, so per-key
// ordering is preserved while different keys are processed in parallel.
//
// Submit is non-blocking: a full partition queue drops the work item and
// returns ErrQueueFull. Backpressure surfaces as dropped messages, which is
// the intended degradation mode for telemetry ingestion.
package worker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// Pool is a partitioned worker pool processing work items of type T.
type Pool[T any] struct {
	partitions int
	queueSize  int
	processor  func(context.Context, T) error

	queues []chan T
	wg     *sync.WaitGroup

	// Lifecycle management. Submit holds the read lock across its
	// non-blocking send so Stop cannot close a queue mid-send.
	lifecycleMu sync.RWMutex
	started     bool
	stopped     bool

	// Statistics (atomic)
	submitted int64
	processed int64
	failed    int64
	dropped   int64
}

// NewPool creates a partitioned worker pool. Each partition has its own
// bounded queue of queueSize items and a single worker goroutine.
func NewPool[T any](partitions, queueSize int, processor func(context.Context, T) error) *Pool[T] {
	if partitions <= 0 {
		partitions = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}

	queues := make([]chan T, partitions)
	for i := range queues {
		queues[i] = make(chan T, queueSize)
	}

	return &Pool[T]{
		partitions: partitions,
		queueSize:  queueSize,
		processor:  processor,
		queues:     queues,
	}
}

// Submit routes work to the partition owning key. Returns ErrQueueFull if
// that partition's queue is at capacity.
func (p *Pool[T]) Submit(key string, work T) error {
	p.lifecycleMu.RLock()
	defer p.lifecycleMu.RUnlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	queue := p.queues[p.partition(key)]

	select {
	case queue <- work:
		atomic.AddInt64(&p.submitted, 1)
		return nil
	default:
		atomic.AddInt64(&p.dropped, 1)
		return ErrQueueFull
	}
}

// Start launches one worker goroutine per partition.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}

	p.wg = &sync.WaitGroup{}
	for i := 0; i < p.partitions; i++ {
		p.wg.Add(1)
		go p.worker(ctx, p.queues[i])
	}

	p.started = true
	return nil
}

// Stop closes all partition queues and waits for workers to drain them.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true

	for _, q := range p.queues {
		close(q)
	}
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() PoolStats {
	depth := 0
	for _, q := range p.queues {
		depth += len(q)
	}
	return PoolStats{
		Partitions: p.partitions,
		QueueSize:  p.queueSize,
		QueueDepth: depth,
		Submitted:  atomic.LoadInt64(&p.submitted),
		Processed:  atomic.LoadInt64(&p.processed),
		Failed:     atomic.LoadInt64(&p.failed),
		Dropped:    atomic.LoadInt64(&p.dropped),
	}
}

// PoolStats represents worker pool statistics
type PoolStats struct {
	Partitions int   `json:"partitions"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

func (p *Pool[T]) partition(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.partitions))
}

// worker drains a single partition queue. One goroutine per partition keeps
// per-key ordering intact. On context cancellation the worker finishes
// whatever is already queued before exiting, so Stop's drain guarantee holds.
func (p *Pool[T]) worker(ctx context.Context, queue chan T) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			p.drain(context.WithoutCancel(ctx), queue)
			return
		case work, ok := <-queue:
			if !ok {
				return
			}
			p.run(ctx, work)
		}
	}
}

// drain processes queued work without blocking for new items. Handlers run
// against a context detached from cancellation so in-flight work completes.
func (p *Pool[T]) drain(ctx context.Context, queue chan T) {
	for {
		select {
		case work, ok := <-queue:
			if !ok {
				return
			}
			p.run(ctx, work)
		default:
			return
		}
	}
}

func (p *Pool[T]) run(ctx context.Context, work T) {
	err := p.processor(ctx, work)
	atomic.AddInt64(&p.processed, 1)
	if err != nil {
		atomic.AddInt64(&p.failed, 1)
	}
}
