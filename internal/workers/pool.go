package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"followgraph/pkg/logger"
)

// ErrPoolClosed is returned by Submit after Stop or cancellation
var ErrPoolClosed = errors.New("worker pool is shutting down")

// ProcessFunc handles a single job
type ProcessFunc[J, R any] func(ctx context.Context, job J) (R, error)

// Result is the outcome of one job. Seq is the submission order.
type Result[J, R any] struct {
	Seq      int
	Job      J
	Value    R
	Err      error
	Duration time.Duration
}

type envelope[J any] struct {
	seq int
	job J
}

// Pool runs jobs on a fixed number of goroutines
type Pool[J, R any] struct {
	numWorkers  int
	jobQueue    chan envelope[J]
	resultQueue chan Result[J, R]
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	process     ProcessFunc[J, R]
	logger      logger.Logger

	mu      sync.RWMutex
	nextSeq atomic.Int64
	stopped bool
}

// NewPool creates a pool of numWorkers workers. Cancelling ctx stops the
// workers after their current job.
func NewPool[J, R any](ctx context.Context, numWorkers int, process ProcessFunc[J, R], log logger.Logger) *Pool[J, R] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &Pool[J, R]{
		numWorkers:  numWorkers,
		jobQueue:    make(chan envelope[J], numWorkers*2),
		resultQueue: make(chan Result[J, R], numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		process:     process,
		logger:      log,
	}
}

// Start launches the workers
func (wp *Pool[J, R]) Start() {
	wp.logger.DebugWithFields("starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue, waits for queued jobs and closes Results. It is
// safe to call more than once.
func (wp *Pool[J, R]) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Debug("worker pool stopped")
}

// Submit queues a job and returns its sequence number. It blocks while the
// queue is full.
func (wp *Pool[J, R]) Submit(job J) (int, error) {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return 0, ErrPoolClosed
	}
	seq := int(wp.nextSeq.Add(1) - 1)

	select {
	case wp.jobQueue <- envelope[J]{seq: seq, job: job}:
		return seq, nil
	case <-wp.ctx.Done():
		return 0, ErrPoolClosed
	}
}

// Results returns the result channel. It is closed by Stop.
func (wp *Pool[J, R]) Results() <-chan Result[J, R] {
	return wp.resultQueue
}

// QueueSize returns the number of queued jobs
func (wp *Pool[J, R]) QueueSize() int {
	return len(wp.jobQueue)
}

// Workers returns the number of workers
func (wp *Pool[J, R]) Workers() int {
	return wp.numWorkers
}

func (wp *Pool[J, R]) worker(id int) {
	defer wp.wg.Done()

	for env := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			continue
		}

		start := time.Now()
		value, err := wp.process(wp.ctx, env.job)
		result := Result[J, R]{
			Seq:      env.seq,
			Job:      env.job,
			Value:    value,
			Err:      err,
			Duration: time.Since(start),
		}
		if err != nil {
			wp.logger.DebugWithFields("worker job failed", map[string]interface{}{
				"worker_id": id,
				"seq":       env.seq,
				"error":     err.Error(),
			})
		}

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
		}
	}
}

// Map runs fn over jobs on numWorkers goroutines and returns the results in
// job order. It returns ctx.Err() if ctx is cancelled before every job ran.
func Map[J, R any](ctx context.Context, numWorkers int, jobs []J, fn ProcessFunc[J, R], log logger.Logger) ([]Result[J, R], error) {
	pool := NewPool(ctx, numWorkers, fn, log)
	pool.Start()

	go func() {
		defer pool.Stop()
		for _, job := range jobs {
			if _, err := pool.Submit(job); err != nil {
				return
			}
		}
	}()

	out := make([]Result[J, R], len(jobs))
	seen := 0
	for r := range pool.Results() {
		out[r.Seq] = r
		seen++
	}
	if seen < len(jobs) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrPoolClosed
	}
	return out, nil
}
