package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// DefaultWorkers is the worker count used when NewPoolEngine is given a
// non-positive value.
const DefaultWorkers = 4

// PoolEngine executes requests on a fixed pool of worker goroutines and
// delivers completions from the worker's context. It models an
// offloading transform backend: the submitting goroutine returns before
// the transform has run.
type PoolEngine struct {
	jobs chan *Request
	wg   sync.WaitGroup
	next atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewPoolEngine starts workers goroutines servicing submissions.
func NewPoolEngine(workers int) *PoolEngine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	e := &PoolEngine{jobs: make(chan *Request, workers)}
	e.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go e.worker(i)
	}
	logrus.WithFields(logrus.Fields{
		"function": "NewPoolEngine",
		"package":  "engine",
		"workers":  workers,
	}).Debug("Transform engine worker pool started")
	return e
}

func (e *PoolEngine) worker(id int) {
	defer e.wg.Done()
	for req := range e.jobs {
		n, err := req.Transform.Run(req.Op, req.IV, req.AssocLen, req.Src, req.Dst)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "worker",
				"package":   "engine",
				"worker_id": id,
				"algorithm": req.Transform.Name(),
				"operation": req.Op.String(),
				"error":     err.Error(),
			}).Debug("Transform request failed")
		}
		req.OnComplete(err, n)
	}
}

// Submit queues the request for a worker. The completion callback runs
// on the worker goroutine, concurrently with the submitter.
func (e *PoolEngine) Submit(req *Request) (Handle, error) {
	if err := checkRequest(req); err != nil {
		return 0, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return 0, fmt.Errorf("%w: submit after close", ErrEngineClosed)
	}
	h := Handle(e.next.Add(1))
	e.jobs <- req
	return h, nil
}

// Close stops accepting submissions, drains queued requests and waits
// for the workers to exit. Pending completions still fire.
func (e *PoolEngine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.jobs)
	e.mu.Unlock()
	e.wg.Wait()
}
