// Package service implements the generic concurrent worker described by the
// core specification's Service component: something that consumes typed
// jobs from a queue, performs one stage of work per job on a worker pool,
// and emits finished/failed signals. It generalizes the teacher's
// StatefulService (start/stop lifecycle guarded by a context and a done
// channel) to a typed job queue with a configurable worker count.
package service

import (
	"context"
	"sync"

	"github.com/wheelhouse/wheelhouse/internal/wlog"
)

// Handler performs one stage's work on a Job, returning the advanced Job
// (with stage-specific fields populated) or an error.
type Handler[J any] func(ctx context.Context, job J) (J, error)

// Service is a generic worker: it consumes Jobs admitted via Queue on a
// pool of workers, invokes Handler at most once per Job, and emits the
// outcome via the OnFinished/OnFailed callbacks registered before Start.
//
// Start is idempotent: a second call logs a warning and does nothing.
// Queue may be called before or after Start.
type Service[J any] struct {
	name    string
	workers int
	handler Handler[J]
	log     wlog.Log

	mu      sync.Mutex
	started bool
	jobs    chan J
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	doneC   chan struct{}

	onFinished func(J)
	onFailed   func(J, error)
}

// New constructs a Service with the given name (used only for logging),
// worker pool size (coerced up to 1) and stage Handler.
func New[J any](ctx context.Context, name string, workers int, log wlog.Log, handler Handler[J]) *Service[J] {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service[J]{
		name:    name,
		workers: workers,
		handler: handler,
		log:     log,
		jobs:    make(chan J, 4096),
		ctx:     ctx,
		cancel:  cancel,
		doneC:   make(chan struct{}),
	}
}

// OnFinished registers the callback invoked, on a worker goroutine, for
// every Job the handler completed without error. Must be called before Start.
func (s *Service[J]) OnFinished(fn func(J)) { s.onFinished = fn }

// OnFailed registers the callback invoked, on a worker goroutine, for every
// Job whose handler returned an error. Must be called before Start.
func (s *Service[J]) OnFailed(fn func(J, error)) { s.onFailed = fn }

// Queue admits job for processing. Safe to call before or after Start, and
// from multiple goroutines.
func (s *Service[J]) Queue(job J) {
	select {
	case s.jobs <- job:
	case <-s.ctx.Done():
	}
}

// Start begins processing admitted jobs on workers goroutines. Calls after
// the first have no effect.
func (s *Service[J]) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.log.Warnf("%s: start called more than once; ignoring", s.name)
		return
	}
	s.started = true
	s.log.Infof("%s: starting %d worker(s)", s.name, s.workers)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	go func() {
		s.wg.Wait()
		close(s.doneC)
	}()
}

func (s *Service[J]) worker() {
	defer s.wg.Done()
	for {
		select {
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			result, err := s.handler(s.ctx, job)
			if err != nil {
				if s.onFailed != nil {
					s.onFailed(job, err)
				}
				continue
			}
			if s.onFinished != nil {
				s.onFinished(result)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// Stop cancels the worker context and blocks until every worker has exited.
// In-flight handler calls are allowed to finish; only the wait for the next
// queued job is interrupted. Idempotent.
func (s *Service[J]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	<-s.doneC
}
