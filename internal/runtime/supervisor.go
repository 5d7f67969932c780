// Package runtime supervises the bridge's long-running background workers:
// the HTTP listener, the config watcher and periodic housekeeping.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"crmdash-go/internal/monitoring"
	log "github.com/sirupsen/logrus"
)

// State is the lifecycle state of a worker.
type State string

const (
	StateRunning  State = "running"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
	StateCanceled State = "canceled"
)

// WorkerFunc runs until ctx is cancelled or its work is done.
type WorkerFunc func(ctx context.Context) error

// Worker describes one supervised worker.
type Worker struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Err       string    `json:"error,omitempty"`
}

// Supervisor starts named workers under one parent context and waits for
// them on shutdown.
type Supervisor struct {
	mu      sync.RWMutex
	workers map[string]*Worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSupervisor derives the workers' context from parent.
func NewSupervisor(parent context.Context) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{
		workers: make(map[string]*Worker),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Go starts fn as the named worker. Names must be unique.
func (s *Supervisor) Go(name string, fn WorkerFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workers[name]; exists {
		return fmt.Errorf("worker %s already started", name)
	}
	w := &Worker{Name: name, State: StateRunning, StartedAt: time.Now()}
	s.workers[name] = w

	s.wg.Add(1)
	monitoring.WorkersRunning.Inc()
	go func() {
		defer s.wg.Done()
		defer monitoring.WorkersRunning.Dec()
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(log.Fields{"worker": name, "panic": r}).Error("worker panicked")
				s.finish(w, StateFailed, fmt.Errorf("panic: %v", r), "panic")
			}
		}()

		log.WithField("worker", name).Debug("worker started")
		err := fn(s.ctx)
		switch {
		case err == nil:
			s.finish(w, StateStopped, nil, "stopped")
		case errors.Is(err, context.Canceled) || s.ctx.Err() != nil:
			s.finish(w, StateCanceled, nil, "canceled")
		default:
			log.WithError(err).WithField("worker", name).Error("worker failed")
			s.finish(w, StateFailed, err, "failed")
		}
	}()
	return nil
}

// Every runs fn immediately and then at every interval until shutdown. Errors
// are logged and do not stop the worker.
func (s *Supervisor) Every(name string, interval time.Duration, fn func(ctx context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("worker %s: interval must be positive", name)
	}
	return s.Go(name, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := fn(ctx); err != nil {
				log.WithError(err).WithField("worker", name).Warn("periodic run failed")
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

func (s *Supervisor) finish(w *Worker, state State, err error, result string) {
	s.mu.Lock()
	w.State = state
	if err != nil {
		w.Err = err.Error()
	}
	s.mu.Unlock()
	monitoring.WorkerExitsTotal.WithLabelValues(w.Name, result).Inc()
}

// Shutdown cancels every worker and waits for them until ctx expires.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("workers still running: %w", ctx.Err())
	}
}

// Done is closed once shutdown has begun.
func (s *Supervisor) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Workers returns a copy of every worker ordered by name.
func (s *Supervisor) Workers() []Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Worker returns one worker by name.
func (s *Supervisor) Worker(name string) (Worker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[name]
	if !ok {
		return Worker{}, false
	}
	return *w, true
}
