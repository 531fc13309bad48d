// Package orchestrator runs the relay's recurring and one-shot tasks.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"croesus/internal/clock"

	"github.com/rs/zerolog/log"
)

type entry struct {
	task     Task
	interval time.Duration
	running  atomic.Bool

	mu      sync.Mutex
	next    time.Time
	timer   *clock.Timer
	stopped bool
}

// Scheduler fires tasks on a clock. A task whose previous invocation is
// still running when it comes due again is skipped for that tick.
type Scheduler struct {
	clock  clock.Clock
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	tasks   map[string]*entry
	stopped bool
}

// NewScheduler creates a scheduler whose tasks run with a context derived
// from ctx
func NewScheduler(ctx context.Context, clk clock.Clock) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		clock:  clk,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*entry),
	}
}

// Every runs task every interval, starting one interval from now
func (s *Scheduler) Every(task Task, interval time.Duration) error {
	return s.At(task, s.clock.Now().Add(interval), interval)
}

// At runs task at first and then every interval after it. A zero interval
// makes it a one-shot task.
func (s *Scheduler) At(task Task, first time.Time, interval time.Duration) error {
	if interval < 0 {
		return fmt.Errorf("negative interval for task %s", task.Name())
	}

	e := &entry{task: task, interval: interval, next: first}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("scheduler stopped, can't schedule task %s", task.Name())
	}
	if old, ok := s.tasks[task.Name()]; ok {
		old.stop()
	}
	s.tasks[task.Name()] = e
	s.mu.Unlock()

	log.Info().
		Str("task", task.Name()).
		Time("first", first).
		Dur("interval", interval).
		Msg("Scheduled task")

	s.schedule(e)
	return nil
}

// After runs task once after d
func (s *Scheduler) After(task Task, d time.Duration) error {
	return s.At(task, s.clock.Now().Add(d), 0)
}

func (s *Scheduler) schedule(e *entry) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	d := e.next.Sub(s.clock.Now())
	e.mu.Unlock()

	t := s.clock.AfterFunc(d, func() { s.fire(e) })

	e.mu.Lock()
	e.timer = t
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		t.Stop()
	}
}

func (s *Scheduler) fire(e *entry) {
	if s.ctx.Err() != nil {
		return
	}

	if e.interval > 0 {
		now := s.clock.Now()
		e.mu.Lock()
		e.next = e.next.Add(e.interval)
		for !e.next.After(now) {
			e.next = e.next.Add(e.interval)
		}
		e.mu.Unlock()
		s.schedule(e)
	} else {
		s.remove(e)
	}

	s.launch(e)
}

// launch starts one invocation unless one is already running or the
// scheduler has stopped. wg is only added to under s.mu before Stop.
func (s *Scheduler) launch(e *entry) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	if !e.running.CompareAndSwap(false, true) {
		s.mu.Unlock()
		log.Warn().Str("task", e.task.Name()).Msg("Task still running, skipping this run")
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer e.running.Store(false)

		err := e.task.Run(s.ctx)
		switch {
		case errors.Is(err, ErrStopTask):
			log.Info().Str("task", e.task.Name()).Msg("Task finished for good")
			s.remove(e)
		case err != nil:
			log.Error().Err(err).Str("task", e.task.Name()).Msg("Task failed")
		}
	}()
	return true
}

func (e *entry) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	if e.timer != nil {
		e.timer.Stop()
	}
}

// remove unregisters e if it is still the entry under its name
func (s *Scheduler) remove(e *entry) {
	e.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[e.task.Name()] == e {
		delete(s.tasks, e.task.Name())
	}
}

// RunNow starts a registered task immediately, outside its schedule. It
// returns false when the task is unknown or already running.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.RLock()
	e, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return s.launch(e)
}

// Cancel stops future runs of a task; a run in progress finishes
func (s *Scheduler) Cancel(name string) error {
	s.mu.RLock()
	e, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task %s not found, can't cancel", name)
	}
	s.remove(e)
	return nil
}

func (s *Scheduler) Running(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tasks[name]
	return ok && e.running.Load()
}

// Tasks returns the names of all scheduled tasks
func (s *Scheduler) Tasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop cancels every task and waits for running invocations to return
func (s *Scheduler) Stop() {
	s.cancel()

	s.mu.Lock()
	s.stopped = true
	for name, e := range s.tasks {
		e.stop()
		delete(s.tasks, name)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
