package services

import (
	"log/slog"
	"sync"
)

// serialWorker runs submitted jobs one at a time, in submission order, on a
// single goroutine.
type serialWorker struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	idle   *sync.Cond
	queue  []func()
	busy   bool
	closed bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSerialWorker(name string, logger *slog.Logger) *serialWorker {
	w := &serialWorker{
		name:   name,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	w.idle = sync.NewCond(&w.mu)
	go w.run()
	return w
}

// submit queues job and reports false once the worker is closed.
func (w *serialWorker) submit(job func()) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, job)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

func (w *serialWorker) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.busy = false
			w.idle.Broadcast()
			closed := w.closed
			w.mu.Unlock()
			if closed {
				return
			}
			<-w.wake
			continue
		}
		job := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.busy = true
		w.mu.Unlock()

		w.runJob(job)
	}
}

func (w *serialWorker) runJob(job func()) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("background job panicked", "worker", w.name, "panic", r)
		}
	}()
	job()
}

// flush waits until every job submitted so far has run.
func (w *serialWorker) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.queue) > 0 || w.busy {
		w.idle.Wait()
	}
}

// close runs the remaining jobs and stops the worker.
func (w *serialWorker) close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		select {
		case w.wake <- struct{}{}:
		default:
		}
		<-w.done
	})
}
