package transport

import (
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"
)

// taskQueueSize bounds how many accepted connections can wait for a free
// worker before Accept blocks.
const taskQueueSize = 100

// WorkerFunction processes one task; a non-nil error is logged and the
// worker moves on to the next task.
type WorkerFunction func(t *tomb.Tomb, task any) error

// WorkerPool runs a fixed number of goroutines, each pulling tasks off a
// shared channel. This is the teacher's own worker-pool shape
// (internal/worker.go) with its task channel made an owned method
// (AddTask) instead of an unexported field the caller could never reach.
type WorkerPool struct {
	size  int
	tasks chan any
	log   zerolog.Logger
}

// NewWorkerPool creates a pool of size workers.
func NewWorkerPool(size int, log zerolog.Logger) *WorkerPool {
	return &WorkerPool{size: size, tasks: make(chan any, taskQueueSize), log: log}
}

// AddTask enqueues a task for the next free worker.
func (p *WorkerPool) AddTask(task any) {
	p.tasks <- task
}

// Run starts size worker goroutines under t, each repeatedly pulling a
// task and running work on it until t is dying.
func (p *WorkerPool) Run(t *tomb.Tomb, work WorkerFunction) {
	for i := 0; i < p.size; i++ {
		t.Go(func() error {
			return p.worker(t, work)
		})
	}
}

func (p *WorkerPool) worker(t *tomb.Tomb, work WorkerFunction) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-p.tasks:
			if err := work(t, task); err != nil {
				p.log.Error().Err(err).Msg("worker task failed")
			}
		}
	}
}
