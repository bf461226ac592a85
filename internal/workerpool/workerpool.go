// Package workerpool supervises a fixed-size pool of goroutines draining a
// shared task channel, using a tomb.Tomb so the whole pool shuts down
// cleanly when any worker (or the caller) asks it to.
package workerpool

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// TaskChanSize bounds how many pending tasks may queue before AddTask
// blocks.
const TaskChanSize = 100

// Func is the work performed per task. A non-nil error returned from Func
// is fatal to the whole pool, exactly like any other tomb.Tomb goroutine.
type Func = func(t *tomb.Tomb, task any) error

// Pool is a fixed-size pool of workers pulling from a shared task channel.
type Pool struct {
	n     int
	tasks chan any
}

// New creates a pool sized for n concurrent workers.
func New(n int) Pool {
	return Pool{tasks: make(chan any, TaskChanSize), n: n}
}

// AddTask enqueues a task for the next free worker.
func (p *Pool) AddTask(task any) {
	p.tasks <- task
}

// Run starts n workers under t, each repeatedly invoking work on whatever
// task it pulls from the pool until t starts dying. Run returns once all n
// workers have been launched; it does not block for their completion, since
// t supervises that.
func (p *Pool) Run(t *tomb.Tomb, work Func) {
	log.Info().Int("workers", p.n).Msg("workerpool: starting")
	for i := 0; i < p.n; i++ {
		t.Go(func() error {
			return p.worker(t, work)
		})
	}
}

func (p *Pool) worker(t *tomb.Tomb, work Func) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-p.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Msg("workerpool: worker exiting")
				return err
			}
		}
	}
}
