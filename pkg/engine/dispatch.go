package engine

import "sync"

// dispatcher serializes result delivery. Every listener callback and target
// display runs on its single goroutine, in post order, so callers never need
// their own synchronization around outcomes.
type dispatcher struct {
	mu     sync.Mutex
	jobs   chan func()
	closed bool
	done   chan struct{}
}

func newDispatcher(buffer int) *dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	d := &dispatcher{
		jobs: make(chan func(), buffer),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.done)
	for job := range d.jobs {
		job()
	}
}

// post enqueues a job for serialized execution. It reports false after
// close; late outcomes from draining workers are dropped silently.
func (d *dispatcher) post(job func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.jobs <- job
	return true
}

// close stops intake and waits for queued jobs to finish.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	<-d.done
}
