package timer

import "sync"

// logQueue is the FIFO between transitions and the session log writer.
// push never blocks on the log itself.
type logQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []record
	queued  uint64
	written uint64
	closed  bool
}

func newLogQueue() *logQueue {
	q := &logQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *logQueue) push(rs []record) {
	if len(rs) == 0 {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, rs...)
	q.queued += uint64(len(rs))
	q.mu.Unlock()
	q.cond.Broadcast()
}

// next waits for pending records. It returns false once the queue is
// closed and drained.
func (q *logQueue) next() ([]record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.pending) == 0 {
		return nil, false
	}
	batch := q.pending
	q.pending = nil
	return batch, true
}

func (q *logQueue) done(n int) {
	q.mu.Lock()
	q.written += uint64(n)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// wait returns once everything pushed before the call has been written.
func (q *logQueue) wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	target := q.queued
	for q.written < target {
		q.cond.Wait()
	}
}

func (q *logQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// writeLoop is the only goroutine that calls the SessionLog.
func (c *Controller) writeLoop() {
	defer close(c.writerDone)
	for {
		batch, ok := c.queue.next()
		if !ok {
			return
		}
		for _, r := range batch {
			c.write(r)
		}
		c.queue.done(len(batch))
	}
}
