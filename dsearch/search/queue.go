package search

import "sync"

// workQueue is the shared LIFO of containers pending visitation. Workers pop
// the most recently discovered container first. A container is pushed at
// most once per traversal generation.
type workQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	stack    []ContainerRef
	visited  *visitedSet
	inflight int
	closed   bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{visited: newVisitedSet()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues ref unless it was seen before or the queue is closed
func (q *workQueue) push(ref ContainerRef) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || !q.visited.markNew(ref) {
		return false
	}
	q.stack = append(q.stack, ref)
	q.cond.Signal()
	return true
}

// pop blocks until a container is available. It returns false once the
// stack is empty with nothing in flight, or the queue was closed.
func (q *workQueue) pop() (ContainerRef, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.stack) == 0 && q.inflight > 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed || len(q.stack) == 0 {
		return "", false
	}

	n := len(q.stack) - 1
	ref := q.stack[n]
	q.stack = q.stack[:n]
	q.inflight++
	return ref, true
}

// done marks one popped container as finished
func (q *workQueue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.inflight--
	if q.inflight == 0 && len(q.stack) == 0 {
		q.cond.Broadcast()
	}
}

// close wakes every waiter and refuses further pushes
func (q *workQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

func (q *workQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.stack)
}

func (q *workQueue) discovered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.visited.len()
}
