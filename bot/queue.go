package bot

import "sync"

// outbox is the FIFO of commands waiting to be sent. It has a single
// consumer, the drain loop, so peek followed by pop always refers to the
// same entry.
type outbox struct {
	mu     sync.Mutex
	items  []command
	notify chan struct{}
}

func newOutbox() *outbox {
	return &outbox{notify: make(chan struct{}, 1)}
}

func (q *outbox) push(cmd command) {
	q.mu.Lock()
	q.items = append(q.items, cmd)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *outbox) peek() (command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return command{}, false
	}
	return q.items[0], true
}

func (q *outbox) pop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return
	}
	q.items[0] = command{}
	q.items = q.items[1:]
}

func (q *outbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
