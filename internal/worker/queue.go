package worker

import "github.com/polkiloo/bookshop/internal/domain/model"

const defaultQueueSize = 64

// Queue hands freshly paid orders to the fulfillment workers.
type Queue struct {
	jobs chan model.Order
}

// NewQueue creates a queue buffering up to size orders.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Queue{jobs: make(chan model.Order, size)}
}

// Enqueue offers order to the workers without blocking. A full queue
// returns false and the order waits for the periodic sweep.
func (q *Queue) Enqueue(order model.Order) bool {
	select {
	case q.jobs <- order:
		return true
	default:
		return false
	}
}

// Len reports the number of buffered orders.
func (q *Queue) Len() int {
	return len(q.jobs)
}
