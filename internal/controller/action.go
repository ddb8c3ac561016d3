package controller

import (
	"context"
	"sync"

	"github.com/couchcryptid/ski-report-service/internal/domain"
)

type actionKind int

const (
	actionAddResort actionKind = iota
	actionRemoveResort
	actionLoadAll
	actionRemoveOld
)

func (k actionKind) String() string {
	switch k {
	case actionAddResort:
		return "add"
	case actionRemoveResort:
		return "remove"
	case actionLoadAll:
		return "load_all"
	case actionRemoveOld:
		return "remove_old"
	default:
		return "unknown"
	}
}

// action is one unit of work for the worker. resort is set for add and
// remove, resorts and background for load_all.
type action struct {
	kind       actionKind
	resort     domain.Resort
	resorts    []domain.Resort
	background bool
}

// actionQueue is an unbounded FIFO. push never blocks; pop blocks until an
// action is available or ctx is done.
type actionQueue struct {
	mu    sync.Mutex
	items []action
	ready chan struct{}
}

func newActionQueue() *actionQueue {
	return &actionQueue{ready: make(chan struct{}, 1)}
}

func (q *actionQueue) push(a action) {
	q.mu.Lock()
	q.items = append(q.items, a)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *actionQueue) pop(ctx context.Context) (action, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			a := q.items[0]
			q.items[0] = action{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return a, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return action{}, false
		case <-q.ready:
		}
	}
}

func (q *actionQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
