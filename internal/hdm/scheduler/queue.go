// =============================================================================
// FILE: internal/hdm/scheduler/queue.go
// PURPOSE: Fair round-robin scheduler. A FIFO per batch plus a circular order
//          of batch IDs, so no single batch monopolizes worker bandwidth.
//          Guarded by a mutex + condition variable per the orchestrator's
//          single scheduler-queue concurrency model.
// =============================================================================

package scheduler

import (
	"container/list"
	"sync"

	"harmonydl/internal/hdm/model"
	"harmonydl/internal/logging"
)

// Queue is a fair multi-batch FIFO scheduler. Put/Take/Stop are safe for
// concurrent use by many workers and one or more submitters.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queues   map[string]*list.List // batch_id -> FIFO of *model.DownloadItem
	order    []string              // circular order of active batch IDs
	pos      int                   // index into order of the batch to serve next
	stopping bool
}

// New creates an empty, running Queue.
func New() *Queue {
	q := &Queue{
		queues: make(map[string]*list.List),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put enqueues an item onto its batch's FIFO. If the batch has no queue yet,
// it is appended to the rotation order. O(1).
func (q *Queue) Put(item *model.DownloadItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	fifo, ok := q.queues[item.BatchID]
	if !ok {
		fifo = list.New()
		q.queues[item.BatchID] = fifo
		q.order = append(q.order, item.BatchID)
	}
	fifo.PushBack(item)
	q.cond.Signal()
}

// Take blocks until an item is available or the queue is stopped, returning
// (item, true) or (nil, false) on stop-with-empty. Rotates the serving
// position by one batch after every successful take so concurrent batches
// are interleaved fairly.
func (q *Queue) Take() (*model.DownloadItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if len(q.order) == 0 {
			if q.stopping {
				return nil, false
			}
			q.cond.Wait()
			continue
		}

		if q.pos >= len(q.order) {
			q.pos = 0
		}
		batchID := q.order[q.pos]
		fifo := q.queues[batchID]
		front := fifo.Front()
		if front == nil {
			// Shouldn't normally happen (empty fifos are pruned on pop),
			// but guard defensively and drop the stale entry.
			q.removeBatchLocked(q.pos)
			continue
		}

		fifo.Remove(front)
		item := front.Value.(*model.DownloadItem)

		if fifo.Len() == 0 {
			q.removeBatchLocked(q.pos)
		} else {
			q.pos = (q.pos + 1) % len(q.order)
		}

		return item, true
	}
}

// removeBatchLocked deletes the batch at order index idx and keeps pos
// pointing at the next batch in rotation. Caller must hold q.mu.
func (q *Queue) removeBatchLocked(idx int) {
	batchID := q.order[idx]
	delete(q.queues, batchID)
	q.order = append(q.order[:idx], q.order[idx+1:]...)
	if len(q.order) == 0 {
		q.pos = 0
		return
	}
	q.pos = idx % len(q.order)
}

// Stop marks the queue as stopping and wakes every blocked Take. Already
// enqueued items already in flight may still be drained by Take before it
// starts returning (nil, false); once every FIFO empties, Take returns
// (nil, false) to all callers.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopping = true
	q.mu.Unlock()
	q.cond.Broadcast()
	logging.Scheduler().Debug("scheduler stopping")
}

// Len reports the number of items currently queued across all batches.
// Intended for diagnostics/tests, not for control flow.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, fifo := range q.queues {
		n += fifo.Len()
	}
	return n
}
