package libscan

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"

	"github.com/repscan/repscan"
)

var (
	enqueuedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repscan",
			Subsystem: "dispatcher",
			Name:      "enqueued_total",
			Help:      "Total number of scan items accepted per tier.",
		},
		[]string{"tier"},
	)
	busyCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "repscan",
			Subsystem: "dispatcher",
			Name:      "busy_total",
			Help:      "Total number of scan items rejected at the queue depth bound.",
		},
	)
)

// Queued is one intake list node. The list holds items, not the other way
// around, so a dequeued item's lifetime is entirely the garbage
// collector's problem.
type queued struct {
	item *scanItem
	next *queued
}

// Intake is a Treiber stack: multiple producers push, a drain empties the
// whole list with one swap.
type intake struct {
	head atomic.Pointer[queued]
}

// Push adds the item and reports whether the list was empty beforehand;
// an empty-list push is the only event that schedules a drain.
func (q *intake) push(it *scanItem) (wasEmpty bool) {
	n := &queued{item: it}
	for {
		old := q.head.Load()
		n.next = old
		if q.head.CompareAndSwap(old, n) {
			return old == nil
		}
	}
}

// Take atomically claims the entire current list. Items pushed afterward
// belong to the next drain.
func (q *intake) take() *queued {
	return q.head.Swap(nil)
}

// Dispatcher drains two intake tiers through bounded goroutine pools.
//
// Pushing onto a non-empty tier is a pure O(1) append; the drain already
// scheduled (or running) picks the item up. The priority tier has its own
// semaphore so interactive work never queues behind bulk scanning — the
// closest the runtime offers to the reduced worker priority of a native
// thread pool.
type dispatcher struct {
	normal   intake
	priority intake

	normalSem   *semaphore.Weighted
	prioritySem *semaphore.Weighted

	depth    atomic.Int64
	maxDepth int64

	run func(context.Context, *scanItem)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newDispatcher(workers, maxDepth int64, run func(context.Context, *scanItem)) *dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &dispatcher{
		normalSem:   semaphore.NewWeighted(workers),
		prioritySem: semaphore.NewWeighted(workers),
		maxDepth:    maxDepth,
		run:         run,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (d *dispatcher) enqueue(it *scanItem, priority bool) error {
	if d.depth.Add(1) > d.maxDepth {
		d.depth.Add(-1)
		busyCounter.Inc()
		return repscan.ErrBusy
	}
	tier, sem, label := &d.normal, d.normalSem, "normal"
	if priority {
		tier, sem, label = &d.priority, d.prioritySem, "priority"
	}
	enqueuedCounter.WithLabelValues(label).Inc()
	if tier.push(it) {
		d.wg.Add(1)
		go d.drain(tier, sem)
	}
	return nil
}

// Drain claims whatever the tier holds and processes it, most recently
// pushed item first. Strict FIFO across a batch is deliberately not a
// goal; O(1) enqueue scheduling is.
func (d *dispatcher) drain(tier *intake, sem *semaphore.Weighted) {
	defer d.wg.Done()
	if err := sem.Acquire(d.ctx, 1); err != nil {
		// Shutting down; anything left in the tier is dropped on the
		// floor along with the dispatcher itself.
		return
	}
	defer sem.Release(1)
	for n := tier.take(); n != nil; n = n.next {
		d.depth.Add(-1)
		// Items run under their enqueue-time context, so caller metadata
		// and cancellation reach the worker; shutdown cancels through the
		// dispatcher context.
		ctx, cancel := context.WithCancel(n.item.ctx)
		stop := context.AfterFunc(d.ctx, cancel)
		d.run(ctx, n.item)
		stop()
		cancel()
	}
}

// Shutdown stops accepting drains and waits for in-flight ones.
func (d *dispatcher) shutdown() {
	d.cancel()
	d.wg.Wait()
}
