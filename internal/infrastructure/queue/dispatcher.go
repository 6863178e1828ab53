package queue

import (
	"context"
	"hash/fnv"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aditi-updates/session-agent/internal/api/metrics"
	"github.com/aditi-updates/session-agent/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 64
)

// Dispatcher routes visibility events to a fixed set of workers using
// consistent hashing on the tab id, guaranteeing per-tab event ordering.
// Ordering is what keeps the two-state machine honest: a tab's hidden and
// visible events must be applied in the order they happened.
type Dispatcher struct {
	workers   []chan ports.VisibilityEvent
	processor ports.VisibilityProcessor
	log       zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, processor ports.VisibilityProcessor, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:   make([]chan ports.VisibilityEvent, numWorkers),
		processor: processor,
		log:       log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.VisibilityEvent, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue sends an event to the worker responsible for its tab.
// The call is non-blocking up to channelBuffer capacity.
func (d *Dispatcher) Enqueue(event ports.VisibilityEvent) {
	i := d.shardIndex(event.TabID)
	d.workers[i] <- event
	metrics.QueueDepth.WithLabelValues(strconv.Itoa(i)).Set(float64(len(d.workers[i])))
}

// shardIndex maps a tab id deterministically to a worker index.
func (d *Dispatcher) shardIndex(tabID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tabID))
	return int(h.Sum32()) % len(d.workers)
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.VisibilityEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := d.processor.Apply(ctx, event); err != nil {
				d.log.Error().Err(err).
					Str("tab_id", event.TabID).
					Int("worker_id", id).
					Msg("visibility event processing failed")
			}
			metrics.QueueDepth.WithLabelValues(strconv.Itoa(id)).Set(float64(len(ch)))
		}
	}
}
