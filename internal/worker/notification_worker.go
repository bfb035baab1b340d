package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/requisition-service/internal/events"
)

// Deliverer hands one trigger to the notification subsystem.
type Deliverer interface {
	Deliver(ctx context.Context, event events.Event) error
}

// ErrQueueFull is returned when a trigger cannot be buffered.
var ErrQueueFull = errors.New("notification queue full")

// NotificationWorker moves notification delivery off the request path. Events
// are buffered and delivered in order by a single goroutine.
type NotificationWorker struct {
	deliverer Deliverer
	logger    *zap.Logger
	queue     chan events.Event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewNotificationWorker builds a worker with the given buffer size.
func NewNotificationWorker(deliverer Deliverer, logger *zap.Logger, buffer int) *NotificationWorker {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		deliverer: deliverer,
		logger:    logger,
		queue:     make(chan events.Event, buffer),
		done:      make(chan struct{}),
	}
}

// Subscribe registers the worker for every requisition trigger.
func (w *NotificationWorker) Subscribe(dispatcher events.Dispatcher) {
	for _, t := range []events.EventType{
		events.EventRequisitionSubmitted,
		events.EventRequisitionApproved,
		events.EventRequisitionRejected,
		events.EventRequisitionPaid,
	} {
		dispatcher.Subscribe(t, w.Enqueue)
	}
}

// Enqueue buffers event without blocking the caller.
func (w *NotificationWorker) Enqueue(_ context.Context, event events.Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrQueueFull
	}
	select {
	case w.queue <- event:
		return nil
	default:
		w.logger.Warn("dropping notification trigger",
			zap.String("requisition_id", event.RequisitionID),
			zap.String("event_type", string(event.Type)))
		return ErrQueueFull
	}
}

// Start delivers queued events until Stop is called. Remaining events are drained first.
func (w *NotificationWorker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		for event := range w.queue {
			if err := w.deliverer.Deliver(ctx, event); err != nil {
				w.logger.Warn("notification delivery failed",
					zap.String("requisition_id", event.RequisitionID),
					zap.String("event_type", string(event.Type)),
					zap.Error(err))
			}
		}
	}()
}

// Stop closes the queue and waits for the drain to finish or ctx to expire.
func (w *NotificationWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
