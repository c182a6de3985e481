package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Dispatcher struct {
	logger       *logrus.Logger
	subscribers  []Subscriber
	retryCount   int
	retryBackoff time.Duration
	inflight     sync.WaitGroup
}

func NewDispatcher(logger *logrus.Logger, subs []Subscriber) *Dispatcher {
	return &Dispatcher{
		logger:       logger,
		subscribers:  subs,
		retryCount:   3,
		retryBackoff: 150 * time.Millisecond,
	}
}

// Dispatch hands event to every subscriber on its own goroutine and returns
// immediately. The caller's cancellation does not cut deliveries short.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	ctx = context.WithoutCancel(ctx)
	for _, sub := range d.subscribers {
		s := sub
		d.inflight.Add(1)
		go func() {
			defer d.inflight.Done()
			d.dispatchOne(ctx, s, event)
		}()
	}
}

// Wait blocks until every delivery started so far has finished or given up.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) dispatchOne(ctx context.Context, sub Subscriber, event Event) {
	for attempt := 1; attempt <= d.retryCount; attempt++ {
		err := sub.Handle(ctx, event)
		if err == nil {
			return
		}

		d.logger.WithFields(logrus.Fields{
			"subscriber": sub.Name(),
			"event_id":   event.ID,
			"kind":       event.Kind,
			"attempt":    attempt,
		}).WithError(err).Warn("notification delivery failed")
		if attempt == d.retryCount {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.retryBackoff):
		}
	}
}
