package main

import (
	"context"
	"sync"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

// dispatcher fans discovered documents out to a bounded number of
// goroutines. The subscription callback must return quickly so the next
// message can be delivered; blocking it on processing would serialize the
// whole pool behind one document.
type dispatcher struct {
	pool     chan struct{}
	inFlight sync.WaitGroup
	process  func(context.Context, domain.DocumentIdentity)
}

func newDispatcher(size int, process func(context.Context, domain.DocumentIdentity)) *dispatcher {
	if size <= 0 {
		size = 1
	}
	return &dispatcher{
		pool:    make(chan struct{}, size),
		process: process,
	}
}

// handle blocks only while the pool is full, then hands the document to a
// worker goroutine and returns.
func (d *dispatcher) handle(ctx context.Context, id domain.DocumentIdentity) error {
	select {
	case d.pool <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.inFlight.Add(1)
	go func() {
		defer d.inFlight.Done()
		defer func() { <-d.pool }()
		d.process(ctx, id)
	}()
	return nil
}

// wait blocks until every handed-off document has finished.
func (d *dispatcher) wait() {
	d.inFlight.Wait()
}
