package server

import (
	"context"
	"sync"

	"github.com/parteiportal/backend/internal/newsletter"
)

// ProgressDispatcher fans newsletter chunk outcomes out to the admin sessions
// watching a send run. It implements newsletter.ProgressPublisher.
type ProgressDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*progressSubscriber
	nextID      int64
	bufferSize  int
}

type progressSubscriber struct {
	id     int64
	stream chan newsletter.ProgressEvent
}

func NewProgressDispatcher() *ProgressDispatcher {
	return &ProgressDispatcher{
		subscribers: make(map[string]map[int64]*progressSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a listener for one newsletter's send run. Delivery
// stops when the context ends or the returned cleanup runs.
func (d *ProgressDispatcher) Subscribe(ctx context.Context, newsletterID string) (<-chan newsletter.ProgressEvent, func()) {
	if newsletterID == "" {
		ch := make(chan newsletter.ProgressEvent)
		close(ch)
		return ch, func() {}
	}
	subscriber := &progressSubscriber{
		id:     d.nextSequence(),
		stream: make(chan newsletter.ProgressEvent, d.bufferSize),
	}
	d.registerSubscriber(newsletterID, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(newsletterID, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// PublishProgress delivers an event to every live subscriber of the
// newsletter. Slow subscribers drop events instead of blocking the send loop.
func (d *ProgressDispatcher) PublishProgress(event newsletter.ProgressEvent) {
	if event.NewsletterID == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[event.NewsletterID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*progressSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

func (d *ProgressDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *ProgressDispatcher) registerSubscriber(newsletterID string, subscriber *progressSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[newsletterID]; !ok {
		d.subscribers[newsletterID] = make(map[int64]*progressSubscriber)
	}
	d.subscribers[newsletterID][subscriber.id] = subscriber
}

func (d *ProgressDispatcher) unregisterSubscriber(newsletterID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[newsletterID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, newsletterID)
		}
	}
	d.mu.Unlock()
}
