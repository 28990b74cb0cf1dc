package server

import (
	"context"
	"testing"
	"time"

	"github.com/parteiportal/backend/internal/newsletter"
)

func TestProgressDispatcherDeliversToSubscribers(t *testing.T) {
	dispatcher := NewProgressDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "nl-1")
	defer cleanup()

	dispatcher.PublishProgress(newsletter.ProgressEvent{NewsletterID: "nl-1", Delivered: 2, Pending: 1})

	select {
	case event := <-stream:
		if event.Delivered != 2 || event.Pending != 1 {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a progress event")
	}
}

func TestProgressDispatcherScopesEventsPerNewsletter(t *testing.T) {
	dispatcher := NewProgressDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "nl-1")
	defer cleanup()

	dispatcher.PublishProgress(newsletter.ProgressEvent{NewsletterID: "nl-other", Delivered: 5})

	select {
	case event := <-stream:
		t.Fatalf("received event for another newsletter: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProgressDispatcherDropsEventsForSlowSubscribers(t *testing.T) {
	dispatcher := NewProgressDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "nl-1")
	defer cleanup()

	// Fill the buffer and keep publishing; the overflow must not block.
	for i := 0; i < 64; i++ {
		dispatcher.PublishProgress(newsletter.ProgressEvent{NewsletterID: "nl-1", Delivered: i})
	}

	received := 0
	for {
		select {
		case <-stream:
			received++
			continue
		default:
		}
		break
	}
	if received == 0 || received > 16 {
		t.Fatalf("expected up to one buffer of events, got %d", received)
	}
}

func TestProgressDispatcherCleanupStopsDelivery(t *testing.T) {
	dispatcher := NewProgressDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "nl-1")
	cleanup()

	dispatcher.PublishProgress(newsletter.ProgressEvent{NewsletterID: "nl-1", Delivered: 1})

	select {
	case event, ok := <-stream:
		if ok {
			t.Fatalf("received event after cleanup: %+v", event)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProgressDispatcherEmptyIDYieldsClosedStream(t *testing.T) {
	dispatcher := NewProgressDispatcher()

	stream, cleanup := dispatcher.Subscribe(context.Background(), "")
	defer cleanup()

	if _, ok := <-stream; ok {
		t.Fatalf("expected a closed stream for an empty newsletter id")
	}
}
