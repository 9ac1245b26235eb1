package events

import (
	"testing"
	"time"

	"github.com/mentora-labs/mentora/internal/domain"
)

func TestSeverityFor(t *testing.T) {
	cases := []struct {
		status domain.TaskStatus
		want   Severity
	}{
		{domain.StatusCompleted, SeverityInfo},
		{domain.StatusCanceled, SeverityInfo},
		{domain.StatusTimedOut, SeverityWarning},
		{domain.StatusFailed, SeverityError},
	}

	for _, tc := range cases {
		if got := SeverityFor(tc.status); got != tc.want {
			t.Errorf("Expected %s for %s, got %s", tc.want, tc.status, got)
		}
	}
}

func TestPublishFansOut(t *testing.T) {
	hub := NewHub(nil)
	id1, ch1 := hub.Subscribe()
	id2, ch2 := hub.Subscribe()
	defer hub.Unsubscribe(id1)
	defer hub.Unsubscribe(id2)

	hub.Publish(Outcome{TaskID: "t-1", Status: domain.StatusCompleted})

	for i, ch := range []<-chan Outcome{ch1, ch2} {
		select {
		case o := <-ch:
			if o.TaskID != "t-1" {
				t.Errorf("Expected task t-1 on subscriber %d, got %q", i, o.TaskID)
			}
			if o.Timestamp.IsZero() {
				t.Error("Expected publish to stamp the outcome")
			}
		case <-time.After(time.Second):
			t.Fatalf("Expected subscriber %d to receive the outcome", i)
		}
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	hub := NewHub(nil)
	id, ch := hub.Subscribe()
	defer hub.Unsubscribe(id)

	// Overfill the subscriber buffer; Publish must return regardless.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish(Outcome{TaskID: "flood", Status: domain.StatusCompleted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected publish to drop events rather than block")
	}

	// The buffered events are still readable.
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Expected buffered events to be delivered")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(nil)
	id, ch := hub.Subscribe()

	hub.Unsubscribe(id)

	if _, open := <-ch; open {
		t.Error("Expected channel closed after unsubscribe")
	}

	// Unsubscribing twice is harmless.
	hub.Unsubscribe(id)

	// Publishing after unsubscribe reaches nobody and does not panic.
	hub.Publish(Outcome{TaskID: "t-2", Status: domain.StatusFailed})
}
