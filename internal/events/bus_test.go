package events

import "testing"

func TestPublishReachesSubscribers(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventSignal, 4)
	defer unsub()

	bus.Publish(EventSignal, "payload")
	bus.Publish(EventCandleClosed, "other topic")

	select {
	case got := <-ch:
		if got != "payload" {
			t.Fatalf("payload: %v", got)
		}
	default:
		t.Fatal("nothing delivered")
	}
	select {
	case got := <-ch:
		t.Fatalf("cross-topic delivery: %v", got)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventSignal, 1)
	unsub()

	bus.Publish(EventSignal, "late")
	select {
	case got, ok := <-ch:
		if ok {
			t.Fatalf("delivered after unsubscribe: %v", got)
		}
	default:
	}
}

func TestFullSubscriberCountsDrops(t *testing.T) {
	bus := NewBus()
	_, unsub := bus.Subscribe(EventSignal, 1)
	defer unsub()

	bus.Publish(EventSignal, 1)
	bus.Publish(EventSignal, 2) // buffer full, must not block

	if got := bus.Dropped(); got != 1 {
		t.Fatalf("dropped: %d", got)
	}
	if got := bus.DroppedFor(EventSignal); got != 1 {
		t.Fatalf("dropped for topic: %d", got)
	}
	if got := bus.DroppedFor(EventCandleClosed); got != 0 {
		t.Fatalf("drops leaked across topics: %d", got)
	}
}

func TestUnsubscribeTwiceIsSafe(t *testing.T) {
	bus := NewBus()
	_, unsub := bus.Subscribe(EventSignal, 1)
	unsub()
	unsub() // second close would panic without the id guard

	bus.Publish(EventSignal, "x")
}
