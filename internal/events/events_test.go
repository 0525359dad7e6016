package events

import (
	"sync"
	"testing"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	t.Parallel()

	bus := New()
	var order []string
	bus.Subscribe("topic", func(any) { order = append(order, "first") })
	bus.Subscribe("topic", func(any) { order = append(order, "second") })

	bus.Publish("topic", struct{}{})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("delivery order = %v, want [first second]", order)
	}
}

func TestPublishOrderWithinTopic(t *testing.T) {
	t.Parallel()

	bus := New()
	var got []int
	bus.Subscribe("topic", func(payload any) { got = append(got, payload.(int)) })

	for i := 0; i < 10; i++ {
		bus.Publish("topic", i)
	}

	for i, v := range got {
		if v != i {
			t.Fatalf("delivery order = %v, want ascending", got)
		}
	}
	if len(got) != 10 {
		t.Fatalf("delivered %d payloads, want 10", len(got))
	}
}

func TestPublishWithoutSubscribersDropsPayload(t *testing.T) {
	t.Parallel()

	bus := New()
	// Must not panic or block.
	bus.Publish("nobody-home", "dropped")
}

func TestTopicsAreIndependent(t *testing.T) {
	t.Parallel()

	bus := New()
	var a, b int
	bus.Subscribe("a", func(any) { a++ })
	bus.Subscribe("b", func(any) { b++ })

	bus.Publish("a", nil)
	bus.Publish("a", nil)
	bus.Publish("b", nil)

	if a != 2 || b != 1 {
		t.Fatalf("a=%d b=%d, want a=2 b=1", a, b)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	bus := New()
	var calls int
	sub := bus.Subscribe("topic", func(any) { calls++ })

	bus.Publish("topic", nil)
	sub.Unsubscribe()
	bus.Publish("topic", nil)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()

	bus := New()
	sub := bus.Subscribe("topic", func(any) {})
	other := bus.Subscribe("topic", func(any) {})

	sub.Unsubscribe()
	sub.Unsubscribe()
	other.Unsubscribe()

	// All handlers released; publish is a drop.
	bus.Publish("topic", nil)
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	t.Parallel()

	bus := New()
	var mu sync.Mutex
	received := 0
	sub := bus.Subscribe("topic", func(any) {
		mu.Lock()
		received++
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish("topic", j)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if received != 8*50 {
		t.Fatalf("received = %d, want %d", received, 8*50)
	}
}
