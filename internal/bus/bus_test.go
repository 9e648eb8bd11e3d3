package bus

import (
	"testing"
	"time"
)

func drain(sub *Subscriber) []Event {
	var out []Event
	for {
		select {
		case ev := <-sub.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPublishFanOut(t *testing.T) {
	b := New(10, nil)
	a := b.Subscribe("a")
	c := b.Subscribe("c")

	b.Publish(KindAlert, "payload")

	for _, sub := range []*Subscriber{a, c} {
		evs := drain(sub)
		if len(evs) != 1 {
			t.Fatalf("%s got %d events, want 1", sub.Name(), len(evs))
		}
		if evs[0].Kind != KindAlert || evs[0].Data != "payload" {
			t.Errorf("%s event = %+v", sub.Name(), evs[0])
		}
		if evs[0].Time.IsZero() {
			t.Errorf("%s event has zero time", sub.Name())
		}
	}
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	b := New(3, nil)
	sub := b.Subscribe("slow")

	for i := 0; i < 5; i++ {
		b.Publish(KindStatsUpdate, i)
	}

	evs := drain(sub)
	if len(evs) != 3 {
		t.Fatalf("got %d events, want 3", len(evs))
	}
	// The oldest two were evicted; order is preserved.
	for i, ev := range evs {
		if ev.Data != i+2 {
			t.Errorf("event %d data = %v, want %d", i, ev.Data, i+2)
		}
	}
	if sub.Dropped() != 2 {
		t.Errorf("Dropped = %d, want 2", sub.Dropped())
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New(1, nil)
	b.Subscribe("ignored") // nobody reads

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(KindUpdateAircraft, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestSubscriberClose(t *testing.T) {
	b := New(10, nil)
	sub := b.Subscribe("a")
	if b.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount = %d", b.SubscriberCount())
	}

	sub.Close()
	sub.Close() // idempotent
	if b.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d after close", b.SubscriberCount())
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("channel still open after Close")
	}

	// Publishing to a bus with no subscribers is fine.
	b.Publish(KindAlert, nil)
}

func TestDuplicateSubscriberNames(t *testing.T) {
	b := New(10, nil)
	a1 := b.Subscribe("gui")
	a2 := b.Subscribe("gui")
	if a1.Name() == a2.Name() {
		t.Errorf("duplicate names not disambiguated: %q", a2.Name())
	}
}

func TestBatcherFlushBySize(t *testing.T) {
	batcher := NewBatcher(time.Hour, 3)
	for i := 0; i < 2; i++ {
		if got := batcher.Add(Event{Kind: KindATCTransmission, Data: i}); got != nil {
			t.Fatalf("batch released early at %d", i)
		}
	}
	got := batcher.Add(Event{Kind: KindATCTransmission, Data: 2})
	if len(got) != 3 {
		t.Fatalf("batch = %d events, want 3", len(got))
	}
	if batcher.Pending() != 0 {
		t.Errorf("Pending = %d after flush", batcher.Pending())
	}
}

func TestBatcherFlushByInterval(t *testing.T) {
	batcher := NewBatcher(10*time.Millisecond, 100)
	if got := batcher.Add(Event{Data: 0}); got != nil {
		t.Fatal("batch released before interval")
	}
	if got := batcher.Flush(); got != nil {
		t.Fatal("Flush released before interval")
	}

	time.Sleep(15 * time.Millisecond)
	got := batcher.Flush()
	if len(got) != 1 {
		t.Fatalf("batch = %d events, want 1", len(got))
	}
	// Nothing pending, nothing released.
	time.Sleep(15 * time.Millisecond)
	if got := batcher.Flush(); got != nil {
		t.Error("Flush released an empty batch")
	}
}
