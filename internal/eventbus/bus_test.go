package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()

	b := New()
	ch1, unsub1 := b.Subscribe(2)
	ch2, unsub2 := b.Subscribe(2)
	defer unsub1()
	defer unsub2()

	b.Publish(Event{Type: TypeJobCompleted})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != TypeJobCompleted {
				t.Fatalf("sub %d: type = %s", i, ev.Type)
			}
			if ev.Time.IsZero() {
				t.Fatalf("sub %d: timestamp not filled", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("sub %d: no event", i)
		}
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: TypeJobStarted})
	b.Publish(Event{Type: TypeJobCompleted}) // buffer full, dropped

	if ev := <-ch; ev.Type != TypeJobStarted {
		t.Fatalf("first event = %s", ev.Type)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected second event %s", ev.Type)
	default:
	}
}

func TestPublishAfterUnsubscribe(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe(1)
	unsub()
	unsub() // double-unsub is safe
	b.Publish(Event{Type: TypeJobFailed})
}
