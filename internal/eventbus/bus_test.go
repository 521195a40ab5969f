package eventbus

import "testing"

func TestPublishFanOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubC()

	b.Publish(Event{Type: ContentRegistered, Data: ContentEvent{Code: "91"}})
	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != ContentRegistered || e.Time.IsZero() {
			t.Fatalf("event = %+v", e)
		}
		if ce, ok := e.Data.(ContentEvent); !ok || ce.Code != "91" {
			t.Fatalf("data = %#v", e.Data)
		}
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatalf("channel open after unsubscribe")
	}
	b.Publish(Event{Type: ContestStarted})
	b.Publish(Event{Type: ContestFinished}) // buffer of c is full now
	if b.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", b.Dropped())
	}
}
