package machine

import "testing"

func TestBroadcasterKeepsLatest(t *testing.T) {
	b := newBroadcaster(0)

	sub, unsubscribe := b.subscribe()
	defer unsubscribe()

	if got := <-sub; got != 0 {
		t.Errorf("Expected initial value 0, got %d", got)
	}

	b.publish(1)
	b.publish(2)
	b.publish(3)

	if got := <-sub; got != 3 {
		t.Errorf("Expected latest value 3, got %d", got)
	}
	if got := b.current(); got != 3 {
		t.Errorf("Expected current value 3, got %d", got)
	}
}

func TestBroadcasterClose(t *testing.T) {
	b := newBroadcaster("idle")
	sub, _ := b.subscribe()
	<-sub

	b.close()
	b.publish("ignored")

	if _, ok := <-sub; ok {
		t.Error("Expected subscriber channel to be closed")
	}
	if got := b.current(); got != "idle" {
		t.Errorf("Expected current value to stay idle, got %s", got)
	}

	late, _ := b.subscribe()
	if got := <-late; got != "idle" {
		t.Errorf("Expected late subscriber to get last value, got %s", got)
	}
	if _, ok := <-late; ok {
		t.Error("Expected late subscriber channel to be closed")
	}
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := newBroadcaster(0)
	sub, unsubscribe := b.subscribe()
	<-sub

	unsubscribe()
	unsubscribe()
	b.publish(1)

	if _, ok := <-sub; ok {
		t.Error("Expected channel to be closed after unsubscribe")
	}
}
