package machine

import "sync"

// broadcaster keeps the latest snapshot of a machine and fans it out to
// subscribers. Each subscriber holds at most one pending snapshot; a newer one
// replaces it, so slow readers always see the most recent state.
type broadcaster[T any] struct {
	mu     sync.RWMutex
	latest T
	subs   map[int]chan T
	nextID int
	closed bool
}

func newBroadcaster[T any](initial T) *broadcaster[T] {
	return &broadcaster[T]{
		latest: initial,
		subs:   make(map[int]chan T),
	}
}

// publish must only be called from the owning machine's goroutine.
func (b *broadcaster[T]) publish(snap T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.latest = snap
	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (b *broadcaster[T]) current() T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest
}

func (b *broadcaster[T]) subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, 1)
	if b.closed {
		ch <- b.latest
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	ch <- b.latest

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *broadcaster[T]) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
