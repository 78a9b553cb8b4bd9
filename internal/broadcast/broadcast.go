// Package broadcast fans immutable snapshots out to any number of subscribers.
//
// Each subscriber channel holds at most one value. A subscriber that falls
// behind only ever sees the newest snapshot, never a backlog.
package broadcast

import "sync"

// Broadcaster publishes values of type T. The zero value is ready to use.
type Broadcaster[T any] struct {
	mu      sync.Mutex
	subs    map[int]chan T
	nextID  int
	last    T
	hasLast bool
	closed  bool
}

// Subscribe returns a channel receiving every subsequent value (coalesced) and
// an idempotent cancel func that closes it. If a value was already published
// the channel starts with it.
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, 1)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	if b.subs == nil {
		b.subs = make(map[int]chan T)
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.hasLast {
		ch <- b.last
	}

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

// Publish hands v to every subscriber without blocking.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.last = v
	b.hasLast = true
	for _, ch := range b.subs {
		// Only Publish sends, and it holds the lock, so after draining the
		// stale value the send below cannot block.
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// Latest returns the most recently published value.
func (b *Broadcaster[T]) Latest() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.hasLast
}

// Close closes every subscriber channel; later Publish calls are dropped.
func (b *Broadcaster[T]) Close() {
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
