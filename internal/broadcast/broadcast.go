// Package broadcast fans the latest value of something out to subscribers.
package broadcast

import "sync"

// Broadcaster delivers values to subscribers without ever blocking the sender.
// Each subscriber holds at most one unread value; a newer value replaces it.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	next   int
	chs    map[int]chan T
	closed bool
}

// Subscribe returns a channel primed with initial and a func that ends the subscription.
// The channel is closed when the subscription ends or the Broadcaster is closed.
func (b *Broadcaster[T]) Subscribe(initial T) (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, 1)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	if b.chs == nil {
		b.chs = make(map[int]chan T)
	}
	ch <- initial
	id := b.next
	b.next++
	b.chs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.remove(id)
		})
	}
}

// Publish sends v to every subscriber.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.chs {
		select {
		case ch <- v:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Close ends every subscription. Later subscribers get a closed channel.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id := range b.chs {
		b.remove(id)
	}
}

func (b *Broadcaster[T]) remove(id int) {
	if ch, ok := b.chs[id]; ok {
		delete(b.chs, id)
		close(ch)
	}
}
