// Package event holds a small synchronous observer registry. Publish calls
// every registered observer in registration order on the publishing goroutine.
package event

import "sync"

type Observers[T any] struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(T)
	ids  []int
}

// Subscribe registers fn and returns a func which removes it again.
func (o *Observers[T]) Subscribe(fn func(T)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subs == nil {
		o.subs = make(map[int]func(T))
	}
	id := o.next
	o.next++
	o.subs[id] = fn
	o.ids = append(o.ids, id)
	var once sync.Once
	return func() {
		once.Do(func() { o.remove(id) })
	}
}

func (o *Observers[T]) remove(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.subs, id)
	for i, v := range o.ids {
		if v == id {
			o.ids = append(o.ids[:i], o.ids[i+1:]...)
			break
		}
	}
}

// Publish delivers ev to all current observers. Observers may unsubscribe
// from within their callback.
func (o *Observers[T]) Publish(ev T) {
	o.mu.RLock()
	fns := make([]func(T), 0, len(o.ids))
	for _, id := range o.ids {
		fns = append(fns, o.subs[id])
	}
	o.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (o *Observers[T]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.ids)
}
