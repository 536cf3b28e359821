package frontdesk

import "sync"

type valueSub[T any] struct {
	id int
	fn func(T)
}

// Value is a goroutine-safe value that notifies subscribers when it changes.
type Value[T comparable] struct {
	mu     sync.Mutex
	v      T
	nextID int
	subs   []valueSub[T]
}

// NewValue returns a Value holding v.
func NewValue[T comparable](v T) *Value[T] {
	return &Value[T]{v: v}
}

// Get returns the current value.
func (o *Value[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.v
}

// Set stores v and notifies subscribers if it differs from the current value.
// Subscribers run on the caller's goroutine, outside the lock.
func (o *Value[T]) Set(v T) {
	o.mu.Lock()
	if o.v == v {
		o.mu.Unlock()
		return
	}
	o.v = v
	subs := append([]valueSub[T](nil), o.subs...)
	o.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Subscribe registers fn for future changes and returns a function that
// removes it. The returned function is safe to call more than once.
func (o *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs = append(o.subs, valueSub[T]{id: id, fn: fn})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, s := range o.subs {
				if s.id == id {
					o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
					return
				}
			}
		})
	}
}
