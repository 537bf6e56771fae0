package interp

import "sync"

// Lockable pairs a value with the lock that guards it.
type Lockable[T any] struct {
	mu    sync.Mutex
	value T
}

// NewLockable wraps value with a fresh lock.
func NewLockable[T any](value T) *Lockable[T] {
	return &Lockable[T]{value: value}
}

// With runs fn with the lock held.
func (l *Lockable[T]) With(fn func(v *T)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.value)
}

// Get returns a copy of the value read under the lock.
func (l *Lockable[T]) Get() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// Set replaces the value under the lock.
func (l *Lockable[T]) Set(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = v
}
