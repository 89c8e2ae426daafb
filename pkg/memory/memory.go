// Package memory keeps a bounded, most-recent-last history of values.
package memory

import "sync"

type Memory[T any] struct {
	stream   []T
	capacity int
	mu       sync.RWMutex
}

// NewMemory returns a memory that keeps the last capacity values. A capacity below one
// keeps a single value.
func NewMemory[T any](capacity int) *Memory[T] {
	capacity = max(capacity, 1)
	return &Memory[T]{
		stream:   make([]T, 0, capacity),
		capacity: capacity,
	}
}

// All returns a copy of the stored values, oldest first.
func (m *Memory[T]) All() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]T, len(m.stream))
	copy(out, m.stream)
	return out
}

// Store appends v, evicting the oldest value when full.
func (m *Memory[T]) Store(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.stream) == m.capacity {
		copy(m.stream, m.stream[1:])
		m.stream = m.stream[:len(m.stream)-1]
	}
	m.stream = append(m.stream, v)
}

func (m *Memory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stream)
}

// Last returns the newest value.
func (m *Memory[T]) Last() (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var zero T
	if len(m.stream) == 0 {
		return zero, false
	}
	return m.stream[len(m.stream)-1], true
}

// Mean averages the stored values; zero when empty.
func Mean(m *Memory[float64]) float64 {
	values := m.All()
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
