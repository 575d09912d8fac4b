package circular

// Buffer keeps the most recent values up to a fixed capacity.
type Buffer[T any] struct {
	head uint
	size uint
	data []T
}

func NewBuffer[T any](capacity uint) *Buffer[T] {
	if capacity == 0 {
		panic("capacity must > 0")
	}
	return &Buffer[T]{data: make([]T, capacity)}
}

func (b *Buffer[T]) Capacity() uint { return uint(len(b.data)) }
func (b *Buffer[T]) Size() uint     { return b.size }
func (b *Buffer[T]) IsEmpty() bool  { return b.size == 0 }
func (b *Buffer[T]) IsFull() bool   { return b.size == b.Capacity() }

// Push stores value, evicting the oldest one when the buffer is full.
func (b *Buffer[T]) Push(value T) {
	b.data[b.head] = value
	b.head = (b.head + 1) % b.Capacity()
	if b.size < b.Capacity() {
		b.size++
	}
}

// Get returns the value pushed idx pushes ago, Get(0) being the newest.
func (b *Buffer[T]) Get(idx uint) T {
	if idx >= b.size {
		panic("index out of range")
	}
	c := b.Capacity()
	return b.data[(b.head+c-1-idx)%c]
}

func (b *Buffer[T]) First() T { return b.Get(0) }
func (b *Buffer[T]) Last() T  { return b.Get(b.size - 1) }

// Data copies the values out, oldest first.
func (b *Buffer[T]) Data() []T {
	out := make([]T, 0, b.size)
	for i := b.size; i > 0; i-- {
		out = append(out, b.Get(i-1))
	}
	return out
}
