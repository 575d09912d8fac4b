package circular

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuffer_PushGet(t *testing.T) {
	b := NewBuffer[int](5)
	for i := 0; i < 9; i++ {
		b.Push(i)
	}

	c := NewBuffer[int](8)
	c.Push(0)
	c.Push(1)

	tests := []struct {
		name     string
		result   int
		expected int
	}{
		{"b.Get(0) == 8", b.Get(0), 8},
		{"b.Get(1) == 7", b.Get(1), 7},
		{"b.Get(4) == 4", b.Get(4), 4},
		{"b.First() == 8", b.First(), 8},
		{"b.Last() == 4", b.Last(), 4},
		{"c.Get(0) == 1", c.Get(0), 1},
		{"c.Get(1) == 0", c.Get(1), 0},
		{"c.Last() == 0", c.Last(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result)
		})
	}
}

func TestBuffer_Data(t *testing.T) {
	b := NewBuffer[int](5)
	assert.Empty(t, b.Data())
	assert.True(t, b.IsEmpty())

	for i := 0; i < 3; i++ {
		b.Push(i)
	}
	assert.Equal(t, []int{0, 1, 2}, b.Data())
	assert.False(t, b.IsFull())

	for i := 3; i < 9; i++ {
		b.Push(i)
	}
	assert.Equal(t, []int{4, 5, 6, 7, 8}, b.Data())
	assert.True(t, b.IsFull())
	assert.Equal(t, uint(5), b.Size())
}

func TestBuffer_GetOutOfRange(t *testing.T) {
	b := NewBuffer[int](2)
	b.Push(1)
	assert.Panics(t, func() { b.Get(1) })
	assert.Panics(t, func() { NewBuffer[int](0) })
}
