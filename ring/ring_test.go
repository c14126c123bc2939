package ring_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pipelined/host/ring"
)

func TestCapacity(t *testing.T) {
	var tests = []struct {
		requested int
		expected  int
	}{
		{requested: 1, expected: 0},
		{requested: 2, expected: 1},
		{requested: 3, expected: 3},
		{requested: 100, expected: 127},
		{requested: 256, expected: 255},
		{requested: 257, expected: 511},
		{requested: 0, expected: ring.DefaultCapacity - 1},
		{requested: -5, expected: ring.DefaultCapacity - 1},
	}
	for _, test := range tests {
		b := ring.New[int](test.requested)
		assert.Equal(t, test.expected, b.Cap(), "requested %d", test.requested)

		for i := 0; i < test.expected; i++ {
			assert.True(t, b.Push(i), "push %d of %d", i, test.expected)
		}
		assert.False(t, b.Push(-1), "push over capacity %d", test.expected)
		assert.Equal(t, test.expected, b.Len())
	}
}

func TestPopAllOrder(t *testing.T) {
	b := ring.New[int](8)
	for i := 0; i < b.Cap(); i++ {
		b.Push(i)
	}
	dst := make([]int, 16)
	n := b.PopAll(dst)
	assert.Equal(t, 7, n)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, dst[:n])
	assert.True(t, b.Empty())

	// wrap around
	for i := 10; i < 15; i++ {
		assert.True(t, b.Push(i))
	}
	n = b.PopAll(dst[:3])
	assert.Equal(t, []int{10, 11, 12}, dst[:n])
	n = b.PopAll(dst)
	assert.Equal(t, []int{13, 14}, dst[:n])
	assert.Equal(t, 0, b.PopAll(dst))
	assert.Equal(t, 0, b.PopAll(nil))
}

func TestPop(t *testing.T) {
	b := ring.New[string](4)
	_, ok := b.Pop()
	assert.False(t, ok)

	b.Push("a")
	b.Push("b")
	v, ok := b.Pop()
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	v, ok = b.Pop()
	assert.True(t, ok)
	assert.Equal(t, "b", v)
	_, ok = b.Pop()
	assert.False(t, ok)
}

func TestConcurrentOrder(t *testing.T) {
	const total = 100000
	b := ring.New[int](64)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if b.Push(i) {
				i++
			}
		}
	}()

	received := make([]int, 0, total)
	dst := make([]int, 16)
	for len(received) < total {
		n := b.PopAll(dst)
		received = append(received, dst[:n]...)
	}
	wg.Wait()

	for i, v := range received {
		if v != i {
			t.Fatalf("out of order at %d: got %d", i, v)
		}
	}
}

func BenchmarkPushPopAll(b *testing.B) {
	r := ring.New[int](256)
	dst := make([]int, 256)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for j := 0; j < 64; j++ {
			r.Push(j)
		}
		r.PopAll(dst)
	}
}
