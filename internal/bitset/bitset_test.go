package bitset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddContainsRemove(t *testing.T) {
	s := New(8)
	assert.False(t, s.Contains(3))

	s.Add(3)
	assert.True(t, s.Contains(3))
	assert.Equal(t, 1, s.Len())

	s.Remove(3)
	assert.False(t, s.Contains(3))
	assert.Equal(t, 0, s.Len())
}

func TestAddIdempotent(t *testing.T) {
	s := New(0)
	s.Add(5)
	s.Add(5)
	assert.Equal(t, 1, s.Len())
}

func TestGrowsPastInitialCapacity(t *testing.T) {
	s := New(4)
	s.Add(1000)
	assert.True(t, s.Contains(1000))
	assert.Equal(t, 1, s.Len())
}

func TestClear(t *testing.T) {
	s := New(8)
	s.Add(1)
	s.Add(2)
	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Contains(1))
	assert.False(t, s.Contains(2))
}

func TestEachAscending(t *testing.T) {
	s := New(0)
	for _, id := range []uint64{200, 1, 64, 63, 65} {
		s.Add(id)
	}
	var got []uint64
	s.Each(func(id uint64) { got = append(got, id) })
	assert.Equal(t, []uint64{1, 63, 64, 65, 200}, got)
}

func TestRemoveUnknownIsNoOp(t *testing.T) {
	s := New(4)
	s.Remove(999)
	assert.Equal(t, 0, s.Len())
}
