package pagemap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

type dummy struct{ x int }

func TestMapGetSet(t *testing.T) {
	m := &Map{}

	assert.Nil(t, m.Get(1))

	d1 := &dummy{100}
	d2 := &dummy{200}
	m.Set(1, unsafe.Pointer(d1))
	m.Set(2, unsafe.Pointer(d2))

	assert.Equal(t, unsafe.Pointer(d1), m.Get(1))
	assert.Equal(t, unsafe.Pointer(d2), m.Get(2))
	assert.Nil(t, m.Get(3))
	assert.Equal(t, 2, m.Len())
}

func TestMapZeroKey(t *testing.T) {
	m := &Map{}
	d := &dummy{7}
	m.Set(0, unsafe.Pointer(d))
	assert.Equal(t, unsafe.Pointer(d), m.Get(0))
}

func TestMapOverwrite(t *testing.T) {
	m := &Map{}
	d1 := &dummy{1}
	d2 := &dummy{2}
	m.Set(5, unsafe.Pointer(d1))
	m.Set(5, unsafe.Pointer(d2))
	assert.Equal(t, unsafe.Pointer(d2), m.Get(5))
	assert.Equal(t, 1, m.Len())
}

func TestMapDelete(t *testing.T) {
	m := &Map{}
	for i := uint64(0); i < 50; i++ {
		m.Set(i, unsafe.Pointer(&dummy{int(i)}))
	}
	m.Delete(10)
	assert.Nil(t, m.Get(10))
	assert.Equal(t, 49, m.Len())

	for i := uint64(0); i < 50; i++ {
		if i == 10 {
			continue
		}
		assert.NotNil(t, m.Get(i))
	}
}

func TestMapGrowth(t *testing.T) {
	m := &Map{}
	const n = 10000
	for i := uint64(0); i < n; i++ {
		m.Set(i, unsafe.Pointer(&dummy{int(i)}))
	}
	assert.Equal(t, n, m.Len())
	for i := uint64(0); i < n; i++ {
		v := (*dummy)(m.Get(i))
		if assert.NotNil(t, v) {
			assert.Equal(t, int(i), v.x)
		}
	}
}

func TestMapForEach(t *testing.T) {
	m := &Map{}
	want := map[uint64]int{1: 1, 2: 2, 3: 3}
	for k, v := range want {
		m.Set(k, unsafe.Pointer(&dummy{v}))
	}
	got := map[uint64]int{}
	m.ForEach(func(key uint64, value unsafe.Pointer) {
		got[key] = (*dummy)(value).x
	})
	assert.Equal(t, want, got)
}
