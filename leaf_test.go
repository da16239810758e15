package datatree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeafPagePutGet(t *testing.T) {
	p := NewLeafPage(4096)
	require.True(t, p.Put(1, []byte("alpha")))
	require.True(t, p.Put(2, []byte("beta")))

	v, ok := p.Get(1)
	require.True(t, ok)
	assert.Equal(t, []byte("alpha"), v)

	v, ok = p.Get(2)
	require.True(t, ok)
	assert.Equal(t, []byte("beta"), v)

	_, ok = p.Get(3)
	assert.False(t, ok)
}

func TestLeafPageUpdateSmallerInPlace(t *testing.T) {
	p := NewLeafPage(4096)
	require.True(t, p.Put(1, []byte("abcdef")))
	require.True(t, p.Put(1, []byte("xyz")))

	require.Len(t, p.Entries, 1)
	v, ok := p.Get(1)
	require.True(t, ok)
	assert.Equal(t, []byte("xyz"), v)
}

func TestLeafPageUpdateLargerMovesToEnd(t *testing.T) {
	p := NewLeafPage(4096)
	require.True(t, p.Put(1, []byte("a")))
	require.True(t, p.Put(2, []byte("b")))
	require.True(t, p.Put(1, []byte("much-longer-value")))

	require.Len(t, p.Entries, 2)
	assert.Equal(t, uint64(2), p.Entries[0].Key)
	assert.Equal(t, uint64(1), p.Entries[1].Key)
	v, ok := p.Get(1)
	require.True(t, ok)
	assert.Equal(t, []byte("much-longer-value"), v)
}

func TestLeafPageDelete(t *testing.T) {
	p := NewLeafPage(4096)
	require.True(t, p.Put(1, []byte("a")))
	require.True(t, p.Delete(1))
	_, ok := p.Get(1)
	assert.False(t, ok)
	assert.False(t, p.Delete(1))
}

func TestLeafPagePutRejectsWhenFull(t *testing.T) {
	p := NewLeafPage(leafHeaderSize + leafSlotSize + 4)
	require.True(t, p.Put(1, []byte("ab")))
	assert.False(t, p.Put(2, []byte("cd")))
	_, ok := p.Get(2)
	assert.False(t, ok)
}

func TestLeafPageRoundTrip(t *testing.T) {
	p := NewLeafPage(4096)
	require.True(t, p.Put(10, []byte("hello")))
	require.True(t, p.Put(20, []byte("world")))
	p.PrevPageID = 7
	p.NextPageID = 9

	buf := p.Serialize()
	require.Len(t, buf, 4096)
	assert.Equal(t, byte(PageLeaf), buf[0])

	got := DeserializeLeafPage(buf)
	assert.Equal(t, uint64(7), got.PrevPageID)
	assert.Equal(t, uint64(9), got.NextPageID)
	v, ok := got.Get(10)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), v)
	v, ok = got.Get(20)
	require.True(t, ok)
	assert.Equal(t, []byte("world"), v)
}

func TestDeserializeLeafPageTotalOnShortBuffer(t *testing.T) {
	got := DeserializeLeafPage([]byte{1, 2, 3})
	assert.Empty(t, got.Entries)
}

func TestDeserializeLeafPageTotalOnTruncatedDirectory(t *testing.T) {
	p := NewLeafPage(4096)
	require.True(t, p.Put(1, []byte("alpha")))
	require.True(t, p.Put(2, []byte("beta")))
	buf := p.Serialize()

	truncated := buf[:leafHeaderSize+leafSlotSize/2]
	got := DeserializeLeafPage(truncated)
	assert.Empty(t, got.Entries)
}

func TestLeafMaxValueSize(t *testing.T) {
	max := LeafMaxValueSize(4096)
	p := NewLeafPage(4096)
	assert.True(t, p.Put(1, make([]byte, max)))
}
