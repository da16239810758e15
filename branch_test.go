package datatree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBranchPageFindPageIDEmpty(t *testing.T) {
	p := NewBranchPage(4096)
	_, ok := p.FindPageID(5)
	assert.False(t, ok)
}

func TestBranchPageFindPageIDBelowFirst(t *testing.T) {
	p := NewBranchPage(4096)
	p.Insert(100, 10)
	id, ok := p.FindPageID(3)
	require.True(t, ok)
	assert.Equal(t, uint64(100), id)
}

func TestBranchPageFindPageIDRouting(t *testing.T) {
	p := NewBranchPage(4096)
	p.Insert(100, 0)
	p.Insert(200, 50)
	p.Insert(300, 100)

	cases := []struct {
		key  uint64
		want uint64
	}{
		{0, 100},
		{49, 100},
		{50, 200},
		{99, 200},
		{100, 300},
		{1000, 300},
	}
	for _, c := range cases {
		id, ok := p.FindPageID(c.key)
		require.True(t, ok)
		assert.Equal(t, c.want, id, "key %d", c.key)
	}
}

func TestBranchPageInsertKeepsAscendingOrder(t *testing.T) {
	p := NewBranchPage(4096)
	p.Insert(3, 300)
	p.Insert(1, 100)
	p.Insert(2, 200)

	require.Len(t, p.Entries, 3)
	assert.Equal(t, uint64(100), p.Entries[0].FirstKey)
	assert.Equal(t, uint64(200), p.Entries[1].FirstKey)
	assert.Equal(t, uint64(300), p.Entries[2].FirstKey)
}

func TestBranchPageRoundTrip(t *testing.T) {
	p := NewBranchPage(4096)
	p.Insert(10, 0)
	p.Insert(20, 500)
	p.PrevPageID = 1
	p.NextPageID = 2

	buf := p.Serialize()
	assert.Equal(t, byte(PageBranch), buf[0])

	got := DeserializeBranchPage(buf)
	assert.Equal(t, uint64(1), got.PrevPageID)
	assert.Equal(t, uint64(2), got.NextPageID)
	id, ok := got.FindPageID(0)
	require.True(t, ok)
	assert.Equal(t, uint64(10), id)
	id, ok = got.FindPageID(500)
	require.True(t, ok)
	assert.Equal(t, uint64(20), id)
}

func TestDeserializeBranchPageTotalOnShortBuffer(t *testing.T) {
	got := DeserializeBranchPage([]byte{2, 1})
	assert.Empty(t, got.Entries)
}
