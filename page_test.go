package gokv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageImageInsertAndLookup(t *testing.T) {
	p := NewPageImage()
	require.True(t, p.InsertItem(0, []byte("mmm"), []byte("v-mmm")))
	require.True(t, p.InsertItem(0, []byte("zzz"), []byte("v-zzz")))
	require.True(t, p.InsertItem(2, []byte("aaa"), []byte("v-aaa")))
	require.EqualValues(t, 3, p.NItems())

	// Descending order: slot 0 holds the largest key.
	k0, v0 := p.GetItem(0)
	require.Equal(t, "zzz", string(k0))
	require.Equal(t, "v-zzz", string(v0))
	k1, _ := p.GetItem(1)
	require.Equal(t, "mmm", string(k1))
	k2, _ := p.GetItem(2)
	require.Equal(t, "aaa", string(k2))

	require.Equal(t, "aaa", string(p.GetLastKey()))
}

func TestPageImageFindSlot(t *testing.T) {
	p := NewPageImage()
	p.InsertItem(0, []byte("c"), []byte("3"))
	p.InsertItem(1, []byte("b"), []byte("2"))
	p.InsertItem(2, []byte("a"), []byte("1"))

	require.EqualValues(t, 0, p.FindSlot([]byte("c")))
	require.EqualValues(t, 0, p.FindSlot([]byte("z"))) // bigger than everything: clamps to slot 0
	require.EqualValues(t, 1, p.FindSlot([]byte("b")))
	require.EqualValues(t, 2, p.FindSlot([]byte("a")))
	// Smaller than every real key and no +inf sentinel on this page:
	// out of range, meaning "not on this page".
	require.EqualValues(t, p.NItems(), p.FindSlot([]byte("")))
}

func TestPageImageSentinelAlwaysReachableAsFallback(t *testing.T) {
	p := NewPageImage()
	p.InsertItem(0, []byte("m"), func() []byte { var b [4]byte; putPageId(b[:], 7); return b[:] }())
	p.InsertItem(1, nil, func() []byte { var b [4]byte; putPageId(b[:], 9); return b[:] }())

	// A probe smaller than every real separator must still land on the
	// +inf slot (index 1), since that child is the catch-all.
	require.EqualValues(t, 1, p.FindSlot([]byte("a")))
	require.Equal(t, PageId(9), p.GetChild(p.FindSlot([]byte("a"))))
}

func TestPageImageRemoveKey(t *testing.T) {
	p := NewPageImage()
	p.InsertItem(0, []byte("c"), []byte("3"))
	p.InsertItem(1, []byte("b"), []byte("2"))
	p.InsertItem(2, []byte("a"), []byte("1"))

	p.RemoveKey(1, true)
	require.EqualValues(t, 2, p.NItems())
	k0, v0 := p.GetItem(0)
	require.Equal(t, "c", string(k0))
	require.Equal(t, "3", string(v0))
	k1, _ := p.GetItem(1)
	require.Equal(t, "a", string(k1))
}

func TestPageImageRemoveLastSlotPromotesFence(t *testing.T) {
	p := NewPageImage()
	var left, right [4]byte
	putPageId(left[:], 1)
	putPageId(right[:], 2)
	p.InsertItem(0, []byte("m"), left[:])
	p.InsertItem(1, nil, right[:])

	p.RemoveKey(1, false)
	require.EqualValues(t, 1, p.NItems())
	require.Equal(t, Less, p.CompareKey(0, nil)) // promoted slot is now the +inf sentinel
}

func TestPageImageSplitDistributesItems(t *testing.T) {
	p := NewPageImage()
	n := 0
	for p.InsertItem(uint32(n), []byte(string(rune('z'-n))), make([]byte, 100)) {
		n++
	}
	require.Greater(t, n, 1)

	newPage := NewPageImage()
	split := p.Split(newPage, uint32(n/2))
	require.Less(t, split, uint32(n))
	require.EqualValues(t, n-int(split)-1, p.NItems())
	require.EqualValues(t, split+1, newPage.NItems())
}
