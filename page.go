package gokv

import "encoding/binary"

// slotHeaderSize is the fixed part of a PageImage: a u16 item count
// followed by a growing array of u16 item offsets.
const slotHeaderSize = 2

// KeyRelation is the result of comparing a slot's key against a probe key.
type KeyRelation int

const (
	Less KeyRelation = iota
	Equal
	Greater
)

// PageImage is one 8 KiB slotted page: the on-disk/in-pool encoding for
// both B-tree nodes and the transport unit handed to the WAL.
//
// Layout (big-endian):
//
//	[0:2)              n_items (u16)
//	[2:2+2*n_items)    item offsets, one u16 per item, slot order
//	...
//	items, growing down from PageSize: 1-byte key_len, key bytes, value bytes
//
// Slot 0 holds the largest key; slot n_items-1 holds the smallest
// (descending order, giving a unified +inf-at-the-tail encoding on
// internal nodes).
type PageImage struct {
	Data [PageSize]byte
}

// NewPageImage returns a zeroed page (n_items = 0).
func NewPageImage() *PageImage {
	return &PageImage{}
}

func (p *PageImage) offset(i uint32) uint32 {
	return uint32(binary.BigEndian.Uint16(p.Data[slotHeaderSize+i*2:]))
}

func (p *PageImage) setOffset(i uint32, off uint32) {
	binary.BigEndian.PutUint16(p.Data[slotHeaderSize+i*2:], uint16(off))
}

// NItems returns the number of items on the page.
func (p *PageImage) NItems() uint32 {
	return uint32(binary.BigEndian.Uint16(p.Data[0:2]))
}

// SetNItems sets the item count header field.
func (p *PageImage) SetNItems(n uint32) {
	binary.BigEndian.PutUint16(p.Data[0:2], uint16(n))
}

// usedSize is the number of bytes currently occupied by item bodies
// (everything below the highest-indexed item's offset).
func (p *PageImage) usedSize() uint32 {
	n := p.NItems()
	if n == 0 {
		return 0
	}
	return PageSize - p.offset(n-1)
}

func (p *PageImage) itemOffsAndLen(i uint32) (offs, length uint32) {
	offs = p.offset(i)
	var next uint32 = PageSize
	if i != 0 {
		next = p.offset(i - 1)
	}
	return offs, next - offs
}

// Key returns slot i's key bytes. A zero-length return means the +inf
// sentinel.
func (p *PageImage) Key(i uint32) []byte {
	offs := p.offset(i)
	keyLen := int(p.Data[offs])
	return p.Data[offs+1 : offs+1+uint32(keyLen)]
}

// GetLastKey returns the key of the final (smallest, or +inf) slot.
func (p *PageImage) GetLastKey() []byte {
	return p.Key(p.NItems() - 1)
}

// GetItem returns slot i's (key, value) pair, copied out of the page.
func (p *PageImage) GetItem(i uint32) (key, value []byte) {
	offs, length := p.itemOffsAndLen(i)
	keyLen := uint32(p.Data[offs])
	key = append([]byte(nil), p.Data[offs+1:offs+1+keyLen]...)
	value = append([]byte(nil), p.Data[offs+1+keyLen:offs+length]...)
	return key, value
}

// GetChild returns slot i's value, reinterpreted as a 4-byte big-endian
// PageId (only meaningful on internal pages).
func (p *PageImage) GetChild(i uint32) PageId {
	offs := p.offset(i)
	keyLen := uint32(p.Data[offs])
	return getPageId(p.Data[offs+1+keyLen:])
}

// CompareKey reports how slot i's key relates to k. A zero-length slot
// key (the +inf sentinel) always reports Less: the binary search in
// FindSlot treats "not Greater" as "descend no further left", and the
// sentinel — conceptually larger than any real key — must still be the
// last candidate accepted so its child is reachable as the final
// fallback for keys smaller than every real separator on the page.
func (p *PageImage) CompareKey(i uint32, k []byte) KeyRelation {
	offs := p.offset(i)
	keyLen := int(p.Data[offs])
	if keyLen == 0 {
		return Less
	}
	slotKey := p.Data[offs+1 : offs+1+uint32(keyLen)]
	switch {
	case string(slotKey) < string(k):
		return Less
	case string(slotKey) > string(k):
		return Greater
	default:
		return Equal
	}
}

// FindSlot returns the leftmost slot whose key is <= k (descending
// order means such slots form a contiguous suffix of the slot array).
// Returns NItems() if every slot's key is Greater than k: on a leaf,
// when k is smaller than every key on the page; on a page ending in the
// +inf sentinel (which CompareKey always reports as Less) only when the
// page is empty.
func (p *PageImage) FindSlot(k []byte) uint32 {
	lo, hi := uint32(0), p.NItems()
	for lo < hi {
		mid := (lo + hi) / 2
		if p.CompareKey(mid, k) == Greater {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// fits reports whether an item of the given key/value length can be
// inserted without exceeding the page budget.
func (p *PageImage) fits(keyLen, valueLen int) bool {
	n := p.NItems()
	itemLen := uint32(1 + keyLen + valueLen)
	return (n+1)*2+p.usedSize()+itemLen <= PageSize-slotHeaderSize
}

// InsertItem inserts (key,value) at slot index ip, shifting later slots
// up by one. Returns false (page unchanged) if it would not fit.
func (p *PageImage) InsertItem(ip uint32, key, value []byte) bool {
	if !p.fits(len(key), len(value)) {
		return false
	}
	n := p.NItems()
	used := p.usedSize()
	itemLen := uint32(1 + len(key) + len(value))

	for i := n; i > ip; i-- {
		p.setOffset(i, p.offset(i-1)-itemLen)
	}
	var itemOffs uint32
	if ip != 0 {
		itemOffs = p.offset(ip-1) - itemLen
	} else {
		itemOffs = PageSize - itemLen
	}
	p.setOffset(ip, itemOffs)

	itemsOrigin := PageSize - used
	copy(p.Data[itemsOrigin-itemLen:itemOffs+itemLen], p.Data[itemsOrigin:itemOffs+itemLen])
	p.Data[itemOffs] = byte(len(key))
	copy(p.Data[itemOffs+1:], key)
	copy(p.Data[itemOffs+1+uint32(len(key)):], value)
	p.SetNItems(n + 1)
	return true
}

// RemoveKey removes slot ip. On an internal page (leaf=false), removing
// the final slot instead moves that slot's key (the +inf sentinel, or
// the smallest separator on a page without one) onto the preceding
// slot, replacing the preceding slot's own key, so the preceding child
// takes over the removed child's key range.
func (p *PageImage) RemoveKey(ip uint32, leaf bool) {
	n := p.NItems()
	used := p.usedSize()
	itemOffs, itemLen := p.itemOffsAndLen(ip)

	for i := ip + 1; i < n; i++ {
		p.setOffset(i-1, p.offset(i)+itemLen)
	}
	itemsOrigin := PageSize - used
	if !leaf && n > 1 && ip+1 == n {
		prevItemOffs := itemOffs + itemLen
		keyLen := uint32(p.Data[itemOffs])
		prevKeyLen := uint32(p.Data[prevItemOffs])
		newOffs := prevItemOffs + prevKeyLen - keyLen
		p.setOffset(ip-1, newOffs)
		copy(p.Data[newOffs:], p.Data[itemOffs:itemOffs+keyLen+1])
	} else {
		copy(p.Data[itemsOrigin+itemLen:itemOffs+itemLen], p.Data[itemsOrigin:itemOffs])
	}
	p.SetNItems(n - 1)
}

// Split divides the page in two around slot ip, moving the larger
// (lower-index, larger-key) items into newPage and leaving the smaller
// items behind. Returns the split index r: r+1 items moved to newPage,
// n_items-r-1 remain. The caller re-inserts the item that overflowed
// into whichever half its slot now belongs to (ip > r => original page,
// else the new page).
func (p *PageImage) Split(newPage *PageImage, ip uint32) uint32 {
	n := p.NItems()
	used := p.usedSize()
	r := n

	if ip == r {
		// Sequential-insert optimization: move everything, leave this
		// page empty so it stays maximally packed.
		r--
	} else {
		margin := PageSize - used/2
		var l uint32
		for l < r {
			m := (l + r) / 2
			if p.offset(m) > margin {
				l = m + 1
			} else {
				r = m
			}
		}
	}
	movedSize := PageSize - p.offset(r)

	copy(newPage.Data[slotHeaderSize:slotHeaderSize+(r+1)*2], p.Data[slotHeaderSize:slotHeaderSize+(r+1)*2])
	dst := PageSize - movedSize
	copy(newPage.Data[dst:], p.Data[dst:])

	for i := r + 1; i < n; i++ {
		p.setOffset(i-r-1, p.offset(i)+movedSize)
	}
	src := PageSize - used
	copy(p.Data[src+movedSize:dst+movedSize], p.Data[src:dst])
	newPage.SetNItems(r + 1)
	p.SetNItems(n - r - 1)
	return r
}
