package gokv

// PageId identifies a page in the data file. 0 ("NonePage") is reserved:
// it never appears as a child pointer, and denotes the metadata page.
type PageId uint32

// BufferId indexes a slot in the buffer pool. 0 ("NoneBuffer") is reserved
// for the permanently pinned meta-page slot and is never handed out by
// get_buffer.
type BufferId uint32

const (
	// NonePage is the sentinel PageId meaning "no page" / the meta page.
	NonePage PageId = 0
	// MetaPage is the well-known page id carrying the Metadata header.
	MetaPage PageId = 0
	// NoneBuffer is the sentinel BufferId meaning "no buffer" / the meta slot.
	NoneBuffer BufferId = 0
)

// PageSize is the fixed on-disk and in-pool page size, in bytes.
const PageSize = 8192

// MetaSize is the 16-byte packed Metadata header that lives at offset 0
// of page 0. Page 0 carries nothing else; it is never interpreted as a
// slotted PageImage.
const MetaSize = 16

// MaxKeyLen and MaxValueLen are the key/value size limits: a key's
// length byte caps it at 255 bytes, and a value must leave room for at
// least three items per 8 KiB page.
const (
	MaxKeyLen   = 255
	MaxValueLen = PageSize / 4
)

// NBusyEvents is the fan-out of the condition-variable array used to wake
// readers parked behind a concurrent page load. Kept small and a power
// of two for cheap `bufid % NBusyEvents` indexing.
const NBusyEvents = 8

func putPageId(b []byte, id PageId) {
	b[0] = byte(id >> 24)
	b[1] = byte(id >> 16)
	b[2] = byte(id >> 8)
	b[3] = byte(id)
}

func getPageId(b []byte) PageId {
	return PageId(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}
