package gokv

import "encoding/binary"

// Metadata is the 16-byte header packed at offset 0 of page 0.
type Metadata struct {
	Free   PageId // head of the on-disk free-page list (0 = empty)
	Size   uint32 // number of pages allocated in the data file
	Root   PageId // B-tree root page id (0 = empty tree)
	Height uint32 // B-tree height (0 iff Root == 0; leaves are height 1)
}

// Pack serializes m into a fresh 16-byte big-endian buffer.
func (m Metadata) Pack() [MetaSize]byte {
	var buf [MetaSize]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(m.Free))
	binary.BigEndian.PutUint32(buf[4:8], m.Size)
	binary.BigEndian.PutUint32(buf[8:12], uint32(m.Root))
	binary.BigEndian.PutUint32(buf[12:16], m.Height)
	return buf
}

// UnpackMetadata reads a Metadata header back out of the first 16 bytes
// of buf.
func UnpackMetadata(buf []byte) Metadata {
	return Metadata{
		Free:   PageId(binary.BigEndian.Uint32(buf[0:4])),
		Size:   binary.BigEndian.Uint32(buf[4:8]),
		Root:   PageId(binary.BigEndian.Uint32(buf[8:12])),
		Height: binary.BigEndian.Uint32(buf[12:16]),
	}
}
