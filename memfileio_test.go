package gokv

import "github.com/dsnet/golib/memfile"

// memFileIO adapts github.com/dsnet/golib/memfile to FileIO so Store
// can be exercised in tests without touching the filesystem. It backs
// both the data file and the WAL in store_test.go.
type memFileIO struct {
	buf  *[]byte
	file *memfile.File
}

func newMemFileIO() *memFileIO {
	buf := make([]byte, 0)
	return &memFileIO{buf: &buf, file: memfile.New(&buf)}
}

func (m *memFileIO) ReadAt(p []byte, off int64) (int, error) {
	return m.file.ReadAt(p, off)
}

func (m *memFileIO) WriteAt(p []byte, off int64) (int, error) {
	return m.file.WriteAt(p, off)
}

func (m *memFileIO) Sync() error { return nil }

// Truncate resizes the backing slice directly; memfile.File has no
// truncate of its own since *os.File's is rarely exercised by tests
// that don't already have a real file descriptor.
func (m *memFileIO) Truncate(size int64) error {
	switch {
	case int64(len(*m.buf)) > size:
		*m.buf = (*m.buf)[:size]
	case int64(len(*m.buf)) < size:
		*m.buf = append(*m.buf, make([]byte, size-int64(len(*m.buf)))...)
	}
	return nil
}

func (m *memFileIO) Close() error { return m.file.Close() }

// reopen returns a fresh handle onto the same backing bytes, as if the
// same path had been opened again after the original handle's Close.
func (m *memFileIO) reopen() *memFileIO {
	return &memFileIO{buf: m.buf, file: memfile.New(m.buf)}
}
