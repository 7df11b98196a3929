package gokv

import (
	"fmt"
	"os"

	"github.com/ncw/directio"
	"golang.org/x/sys/unix"
)

// FileIO is the positioned, concurrency-safe file interface the store
// needs from both its data file and its WAL. *os.File satisfies the
// read/write/sync/truncate/close methods directly (via the small
// wrapper below); tests substitute an in-memory fake built on
// github.com/dsnet/golib/memfile.
type FileIO interface {
	ReadAt(buf []byte, offset int64) (int, error)
	WriteAt(buf []byte, offset int64) (int, error)
	Sync() error
	Truncate(size int64) error
	Close() error
}

// osFile adapts *os.File to FileIO, routing positioned reads and
// writes through golang.org/x/sys/unix rather than the os package's
// own (internally very similar) pread/pwrite wrappers, so that a
// single syscall layer also serves the exclusive-lock helpers below.
type osFile struct {
	f *os.File
}

func (o *osFile) ReadAt(buf []byte, offset int64) (int, error) {
	n, err := unix.Pread(int(o.f.Fd()), buf, offset)
	if err != nil {
		return n, fmt.Errorf("%w: pread: %v", ErrIOFailed, err)
	}
	return n, nil
}

func (o *osFile) WriteAt(buf []byte, offset int64) (int, error) {
	n, err := unix.Pwrite(int(o.f.Fd()), buf, offset)
	if err != nil {
		return n, fmt.Errorf("%w: pwrite: %v", ErrIOFailed, err)
	}
	return n, nil
}

func (o *osFile) Sync() error {
	if err := o.f.Sync(); err != nil {
		return fmt.Errorf("%w: fsync: %v", ErrIOFailed, err)
	}
	return nil
}

func (o *osFile) Truncate(size int64) error {
	if err := o.f.Truncate(size); err != nil {
		return fmt.Errorf("%w: truncate: %v", ErrIOFailed, err)
	}
	return nil
}

func (o *osFile) Close() error {
	return o.f.Close()
}

// alignedFile wraps osFile for a file opened O_DIRECT: every read and
// write is staged through a freshly allocated, block-aligned scratch
// buffer (a fresh allocation per call, not a shared one, since reads
// and writes against the data file happen concurrently from different
// goroutines), because O_DIRECT on Linux requires the caller's buffer
// itself to be aligned to the device's logical block size, and
// PageImage.Data — embedded inside a pageSlot right after a
// sync.RWMutex — never is.
type alignedFile struct {
	osFile
}

func (o *alignedFile) scratch(n int) []byte {
	if n == PageSize {
		return AlignedPage()
	}
	return directio.AlignedBlock(n)
}

func (o *alignedFile) ReadAt(buf []byte, offset int64) (int, error) {
	tmp := o.scratch(len(buf))
	n, err := o.osFile.ReadAt(tmp, offset)
	if n > 0 {
		copy(buf, tmp[:n])
	}
	return n, err
}

func (o *alignedFile) WriteAt(buf []byte, offset int64) (int, error) {
	tmp := o.scratch(len(buf))
	copy(tmp, buf)
	return o.osFile.WriteAt(tmp, offset)
}

// openDataFile opens the main data file with O_DIRECT (bypassing the
// page cache, since the buffer pool already caches pages) and takes an
// exclusive advisory lock so a second process opening the same file
// fails fast instead of corrupting it.
func openDataFile(path string) (FileIO, bool, error) {
	existed := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		existed = false
	}
	f, err := directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, false, fmt.Errorf("%w: open %s: %v", ErrIOFailed, path, err)
	}
	if err := flockExclusive(f); err != nil {
		f.Close()
		return nil, false, err
	}
	return &alignedFile{osFile: osFile{f: f}}, existed, nil
}

// openWALFile opens (creating if necessary) the write-ahead log. It is
// a plain buffered file: WAL records are small and append-mostly, so
// directio's alignment requirements would only add overhead here.
func openWALFile(path string) (FileIO, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIOFailed, path, err)
	}
	if err := flockExclusive(f); err != nil {
		f.Close()
		return nil, err
	}
	return &osFile{f: f}, nil
}

func flockExclusive(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return fmt.Errorf("%w: %v", ErrFileLocked, err)
	}
	return nil
}

// AlignedPage allocates a PageSize buffer on the alignment directio
// requires for unbuffered reads and writes of the data file.
func AlignedPage() []byte {
	return directio.AlignedBlock(PageSize)
}
