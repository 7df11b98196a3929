package gokv

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

// TestOpenStoreRoundTripOnRealFile exercises OpenStore/openDataFile
// against a real on-disk file instead of memFileIO, catching the class
// of bug where O_DIRECT's buffer-alignment requirement is violated and
// the very first page read/write fails at the syscall layer.
func TestOpenStoreRoundTripOnRealFile(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.DataPath = filepath.Join(dir, "data")

	st, err := OpenStore(cfg, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}

	tx := st.StartTransaction()
	if err := tx.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st2, err := OpenStore(cfg, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	got, err := st2.Get([]byte("k"))
	if err != nil || string(got) != "v" {
		t.Fatalf("get after reopen = (%q, %v), want (\"v\", nil)", got, err)
	}
}
