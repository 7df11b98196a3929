package gokv

import (
	"testing"

	"github.com/rs/zerolog"
)

func testConfig() StoreConfig {
	cfg := DefaultStoreConfig()
	cfg.CacheSize = 64
	cfg.CheckpointInterval = 1 << 20
	cfg.WalFlushThreshold = BufferId(^uint32(0))
	cfg.DataPath = "mem-data"
	return cfg
}

// openTestStore opens a fresh Store over in-memory files. When withWAL
// is true it also returns the log handle so a test can simulate a
// crash-before-truncate by reopening over the same files without
// going through Store.Close.
func openTestStore(t *testing.T, withWAL bool) (*Store, *memFileIO, *memFileIO) {
	t.Helper()
	data := newMemFileIO()
	var log *memFileIO
	var logIO FileIO
	if withWAL {
		log = newMemFileIO()
		logIO = log
	}
	st, err := openStoreWithFiles(testConfig(), data, logIO, false, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("openStoreWithFiles: %v", err)
	}
	return st, data, log
}

func putCommitted(t *testing.T, st *Store, key, value string) {
	t.Helper()
	tx := st.StartTransaction()
	defer tx.Close()
	if err := tx.Put([]byte(key), []byte(value)); err != nil {
		t.Fatalf("put %q: %v", key, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit after put %q: %v", key, err)
	}
}

func TestStorePutGetRoundTrip(t *testing.T) {
	st, _, _ := openTestStore(t, false)
	defer st.Close()

	putCommitted(t, st, "a", "1")
	putCommitted(t, st, "b", "2")
	putCommitted(t, st, "c", "3")

	for k, want := range map[string]string{"a": "1", "b": "2", "c": "3"} {
		got, err := st.Get([]byte(k))
		if err != nil {
			t.Fatalf("get %q: %v", k, err)
		}
		if string(got) != want {
			t.Fatalf("get %q = %q, want %q", k, got, want)
		}
	}
	if v, err := st.Get([]byte("missing")); err != nil || v != nil {
		t.Fatalf("get missing key: got (%q, %v), want (nil, nil)", v, err)
	}
}

func TestStorePutOverwritesValue(t *testing.T) {
	st, _, _ := openTestStore(t, false)
	defer st.Close()

	putCommitted(t, st, "k", "first")
	putCommitted(t, st, "k", "second")

	got, err := st.Get([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Fatalf("get after overwrite = %q, want %q", got, "second")
	}
}

func TestStoreRemove(t *testing.T) {
	st, _, _ := openTestStore(t, false)
	defer st.Close()

	putCommitted(t, st, "k", "v")
	tx := st.StartTransaction()
	if err := tx.Remove([]byte("k")); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if v, err := st.Get([]byte("k")); err != nil || v != nil {
		t.Fatalf("get after remove: got (%q, %v), want (nil, nil)", v, err)
	}
}

func TestStoreRollbackDiscardsChanges(t *testing.T) {
	st, _, _ := openTestStore(t, false)
	defer st.Close()

	putCommitted(t, st, "k", "committed")

	tx := st.StartTransaction()
	if err := tx.Put([]byte("k"), []byte("uncommitted")); err != nil {
		t.Fatal(err)
	}
	if err := tx.Put([]byte("fresh"), []byte("also-uncommitted")); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}

	got, err := st.Get([]byte("k"))
	if err != nil || string(got) != "committed" {
		t.Fatalf("get %q after rollback = (%q, %v), want (\"committed\", nil)", "k", got, err)
	}
	if v, err := st.Get([]byte("fresh")); err != nil || v != nil {
		t.Fatalf("get %q after rollback: got (%q, %v), want (nil, nil)", "fresh", v, err)
	}
}

func TestTransactionCloseRollsBackUnfinishedWork(t *testing.T) {
	st, _, _ := openTestStore(t, false)
	defer st.Close()

	func() {
		tx := st.StartTransaction()
		defer tx.Close() // never committed or rolled back explicitly
		tx.Put([]byte("k"), []byte("v"))
	}()

	if v, err := st.Get([]byte("k")); err != nil || v != nil {
		t.Fatalf("get after implicit Close-rollback: got (%q, %v), want (nil, nil)", v, err)
	}
}

func TestStoreManyKeysSurviveSplitsAndVerify(t *testing.T) {
	st, _, _ := openTestStore(t, false)
	defer st.Close()

	const n = 500
	for i := 0; i < n; i++ {
		k := string(rune('a'+i%26)) + string(rune('A'+(i/26)%26)) + string(rune('0'+i%10))
		putCommitted(t, st, k, k+"-value"+string(make([]byte, 100))) // ~115 bytes a slot: far more than one 8 KiB leaf holds
	}

	tx := st.StartTransaction()
	count, err := tx.Verify()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	tx.Rollback()
	if count == 0 {
		t.Fatal("expected a nonzero live key count after many inserts")
	}
	if st.db.meta.Height < 2 {
		t.Fatalf("expected splits to have grown the tree past a single leaf, got height %d", st.db.meta.Height)
	}
}

func TestDoUpsertRejectsOversizedKeysAndValues(t *testing.T) {
	st, _, _ := openTestStore(t, false)
	defer st.Close()

	tx := st.StartTransaction()
	defer tx.Close()

	if err := tx.Put(nil, []byte("v")); err != ErrEmptyKey {
		t.Fatalf("empty key: got %v, want ErrEmptyKey", err)
	}
	bigKey := make([]byte, MaxKeyLen+1)
	if err := tx.Put(bigKey, []byte("v")); err != ErrKeyTooLarge {
		t.Fatalf("oversized key: got %v, want ErrKeyTooLarge", err)
	}
	okKey := make([]byte, MaxKeyLen)
	if err := tx.Put(okKey, []byte("v")); err != nil {
		t.Fatalf("max-length key should be accepted: %v", err)
	}
	bigValue := make([]byte, MaxValueLen+1)
	if err := tx.Put([]byte("k2"), bigValue); err != ErrValueTooLarge {
		t.Fatalf("oversized value: got %v, want ErrValueTooLarge", err)
	}
	okValue := make([]byte, MaxValueLen)
	if err := tx.Put([]byte("k3"), okValue); err != nil {
		t.Fatalf("max-length value should be accepted: %v", err)
	}
}

func TestStoreRecoveryReplaysCommittedWAL(t *testing.T) {
	st, data, log := openTestStore(t, true)

	putCommitted(t, st, "a", "1")
	putCommitted(t, st, "b", "2")

	// Simulate a crash after a successful commit but before the WAL was
	// ever truncated (truncation only happens on Close/recovery): mark
	// the store closed without touching the files, then reopen fresh
	// handles over the same backing bytes.
	if err := st.Shutdown(); err != nil {
		t.Fatal(err)
	}

	st2, err := openStoreWithFiles(testConfig(), data, log, true, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("reopen for recovery: %v", err)
	}
	defer st2.Close()

	for k, want := range map[string]string{"a": "1", "b": "2"} {
		got, err := st2.Get([]byte(k))
		if err != nil {
			t.Fatalf("get %q after recovery: %v", k, err)
		}
		if string(got) != want {
			t.Fatalf("get %q after recovery = %q, want %q", k, got, want)
		}
	}
}

func TestStoreWithoutWALCommitsDirectlyToDataFile(t *testing.T) {
	st, data, _ := openTestStore(t, false)
	putCommitted(t, st, "a", "1")
	if err := st.Shutdown(); err != nil {
		t.Fatal(err)
	}

	st2, err := openStoreWithFiles(testConfig(), data, nil, true, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	got, err := st2.Get([]byte("a"))
	if err != nil || string(got) != "1" {
		t.Fatalf("get after reopen without WAL = (%q, %v), want (\"1\", nil)", got, err)
	}
}
