package gokv

import "testing"

func TestTransactionDumpVisitsKeysInAscendingOrder(t *testing.T) {
	st, _, _ := openTestStore(t, false)
	defer st.Close()

	const n = 300
	for i := 0; i < n; i++ {
		k := string(rune('a'+i%26)) + string(rune('A'+(i/26)%26)) + string(rune('0'+i%10))
		putCommitted(t, st, k, k+"-value")
	}

	tx := st.StartTransaction()
	defer tx.Close()

	var keys []string
	var prev string
	first := true
	if err := tx.Dump(func(key, value []byte) error {
		if string(value) != string(key)+"-value" {
			t.Fatalf("dump value for %q = %q, want %q", key, value, string(key)+"-value")
		}
		if !first && string(key) <= prev {
			t.Fatalf("dump order violation: %q did not follow %q ascending", key, prev)
		}
		first = false
		prev = string(key)
		keys = append(keys, string(key))
		return nil
	}); err != nil {
		t.Fatalf("dump: %v", err)
	}
	tx.Rollback()

	if len(keys) != n {
		t.Fatalf("dump visited %d keys, want %d", len(keys), n)
	}
}

func TestTransactionDumpOfEmptyTreeVisitsNothing(t *testing.T) {
	st, _, _ := openTestStore(t, false)
	defer st.Close()

	tx := st.StartTransaction()
	defer tx.Close()

	called := false
	if err := tx.Dump(func(key, value []byte) error {
		called = true
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	tx.Rollback()
	if called {
		t.Fatal("expected Dump on an empty tree to visit nothing")
	}
}
