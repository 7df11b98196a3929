package gokv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigOverlaysDefaultsFromJWCC(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gokv.jwcc")
	const body = `{
  // pool size in 8 KiB pages
  "cacheSize": 256,
  "dataPath": "kv.data",
}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CacheSize != 256 {
		t.Fatalf("CacheSize = %d, want 256", cfg.CacheSize)
	}
	if cfg.DataPath != "kv.data" {
		t.Fatalf("DataPath = %q, want %q", cfg.DataPath, "kv.data")
	}
	want := DefaultStoreConfig()
	if cfg.CheckpointInterval != want.CheckpointInterval {
		t.Fatalf("CheckpointInterval = %d, want default %d", cfg.CheckpointInterval, want.CheckpointInterval)
	}
}

func TestLoadConfigRequiresDataPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gokv.jwcc")
	if err := os.WriteFile(path, []byte(`{"cacheSize": 64}`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for a config file missing dataPath")
	}
}
