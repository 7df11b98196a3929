package gokv

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// StoreConfig controls the buffer pool size and WAL flushing/checkpoint
// policy of a Store.
type StoreConfig struct {
	// CacheSize is the number of 8 KiB pages held in the buffer pool.
	CacheSize int `json:"cacheSize"`
	// CheckpointInterval is the WAL size, in bytes, at which a commit
	// also fsyncs the data file and rewinds the WAL to the beginning.
	CheckpointInterval uint64 `json:"checkpointInterval"`
	// WalFlushThreshold is the number of dirty buffers allowed to
	// accumulate before a modify starts proactively writing the least
	// recently dirtied ones to the WAL ahead of commit.
	WalFlushThreshold BufferId `json:"walFlushThreshold"`
	// DataPath and WALPath locate the store's files on disk.
	DataPath string `json:"dataPath"`
	WALPath  string `json:"walPath,omitempty"`
}

// DefaultStoreConfig mirrors the defaults used for an untuned store: a
// 1 GiB pool, a 1 GiB checkpoint interval, and no proactive WAL flush
// threshold (BufferId max).
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		CacheSize:          128 * 1024,
		CheckpointInterval: 1 << 30,
		WalFlushThreshold:  BufferId(^uint32(0)),
	}
}

// LoadConfig reads a StoreConfig from a JWCC (JSON-with-comments) file
// at path, starting from DefaultStoreConfig and overlaying whatever
// fields are present.
func LoadConfig(path string) (StoreConfig, error) {
	cfg := DefaultStoreConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: read config %s: %v", ErrIOFailed, path, err)
	}
	std, err := hujson.Standardize(raw)
	if err != nil {
		return cfg, fmt.Errorf("gokv: parse config %s: %w", path, err)
	}
	if err := json.Unmarshal(std, &cfg); err != nil {
		return cfg, fmt.Errorf("gokv: decode config %s: %w", path, err)
	}
	if cfg.DataPath == "" {
		return cfg, fmt.Errorf("gokv: config %s: dataPath is required", path)
	}
	return cfg, nil
}
