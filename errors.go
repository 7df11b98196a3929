package gokv

import "errors"

// Error kinds returned by the store and its supporting layers. These are
// sentinel errors wrapped with fmt.Errorf("%w", ...) so callers can
// errors.Is() against them while still getting a useful message.
var (
	// ErrCacheExhausted: all pool slots are pinned; get_buffer has no
	// eviction victim to claim.
	ErrCacheExhausted = errors.New("gokv: buffer cache exhausted by pinned pages")

	// ErrEmptyKey, ErrKeyTooLarge, ErrValueTooLarge: rejected by doUpsert
	// before any page is touched. doRemove does not check key size.
	ErrEmptyKey      = errors.New("gokv: key must not be empty")
	ErrKeyTooLarge   = errors.New("gokv: key exceeds maximum length")
	ErrValueTooLarge = errors.New("gokv: value exceeds maximum length")

	// ErrIOFailed wraps any open/positioned read/write/sync/truncate
	// failure from the file layer. A failed lock wraps ErrFileLocked.
	ErrIOFailed = errors.New("gokv: i/o failure")

	// ErrFileLocked: another process already holds the exclusive lock.
	ErrFileLocked = errors.New("gokv: data file is locked by another process")

	// ErrCorruptedMeta: opened file's meta.size < 1.
	ErrCorruptedMeta = errors.New("gokv: corrupted metadata page")

	// ErrInvariantViolated: an internal consistency check failed, in any
	// build: a pinned LRU eviction victim, an item that does not fit
	// after a page split, or out-of-order keys found by Verify.
	ErrInvariantViolated = errors.New("gokv: internal invariant violated")

	// ErrUseAfterClose / ErrWrongState: operating on a transaction or
	// store that is not in the expected state.
	ErrUseAfterClose = errors.New("gokv: store is closed")
	ErrWrongState    = errors.New("gokv: transaction is not in progress")
)
