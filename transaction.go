package gokv

import "github.com/google/uuid"

// TxStatus tracks whether a Transaction is still open, and if not, how
// it ended.
type TxStatus int

const (
	txInProgress TxStatus = iota
	txCommitted
	txAborted
)

// Transaction is an explicitly started, single-writer scope over a
// Store. Go has no destructors, so unlike the reference implementation's
// auto-rollback-on-drop, callers MUST defer tx.Close() (or call Commit
// or Rollback directly) to release the store's write lock; Close is a
// no-op once the transaction has already been committed or rolled back
// explicitly, and otherwise rolls it back.
type Transaction struct {
	store  *Store
	status TxStatus

	// id correlates this transaction's log lines (a torn-WAL report, a
	// slow-commit warning) back to the scope that produced them; it
	// never appears in any on-disk format.
	id uuid.UUID
}

// ID returns the transaction's correlation id.
func (t *Transaction) ID() uuid.UUID { return t.id }

// Commit seals the transaction's changes durably.
func (t *Transaction) Commit() error {
	if t.status != txInProgress {
		return ErrWrongState
	}
	if err := t.store.commit(&t.store.db); err != nil {
		t.store.logger.Error().Str("tx_id", t.id.String()).Err(err).Msg("commit failed")
		return err
	}
	t.status = txCommitted
	t.store.dbMu.Unlock()
	t.store.logger.Debug().Str("tx_id", t.id.String()).Msg("transaction committed")
	return nil
}

// Delay marks the transaction committed without actually flushing
// anything, deferring the real commit to a later explicit Close-time
// or process-level flush. Matches the source engine's delayed-commit
// mode used by Store.Close to fold a trailing open transaction into
// shutdown.
func (t *Transaction) Delay() error {
	if t.status != txInProgress {
		return ErrWrongState
	}
	t.status = txCommitted
	t.store.dbMu.Unlock()
	t.store.logger.Debug().Str("tx_id", t.id.String()).Msg("transaction delayed")
	return nil
}

// Rollback undoes every change made within the transaction.
func (t *Transaction) Rollback() error {
	if t.status != txInProgress {
		return ErrWrongState
	}
	if err := t.store.rollback(&t.store.db); err != nil {
		t.store.logger.Error().Str("tx_id", t.id.String()).Err(err).Msg("rollback failed")
		return err
	}
	t.status = txAborted
	t.store.dbMu.Unlock()
	t.store.logger.Debug().Str("tx_id", t.id.String()).Msg("transaction rolled back")
	return nil
}

// Close rolls the transaction back if it is still in progress. Safe to
// call unconditionally via defer immediately after StartTransaction.
func (t *Transaction) Close() error {
	if t.status != txInProgress {
		return nil
	}
	return t.Rollback()
}

// Get looks up key within the transaction's view.
func (t *Transaction) Get(key []byte) ([]byte, error) {
	if t.status != txInProgress {
		return nil, ErrWrongState
	}
	return t.store.find(t.store.db.meta.Root, key, t.store.db.meta.Height)
}

// Put inserts or updates key within the transaction.
func (t *Transaction) Put(key, value []byte) error {
	if t.status != txInProgress {
		return ErrWrongState
	}
	return t.store.doUpsert(&t.store.db, key, value)
}

// Remove deletes key within the transaction, if present.
func (t *Transaction) Remove(key []byte) error {
	if t.status != txInProgress {
		return ErrWrongState
	}
	return t.store.doRemove(&t.store.db, key)
}

// Verify traverses the whole B-tree, checking its ordering invariants,
// and returns the number of live keys.
func (t *Transaction) Verify() (uint64, error) {
	if t.status != txInProgress {
		return 0, ErrWrongState
	}
	if t.store.db.meta.Root == NonePage {
		return 0, nil
	}
	prevKey := []byte{}
	return t.store.traverse(t.store.db.meta.Root, &prevKey, t.store.db.meta.Height)
}
