package gokv

// Dump walks the whole tree in ascending key order, invoking fn once
// per live (key, value) pair. The slices passed to fn are only valid
// for the duration of that call.
//
// Follows the same last-slot-to-first walk as traverse, since both read
// a descending-order page in ascending key order.
func (t *Transaction) Dump(fn func(key, value []byte) error) error {
	if t.status != txInProgress {
		return ErrWrongState
	}
	if t.store.db.meta.Root == NonePage {
		return nil
	}
	return t.store.dumpSubtree(t.store.db.meta.Root, t.store.db.meta.Height, fn)
}

func (s *Store) dumpSubtree(pid PageId, height uint32, fn func(key, value []byte) error) error {
	pin, err := s.getPage(pid, accessReadOnly)
	if err != nil {
		return err
	}
	defer pin.Release()
	slot := &s.pool[pin.buf]
	slot.mu.RLock()
	defer slot.mu.RUnlock()

	n := slot.page.NItems()
	if height == 1 {
		for i := n; i > 0; i-- {
			idx := i - 1
			key, value := slot.page.GetItem(idx)
			if err := fn(key, value); err != nil {
				return err
			}
		}
		return nil
	}

	for i := n; i > 0; i-- {
		idx := i - 1
		if err := s.dumpSubtree(slot.page.GetChild(idx), height-1, fn); err != nil {
			return err
		}
	}
	return nil
}
