package gokv

// traverse walks the subtree rooted at pid in ascending key order,
// checking that every leaf key compares strictly greater than prevKey
// (updating it as it goes), and returns the number of live keys found.
//
// Slot 0 holds the largest key on a page and slot n_items-1 the
// smallest, so a page is walked from its last slot down to its first.
// On an internal page the last slot's child (the +inf sentinel's, when
// the page has one) holds the smallest keys, so it is visited first.
// Only the order of leaf keys is checked; separator keys are not
// compared against the children they route to.
func (s *Store) traverse(pid PageId, prevKey *[]byte, height uint32) (uint64, error) {
	pin, err := s.getPage(pid, accessReadOnly)
	if err != nil {
		return 0, err
	}
	defer pin.Release()
	slot := &s.pool[pin.buf]
	slot.mu.RLock()
	defer slot.mu.RUnlock()

	n := slot.page.NItems()
	var count uint64

	if height == 1 {
		for i := n; i > 0; i-- {
			idx := i - 1
			if slot.page.CompareKey(idx, *prevKey) != Greater {
				return 0, ErrInvariantViolated
			}
			key, _ := slot.page.GetItem(idx)
			*prevKey = key
		}
		return uint64(n), nil
	}

	for i := n; i > 0; i-- {
		idx := i - 1
		sub, err := s.traverse(slot.page.GetChild(idx), prevKey, height-1)
		if err != nil {
			return 0, err
		}
		count += sub
	}
	return count, nil
}
