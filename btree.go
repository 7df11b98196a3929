package gokv

// btreeAllocateLeafPage allocates a new leaf page holding a single
// (key, value) item.
func (s *Store) btreeAllocateLeafPage(db *database, key, value []byte) (PageId, error) {
	pin, err := s.newPage(db)
	if err != nil {
		return NonePage, err
	}
	defer pin.Release()
	slot := &s.pool[pin.buf]
	slot.mu.Lock()
	defer slot.mu.Unlock()
	slot.page.SetNItems(0)
	slot.page.InsertItem(0, key, value)
	return pin.pid, nil
}

// btreeAllocateInternalPage allocates a new internal page referencing
// two children: leftChild under key, and rightChild under the +inf
// sentinel.
func (s *Store) btreeAllocateInternalPage(db *database, key []byte, leftChild, rightChild PageId) (PageId, error) {
	pin, err := s.newPage(db)
	if err != nil {
		return NonePage, err
	}
	defer pin.Release()
	slot := &s.pool[pin.buf]
	slot.mu.Lock()
	defer slot.mu.Unlock()
	slot.page.SetNItems(0)
	var childBuf [4]byte
	putPageId(childBuf[:], leftChild)
	slot.page.InsertItem(0, key, childBuf[:])
	putPageId(childBuf[:], rightChild)
	slot.page.InsertItem(1, nil, childBuf[:])
	return pin.pid, nil
}

// overflow describes the new sibling page produced when a B-tree page
// split during an insert, to be threaded into the parent page by the
// caller one level up.
type overflow struct {
	key   []byte
	child PageId
}

// btreeInsertInPage inserts (key, value) at slot ip of page, splitting
// it into a new page if it doesn't fit and returning the overflow
// (the new page's smallest key, which bounds its range from below, and
// its id) for the caller to insert into the parent.
func (s *Store) btreeInsertInPage(db *database, slot *pageSlot, ip uint32, key, value []byte) (*overflow, error) {
	if slot.page.InsertItem(ip, key, value) {
		return nil, nil
	}
	pin, err := s.newPage(db)
	if err != nil {
		return nil, err
	}
	defer pin.Release()
	newSlot := &s.pool[pin.buf]
	newSlot.mu.Lock()
	defer newSlot.mu.Unlock()
	split := slot.page.Split(&newSlot.page, ip)
	var ok bool
	if ip > split {
		ok = slot.page.InsertItem(ip-split-1, key, value)
	} else {
		ok = newSlot.page.InsertItem(ip, key, value)
	}
	if !ok {
		return nil, ErrInvariantViolated
	}
	lastKey := append([]byte(nil), newSlot.page.GetLastKey()...)
	return &overflow{key: lastKey, child: pin.pid}, nil
}

// btreeInsert recursively descends to the leaf owning key, inserting
// or replacing it, and propagates a split back up as an overflow.
func (s *Store) btreeInsert(db *database, pid PageId, key, value []byte, height uint32) (*overflow, error) {
	pin, err := s.getPage(pid, accessReadOnly)
	if err != nil {
		return nil, err
	}
	defer pin.Release()
	slot := &s.pool[pin.buf]
	slot.mu.Lock()
	defer slot.mu.Unlock()

	r := slot.page.FindSlot(key)
	n := slot.page.NItems()

	if height == 1 {
		if err := s.modifyPage(db, pin.buf); err != nil {
			return nil, err
		}
		if r < n && slot.page.CompareKey(r, key) == Equal {
			slot.page.RemoveKey(r, true)
		}
		return s.btreeInsertInPage(db, slot, r, key, value)
	}
	child := slot.page.GetChild(r)
	over, err := s.btreeInsert(db, child, key, value, height-1)
	if err != nil {
		return nil, err
	}
	if over == nil {
		return nil, nil
	}
	if err := s.modifyPage(db, pin.buf); err != nil {
		return nil, err
	}
	var childBuf [4]byte
	putPageId(childBuf[:], over.child)
	return s.btreeInsertInPage(db, slot, r, over.key, childBuf[:])
}

// btreeRemove recursively descends to the leaf owning key and removes
// it if present, reporting underflow (the page became empty) up to the
// caller so it can unlink the child pointer.
func (s *Store) btreeRemove(db *database, pid PageId, key []byte, height uint32) (bool, error) {
	pin, err := s.getPage(pid, accessReadOnly)
	if err != nil {
		return false, err
	}
	defer pin.Release()
	slot := &s.pool[pin.buf]
	slot.mu.Lock()
	defer slot.mu.Unlock()

	r := slot.page.FindSlot(key)
	n := slot.page.NItems()

	if height == 1 {
		if r < n && slot.page.CompareKey(r, key) == Equal {
			if err := s.modifyPage(db, pin.buf); err != nil {
				return false, err
			}
			slot.page.RemoveKey(r, true)
		}
	} else {
		child := slot.page.GetChild(r)
		underflow, err := s.btreeRemove(db, child, key, height-1)
		if err != nil {
			return false, err
		}
		if underflow {
			if err := s.modifyPage(db, pin.buf); err != nil {
				return false, err
			}
			slot.page.RemoveKey(r, false)
		}
	}
	if slot.page.NItems() == 0 {
		putPageId(slot.page.Data[0:4], db.meta.Free)
		db.meta.Free = pid
		db.metaUpdated = true
		return true, nil
	}
	return false, nil
}

// find locates key starting from the subtree rooted at pid, returning
// its value, or nil if it is not present.
func (s *Store) find(pid PageId, key []byte, height uint32) ([]byte, error) {
	if pid == NonePage {
		return nil, nil
	}
	pin, err := s.getPage(pid, accessReadOnly)
	if err != nil {
		return nil, err
	}
	defer pin.Release()
	slot := &s.pool[pin.buf]
	slot.mu.RLock()
	defer slot.mu.RUnlock()

	r := slot.page.FindSlot(key)
	n := slot.page.NItems()

	if height == 1 {
		if r < n {
			itemKey, value := slot.page.GetItem(r)
			if string(itemKey) == string(key) {
				return value, nil
			}
		}
		return nil, nil
	}
	for r < n {
		child := slot.page.GetChild(r)
		value, err := s.find(child, key, height-1)
		if err != nil {
			return nil, err
		}
		if value != nil {
			return value, nil
		}
		r++
	}
	return nil, nil
}

// doUpsert inserts or updates key within the transaction carried by db.
func (s *Store) doUpsert(db *database, key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(key) > MaxKeyLen {
		return ErrKeyTooLarge
	}
	if len(value) > MaxValueLen {
		return ErrValueTooLarge
	}
	if db.meta.Root == NonePage {
		root, err := s.btreeAllocateLeafPage(db, key, value)
		if err != nil {
			return err
		}
		db.meta.Root = root
		db.meta.Height = 1
		db.metaUpdated = true
		return nil
	}
	over, err := s.btreeInsert(db, db.meta.Root, key, value, db.meta.Height)
	if err != nil {
		return err
	}
	if over != nil {
		root, err := s.btreeAllocateInternalPage(db, over.key, over.child, db.meta.Root)
		if err != nil {
			return err
		}
		db.meta.Root = root
		db.meta.Height++
		db.metaUpdated = true
	}
	return nil
}

// doRemove removes key within the transaction carried by db. A missing
// key is not an error.
func (s *Store) doRemove(db *database, key []byte) error {
	if db.meta.Root == NonePage {
		return nil
	}
	underflow, err := s.btreeRemove(db, db.meta.Root, key, db.meta.Height)
	if err != nil {
		return err
	}
	if underflow {
		db.meta.Height = 0
		db.meta.Root = NonePage
		db.metaUpdated = true
	}
	return nil
}
