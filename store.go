package gokv

import (
	"hash/crc32"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// DatabaseState tracks the lifecycle of a Store's in-memory Database
// record.
type DatabaseState int

const (
	StateInRecovery DatabaseState = iota
	StateOpened
	StateClosed
	StateCorrupted
)

func (s DatabaseState) String() string {
	switch s {
	case StateInRecovery:
		return "in-recovery"
	case StateOpened:
		return "opened"
	case StateClosed:
		return "closed"
	case StateCorrupted:
		return "corrupted"
	default:
		return "unknown"
	}
}

// database is the mutable state shared by every in-progress
// transaction: the cached metadata header, the WAL write cursor, and
// the running CRC of the transaction currently being appended to the
// WAL. Guarded by Store.dbMu.
type database struct {
	meta        Metadata
	metaUpdated bool
	state       DatabaseState
	walPos      uint64
	txCRC       uint32
	txSize      int
}

type accessMode int

const (
	accessReadOnly accessMode = iota
	accessWriteOnly
)

// pageSlot pairs one buffer pool slot's page bytes with the RWMutex
// that serializes access to them, independent of the BufferManager
// mutex that protects pin counts and list membership.
type pageSlot struct {
	mu   sync.RWMutex
	page PageImage
}

// Store is an open key-value database: the buffer pool, the WAL and
// data files, and the single Database record that every transaction
// reads and mutates under Store.dbMu.
//
// Lock order, always acquired outermost-first: dbMu, then bufMu, then
// a pageSlot's own mu.
type Store struct {
	dbMu sync.RWMutex
	db   database

	bufMu      sync.Mutex
	bufMgr     *BufferManager
	busyEvents [NBusyEvents]*sync.Cond

	pool []pageSlot

	// instanceID distinguishes one open's worth of log lines from the
	// next when a data file is opened, closed, and reopened repeatedly
	// (e.g. across crash-recovery tests or process restarts).
	instanceID uuid.UUID

	conf   StoreConfig
	file   FileIO
	log    FileIO
	hasWAL bool

	logger  zerolog.Logger
	metrics *Metrics
	// registry is non-nil only when OpenStore was called without an
	// externally supplied Metrics, in which case Store owns a private
	// prometheus.Registry an embedding application can still reach via
	// Registry() and expose however it likes (gokv starts no listener).
	registry *prometheus.Registry
}

// Metrics returns the Store's prometheus counters and gauges.
func (s *Store) Metrics() *Metrics { return s.metrics }

// Registry returns the private registry Store created for itself, or
// nil if the caller supplied its own Metrics to OpenStore.
func (s *Store) Registry() *prometheus.Registry { return s.registry }

// pageGuard pins a buffer for the duration of a page access. Callers
// must call Release exactly once, typically via defer.
type pageGuard struct {
	store *Store
	buf   BufferId
	pid   PageId
}

func (g *pageGuard) Release() {
	g.store.bufMu.Lock()
	g.store.bufMgr.ReleaseBuffer(g.buf)
	g.store.bufMu.Unlock()
}

// OpenStore opens (creating if necessary) the data file named by
// conf.DataPath, and its WAL at conf.WALPath if one is configured, then
// replays any WAL left behind by an unclean shutdown.
//
// A missing WALPath disables the write-ahead log entirely: commits
// become a direct, unsynchronized write of dirty pages to the data
// file, trading durability against power loss for throughput.
func OpenStore(conf StoreConfig, logger zerolog.Logger, metrics *Metrics) (*Store, error) {
	file, existed, err := openDataFile(conf.DataPath)
	if err != nil {
		return nil, err
	}
	var log FileIO
	if conf.WALPath != "" {
		log, err = openWALFile(conf.WALPath)
		if err != nil {
			file.Close()
			return nil, err
		}
	}
	return openStoreWithFiles(conf, file, log, existed, logger, metrics)
}

// openStoreWithFiles builds a Store from already-open data/WAL handles.
// Split out of OpenStore so tests can substitute an in-memory FileIO
// (see github.com/dsnet/golib/memfile) without touching the filesystem.
func openStoreWithFiles(conf StoreConfig, file, log FileIO, existed bool, logger zerolog.Logger, metrics *Metrics) (*Store, error) {
	var meta Metadata
	buf := make([]byte, PageSize)
	if existed {
		if _, err := file.ReadAt(buf, 0); err != nil {
			file.Close()
			return nil, err
		}
		meta = UnpackMetadata(buf)
		if meta.Size < 1 {
			file.Close()
			return nil, ErrCorruptedMeta
		}
	} else {
		meta = Metadata{Free: NonePage, Size: 1, Root: NonePage, Height: 0}
		packed := meta.Pack()
		copy(buf, packed[:])
		if _, err := file.WriteAt(buf, 0); err != nil {
			file.Close()
			return nil, err
		}
	}

	hasWAL := log != nil

	var registry *prometheus.Registry
	if metrics == nil {
		// No shared registry was supplied: own a private one so an
		// embedding application can still reach it via Store.Metrics
		// and Store.Registry, without gokv ever starting an HTTP
		// listener of its own.
		registry = prometheus.NewRegistry()
		metrics = NewMetrics(registry)
	}

	st := &Store{
		bufMgr:     NewBufferManager(conf.CacheSize),
		pool:       make([]pageSlot, conf.CacheSize),
		instanceID: uuid.New(),
		conf:       conf,
		file:       file,
		log:        log,
		hasWAL:     hasWAL,
		logger:     logger,
		metrics:    metrics,
		registry:   registry,
		db: database{
			meta:  meta,
			state: StateInRecovery,
		},
	}
	st.bufMgr.cached = 1
	st.bufMgr.pinned = 1
	for i := range st.busyEvents {
		st.busyEvents[i] = sync.NewCond(&st.bufMu)
	}

	if err := st.recovery(); err != nil {
		file.Close()
		if log != nil {
			log.Close()
		}
		return nil, err
	}
	st.logger.Info().Str("instance_id", st.instanceID.String()).Str("path", conf.DataPath).
		Uint32("root", uint32(st.db.meta.Root)).Uint32("height", st.db.meta.Height).Msg("store opened")
	return st, nil
}

// releasePage is called by pageGuard.Release.
func (s *Store) releasePage(buf BufferId) {
	s.bufMu.Lock()
	s.bufMgr.ReleaseBuffer(buf)
	s.bufMu.Unlock()
}

// newPage allocates a fresh page, either recycling the head of the
// on-disk free list or extending the data file, and returns it pinned
// and marked dirty.
func (s *Store) newPage(db *database) (*pageGuard, error) {
	s.bufMu.Lock()
	free := db.meta.Free
	var buf BufferId
	var err error
	if free != NonePage {
		buf, err = s.bufMgr.GetBuffer(free)
		if err != nil {
			s.bufMu.Unlock()
			return nil, err
		}
		slot := &s.pool[buf]
		slot.mu.Lock()
		if s.bufMgr.pages[buf].State&PageRaw != 0 {
			if _, err := s.file.ReadAt(slot.page.Data[:], int64(free)*PageSize); err != nil {
				slot.mu.Unlock()
				s.bufMu.Unlock()
				return nil, err
			}
		}
		db.meta.Free = getPageId(slot.page.Data[:4])
		for i := range slot.page.Data {
			slot.page.Data[i] = 0
		}
		slot.mu.Unlock()
	} else {
		buf, err = s.bufMgr.GetBuffer(PageId(db.meta.Size))
		if err != nil {
			s.bufMu.Unlock()
			return nil, err
		}
		db.meta.Size++
		slot := &s.pool[buf]
		slot.mu.Lock()
		for i := range slot.page.Data {
			slot.page.Data[i] = 0
		}
		slot.mu.Unlock()
	}
	db.metaUpdated = true
	if err := s.modifyBufferLocked(db, buf); err != nil {
		s.bufMu.Unlock()
		return nil, err
	}
	pid := s.bufMgr.pages[buf].Pid
	s.bufMu.Unlock()
	return &pageGuard{store: s, buf: buf, pid: pid}, nil
}

// getPage pins the buffer caching pid, loading it from disk if needed,
// and waiting out any concurrent load by another goroutine.
func (s *Store) getPage(pid PageId, mode accessMode) (*pageGuard, error) {
	s.bufMu.Lock()
	evictionsBefore := s.bufMgr.Evictions
	buf, err := s.bufMgr.GetBuffer(pid)
	if err != nil {
		s.bufMu.Unlock()
		return nil, err
	}
	if s.metrics != nil {
		if s.bufMgr.pages[buf].State&PageRaw != 0 {
			s.metrics.CacheMisses.Inc()
		} else {
			s.metrics.CacheHits.Inc()
		}
		if s.bufMgr.Evictions != evictionsBefore {
			s.metrics.PagesEvicted.Add(float64(s.bufMgr.Evictions - evictionsBefore))
		}
	}
	if s.bufMgr.pages[buf].State&PageBusy != 0 {
		s.bufMgr.pages[buf].State |= PageWait
		for s.bufMgr.pages[buf].State&PageBusy != 0 {
			s.busyEvents[uint32(buf)%NBusyEvents].Wait()
		}
	} else if s.bufMgr.pages[buf].State&PageRaw != 0 {
		if mode != accessWriteOnly {
			s.bufMgr.pages[buf].State = PageBusy
			s.bufMu.Unlock() // read without holding the manager lock
			slot := &s.pool[buf]
			slot.mu.Lock()
			_, err := s.file.ReadAt(slot.page.Data[:], int64(pid)*PageSize)
			slot.mu.Unlock()
			s.bufMu.Lock()
			if err != nil {
				s.bufMu.Unlock()
				return nil, err
			}
			if s.bufMgr.pages[buf].State&PageWait != 0 {
				s.busyEvents[uint32(buf)%NBusyEvents].Broadcast()
			}
		}
		s.bufMgr.pages[buf].State = 0
	}
	if mode != accessReadOnly {
		// Pin dirty in memory; the eager WAL write (if any) happens via
		// the explicit modifyPage call the B-tree layer makes once it
		// actually touches the page, not here.
		s.bufMgr.ModifyBuffer(buf, BufferId(^uint32(0)))
	}
	s.bufMu.Unlock()
	return &pageGuard{store: s, buf: buf, pid: pid}, nil
}

// modifyBufferLocked marks buf dirty and, if the flush threshold has
// been crossed, writes out the least recently dirtied eligible buffer
// to the WAL. Callers must already hold bufMu.
func (s *Store) modifyBufferLocked(db *database, buf BufferId) error {
	syncBuf, syncPid, ok := s.bufMgr.ModifyBuffer(buf, s.conf.WalFlushThreshold)
	if s.metrics != nil {
		s.metrics.DirtyBuffers.Set(float64(s.bufMgr.dirtied))
	}
	if ok {
		return s.writePageToWAL(db, syncBuf, syncPid)
	}
	return nil
}

// modifyPage is the external entry point used by the B-tree layer:
// mark a page dirty and pin it for the remainder of the transaction.
func (s *Store) modifyPage(db *database, buf BufferId) error {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	return s.modifyBufferLocked(db, buf)
}

// writePageToWAL appends one page image to the WAL, accumulating its
// bytes into the transaction's running CRC. A no-op when the store was
// opened without a WAL path. Callers must hold bufMu.
func (s *Store) writePageToWAL(db *database, buf BufferId, pid PageId) error {
	if !s.hasWAL {
		return nil
	}
	rec := make([]byte, 4+PageSize)
	putPageId(rec[0:4], pid)
	slot := &s.pool[buf]
	slot.mu.RLock()
	copy(rec[4:], slot.page.Data[:])
	slot.mu.RUnlock()

	db.txCRC = crc32.Update(db.txCRC, crc32cTable, rec)
	if _, err := s.log.WriteAt(rec, int64(db.walPos)); err != nil {
		return err
	}
	db.walPos += uint64(len(rec))
	db.txSize += len(rec)
	if s.metrics != nil {
		s.metrics.WALBytesWritten.Add(float64(len(rec)))
	}
	return nil
}

// commit seals the current transaction: it writes any not-yet-synced
// dirty pages (plus the updated metadata page) to the WAL as a single
// CRC-sealed record, fsyncs the WAL, flushes the dirty pages to the
// data file, and checkpoints (fsyncing the data file and rewinding the
// WAL) once the WAL has grown past CheckpointInterval.
func (s *Store) commit(db *database) error {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	if db.metaUpdated {
		packed := db.meta.Pack()
		slot := &s.pool[0]
		slot.mu.Lock()
		copy(slot.page.Data[:MetaSize], packed[:])
		slot.mu.Unlock()
	}

	if s.hasWAL {
		for dirty := s.bufMgr.dirtyPages; dirty != NoneBuffer; dirty = s.bufMgr.pages[dirty].Next {
			if s.bufMgr.pages[dirty].State&PageSynced != 0 {
				continue
			}
			if err := s.writePageToWAL(db, dirty, s.bufMgr.pages[dirty].Pid); err != nil {
				return err
			}
		}
		if s.bufMgr.dirtyPages != NoneBuffer {
			trailer := make([]byte, 8+MetaSize)
			slot := &s.pool[0]
			slot.mu.RLock()
			copy(trailer[4:4+MetaSize], slot.page.Data[:MetaSize])
			slot.mu.RUnlock()
			crc := crc32.Update(db.txCRC, crc32cTable, trailer[:4+MetaSize])
			putPageId(trailer[4+MetaSize:], PageId(crc))
			if _, err := s.log.WriteAt(trailer, int64(db.walPos)); err != nil {
				return err
			}
			db.walPos += uint64(len(trailer))
			if s.metrics != nil {
				s.metrics.WALBytesWritten.Add(float64(len(trailer)))
			}
			if err := s.log.Sync(); err != nil {
				return err
			}
			db.txCRC = 0
			db.txSize = 0

			if _, err := s.flushBuffersLocked(db.metaUpdated); err != nil {
				return err
			}
			if db.walPos >= s.conf.CheckpointInterval {
				if err := s.file.Sync(); err != nil {
					return err
				}
				db.walPos = 0
				if s.metrics != nil {
					s.metrics.Checkpoints.Inc()
				}
			}
		}
	} else {
		if _, err := s.flushBuffersLocked(db.metaUpdated); err != nil {
			return err
		}
	}
	db.metaUpdated = false
	if s.metrics != nil {
		s.metrics.Commits.Inc()
	}
	return nil
}

// flushBuffersLocked writes every dirty buffer to the data file and
// returns whether anything was written. Callers must hold bufMu.
func (s *Store) flushBuffersLocked(saveMeta bool) (bool, error) {
	dirty := s.bufMgr.dirtyPages
	if saveMeta {
		slot := &s.pool[0]
		slot.mu.RLock()
		_, err := s.file.WriteAt(slot.page.Data[:], 0)
		slot.mu.RUnlock()
		if err != nil {
			return false, err
		}
	}
	for dirty != NoneBuffer {
		pid := s.bufMgr.pages[dirty].Pid
		slot := &s.pool[dirty]
		slot.mu.RLock()
		_, err := s.file.WriteAt(slot.page.Data[:], int64(pid)*PageSize)
		slot.mu.RUnlock()
		if err != nil {
			return false, err
		}
		next := s.bufMgr.pages[dirty].Next
		s.bufMgr.pages[dirty].State = 0
		s.bufMgr.unpin(dirty)
		dirty = next
	}
	if s.bufMgr.dirtyPages != NoneBuffer {
		s.bufMgr.dirtyPages = NoneBuffer
		s.bufMgr.dirtied = 0
		s.bufMgr.nextSync = NoneBuffer
		if s.metrics != nil {
			s.metrics.DirtyBuffers.Set(0)
		}
		return true, nil
	}
	return false, nil
}

// rollback discards every dirty buffer from the pool (forcing a fresh
// read of the original page contents on next access), rewinds the WAL
// write cursor past whatever this transaction had appended, and
// restores the cached metadata from disk if it had been modified.
func (s *Store) rollback(db *database) error {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	dirty := s.bufMgr.dirtyPages
	for dirty != NoneBuffer {
		next := s.bufMgr.pages[dirty].Next
		s.bufMgr.ThrowBuffer(dirty)
		dirty = next
	}
	s.bufMgr.dirtyPages = NoneBuffer
	s.bufMgr.dirtied = 0
	s.bufMgr.nextSync = NoneBuffer
	db.walPos -= uint64(db.txSize)
	db.txCRC = 0
	db.txSize = 0

	if db.metaUpdated {
		slot := &s.pool[0]
		slot.mu.Lock()
		_, err := s.file.ReadAt(slot.page.Data[:], 0)
		if err == nil {
			db.meta = UnpackMetadata(slot.page.Data[:MetaSize])
		}
		slot.mu.Unlock()
		db.metaUpdated = false
		if err != nil {
			return err
		}
	}
	if s.metrics != nil {
		s.metrics.Rollbacks.Inc()
	}
	return nil
}

// recovery replays the WAL, if any, stopping at the first incomplete
// or CRC-mismatched transaction and rolling back that tail, then
// truncates the WAL and reloads the metadata page.
func (s *Store) recovery() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.hasWAL {
		var head [4]byte
		var crc uint32
		var walPos uint64
		for {
			n, err := s.log.ReadAt(head[:], int64(walPos))
			if err != nil || n != 4 {
				break
			}
			walPos += 4
			pid := getPageId(head[:])
			crc = crc32.Update(crc, crc32cTable, head[:])
			if pid != NonePage {
				pin, err := s.getPage(pid, accessWriteOnly)
				if err != nil {
					break
				}
				slot := &s.pool[pin.buf]
				slot.mu.Lock()
				n, err := s.log.ReadAt(slot.page.Data[:], int64(walPos))
				slot.mu.Unlock()
				pin.Release()
				if err != nil || n != PageSize {
					break
				}
				walPos += uint64(n)
				slot.mu.RLock()
				crc = crc32.Update(crc, crc32cTable, slot.page.Data[:])
				slot.mu.RUnlock()
			} else {
				metaBuf := make([]byte, MetaSize)
				n, err := s.log.ReadAt(metaBuf, int64(walPos))
				if err != nil || n != MetaSize {
					break
				}
				walPos += uint64(n)
				crc = crc32.Update(crc, crc32cTable, metaBuf)
				var trailerCRC [4]byte
				n, err = s.log.ReadAt(trailerCRC[:], int64(walPos))
				if err != nil || n != 4 {
					break
				}
				walPos += 4
				if uint32(getPageId(trailerCRC[:])) != crc {
					break
				}
				slot := &s.pool[0]
				slot.mu.Lock()
				copy(slot.page.Data[:MetaSize], metaBuf)
				slot.mu.Unlock()
				s.db.metaUpdated = true
				s.bufMu.Lock()
				_, ferr := s.flushBuffersLocked(true)
				s.bufMu.Unlock()
				s.db.metaUpdated = false
				if ferr != nil {
					return ferr
				}
				crc = 0
			}
		}
		if err := s.rollback(&s.db); err != nil {
			return err
		}
		if err := s.file.Sync(); err != nil {
			return err
		}
		s.db.walPos = 0
		if err := s.log.Truncate(0); err != nil {
			return err
		}
	}
	slot := &s.pool[0]
	slot.mu.Lock()
	_, err := s.file.ReadAt(slot.page.Data[:], 0)
	if err == nil {
		s.db.meta = UnpackMetadata(slot.page.Data[:MetaSize])
	}
	slot.mu.Unlock()
	if err != nil {
		return err
	}
	s.db.state = StateOpened
	return nil
}

// Close commits any transaction left open by a delayed commit,
// flushes and fsyncs the data file, truncates the WAL, and marks the
// store closed. Safe to call more than once.
func (s *Store) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if s.db.state != StateOpened {
		return nil
	}
	s.bufMu.Lock()
	delayedCommit := s.bufMgr.dirtyPages != NoneBuffer
	s.bufMu.Unlock()
	if delayedCommit {
		if err := s.commit(&s.db); err != nil {
			return err
		}
	}
	if err := s.file.Sync(); err != nil {
		return err
	}
	if s.hasWAL {
		if err := s.log.Truncate(0); err != nil {
			return err
		}
	}
	s.db.state = StateClosed

	closeErr := s.file.Close()
	if s.hasWAL {
		if err := s.log.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	s.logger.Info().Msg("store closed")
	return closeErr
}

// Shutdown marks the store closed without committing, flushing, or
// truncating anything, for callers that have already ensured
// durability out of band (e.g. a crash-test harness).
func (s *Store) Shutdown() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if s.db.state != StateOpened {
		return ErrUseAfterClose
	}
	s.db.state = StateClosed
	return nil
}

// Get looks up key outside of any explicit transaction.
func (s *Store) Get(key []byte) ([]byte, error) {
	s.dbMu.RLock()
	root, height := s.db.meta.Root, s.db.meta.Height
	s.dbMu.RUnlock()
	return s.find(root, key, height)
}

// StartTransaction begins an explicit transaction, taking the store's
// write lock for its duration.
func (s *Store) StartTransaction() *Transaction {
	s.dbMu.Lock()
	return &Transaction{store: s, status: txInProgress, id: uuid.New()}
}
