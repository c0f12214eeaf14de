package statedb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/hash"
)

var (
	// ErrNoSuchRevision is returned by SetRevision when undo history exists.
	ErrNoSuchRevision = errors.New("statedb: cannot set revision while undo history exists")
)

// undoRecord is one level of the undo stack: the snapshot to restore if the
// level is undone, tagged with the revision the level produced.
type undoRecord struct {
	revision int64
	snapshot *state
	pushed   bool
}

// DB is the versioned object store. All mutation flows through the writer
// lock; undo sessions stack on top of each other and unwind LIFO.
type DB struct {
	mu   sync.RWMutex
	cur  *state
	undo []undoRecord
	// revision of the newest state (base revision plus open/pushed levels)
	revision int64
}

// New creates an empty store at revision 0.
func New() *DB {
	return &DB{cur: newState()}
}

// WithWriteLock runs fn holding the exclusive writer lock. Every mutating
// controller operation runs under it for the full call.
func (db *DB) WithWriteLock(fn func() error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn()
}

// WithReadLock runs fn holding a shared reader lock.
func (db *DB) WithReadLock(fn func() error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn()
}

// Revision returns the current revision.
func (db *DB) Revision() int64 {
	return db.revision
}

// SetRevision forces the base revision. Only legal with no undo history.
func (db *DB) SetRevision(n int64) error {
	if len(db.undo) != 0 {
		return ErrNoSuchRevision
	}
	db.revision = n
	return nil
}

// Session is one level of the undo stack. A session observes the effects
// of its enclosing session; its changes become permanent only through Push
// (new commit point) or Squash (merged into the level below). Discarding a
// session that was neither pushed nor squashed reverts its delta.
type Session struct {
	db   *DB
	rev  int64
	done bool
}

// StartUndoSession opens a new session. A disabled session is a no-op
// handle whose Push/Squash/Discard do nothing.
func (db *DB) StartUndoSession(enabled bool) *Session {
	if !enabled {
		return &Session{done: true}
	}
	db.revision++
	db.undo = append(db.undo, undoRecord{
		revision: db.revision,
		snapshot: db.cur.clone(),
	})
	return &Session{db: db, rev: db.revision}
}

func (s *Session) top() *undoRecord {
	t := &s.db.undo[len(s.db.undo)-1]
	if t.revision != s.rev || t.pushed {
		panic(fmt.Sprintf("statedb: session %d is not the innermost live session", s.rev))
	}
	return t
}

// Push transfers the session's changes to the enclosing session (or to the
// committed history if outermost), keeping its revision as a commit point
// that Undo can later unwind.
func (s *Session) Push() {
	if s.done {
		return
	}
	s.top().pushed = true
	s.done = true
}

// Squash merges the session with the level below without creating a new
// commit point.
func (s *Session) Squash() {
	if s.done {
		return
	}
	s.top()
	s.db.undo = s.db.undo[:len(s.db.undo)-1]
	s.db.revision--
	s.done = true
}

// Undo reverts the session's delta.
func (s *Session) Undo() {
	if s.done {
		return
	}
	t := s.top()
	s.db.cur = t.snapshot
	s.db.undo = s.db.undo[:len(s.db.undo)-1]
	s.db.revision--
	s.done = true
}

// Discard reverts the session unless it was pushed or squashed. Meant for
// defer.
func (s *Session) Discard() {
	s.Undo()
}

// Undo reverts the newest revision of the store (a previously pushed
// session).
func (db *DB) Undo() error {
	if len(db.undo) == 0 {
		return errors.New("statedb: nothing to undo")
	}
	t := db.undo[len(db.undo)-1]
	db.cur = t.snapshot
	db.undo = db.undo[:len(db.undo)-1]
	db.revision--
	return nil
}

// UndoAll reverts every revision in the undo history.
func (db *DB) UndoAll() error {
	for len(db.undo) != 0 {
		if err := db.Undo(); err != nil {
			return err
		}
	}
	return nil
}

// Commit irrevocably discards undo records with revision <= rev; those
// changes can no longer be unwound. A still-open session is never
// committed, even if irreversibility already reached its revision: its
// record is dropped by a later Commit once it has been pushed.
func (db *DB) Commit(rev int64) {
	i := 0
	for i < len(db.undo) && db.undo[i].revision <= rev && db.undo[i].pushed {
		i++
	}
	if i > 0 {
		db.undo = append([]undoRecord(nil), db.undo[i:]...)
	}
}

// Flush is a durability point for on-disk backends; the in-memory store
// has nothing to do.
func (db *DB) Flush() {}

// Fingerprint hashes the entire current state deterministically.
func (db *DB) Fingerprint() hash.Hash {
	return db.cur.fingerprint()
}
