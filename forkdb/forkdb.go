// Package forkdb maintains the in-memory DAG of candidate blocks that have
// not yet become irreversible. The database owns every fork item; an item
// references its parent by id only (a non-owning lookup key), so pruning a
// parent can never leave dangling ownership.
package forkdb

import (
	"errors"
	"fmt"

	"github.com/rony4d/go-dawn-chain/inter"
)

var (
	// ErrUnknownBlock is returned when an id is not present in the
	// database.
	ErrUnknownBlock = errors.New("forkdb: unknown block")
	// ErrUnlinkableBlock is returned when a pushed block's parent is
	// unknown.
	ErrUnlinkableBlock = errors.New("forkdb: unlinkable block")
	// ErrBranchesDiverge is returned by FetchBranchFrom when the two walks
	// do not meet at a common ancestor.
	ErrBranchesDiverge = errors.New("forkdb: branches have no common ancestor")
)

// Item is one candidate block in the fork tree. Prev is the parent's id,
// resolved through the database at access time.
type Item struct {
	ID    inter.BlockID
	Num   uint32
	Prev  inter.BlockID
	Block *inter.SignedBlock
}

// DB is the fork database.
type DB struct {
	index   map[inter.BlockID]*Item
	byNum   map[uint32][]*Item
	head    *Item
	maxSize uint32
}

// New creates an empty fork database retaining up to maxSize block
// numbers below head.
func New(maxSize uint32) *DB {
	return &DB{
		index:   make(map[inter.BlockID]*Item),
		byNum:   make(map[uint32][]*Item),
		maxSize: maxSize,
	}
}

// StartBlock seeds the database with a root item (the last irreversible
// block on startup). The root's parent is not required to be present.
func (db *DB) StartBlock(b *inter.SignedBlock) *Item {
	item := db.insert(b)
	db.head = item
	return item
}

// PushBlock inserts a block and returns the resulting longest-chain head:
// the highest-numbered item, ties broken by lexicographically smaller id.
func (db *DB) PushBlock(b *inter.SignedBlock) (*Item, error) {
	if len(db.index) > 0 {
		if _, ok := db.index[b.Previous]; !ok {
			return nil, fmt.Errorf("%w: %s at %d", ErrUnlinkableBlock, b.ID(), b.Num())
		}
	}
	if _, ok := db.index[b.ID()]; !ok {
		item := db.insert(b)
		if db.head == nil || betterHead(item, db.head) {
			db.head = item
		}
	}
	db.prune()
	return db.head, nil
}

func (db *DB) insert(b *inter.SignedBlock) *Item {
	item := &Item{
		ID:    b.ID(),
		Num:   b.Num(),
		Prev:  b.Previous,
		Block: b,
	}
	db.index[item.ID] = item
	db.byNum[item.Num] = append(db.byNum[item.Num], item)
	return item
}

func betterHead(a, b *Item) bool {
	if a.Num != b.Num {
		return a.Num > b.Num
	}
	return lessID(a.ID, b.ID)
}

func lessID(a, b inter.BlockID) bool {
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Head returns the current longest-chain head, nil when empty.
func (db *DB) Head() *Item {
	return db.head
}

// SetHead forces the head item (used when a switch to a bad branch is
// rolled back).
func (db *DB) SetHead(item *Item) {
	db.head = item
}

// PopBlock moves the head to its parent (nil if the parent fell below the
// retained window). The popped item stays in the database so the abandoned
// branch can be re-applied later.
func (db *DB) PopBlock() {
	if db.head != nil {
		db.head = db.index[db.head.Prev]
	}
}

// FetchBlock returns the item with the given id, or nil.
func (db *DB) FetchBlock(id inter.BlockID) *Item {
	return db.index[id]
}

// IsKnownBlock reports whether the id is present.
func (db *DB) IsKnownBlock(id inter.BlockID) bool {
	_, ok := db.index[id]
	return ok
}

// FetchBranchFrom returns the two walks from a and b back to their common
// ancestor, ordered child to parent, with the ancestor itself excluded.
// The returned branches end at siblings whose Prev is the common ancestor.
func (db *DB) FetchBranchFrom(a, b inter.BlockID) ([]*Item, []*Item, error) {
	first := db.index[a]
	second := db.index[b]
	if first == nil || second == nil {
		return nil, nil, fmt.Errorf("%w: branch tip", ErrUnknownBlock)
	}

	var firstBranch, secondBranch []*Item
	for first.Num > second.Num {
		firstBranch = append(firstBranch, first)
		first = db.index[first.Prev]
		if first == nil {
			return nil, nil, ErrBranchesDiverge
		}
	}
	for second.Num > first.Num {
		secondBranch = append(secondBranch, second)
		second = db.index[second.Prev]
		if second == nil {
			return nil, nil, ErrBranchesDiverge
		}
	}
	for first.ID != second.ID {
		firstBranch = append(firstBranch, first)
		secondBranch = append(secondBranch, second)
		first = db.index[first.Prev]
		second = db.index[second.Prev]
		if first == nil || second == nil {
			return nil, nil, ErrBranchesDiverge
		}
	}
	return firstBranch, secondBranch, nil
}

// Remove deletes the item and all of its descendants (used to blacklist a
// branch that failed to apply).
func (db *DB) Remove(id inter.BlockID) {
	item, ok := db.index[id]
	if !ok {
		return
	}
	doomed := map[inter.BlockID]bool{id: true}
	// descendants have strictly higher numbers; sweep upwards
	for num := item.Num + 1; ; num++ {
		level := db.byNum[num]
		if len(level) == 0 {
			break
		}
		found := false
		for _, it := range level {
			if doomed[it.Prev] {
				doomed[it.ID] = true
				found = true
			}
		}
		if !found {
			break
		}
	}
	for did := range doomed {
		db.remove(did)
	}
	if db.head != nil && doomed[db.head.ID] {
		db.head = db.bestRemaining()
	}
}

func (db *DB) remove(id inter.BlockID) {
	item, ok := db.index[id]
	if !ok {
		return
	}
	delete(db.index, id)
	level := db.byNum[item.Num]
	for i, it := range level {
		if it.ID == id {
			db.byNum[item.Num] = append(level[:i], level[i+1:]...)
			break
		}
	}
	if len(db.byNum[item.Num]) == 0 {
		delete(db.byNum, item.Num)
	}
}

func (db *DB) bestRemaining() *Item {
	var best *Item
	for _, it := range db.index {
		if best == nil || betterHead(it, best) {
			best = it
		}
	}
	return best
}

// SetMaxSize bounds the depth of retained history below head and prunes
// items that fall outside the window.
func (db *DB) SetMaxSize(n uint32) {
	db.maxSize = n
	db.prune()
}

func (db *DB) prune() {
	if db.head == nil || db.maxSize == 0 {
		return
	}
	if db.head.Num <= db.maxSize {
		return
	}
	min := db.head.Num - db.maxSize
	for num, level := range db.byNum {
		if num >= min {
			continue
		}
		for _, it := range level {
			delete(db.index, it.ID)
		}
		delete(db.byNum, num)
	}
}
