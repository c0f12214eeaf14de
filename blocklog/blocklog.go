// Package blocklog implements the append-only log of irreversible blocks.
// The log is the public witness of finality: entries are never rewritten,
// and only blocks below the irreversibility threshold reach it, so fork
// divergence below the log tail is impossible.
//
// On-disk format: a single blocks.log file of length-framed rlp entries,
// [8-byte big-endian payload length][rlp(SignedBlock)]... The index by
// number and id is rebuilt by scanning on open.
package blocklog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/rony4d/go-dawn-chain/inter"
)

var (
	// ErrAppendOutOfOrder is returned when the appended block's number is
	// not head+1.
	ErrAppendOutOfOrder = errors.New("blocklog: append out of order")
	// ErrMalformed is returned when the log file fails to parse on open.
	ErrMalformed = errors.New("blocklog: malformed log file")
)

const fileName = "blocks.log"

// Log is an open block log. Not safe for concurrent use; the controller
// serializes access under its writer lock.
type Log struct {
	file *os.File

	// offsets[i] is the file offset of block number firstNum+i
	offsets  []int64
	byID     map[inter.BlockID]uint32
	firstNum uint32
	head     *inter.SignedBlock
	readOnly bool
}

// Open opens (or creates) the block log in dir and rebuilds its index.
func Open(dir string, readOnly bool) (*Log, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	flags := os.O_RDWR | os.O_CREATE
	if readOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(filepath.Join(dir, fileName), flags, 0600)
	if err != nil && readOnly && os.IsNotExist(err) {
		f, err = os.OpenFile(filepath.Join(dir, fileName), os.O_RDONLY|os.O_CREATE, 0600)
	}
	if err != nil {
		return nil, err
	}

	l := &Log{
		file:     f,
		byID:     make(map[inter.BlockID]uint32),
		firstNum: 1,
		readOnly: readOnly,
	}
	if err := l.scan(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

// scan walks the file sequentially, rebuilding the offset and id indexes.
func (l *Log) scan() error {
	offset := int64(0)
	var lenBuf [8]byte
	for {
		_, err := l.file.ReadAt(lenBuf[:], offset)
		if err == io.EOF {
			break
		}
		if err != nil {
			if err == io.ErrUnexpectedEOF {
				return ErrMalformed
			}
			return err
		}
		size := bigendian.BytesToUint64(lenBuf[:])
		block, err := l.readAt(offset)
		if err != nil {
			return err
		}
		num := block.Num()
		if len(l.offsets) == 0 {
			l.firstNum = num
		} else if num != l.firstNum+uint32(len(l.offsets)) {
			return fmt.Errorf("%w: block %d after %d", ErrMalformed, num, l.headNum())
		}
		l.offsets = append(l.offsets, offset)
		l.byID[block.ID()] = num
		l.head = block
		offset += 8 + int64(size)
	}
	return nil
}

func (l *Log) headNum() uint32 {
	if len(l.offsets) == 0 {
		return 0
	}
	return l.firstNum + uint32(len(l.offsets)) - 1
}

func (l *Log) readAt(offset int64) (*inter.SignedBlock, error) {
	var lenBuf [8]byte
	if _, err := l.file.ReadAt(lenBuf[:], offset); err != nil {
		return nil, err
	}
	size := bigendian.BytesToUint64(lenBuf[:])
	payload := make([]byte, size)
	if _, err := l.file.ReadAt(payload, offset+8); err != nil {
		return nil, err
	}
	block := new(inter.SignedBlock)
	if err := rlp.DecodeBytes(payload, block); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return block, nil
}

// Append writes a finalized block to the log. The block number must be
// exactly head+1 (or 1 for an empty log).
func (l *Log) Append(b *inter.SignedBlock) error {
	if l.readOnly {
		return errors.New("blocklog: log is read-only")
	}
	num := b.Num()
	if num != l.headNum()+1 {
		return fmt.Errorf("%w: appending %d to head %d", ErrAppendOutOfOrder, num, l.headNum())
	}

	payload, err := rlp.EncodeToBytes(b)
	if err != nil {
		return err
	}
	end, err := l.file.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if _, err := l.file.Write(bigendian.Uint64ToBytes(uint64(len(payload)))); err != nil {
		return err
	}
	if _, err := l.file.Write(payload); err != nil {
		return err
	}

	if len(l.offsets) == 0 {
		l.firstNum = num
	}
	l.offsets = append(l.offsets, end)
	l.byID[b.ID()] = num
	cp := *b
	l.head = &cp
	return nil
}

// ReadBlockByNum returns the block with the given number, or nil if it is
// not in the log.
func (l *Log) ReadBlockByNum(num uint32) (*inter.SignedBlock, error) {
	if num < l.firstNum || num > l.headNum() {
		return nil, nil
	}
	return l.readAt(l.offsets[num-l.firstNum])
}

// ReadBlockByID returns the block with the given id, or nil if it is not in
// the log.
func (l *Log) ReadBlockByID(id inter.BlockID) (*inter.SignedBlock, error) {
	num, ok := l.byID[id]
	if !ok {
		return nil, nil
	}
	return l.ReadBlockByNum(num)
}

// ReadHead re-reads the last block from disk; nil if the log is empty.
func (l *Log) ReadHead() (*inter.SignedBlock, error) {
	if len(l.offsets) == 0 {
		return nil, nil
	}
	return l.readAt(l.offsets[len(l.offsets)-1])
}

// Head returns the cached head block; nil if the log is empty.
func (l *Log) Head() *inter.SignedBlock {
	return l.head
}

// IsReadOnly reports whether the log was opened without write access.
func (l *Log) IsReadOnly() bool {
	return l.readOnly
}

// Flush forces buffered writes to disk.
func (l *Log) Flush() error {
	if l.readOnly {
		return nil
	}
	return l.file.Sync()
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	if !l.readOnly {
		if err := l.file.Sync(); err != nil {
			l.file.Close()
			return err
		}
	}
	return l.file.Close()
}
