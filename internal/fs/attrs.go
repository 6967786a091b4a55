package fs

import (
	"os"
	"time"

	"github.com/jacobsa/fuse/fuseops"
)

// fileBlockSize and rootBlockSize are the blocksize constants attribute
// records report, per spec.md §3: regular files use a 512 KiB block for
// the purposes of block-count accounting; the root uses the traditional
// 512-byte unit.
const (
	fileBlockSize = 512 * 1024
	rootBlockSize = 512

	dirMode  = os.ModeDir | 0o755
	filePerm = 0o755
)

// attrRecord is the attribute store's per-inode record (§4.B).
type attrRecord struct {
	dir   bool
	size  uint64
	block uint64

	uid, gid uint32

	atime, mtime, ctime, crtime time.Time
}

// blockCount computes ⌈(size+1)/blocksize⌉, the block-count invariant
// carried by every mutation of size.
func blockCount(size uint64, blocksize uint64) uint64 {
	return (size + 1 + blocksize - 1) / blocksize
}

func newDirAttr(uid, gid uint32) attrRecord {
	return attrRecord{
		dir:   true,
		size:  0,
		block: blockCount(0, rootBlockSize),
		uid:   uid,
		gid:   gid,
	}
}

func newFileAttr(size uint64, uid, gid uint32) attrRecord {
	return attrRecord{
		dir:   false,
		size:  size,
		block: blockCount(size, fileBlockSize),
		uid:   uid,
		gid:   gid,
	}
}

// setSize updates size and recomputes the block count; it is the only
// path by which size changes, so the invariant can never drift.
func (a *attrRecord) setSize(size uint64) {
	a.size = size
	blocksize := uint64(fileBlockSize)
	if a.dir {
		blocksize = rootBlockSize
	}
	a.block = blockCount(size, blocksize)
}

func (a attrRecord) toFuse() fuseops.InodeAttributes {
	mode := os.FileMode(filePerm)
	if a.dir {
		mode = dirMode
	}
	return fuseops.InodeAttributes{
		Size:   a.size,
		Nlink:  1,
		Mode:   mode,
		Atime:  a.atime,
		Mtime:  a.mtime,
		Ctime:  a.ctime,
		Crtime: a.crtime,
		Uid:    a.uid,
		Gid:    a.gid,
	}
}

// attrStore is the attribute store (§4.B): a mapping from inode to
// attribute record, with get/insert/mutate-in-place/remove.
type attrStore struct {
	records map[fuseops.InodeID]*attrRecord
}

func newAttrStore() *attrStore {
	return &attrStore{records: make(map[fuseops.InodeID]*attrRecord)}
}

func (s *attrStore) insert(ino fuseops.InodeID, rec attrRecord) {
	s.records[ino] = &rec
}

func (s *attrStore) get(ino fuseops.InodeID) (*attrRecord, bool) {
	rec, ok := s.records[ino]
	return rec, ok
}

func (s *attrStore) remove(ino fuseops.InodeID) {
	delete(s.records, ino)
}
