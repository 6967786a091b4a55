package fs

import (
	"fmt"

	"github.com/jacobsa/fuse/fuseops"
)

// rootInode is reserved for the mount point itself.
const rootInode = fuseops.RootInodeID

// rowIdentity names a file's backing row: the table it belongs to (by the
// table directory's own inode) and the row's primary key.
type rowIdentity struct {
	table fuseops.InodeID
	id    int32
}

// childKey names a directory entry: a parent inode and the name within it.
type childKey struct {
	parent fuseops.InodeID
	name   string
}

// registry is the identity registry (§4.A): bidirectional maps between
// inodes, child keys, table directory names and row identities. Every
// lookup it exposes is O(1); the dispatcher is single-threaded (spec.md
// §5) so no locking is needed here.
type registry struct {
	next fuseops.InodeID

	tableDirs    map[fuseops.InodeID]string // inode -> table name, for directories
	tableDirsRev map[string]fuseops.InodeID

	keyToInode map[childKey]fuseops.InodeID
	inodeToKey map[fuseops.InodeID]childKey

	rows map[fuseops.InodeID]rowIdentity
}

func newRegistry() *registry {
	return &registry{
		next:         rootInode + 1,
		tableDirs:    make(map[fuseops.InodeID]string),
		tableDirsRev: make(map[string]fuseops.InodeID),
		keyToInode:   make(map[childKey]fuseops.InodeID),
		inodeToKey:   make(map[fuseops.InodeID]childKey),
		rows:         make(map[fuseops.InodeID]rowIdentity),
	}
}

// allocateInode returns a fresh inode number. Allocation is monotonic;
// values are never reused, including after unlink.
func (r *registry) allocateInode() fuseops.InodeID {
	ino := r.next
	r.next++
	return ino
}

// bindTableDir registers a table directory inode at mount time.
func (r *registry) bindTableDir(ino fuseops.InodeID, table string) {
	r.tableDirs[ino] = table
	r.tableDirsRev[table] = ino
}

// tableDirInode resolves a table name to its directory inode.
func (r *registry) tableDirInode(table string) (fuseops.InodeID, bool) {
	ino, ok := r.tableDirsRev[table]
	return ino, ok
}

// tableNameForDir resolves a directory inode to the table name it binds,
// returning false if ino is not a table directory.
func (r *registry) tableNameForDir(ino fuseops.InodeID) (string, bool) {
	name, ok := r.tableDirs[ino]
	return name, ok
}

// isDir reports whether ino is the root or a table directory.
func (r *registry) isDir(ino fuseops.InodeID) bool {
	if ino == rootInode {
		return true
	}
	_, ok := r.tableDirs[ino]
	return ok
}

// bind registers a file inode under a child key and a row identity. It
// fails if the child key is already bound; the caller must remove the
// prior binding first.
func (r *registry) bind(key childKey, ino fuseops.InodeID, row rowIdentity) error {
	if _, exists := r.keyToInode[key]; exists {
		return fmt.Errorf("pgfs: child key %+v already bound", key)
	}
	r.keyToInode[key] = ino
	r.inodeToKey[ino] = key
	r.rows[ino] = row
	return nil
}

// lookup resolves a (parent, name) pair to an inode.
func (r *registry) lookup(parent fuseops.InodeID, name string) (fuseops.InodeID, bool) {
	ino, ok := r.keyToInode[childKey{parent: parent, name: name}]
	return ino, ok
}

// row resolves a file inode to its backing row identity.
func (r *registry) row(ino fuseops.InodeID) (rowIdentity, bool) {
	row, ok := r.rows[ino]
	return row, ok
}

// rename moves the child-key binding for ino from its current key to
// (newParent, newName). It fails if ino has no existing binding.
func (r *registry) rename(ino fuseops.InodeID, newParent fuseops.InodeID, newName string) error {
	old, ok := r.inodeToKey[ino]
	if !ok {
		return fmt.Errorf("pgfs: inode %d has no child-key binding", ino)
	}
	delete(r.keyToInode, old)
	newKey := childKey{parent: newParent, name: newName}
	r.keyToInode[newKey] = ino
	r.inodeToKey[ino] = newKey
	return nil
}

// remove drops every binding for a file inode: child key and row
// identity. It does not touch the attribute store or write cache; callers
// remove those separately (see unlink in fs.go).
func (r *registry) remove(ino fuseops.InodeID) {
	if key, ok := r.inodeToKey[ino]; ok {
		delete(r.keyToInode, key)
		delete(r.inodeToKey, ino)
	}
	delete(r.rows, ino)
}
