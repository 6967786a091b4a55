package fs

import (
	"context"
	"log"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// Config is the parsed configuration handed to New (spec.md §6,
// "configuration interface"): a mount point, a database connection
// string, and the per-table bindings to construct. Tables is ordered;
// table directory inodes are assigned in this order at mount.
type Config struct {
	Mountpoint       string
	ConnectionString string
	Tables           []NamedTableConfig
}

// NamedTableConfig pairs a table directory name with its binding config.
type NamedTableConfig struct {
	Name   string
	Config TableConfig
}

// fuseFS is the request handler (§4.F): it implements the fuseutil
// op-based FileSystem surface, delegating identity to registry,
// attributes to attrStore, per-table SQL to tableBinding/dispatcher, and
// write coalescing to writeCache. The dispatcher is single-threaded
// (spec.md §5): one op runs to completion before the next is dequeued, so
// none of these fields needs its own lock.
type fuseFS struct {
	fuseutil.NotImplementedFileSystem

	reg    *registry
	attrs  *attrStore
	cache  *writeCache
	db     *dispatcher
	tables map[string]*tableBinding // by table directory name

	logger *log.Logger
}

// New constructs the request handler: it opens the database, builds every
// configured table binding, and reserves the root and table-directory
// inodes (spec.md §3, "Lifecycle").
func New(cfg *Config, logger *log.Logger) (*fuseFS, error) {
	db, err := openDispatcher(cfg.ConnectionString)
	if err != nil {
		return nil, err
	}

	fs := &fuseFS{
		reg:    newRegistry(),
		attrs:  newAttrStore(),
		cache:  newWriteCache(),
		db:     db,
		tables: make(map[string]*tableBinding),
		logger: logger,
	}

	fs.attrs.insert(rootInode, newDirAttr(0, 0))

	for _, nt := range cfg.Tables {
		tb, err := newTableBinding(nt.Name, nt.Config)
		if err != nil {
			db.close()
			return nil, err
		}
		fs.tables[nt.Name] = tb

		ino := fs.reg.allocateInode()
		fs.reg.bindTableDir(ino, nt.Name)
		fs.attrs.insert(ino, newDirAttr(nt.Config.UID, nt.Config.GID))
	}

	return fs, nil
}

// Close releases the database client. Per spec.md §5, the client is
// dropped at unmount after in-memory maps go out of scope with fs itself.
func (fs *fuseFS) Close() error {
	return fs.db.close()
}

func (fs *fuseFS) logf(format string, args ...interface{}) {
	if fs.logger != nil {
		fs.logger.Printf(format, args...)
	}
}

////////////////////////////////////////////////////////////////////////
// Mount-wide operations
////////////////////////////////////////////////////////////////////////

func (fs *fuseFS) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = fileBlockSize
	op.Blocks = 0
	op.BlocksFree = 0
	op.BlocksAvailable = 0
	op.IoSize = 128 * 1024
	return nil
}

func (fs *fuseFS) Destroy() {
	if err := fs.Close(); err != nil {
		fs.logf("pgfs: closing database on unmount: %v", err)
	}
}

////////////////////////////////////////////////////////////////////////
// Inodes
////////////////////////////////////////////////////////////////////////

func (fs *fuseFS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	ino, ok := fs.reg.lookup(op.Parent, op.Name)
	if !ok {
		if op.Parent == rootInode {
			if tableIno, ok := fs.reg.tableDirInode(op.Name); ok {
				ino = tableIno
			} else {
				return errNotFound
			}
		} else {
			return errNotFound
		}
	}

	rec, ok := fs.attrs.get(ino)
	if !ok {
		return errNotFound
	}

	op.Entry.Child = ino
	op.Entry.Attributes = rec.toFuse()
	return nil
}

func (fs *fuseFS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	rec, ok := fs.attrs.get(op.Inode)
	if !ok {
		return errNotFound
	}
	op.Attributes = rec.toFuse()
	return nil
}

// SetInodeAttributes implements setattr (§4.F). In-memory attributes are
// only mutated after the corresponding SQL call succeeds (Open Question
// 3, SPEC_FULL.md §4.1): a failed truncate or timestamp update must never
// leave the attribute store believing the database changed.
//
// The kernel transport never delivers a settable ctime through
// SetInodeAttributesOp (only size, mode, atime and mtime), so the
// created-column update path fires only through the database's own
// column default at row creation, not through setattr.
func (fs *fuseFS) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	rec, ok := fs.attrs.get(op.Inode)
	if !ok {
		return errNotFound
	}

	row, ok := fs.reg.row(op.Inode)
	if !ok {
		return errNotFound
	}
	tb, ok := fs.tableForDir(row.table)
	if !ok {
		return errNotFound
	}

	if op.Size != nil {
		if err := fs.flushInode(ctx, op.Inode, tb, row.id); err != nil {
			return errIO
		}
		if err := fs.db.truncate(ctx, tb, row.id, int64(*op.Size)); err != nil {
			fs.logf("pgfs: truncate %s/%d: %v", tb.tableName, row.id, err)
			return errIO
		}
		rec.setSize(*op.Size)
	}

	if op.Mtime != nil {
		if err := fs.updateTimestamp(ctx, tb, tb.modifiedField, row.id, *op.Mtime); err != nil {
			return errPermission
		}
		rec.mtime = *op.Mtime
	}

	op.Attributes = rec.toFuse()
	return nil
}

func (fs *fuseFS) updateTimestamp(ctx context.Context, tb *tableBinding, column string, id int32, value time.Time) error {
	if column == "" {
		return nil
	}
	if err := fs.db.updateTimestamp(ctx, tb, column, id, value); err != nil {
		fs.logf("pgfs: timestamp update %s/%d: %v", tb.tableName, id, err)
		return err
	}
	return nil
}

func (fs *fuseFS) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	return nil
}

////////////////////////////////////////////////////////////////////////
// Inode creation / destruction
////////////////////////////////////////////////////////////////////////

func (fs *fuseFS) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	return errIsDirectory
}

// CreateFile implements create/mknod (§4.F). Failing at the root, on a
// read-only table, or on SQL failure all have distinct outcomes per
// spec.md: not-found, read-only, not-implemented respectively.
func (fs *fuseFS) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	if op.Parent == rootInode {
		return errNotFound
	}

	table, ok := fs.reg.tableNameForDir(op.Parent)
	if !ok {
		return errNotFound
	}
	tb := fs.tables[table]
	if tb.readOnly {
		return errReadOnly
	}

	id, err := fs.db.insertBlank(ctx, tb, op.Name)
	if err != nil {
		fs.logf("pgfs: insert-blank %s/%q: %v", table, op.Name, err)
		return errNotImplemented
	}

	ino := fs.reg.allocateInode()
	now := time.Now()
	rec := newFileAttr(0, tb.uid, tb.gid)
	rec.ctime = now
	rec.mtime = now
	fs.attrs.insert(ino, rec)

	if err := fs.reg.bind(childKey{parent: op.Parent, name: op.Name}, ino, rowIdentity{table: op.Parent, id: id}); err != nil {
		fs.attrs.remove(ino)
		return errIO
	}

	op.Entry.Child = ino
	op.Entry.Attributes = rec.toFuse()
	op.Handle = fuseops.HandleID(ino)
	return nil
}

func (fs *fuseFS) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	return errNotImplemented
}

// Unlink implements unlink (§4.F and the fix for Open Question 1): the
// pending cache entry is dropped, not flushed, since the row is about to
// be deleted and a flush would write against a vanished row.
func (fs *fuseFS) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	ino, ok := fs.reg.lookup(op.Parent, op.Name)
	if !ok {
		return errNotFound
	}
	row, ok := fs.reg.row(ino)
	if !ok {
		return errNotFound
	}
	tb, ok := fs.tableForDir(row.table)
	if !ok {
		return errNotFound
	}

	fs.cache.drop(ino)

	if err := fs.db.delete(ctx, tb, row.id); err != nil {
		fs.logf("pgfs: delete %s/%d: %v", tb.tableName, row.id, err)
		return errIO
	}

	fs.reg.remove(ino)
	fs.attrs.remove(ino)
	return nil
}

// Rename implements rename (§4.F), fixed per Open Question 2: the
// in-memory child-key binding is updated after a successful SQL rename so
// a subsequent lookup by the new name succeeds.
func (fs *fuseFS) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	if op.OldParent != op.NewParent {
		return errNotImplemented
	}

	ino, ok := fs.reg.lookup(op.OldParent, op.OldName)
	if !ok {
		return errNotFound
	}
	row, ok := fs.reg.row(ino)
	if !ok {
		return errNotFound
	}
	tb, ok := fs.tableForDir(row.table)
	if !ok {
		return errNotFound
	}

	if err := fs.db.rename(ctx, tb, row.id, op.NewName); err != nil {
		fs.logf("pgfs: rename %s/%d: %v", tb.tableName, row.id, err)
		return errIO
	}

	return fs.reg.rename(ino, op.NewParent, op.NewName)
}

////////////////////////////////////////////////////////////////////////
// Directory handles
////////////////////////////////////////////////////////////////////////

func (fs *fuseFS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	op.Handle = fuseops.HandleID(op.Inode)
	return nil
}

// ReadDir implements readdir (§4.F): root lists table directories; a
// table directory lists its rows, allocating an inode and attribute
// record the first time a row is observed.
func (fs *fuseFS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	var entries []fuseutil.Dirent

	if op.Inode == rootInode {
		entries = append(entries, fuseutil.Dirent{Offset: 1, Inode: rootInode, Name: ".", Type: fuseutil.DT_Directory})
		entries = append(entries, fuseutil.Dirent{Offset: 2, Inode: rootInode, Name: "..", Type: fuseutil.DT_Directory})
		for name := range fs.tables {
			ino, _ := fs.reg.tableDirInode(name)
			entries = append(entries, fuseutil.Dirent{
				Offset: fuseops.DirOffset(len(entries) + 1),
				Inode:  ino,
				Name:   name,
				Type:   fuseutil.DT_Directory,
			})
		}
	} else {
		table, ok := fs.reg.tableNameForDir(op.Inode)
		if !ok {
			return errNotFound
		}
		tb := fs.tables[table]

		entries = append(entries, fuseutil.Dirent{Offset: 1, Inode: op.Inode, Name: ".", Type: fuseutil.DT_Directory})
		entries = append(entries, fuseutil.Dirent{Offset: 2, Inode: rootInode, Name: "..", Type: fuseutil.DT_Directory})

		rows, err := fs.db.list(ctx, tb)
		if err != nil {
			fs.logf("pgfs: listing %s: %v", table, err)
			return errIO
		}
		for _, row := range rows {
			key := childKey{parent: op.Inode, name: row.name}
			ino, ok := fs.reg.lookup(op.Inode, row.name)
			if !ok {
				ino = fs.reg.allocateInode()
				rec := newFileAttr(uint64(row.length), tb.uid, tb.gid)
				if row.created.Valid {
					rec.ctime = row.created.Time
				}
				if row.modified.Valid {
					rec.mtime = row.modified.Time
				}
				fs.attrs.insert(ino, rec)
				if err := fs.reg.bind(key, ino, rowIdentity{table: op.Inode, id: row.id}); err != nil {
					fs.attrs.remove(ino)
					fs.logf("pgfs: %v", err)
					continue
				}
			}
			entries = append(entries, fuseutil.Dirent{
				Offset: fuseops.DirOffset(len(entries) + 1),
				Inode:  ino,
				Name:   row.name,
				Type:   fuseutil.DT_File,
			})
		}
	}

	if int(op.Offset) > len(entries) {
		return errIO
	}
	for _, e := range entries[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], e)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *fuseFS) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	return nil
}

////////////////////////////////////////////////////////////////////////
// File handles
////////////////////////////////////////////////////////////////////////

func (fs *fuseFS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	op.Handle = fuseops.HandleID(op.Inode)
	return nil
}

// ReadFile implements read (§4.F): the cache is flushed first so the read
// observes any pending write, then the positional read query is issued.
func (fs *fuseFS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	row, ok := fs.reg.row(op.Inode)
	if !ok {
		return errNotFound
	}
	tb, ok := fs.tableForDir(row.table)
	if !ok {
		return errNotFound
	}

	if err := fs.flushInode(ctx, op.Inode, tb, row.id); err != nil {
		return errIO
	}

	data, err := fs.db.read(ctx, tb, row.id, int64(op.Offset)+1, int64(op.Size))
	if err != nil {
		fs.logf("pgfs: read %s/%d: %v", tb.tableName, row.id, err)
		data = []byte{}
	}
	op.BytesRead = copy(op.Dst, data)
	return nil
}

// WriteFile implements write (§4.F): delegated entirely to the write
// cache's coalescing policy.
func (fs *fuseFS) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	row, ok := fs.reg.row(op.Inode)
	if !ok {
		return errNotFound
	}
	tb, ok := fs.tableForDir(row.table)
	if !ok {
		return errNotFound
	}

	err := fs.cache.write(ctx, op.Inode, op.Offset, op.Data, func(ctx context.Context, entry *cacheEntry) error {
		return fs.db.overlay(ctx, tb, row.id, entry.offset+1, entry.data)
	})
	if err != nil {
		fs.logf("pgfs: write %s/%d: %v", tb.tableName, row.id, err)
		return errIO
	}

	if rec, ok := fs.attrs.get(op.Inode); ok {
		end := uint64(op.Offset) + uint64(len(op.Data))
		if end > rec.size {
			rec.setSize(end)
		}
	}
	return nil
}

func (fs *fuseFS) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	return fs.flushHandle(ctx, op.Inode)
}

func (fs *fuseFS) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	return fs.flushHandle(ctx, op.Inode)
}

func (fs *fuseFS) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	return fs.flushHandle(ctx, fuseops.InodeID(op.Handle))
}

// flushHandle flushes the cache for ino, replying success even if no
// cache entry existed, per spec.md's flush/fsync/release contract.
func (fs *fuseFS) flushHandle(ctx context.Context, ino fuseops.InodeID) error {
	row, ok := fs.reg.row(ino)
	if !ok {
		return nil
	}
	tb, ok := fs.tableForDir(row.table)
	if !ok {
		return nil
	}
	if err := fs.flushInode(ctx, ino, tb, row.id); err != nil {
		fs.logf("pgfs: flush %s/%d: %v", tb.tableName, row.id, err)
	}
	return nil
}

// flushInode writes through any pending cache region for ino.
func (fs *fuseFS) flushInode(ctx context.Context, ino fuseops.InodeID, tb *tableBinding, id int32) error {
	return fs.cache.flush(ctx, ino, func(ctx context.Context, entry *cacheEntry) error {
		return fs.db.overlay(ctx, tb, id, entry.offset+1, entry.data)
	})
}

////////////////////////////////////////////////////////////////////////
// Unsupported surface (spec.md §4.F, "Unsupported operations")
////////////////////////////////////////////////////////////////////////

// Symlinks, hard links, and xattr mutations are outside the supported
// surface (spec.md §4.F); the embedded NotImplementedFileSystem answers
// CreateSymlink, CreateLink, ReadSymlink, SetXattr and RemoveXattr with
// ENOSYS, which is the taxonomy's not-implemented member. GetXattr and
// ListXattr need different, successful answers, so they're overridden
// here: reads return no-data, and listing always reports zero names.

func (fs *fuseFS) GetXattr(ctx context.Context, op *fuseops.GetXattrOp) error {
	return errNoData
}

func (fs *fuseFS) ListXattr(ctx context.Context, op *fuseops.ListXattrOp) error {
	op.BytesRead = 0
	return nil
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

func (fs *fuseFS) tableForDir(dirIno fuseops.InodeID) (*tableBinding, bool) {
	name, ok := fs.reg.tableNameForDir(dirIno)
	if !ok {
		return nil, false
	}
	tb, ok := fs.tables[name]
	return tb, ok
}

// MountOptions builds the fuse.MountConfig used by cmd/pgfs's call to
// fuse.Mount: read-write and labelled pgfs (spec.md §6, "Mount options").
// Auto-unmount on process exit is handled by the caller via
// internal/oninterrupt, not by a mount option here.
func MountOptions() *fuse.MountConfig {
	return &fuse.MountConfig{
		FSName:   "pgfs",
		ReadOnly: false,
		Options:  map[string]string{"allow_other": ""},
	}
}
