package fs

import (
	"context"

	"github.com/jacobsa/fuse/fuseops"
)

// maxCacheRegion is the 2 MiB coalescing bound (§4.E).
const maxCacheRegion = 2 * 1024 * 1024

// cacheEntry is the write cache's per-inode pending region: a starting
// offset and a contiguous byte buffer (spec.md §3, "write cache entry").
type cacheEntry struct {
	offset int64
	data   []byte
}

// writeCache is the write-coalescing cache (§4.E). At most one pending
// region exists per inode.
type writeCache struct {
	entries map[fuseops.InodeID]*cacheEntry
}

func newWriteCache() *writeCache {
	return &writeCache{entries: make(map[fuseops.InodeID]*cacheEntry)}
}

// write applies the coalescing policy. On a non-contiguous write or a
// write that would push the pending region past the 2 MiB bound, the
// pending region is flushed through overlayFn and the new bytes are
// written through immediately via the same overlayFn, per spec.md §4.E
// ("flush the pending entry, then execute an immediate overlay of the new
// bytes") rather than being re-cached.
func (c *writeCache) write(ctx context.Context, ino fuseops.InodeID, offset int64, data []byte, overlayFn func(context.Context, *cacheEntry) error) error {
	entry, exists := c.entries[ino]
	if !exists {
		buf := make([]byte, len(data))
		copy(buf, data)
		c.entries[ino] = &cacheEntry{offset: offset, data: buf}
		return nil
	}

	endOfEntry := entry.offset + int64(len(entry.data))
	if offset == endOfEntry && int64(len(entry.data)+len(data)) <= maxCacheRegion {
		entry.data = append(entry.data, data...)
		return nil
	}

	if err := overlayFn(ctx, entry); err != nil {
		return err
	}
	delete(c.entries, ino)

	return overlayFn(ctx, &cacheEntry{offset: offset, data: data})
}

// flush writes through any pending region for ino via overlayFn and drops
// the entry. It is a no-op if no entry exists.
func (c *writeCache) flush(ctx context.Context, ino fuseops.InodeID, overlayFn func(context.Context, *cacheEntry) error) error {
	entry, exists := c.entries[ino]
	if !exists {
		return nil
	}
	if err := overlayFn(ctx, entry); err != nil {
		return err
	}
	delete(c.entries, ino)
	return nil
}

// peek returns the pending entry for ino, if any, without removing it.
// The request handler does not call it; WriteFile keeps the attribute size
// at or above the end of the pending region itself.
func (c *writeCache) peek(ino fuseops.InodeID) (*cacheEntry, bool) {
	e, ok := c.entries[ino]
	return e, ok
}

// drop removes a pending entry without flushing it, for the unlink path
// (§4.1: the row is about to be deleted, so the write would be doomed).
func (c *writeCache) drop(ino fuseops.InodeID) {
	delete(c.entries, ino)
}
