package fs

import (
	"os"
	"testing"
)

func TestBlockCount(t *testing.T) {
	cases := []struct {
		size, blocksize, want uint64
	}{
		{0, 512, 1},
		{511, 512, 1},
		{512, 512, 2},
		{513, 512, 2},
	}
	for _, c := range cases {
		if got := blockCount(c.size, c.blocksize); got != c.want {
			t.Errorf("blockCount(%d, %d) = %d, want %d", c.size, c.blocksize, got, c.want)
		}
	}
}

func TestNewFileAttrUsesFileBlockSize(t *testing.T) {
	a := newFileAttr(fileBlockSize+1, 1, 2)
	if a.dir {
		t.Fatal("newFileAttr produced a directory record")
	}
	if want := blockCount(fileBlockSize+1, fileBlockSize); a.block != want {
		t.Errorf("block = %d, want %d", a.block, want)
	}
	if a.uid != 1 || a.gid != 2 {
		t.Errorf("uid/gid = %d/%d, want 1/2", a.uid, a.gid)
	}
}

func TestNewDirAttrUsesRootBlockSize(t *testing.T) {
	a := newDirAttr(0, 0)
	if !a.dir {
		t.Fatal("newDirAttr produced a file record")
	}
	if want := blockCount(0, rootBlockSize); a.block != want {
		t.Errorf("block = %d, want %d", a.block, want)
	}
}

func TestSetSizeRecomputesBlockCount(t *testing.T) {
	a := newFileAttr(0, 0, 0)
	a.setSize(fileBlockSize * 3)
	if want := blockCount(fileBlockSize*3, fileBlockSize); a.block != want {
		t.Errorf("block after setSize = %d, want %d", a.block, want)
	}
	if a.size != fileBlockSize*3 {
		t.Errorf("size after setSize = %d, want %d", a.size, fileBlockSize*3)
	}
}

func TestToFuseModeByKind(t *testing.T) {
	dir := newDirAttr(1, 1).toFuse()
	if dir.Mode&dirMode == 0 {
		t.Errorf("directory Mode = %v, want ModeDir bit set", dir.Mode)
	}

	file := newFileAttr(0, 1, 1).toFuse()
	if file.Mode != filePerm {
		t.Errorf("file Mode = %v, want %v", file.Mode, os.FileMode(filePerm))
	}
}

func TestAttrStoreInsertGetRemove(t *testing.T) {
	s := newAttrStore()
	rec := newFileAttr(10, 1, 1)
	s.insert(42, rec)

	got, ok := s.get(42)
	if !ok {
		t.Fatal("get(42) not found after insert")
	}
	if got.size != 10 {
		t.Errorf("size = %d, want 10", got.size)
	}

	got.setSize(20)
	reread, _ := s.get(42)
	if reread.size != 20 {
		t.Errorf("mutation through returned pointer not observed: size = %d, want 20", reread.size)
	}

	s.remove(42)
	if _, ok := s.get(42); ok {
		t.Fatal("get(42) found after remove")
	}
}
