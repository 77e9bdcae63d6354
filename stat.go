package affs

import (
	"os"
	"time"
)

// FileInfo returns an os.FileInfo view of the entry.
func (e *DirEntry) FileInfo() os.FileInfo {
	return dirEntryFileInfo{entry: *e}
}

type dirEntryFileInfo struct {
	entry DirEntry
}

func (e dirEntryFileInfo) Name() string {
	return e.entry.DisplayName()
}

func (e dirEntryFileInfo) Size() int64 {
	return int64(e.entry.Size)
}

// Mode translates the Amiga protection bits into Unix permission bits. The
// rwed group is inverted on disk: a set bit denies the operation, so the
// permission is granted when the bit is clear. Owner bits are mirrored to
// group and other, which is how most Unix tools for Amiga images present
// them.
func (e dirEntryFileInfo) Mode() os.FileMode {
	var perm os.FileMode
	if !e.entry.Access.ReadProtected() {
		perm |= 0444
	}
	if !e.entry.Access.WriteProtected() {
		perm |= 0222
	}
	if !e.entry.Access.ExecuteProtected() {
		perm |= 0111
	}

	switch {
	case e.entry.IsDir():
		return os.ModeDir | perm
	case e.entry.IsSymlink():
		return os.ModeSymlink | perm
	default:
		return perm
	}
}

func (e dirEntryFileInfo) ModTime() time.Time {
	return e.entry.Date.Time()
}

func (e dirEntryFileInfo) IsDir() bool {
	return e.entry.IsDir()
}

func (e dirEntryFileInfo) Sys() interface{} {
	return e.entry
}
