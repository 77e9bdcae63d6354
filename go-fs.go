package affs

import (
	"io/fs"
)

// GoDirEntry adapts an os.FileInfo to fs.DirEntry.
type GoDirEntry struct {
	fs.FileInfo
}

// Type returns the mode type bits.
func (g GoDirEntry) Type() fs.FileMode {
	return g.FileInfo.Mode().Type()
}

// Info returns the full file info. It never fails because the info was
// captured when the directory was read.
func (g GoDirEntry) Info() (fs.FileInfo, error) {
	return g.FileInfo, nil
}

// GoFile adapts a File to fs.File and fs.ReadDirFile.
type GoFile struct {
	*File
}

// Stat returns the file info.
func (g GoFile) Stat() (fs.FileInfo, error) {
	return g.File.Stat()
}

// Read reads from the current offset.
func (g GoFile) Read(bytes []byte) (int, error) {
	return g.File.Read(bytes)
}

// Close closes the handle.
func (g GoFile) Close() error {
	return g.File.Close()
}

// ReadDir reads directory entries in on-disk order.
func (g GoFile) ReadDir(n int) ([]fs.DirEntry, error) {
	entries, err := g.File.Readdir(n)

	goEntries := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		goEntries[i] = GoDirEntry{e}
	}

	return goEntries, err
}

// GoFs wraps the afero AFFS implementation to be compatible with fs.FS.
type GoFs struct {
	Fs *Fs
}

// NewGoFS opens an AFFS volume from the given device as an fs.FS compatible
// filesystem. The block count rules of NewWithSize apply.
func NewGoFS(device BlockDevice, totalBlocks uint32) (*GoFs, error) {
	affsFs, err := NewWithSize(device, totalBlocks)
	if err != nil {
		return nil, err
	}

	return &GoFs{affsFs}, nil
}

// Open opens a file or directory using io/fs path rules.
func (g GoFs) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	file, err := g.Fs.Open(name)
	if err != nil {
		return nil, err
	}

	return GoFile{file.(*File)}, nil
}
