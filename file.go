package affs

import (
	"errors"
	"io"
	"os"
	"syscall"

	"github.com/spf13/afero"

	"github.com/MuntasirSZN/affs-read/checkpoint"
)

// These errors may occur while processing a file.
var (
	ErrReadFile = errors.New("could not read file")
	ErrSeekFile = errors.New("could not seek inside of the file")
	ErrReadDir  = errors.New("could not read the directory")
)

// File is an open file or directory handle, implementing afero.File.
// Handles are produced by Fs.Open and are read-only.
type File struct {
	fs   affsFileFs
	path string

	headerBlock uint32
	isDirectory bool
	isSymlink   bool

	stat   os.FileInfo
	offset int64
}

var _ afero.File = (*File)(nil)

// Close releases the handle. The filesystem itself holds no per-file
// resources, so this only invalidates the receiver.
func (f *File) Close() error {
	f.fs = nil
	f.path = ""
	f.headerBlock = 0
	f.isDirectory = false
	f.isSymlink = false
	f.stat = nil
	f.offset = 0

	return nil
}

// Read reads from the current offset.
func (f *File) Read(p []byte) (n int, err error) {
	if f.isDirectory {
		return 0, checkpoint.Wrap(syscall.EISDIR, ErrReadFile)
	}
	if p == nil {
		return 0, nil
	}
	if f.stat.Size() <= f.offset {
		return 0, io.EOF
	}

	data, err := f.fs.readFileAt(f.headerBlock, f.stat.Size(), f.offset, int64(len(p)))
	if data != nil {
		copy(p, data)
	}
	f.offset += int64(len(data))

	if err != nil {
		return len(data), checkpoint.Wrap(err, ErrReadFile)
	}
	return len(data), nil
}

// ReadAt reads at an absolute offset without moving the file offset.
func (f *File) ReadAt(p []byte, off int64) (n int, err error) {
	if f.isDirectory {
		return 0, checkpoint.Wrap(syscall.EISDIR, ErrReadFile)
	}
	if p == nil {
		return 0, nil
	}
	if f.stat.Size() <= off {
		return 0, io.EOF
	}

	data, err := f.fs.readFileAt(f.headerBlock, f.stat.Size(), off, int64(len(p)))
	if data != nil {
		copy(p, data)
	}

	if err != nil {
		return len(data), checkpoint.Wrap(err, ErrReadFile)
	}
	if len(data) < len(p) {
		// ReadAt contracts a full read or an error.
		return len(data), io.EOF
	}
	return len(data), nil
}

// Seek moves the file offset. This affects Read and Readdir but not ReadAt.
// May return a syscall.EINVAL error if the whence value is invalid.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = f.offset + offset
	case io.SeekEnd:
		offset = f.stat.Size() + offset
	default:
		return 0, checkpoint.Wrap(syscall.EINVAL, ErrSeekFile)
	}

	if offset < 0 || offset > f.stat.Size() {
		return 0, checkpoint.Wrap(afero.ErrOutOfRange, ErrSeekFile)
	}

	f.offset = offset
	return offset, nil
}

// Write fails: the filesystem is read-only.
func (f *File) Write(p []byte) (n int, err error) {
	return 0, checkpoint.Wrap(syscall.EPERM, ErrReadOnly)
}

// WriteAt fails: the filesystem is read-only.
func (f *File) WriteAt(p []byte, off int64) (n int, err error) {
	return 0, checkpoint.Wrap(syscall.EPERM, ErrReadOnly)
}

// Name returns the path the file was opened with.
func (f *File) Name() string {
	return f.path
}

// Readdir reads the contents of a directory in on-disk hash table order.
// May return syscall.ENOTDIR if the current File is no directory.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	if !f.isDirectory {
		return nil, checkpoint.Wrap(syscall.ENOTDIR, ErrReadDir)
	}

	content, err := f.fs.readDirEntries(f.headerBlock)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrReadDir)
	}

	end := len(content)

	if int64(len(content)) < f.offset+int64(count) {
		count = len(content) - int(f.offset)
		err = io.EOF
	}

	if count >= 0 {
		end = int(f.offset) + count
	}

	content = content[f.offset:end]

	if count > 0 {
		f.offset += int64(count)
	} else if count < 0 {
		f.offset = int64(end)
	}

	result := make([]os.FileInfo, len(content))
	for i := range content {
		result[i] = content[i].FileInfo()
	}

	return result, err
}

// Readdirnames returns the names of the directory contents.
func (f *File) Readdirnames(count int) ([]string, error) {
	content, err := f.Readdir(count)
	if err != nil && err != io.EOF {
		return nil, checkpoint.Wrap(err, ErrReadDir)
	}

	names := make([]string, len(content))
	for i, entry := range content {
		names[i] = entry.Name()
	}

	return names, err
}

// Stat returns the file info the handle was opened with.
func (f *File) Stat() (os.FileInfo, error) {
	return f.stat, nil
}

// Sync is a no-op on a read-only filesystem.
func (f *File) Sync() error {
	return nil
}

// Truncate fails: the filesystem is read-only.
func (f *File) Truncate(size int64) error {
	return checkpoint.Wrap(syscall.EPERM, ErrReadOnly)
}

// WriteString fails: the filesystem is read-only.
func (f *File) WriteString(s string) (ret int, err error) {
	return f.Write([]byte(s))
}

// SymlinkTarget resolves the target of a soft link handle.
func (f *File) SymlinkTarget() (string, error) {
	if !f.isSymlink {
		return "", checkpoint.From(ErrNotASymlink)
	}
	return f.fs.readSymlinkTarget(f.headerBlock)
}
