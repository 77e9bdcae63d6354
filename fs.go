// Package affs reads Amiga Fast File System (AFFS) disk images.
//
// The package decodes the on-disk format of Amiga floppies and hard disk
// partitions in all six DOS dialects: OFS and FFS, each plain, with
// international name folding, or with directory cache. Access is strictly
// read-only and goes through a narrow BlockDevice interface, so images can
// live in files, in memory, or behind custom storage.
//
// A volume is opened with New (double density floppy), NewHD (high density
// floppy) or NewWithSize. The resulting Fs implements afero.Fs for path
// based access and additionally exposes the raw building blocks: directory
// iteration, name lookup and streaming file readers.
package affs

import (
	"errors"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/MuntasirSZN/affs-read/checkpoint"
)

// These errors may occur while opening or traversing a volume.
var (
	ErrDeviceRead      = errors.New("block device read failed")
	ErrInvalidSize     = errors.New("invalid volume block count")
	ErrBlockOutOfRange = errors.New("block number out of range")
	ErrEntryNotFound   = errors.New("entry not found")
	ErrNotADirectory   = errors.New("not a directory")
	ErrNotAFile        = errors.New("not a file")
	ErrNotASymlink     = errors.New("not a symlink")
	ErrCorruptVolume   = errors.New("corrupt volume structure")
	ErrReadOnly        = errors.New("filesystem is read-only")
)

// BlockDevice is the storage abstraction the reader runs on. Implementations
// must fill the full 512-byte buffer or fail.
type BlockDevice interface {
	ReadBlock(block uint32, buf *[BlockSize]byte) error
}

// ReaderAtDevice adapts an io.ReaderAt, such as an *os.File holding an ADF
// image, to the BlockDevice interface.
type ReaderAtDevice struct {
	R io.ReaderAt
}

// ReadBlock reads the 512 bytes at block * BlockSize.
func (d ReaderAtDevice) ReadBlock(block uint32, buf *[BlockSize]byte) error {
	if _, err := d.R.ReadAt(buf[:], int64(block)*BlockSize); err != nil {
		// A short image must not surface as io.EOF: to the decoder
		// that would read as a clean end of stream.
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return checkpoint.Wrap(err, ErrDeviceRead)
	}
	return nil
}

// Fs provides read-only access to one AFFS volume. It implements afero.Fs;
// all mutating methods fail with ErrReadOnly.
type Fs struct {
	dev         BlockDevice
	boot        BootBlock
	root        RootBlock
	rootBlock   uint32
	totalBlocks uint32
}

// affsFileFs provides all methods needed from a volume for File.
// It mainly exists to be able to mock the Fs in tests.
// Generated mock using mockgen:
//
//	mockgen -source=fs.go -destination=file_mock.go -package affs
type affsFileFs interface {
	readFileAt(headerBlock uint32, fileSize, offset, readSize int64) ([]byte, error)
	readDirEntries(dirBlock uint32) ([]DirEntry, error)
	readSymlinkTarget(block uint32) (string, error)
}

var _ afero.Fs = (*Fs)(nil)
var _ affsFileFs = (*Fs)(nil)

// New opens a double density floppy volume (880 KB, 1760 blocks).
func New(device BlockDevice) (*Fs, error) {
	return NewWithSize(device, FloppyDDBlocks)
}

// NewHD opens a high density floppy volume (1.76 MB, 3520 blocks).
func NewHD(device BlockDevice) (*Fs, error) {
	return NewWithSize(device, FloppyHDBlocks)
}

// NewWithSize opens a volume with an explicit block count, as needed for
// hard disk partitions. The count must be even and at least 4.
func NewWithSize(device BlockDevice, totalBlocks uint32) (*Fs, error) {
	if totalBlocks < 4 || totalBlocks%2 != 0 {
		return nil, checkpoint.From(ErrInvalidSize)
	}

	fs := &Fs{dev: device, totalBlocks: totalBlocks}

	var bootBuf [BootBlockSize]byte
	for i := uint32(0); i < 2; i++ {
		var blk [BlockSize]byte
		if err := device.ReadBlock(i, &blk); err != nil {
			return nil, checkpoint.Wrap(err, ErrDeviceRead)
		}
		copy(bootBuf[i*BlockSize:], blk[:])
	}

	boot, err := parseBootBlock(&bootBuf)
	if err != nil {
		return nil, err
	}
	fs.boot = boot

	// The formatter stores the root block number in the boot block; when
	// absent the root sits in the middle of the volume.
	fs.rootBlock = boot.RootBlock
	if fs.rootBlock == 0 {
		fs.rootBlock = totalBlocks / 2
	}
	if fs.rootBlock >= totalBlocks {
		return nil, checkpoint.From(ErrBlockOutOfRange)
	}

	var rootBuf [BlockSize]byte
	if err := device.ReadBlock(fs.rootBlock, &rootBuf); err != nil {
		return nil, checkpoint.Wrap(err, ErrDeviceRead)
	}
	root, err := parseRootBlock(&rootBuf)
	if err != nil {
		return nil, err
	}
	fs.root = root

	return fs, nil
}

// readBlock loads a single block after range-checking the block number.
// Block 0 is never a valid content block.
func (fs *Fs) readBlock(block uint32, buf *[BlockSize]byte) error {
	if block == 0 || block >= fs.totalBlocks {
		return checkpoint.From(ErrBlockOutOfRange)
	}
	if err := fs.dev.ReadBlock(block, buf); err != nil {
		return checkpoint.Wrap(err, ErrDeviceRead)
	}
	return nil
}

// FsType returns the volume's dialect.
func (fs *Fs) FsType() FsType {
	return fs.boot.FsType()
}

// Intl reports whether international name folding is in effect.
func (fs *Fs) Intl() bool {
	return fs.boot.FsType().Intl()
}

// RootBlock returns the root block number.
func (fs *Fs) RootBlock() uint32 {
	return fs.rootBlock
}

// TotalBlocks returns the volume size in blocks.
func (fs *Fs) TotalBlocks() uint32 {
	return fs.totalBlocks
}

// DiskName returns the volume label as raw bytes.
func (fs *Fs) DiskName() []byte {
	return fs.root.Name()
}

// DiskNameString returns the volume label when it is valid UTF-8.
func (fs *Fs) DiskNameString() (string, bool) {
	return utf8String(fs.DiskName())
}

// Label returns the volume label decoded from Latin-1, which always
// succeeds.
func (fs *Fs) Label() string {
	return latin1String(fs.DiskName())
}

// Created returns the volume creation stamp.
func (fs *Fs) Created() AmigaDate {
	return fs.root.Created
}

// Modified returns the volume modification stamp.
func (fs *Fs) Modified() AmigaDate {
	return fs.root.Modified
}

// BitmapValid reports whether the allocation bitmap was committed by the
// last writer.
func (fs *Fs) BitmapValid() bool {
	return fs.root.BitmapValid()
}

// RootEntry returns a directory entry descriptor for the root directory
// itself, named after the volume.
func (fs *Fs) RootEntry() DirEntry {
	e := DirEntry{
		Type:   EntryTypeRoot,
		Block:  fs.rootBlock,
		Date:   fs.root.Modified,
		Parent: 0,
	}
	e.nameLen = fs.root.NameLen
	copy(e.name[:], fs.root.DiskName[:])
	return e
}

// ReadRootDir iterates over the root directory.
func (fs *Fs) ReadRootDir() *DirIter {
	return newDirIter(fs, fs.root.HashTable)
}

// ReadDir iterates over the directory headed by the given block.
func (fs *Fs) ReadDir(block uint32) (*DirIter, error) {
	if block == fs.rootBlock {
		return fs.ReadRootDir(), nil
	}

	entry, err := fs.ReadEntry(block)
	if err != nil {
		return nil, err
	}
	if !entry.IsDir() {
		return nil, checkpoint.From(ErrNotADirectory)
	}

	return newDirIter(fs, entry.HashTable), nil
}

// ReadEntry loads and validates a single header block.
func (fs *Fs) ReadEntry(block uint32) (*EntryBlock, error) {
	var buf [BlockSize]byte
	if err := fs.readBlock(block, &buf); err != nil {
		return nil, err
	}
	entry, err := parseEntryBlock(&buf, block)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindEntry looks up a name in the directory headed by dirBlock. Only the
// hash chain of the name's slot is searched; placement in any other slot
// would be invisible to AmigaDOS as well.
func (fs *Fs) FindEntry(dirBlock uint32, name []byte) (*DirEntry, error) {
	if len(name) > MaxNameLen {
		return nil, checkpoint.From(ErrNameTooLong)
	}

	var table [HashTableSize]uint32
	if dirBlock == fs.rootBlock {
		table = fs.root.HashTable
	} else {
		entry, err := fs.ReadEntry(dirBlock)
		if err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			return nil, checkpoint.From(ErrNotADirectory)
		}
		table = entry.HashTable
	}

	intl := fs.Intl()
	block := table[hashName(name, intl)]

	var buf [BlockSize]byte
	// A malformed image can loop a hash chain back on itself; more hops
	// than blocks on the volume proves a cycle.
	for hops := uint32(0); block != 0; hops++ {
		if hops >= fs.totalBlocks {
			return nil, checkpoint.From(ErrCorruptVolume)
		}
		if err := fs.readBlock(block, &buf); err != nil {
			return nil, err
		}
		entry, err := parseEntryBlock(&buf, block)
		if err != nil {
			return nil, err
		}

		if namesEqual(entry.EntryName(), name, intl) {
			de, ok := newDirEntry(block, &entry)
			if !ok {
				return nil, checkpoint.From(ErrInvalidBlockType)
			}
			return &de, nil
		}

		block = entry.HashChain
	}

	return nil, checkpoint.From(ErrEntryNotFound)
}

// FindPath resolves a slash-separated path from the root directory. Empty
// components and a leading slash are ignored; the empty path and "/" name
// the root itself. Every component except the last must be a directory.
func (fs *Fs) FindPath(path string) (*DirEntry, error) {
	current := fs.rootBlock

	components := strings.Split(path, "/")
	var last *DirEntry
	for i, component := range components {
		if component == "" {
			continue
		}

		entry, err := fs.FindEntry(current, []byte(component))
		if err != nil {
			return nil, err
		}

		rest := components[i+1:]
		if entry.Type.IsDir() {
			current = entry.Block
		} else if hasNonEmpty(rest) {
			return nil, checkpoint.From(ErrNotADirectory)
		}

		last = entry
	}

	if last == nil {
		root := fs.RootEntry()
		return &root, nil
	}
	return last, nil
}

func hasNonEmpty(components []string) bool {
	for _, c := range components {
		if c != "" {
			return true
		}
	}
	return false
}

// ReadFile opens a streaming reader over the file headed by the given
// block.
func (fs *Fs) ReadFile(block uint32) (*FileReader, error) {
	return newFileReader(fs, block)
}

// readDirEntries collects a directory into a slice for the afero layer.
func (fs *Fs) readDirEntries(dirBlock uint32) ([]DirEntry, error) {
	var it *DirIter
	if dirBlock == fs.rootBlock {
		it = fs.ReadRootDir()
	} else {
		var err error
		it, err = fs.ReadDir(dirBlock)
		if err != nil {
			return nil, err
		}
	}

	var entries []DirEntry
	for it.Next() {
		entries = append(entries, *it.Entry())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// readFileAt reads up to readSize bytes starting at offset from the file
// headed by headerBlock. Short results are possible near the end of the
// file and are not an error.
func (fs *Fs) readFileAt(headerBlock uint32, fileSize, offset, readSize int64) ([]byte, error) {
	reader, err := newFileReader(fs, headerBlock)
	if err != nil {
		return nil, err
	}

	if err := reader.Seek(uint32(offset)); err != nil {
		return nil, err
	}

	want := fileSize - offset
	if want > readSize {
		want = readSize
	}
	if want <= 0 {
		return nil, nil
	}

	out := make([]byte, want)
	var total int
	for total < len(out) {
		n, err := reader.Read(out[total:])
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return out[:total], err
		}
	}
	return out[:total], nil
}

// readSymlinkTarget implements affsFileFs.
func (fs *Fs) readSymlinkTarget(block uint32) (string, error) {
	return fs.ReadSymlink(block)
}

// openEntry builds the afero file handle for a resolved entry.
func (fs *Fs) openEntry(entry *DirEntry, path string) *File {
	return &File{
		fs:          fs,
		path:        path,
		headerBlock: entry.Block,
		isDirectory: entry.Type.IsDir(),
		isSymlink:   entry.Type.IsSymlink(),
		stat:        dirEntryFileInfo{entry: *entry},
	}
}

// Open opens a file or directory for reading. The root directory is
// reachable as "/", "" or ".".
func (fs *Fs) Open(name string) (afero.File, error) {
	entry, err := fs.FindPath(trimPath(name))
	if err != nil {
		return nil, checkpoint.Wrap(err, &os.PathError{Op: "open", Path: name, Err: mapLookupErr(err)})
	}
	return fs.openEntry(entry, name), nil
}

// OpenFile is like Open; any writing flag fails with ErrReadOnly.
func (fs *Fs) OpenFile(name string, flag int, _ os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, checkpoint.Wrap(syscall.EPERM, ErrReadOnly)
	}
	return fs.Open(name)
}

// Stat returns file info for the entry at the given path.
func (fs *Fs) Stat(name string) (os.FileInfo, error) {
	entry, err := fs.FindPath(trimPath(name))
	if err != nil {
		return nil, checkpoint.Wrap(err, &os.PathError{Op: "stat", Path: name, Err: mapLookupErr(err)})
	}
	return dirEntryFileInfo{entry: *entry}, nil
}

// Name returns the filesystem implementation name.
func (fs *Fs) Name() string {
	return "AFFS"
}

// Create fails: the filesystem is read-only.
func (fs *Fs) Create(string) (afero.File, error) {
	return nil, checkpoint.Wrap(syscall.EPERM, ErrReadOnly)
}

// Mkdir fails: the filesystem is read-only.
func (fs *Fs) Mkdir(string, os.FileMode) error {
	return checkpoint.Wrap(syscall.EPERM, ErrReadOnly)
}

// MkdirAll fails: the filesystem is read-only.
func (fs *Fs) MkdirAll(string, os.FileMode) error {
	return checkpoint.Wrap(syscall.EPERM, ErrReadOnly)
}

// Remove fails: the filesystem is read-only.
func (fs *Fs) Remove(string) error {
	return checkpoint.Wrap(syscall.EPERM, ErrReadOnly)
}

// RemoveAll fails: the filesystem is read-only.
func (fs *Fs) RemoveAll(string) error {
	return checkpoint.Wrap(syscall.EPERM, ErrReadOnly)
}

// Rename fails: the filesystem is read-only.
func (fs *Fs) Rename(string, string) error {
	return checkpoint.Wrap(syscall.EPERM, ErrReadOnly)
}

// Chmod fails: the filesystem is read-only.
func (fs *Fs) Chmod(string, os.FileMode) error {
	return checkpoint.Wrap(syscall.EPERM, ErrReadOnly)
}

// Chown fails: the filesystem is read-only.
func (fs *Fs) Chown(string, int, int) error {
	return checkpoint.Wrap(syscall.EPERM, ErrReadOnly)
}

// Chtimes fails: the filesystem is read-only.
func (fs *Fs) Chtimes(string, time.Time, time.Time) error {
	return checkpoint.Wrap(syscall.EPERM, ErrReadOnly)
}

// trimPath maps the path spellings of afero and io/fs onto FindPath input.
func trimPath(name string) string {
	if name == "." {
		return ""
	}
	return name
}

// mapLookupErr translates lookup failures to the os-level sentinel expected
// inside a PathError.
func mapLookupErr(err error) error {
	switch {
	case errors.Is(err, ErrEntryNotFound):
		return os.ErrNotExist
	case errors.Is(err, ErrNotADirectory):
		return syscall.ENOTDIR
	default:
		return err
	}
}
