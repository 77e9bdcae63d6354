package affs

// Helpers to build synthetic disk images in memory. Tests assemble volumes
// block by block the same way a formatter would, so every parser runs
// against byte-exact on-disk layouts.

import (
	"errors"
	"fmt"
	"testing"
)

// testDevice is an in-memory block device.
type testDevice struct {
	blocks [][BlockSize]byte
}

var errPastEnd = errors.New("read past end of image")

func newTestDevice(numBlocks uint32) *testDevice {
	return &testDevice{blocks: make([][BlockSize]byte, numBlocks)}
}

func (d *testDevice) ReadBlock(block uint32, buf *[BlockSize]byte) error {
	if int(block) >= len(d.blocks) {
		return errPastEnd
	}
	*buf = d.blocks[block]
	return nil
}

// countingDevice counts reads going through to the wrapped device.
type countingDevice struct {
	inner BlockDevice
	reads int
}

func (d *countingDevice) ReadBlock(block uint32, buf *[BlockSize]byte) error {
	d.reads++
	return d.inner.ReadBlock(block, buf)
}

// failDevice fails every read.
type failDevice struct{}

var errBrokenDevice = errors.New("broken device")

func (failDevice) ReadBlock(block uint32, buf *[BlockSize]byte) error {
	return errBrokenDevice
}

func putU32(buf []byte, off int, v uint32) {
	buf[off] = byte(v >> 24)
	buf[off+1] = byte(v >> 16)
	buf[off+2] = byte(v >> 8)
	buf[off+3] = byte(v)
}

func putI32(buf []byte, off int, v int32) {
	putU32(buf, off, uint32(v))
}

// fixChecksum recomputes and stores the normal checksum of a block.
func fixChecksum(d *testDevice, block uint32) {
	buf := &d.blocks[block]
	putU32(buf[:], offChecksum, normalSum(buf, offChecksum))
}

// testVolume assembles a synthetic AFFS volume.
type testVolume struct {
	t      *testing.T
	dev    *testDevice
	fsType FsType
	total  uint32
	root   uint32
}

// newTestVolume creates a volume with a boot block and an empty root block
// labelled "WORK".
func newTestVolume(t *testing.T, fsType FsType, total uint32) *testVolume {
	t.Helper()

	v := &testVolume{
		t:      t,
		dev:    newTestDevice(total),
		fsType: fsType,
		total:  total,
		root:   total / 2,
	}

	boot := &v.dev.blocks[0]
	copy(boot[0:3], "DOS")
	boot[3] = byte(fsType)
	putU32(boot[:], 8, v.root)

	root := &v.dev.blocks[v.root]
	putI32(root[:], 0, typeHeader)
	putI32(root[:], 12, HashTableSize)
	putI32(root[:], offBitmapFlag, bitmapValid)
	putI32(root[:], offDate, 6988) // 1997-02-18
	putI32(root[:], offDiskMod, 6988)
	root[offName] = 4
	copy(root[offName+1:], "WORK")
	putI32(root[:], offSecType, int32(EntryTypeRoot))
	fixChecksum(v.dev, v.root)

	return v
}

// open mounts the volume.
func (v *testVolume) open() *Fs {
	v.t.Helper()
	fs, err := NewWithSize(v.dev, v.total)
	if err != nil {
		v.t.Fatalf("NewWithSize() error = %v", err)
	}
	return fs
}

// newEntryBlock writes the shared header fields of an entry block.
func (v *testVolume) newEntryBlock(block, parent uint32, name string, secType EntryType) {
	buf := &v.dev.blocks[block]
	putI32(buf[:], 0, typeHeader)
	putU32(buf[:], 4, block)
	putI32(buf[:], offDate, 7000)
	if len(name) > MaxNameLen {
		v.t.Fatalf("test name %q too long", name)
	}
	buf[offName] = byte(len(name))
	copy(buf[offName+1:], name)
	putU32(buf[:], offParent, parent)
	putI32(buf[:], offSecType, int32(secType))
}

// link hooks an entry block into its parent's hash table, newest first, and
// re-checksums both blocks.
func (v *testVolume) link(parent, block uint32, name string) {
	slot := int(hashName([]byte(name), v.fsType.Intl()))

	parentBuf := &v.dev.blocks[parent]
	old := beUint32(parentBuf[:], offHashTable+slot*4)
	putU32(parentBuf[:], offHashTable+slot*4, block)
	fixChecksum(v.dev, parent)

	entryBuf := &v.dev.blocks[block]
	putU32(entryBuf[:], offHashChain, old)
	fixChecksum(v.dev, block)
}

// addDir creates a user directory entry.
func (v *testVolume) addDir(parent, block uint32, name string) {
	v.newEntryBlock(block, parent, name, EntryTypeDir)
	v.link(parent, block, name)
}

// addFile creates a file with the given content, using data blocks (and for
// long FFS files, extension blocks) allocated sequentially from nextBlock.
// It returns the first block after the file's allocation.
func (v *testVolume) addFile(parent, header uint32, name string, content []byte, nextBlock uint32) uint32 {
	v.newEntryBlock(header, parent, name, EntryTypeFile)
	buf := &v.dev.blocks[header]
	putU32(buf[:], offByteSize, uint32(len(content)))

	if v.fsType.Fast() {
		nextBlock = v.fillFFS(header, content, nextBlock)
	} else {
		nextBlock = v.fillOFS(header, content, nextBlock)
	}

	v.link(parent, header, name)
	return nextBlock
}

// fillFFS lays content out as raw data blocks referenced from the header's
// reversed pointer table, chaining extension blocks past 72 pointers.
func (v *testVolume) fillFFS(header uint32, content []byte, nextBlock uint32) uint32 {
	numBlocks := (len(content) + BlockSize - 1) / BlockSize

	blocks := make([]uint32, numBlocks)
	for i := range blocks {
		blocks[i] = nextBlock
		copy(v.dev.blocks[nextBlock][:], content[i*BlockSize:])
		nextBlock++
	}

	headerBuf := &v.dev.blocks[header]
	inHeader := numBlocks
	if inHeader > MaxDataBlocks {
		inHeader = MaxDataBlocks
	}
	putI32(headerBuf[:], 8, int32(inHeader))
	for i := 0; i < inHeader; i++ {
		// The pointer table stores the first data block in the last
		// slot.
		putU32(headerBuf[:], offHashTable+(MaxDataBlocks-1-i)*4, blocks[i])
	}
	if numBlocks > 0 {
		putU32(headerBuf[:], 16, blocks[0])
	}

	// Chain the rest through extension blocks.
	prev := header
	rest := blocks[inHeader:]
	for len(rest) > 0 {
		ext := nextBlock
		nextBlock++

		putU32(v.dev.blocks[prev][:], offExtension, ext)
		fixChecksum(v.dev, prev)

		n := len(rest)
		if n > MaxDataBlocks {
			n = MaxDataBlocks
		}

		extBuf := &v.dev.blocks[ext]
		putI32(extBuf[:], 0, typeList)
		putU32(extBuf[:], 4, ext)
		putI32(extBuf[:], 8, int32(n))
		for i := 0; i < n; i++ {
			putU32(extBuf[:], offHashTable+(MaxDataBlocks-1-i)*4, rest[i])
		}
		putU32(extBuf[:], offParent, header)
		putI32(extBuf[:], offSecType, int32(EntryTypeFile))
		fixChecksum(v.dev, ext)

		prev = ext
		rest = rest[n:]
	}

	fixChecksum(v.dev, header)
	return nextBlock
}

// fillOFS lays content out as a linked list of headered OFS data blocks.
func (v *testVolume) fillOFS(header uint32, content []byte, nextBlock uint32) uint32 {
	numBlocks := (len(content) + OfsDataSize - 1) / OfsDataSize

	headerBuf := &v.dev.blocks[header]

	var first uint32
	prev := uint32(0)
	for i := 0; i < numBlocks; i++ {
		block := nextBlock
		nextBlock++
		if i == 0 {
			first = block
		} else {
			putU32(v.dev.blocks[prev][:], 16, block)
			fixChecksum(v.dev, prev)
		}

		chunk := content[i*OfsDataSize:]
		if len(chunk) > OfsDataSize {
			chunk = chunk[:OfsDataSize]
		}

		dataBuf := &v.dev.blocks[block]
		putI32(dataBuf[:], 0, typeData)
		putU32(dataBuf[:], 4, header)
		putU32(dataBuf[:], 8, uint32(i+1))
		putU32(dataBuf[:], 12, uint32(len(chunk)))
		copy(dataBuf[OfsDataOffset:], chunk)
		fixChecksum(v.dev, block)

		if i < MaxDataBlocks {
			putU32(headerBuf[:], offHashTable+(MaxDataBlocks-1-i)*4, block)
		}
		prev = block
	}

	if numBlocks > 0 {
		putU32(headerBuf[:], 16, first)
		inHeader := numBlocks
		if inHeader > MaxDataBlocks {
			inHeader = MaxDataBlocks
		}
		putI32(headerBuf[:], 8, int32(inHeader))
	}
	fixChecksum(v.dev, header)
	return nextBlock
}

// addSymlink creates a soft link entry with the given raw Latin-1 target.
func (v *testVolume) addSymlink(parent, block uint32, name string, target []byte) {
	v.newEntryBlock(block, parent, name, EntryTypeSoftLink)
	buf := &v.dev.blocks[block]
	copy(buf[symlinkOffset:BlockSize-headerTailLen], target)
	v.link(parent, block, name)
}

// patch edits a block in place and re-checksums it.
func (v *testVolume) patch(block uint32, edit func(buf *[BlockSize]byte)) {
	edit(&v.dev.blocks[block])
	fixChecksum(v.dev, block)
}

// corrupt edits a block without fixing the checksum.
func (v *testVolume) corrupt(block uint32, edit func(buf *[BlockSize]byte)) {
	edit(&v.dev.blocks[block])
}

// pattern produces deterministic distinguishable content of length n.
func pattern(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*7 + i/BlockSize)
	}
	return out
}

// collidingNames finds two distinct names that land in the same hash slot.
func collidingNames(intl bool) (string, string) {
	first := "file00"
	want := hashName([]byte(first), intl)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("file%02d", i)
		if hashName([]byte(candidate), intl) == want {
			return first, candidate
		}
	}
}
