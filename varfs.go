package affs

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/MuntasirSZN/affs-read/checkpoint"
)

// Hard disk partitions can be formatted with block sizes of 512, 1024,
// 2048, 4096 or 8192 bytes. The block size is not stored anywhere on disk;
// it has to be found by probing: the root block is re-read at every
// candidate size until its layout and checksum validate. Only FFS volumes
// use large blocks, so the variable reader does not handle OFS data blocks.
//
// All tail fields of a header block sit at fixed distances from the block
// end, which is what makes the 512-byte layout scale: the hash table simply
// grows to fill the space between the 24-byte head and the 200-byte tail,
// giving blockSize/4 - 56 slots.

// MaxVarBlockSize is the largest supported block size.
const MaxVarBlockSize = 8192

// maxLogBlockSize is log2(MaxVarBlockSize / 512).
const maxLogBlockSize = 4

// ErrNoVolumeFound is returned when probing cannot validate a root block at
// any block size.
var ErrNoVolumeFound = errors.New("no AFFS volume found while probing")

// VarFs provides read-only access to an FFS volume with any block size from
// 512 to MaxVarBlockSize bytes. The device still reads 512-byte sectors; the
// reader gathers them into filesystem blocks.
type VarFs struct {
	dev           BlockDevice
	fsType        FsType
	rootBlock     uint32
	totalBlocks   uint32
	logBlockSize  uint8
	blockSize     int
	hashTableSize int

	diskNameLen uint8
	diskName    [MaxNameLen]byte
	created     AmigaDate
	modified    AmigaDate
}

// varHashTableSize returns the number of hash table slots for a block size.
func varHashTableSize(blockSize int) int {
	return blockSize/4 - 56
}

// NewVar opens a variable block-size volume by probing. totalSectors is the
// partition size in 512-byte sectors.
func NewVar(device BlockDevice, totalSectors uint32) (*VarFs, error) {
	if totalSectors < 4 {
		return nil, checkpoint.From(ErrInvalidSize)
	}

	fs := &VarFs{dev: device}

	var bootBuf [BootBlockSize]byte
	// The boot block usually starts at sector 0, but partitions carved
	// out of an RDB disk sometimes shift it by one sector.
	for bootSector := uint32(0); bootSector <= 1; bootSector++ {
		if err := readSectors(device, bootSector, bootBuf[:]); err != nil {
			continue
		}

		if !bytes.Equal(bootBuf[0:3], []byte("DOS")) {
			continue
		}
		dialect := FsType(bootBuf[3])
		if dialect > FsTypeFFSDirCache || !dialect.Fast() {
			// OFS never uses large blocks.
			continue
		}
		if bootBuf[12] != 0 {
			if beUint32(bootBuf[:], 4) != bootSum(&bootBuf) {
				continue
			}
		}

		rootBlock := beUint32(bootBuf[:], 8)

		buf := make([]byte, MaxVarBlockSize)
		for logBS := uint8(0); logBS <= maxLogBlockSize; logBS++ {
			blockSize := BlockSize << logBS

			candidate := rootBlock
			if candidate == 0 {
				candidate = (totalSectors >> logBS) / 2
			}

			rootSector := candidate << logBS
			if err := readSectors(device, rootSector, buf[:blockSize]); err != nil {
				continue
			}

			if beInt32(buf, 0) != typeHeader {
				continue
			}
			if EntryType(beInt32(buf, blockSize-4)) != EntryTypeRoot {
				continue
			}
			// The stored hash table size doubles as a probe check:
			// it only matches the candidate block size when the
			// size is right.
			if beInt32(buf, 12) != int32(varHashTableSize(blockSize)) {
				continue
			}
			if beUint32(buf, offChecksum) != normalSumSlice(buf[:blockSize], offChecksum) {
				continue
			}

			fs.fsType = dialect
			fs.rootBlock = candidate
			fs.totalBlocks = totalSectors >> logBS
			fs.logBlockSize = logBS
			fs.blockSize = blockSize
			fs.hashTableSize = varHashTableSize(blockSize)

			fs.diskNameLen = buf[blockSize-80]
			if fs.diskNameLen > MaxNameLen {
				fs.diskNameLen = MaxNameLen
			}
			copy(fs.diskName[:fs.diskNameLen], buf[blockSize-80+1:])
			fs.created = readDate(buf, blockSize-92)
			fs.modified = readDate(buf, blockSize-40)

			return fs, nil
		}
	}

	return nil, checkpoint.From(ErrNoVolumeFound)
}

// readSectors fills buf with consecutive 512-byte sectors starting at
// startSector.
func readSectors(device BlockDevice, startSector uint32, buf []byte) error {
	var sector [BlockSize]byte
	for i := 0; i*BlockSize < len(buf); i++ {
		if err := device.ReadBlock(startSector+uint32(i), &sector); err != nil {
			return checkpoint.Wrap(err, ErrDeviceRead)
		}
		copy(buf[i*BlockSize:], sector[:])
	}
	return nil
}

// readBlock loads one filesystem block into buf, which must hold blockSize
// bytes.
func (fs *VarFs) readBlock(block uint32, buf []byte) error {
	if block == 0 || block >= fs.totalBlocks {
		return checkpoint.From(ErrBlockOutOfRange)
	}
	return readSectors(fs.dev, block<<fs.logBlockSize, buf[:fs.blockSize])
}

// FsType returns the volume's dialect.
func (fs *VarFs) FsType() FsType {
	return fs.fsType
}

// Intl reports whether international name folding is in effect.
func (fs *VarFs) Intl() bool {
	return fs.fsType.Intl()
}

// RootBlock returns the root block number in filesystem blocks.
func (fs *VarFs) RootBlock() uint32 {
	return fs.rootBlock
}

// TotalBlocks returns the volume size in filesystem blocks.
func (fs *VarFs) TotalBlocks() uint32 {
	return fs.totalBlocks
}

// BlockSize returns the probed block size in bytes.
func (fs *VarFs) BlockSize() int {
	return fs.blockSize
}

// HashTableSize returns the per-directory hash table slot count.
func (fs *VarFs) HashTableSize() int {
	return fs.hashTableSize
}

// DiskName returns the volume label as raw bytes.
func (fs *VarFs) DiskName() []byte {
	return fs.diskName[:fs.diskNameLen]
}

// Label returns the volume label decoded from Latin-1.
func (fs *VarFs) Label() string {
	return latin1String(fs.DiskName())
}

// Created returns the volume creation stamp.
func (fs *VarFs) Created() AmigaDate {
	return fs.created
}

// Modified returns the volume modification stamp.
func (fs *VarFs) Modified() AmigaDate {
	return fs.modified
}

// parseVarEntry decodes a header block in buf into a DirEntry plus its hash
// chain successor. ok is false for unknown secondary types.
func (fs *VarFs) parseVarEntry(buf []byte, block uint32) (entry DirEntry, chain uint32, ok bool, err error) {
	bs := fs.blockSize

	if beUint32(buf, offChecksum) != normalSumSlice(buf[:bs], offChecksum) {
		return entry, 0, false, checkpoint.From(ErrChecksumMismatch)
	}
	if beInt32(buf, 0) != typeHeader {
		return entry, 0, false, checkpoint.From(ErrInvalidBlockType)
	}
	if beUint32(buf, 4) != block {
		return entry, 0, false, checkpoint.From(ErrInvalidBlockType)
	}

	chain = beUint32(buf, bs-16)

	entryType, known := entryTypeOf(beInt32(buf, bs-4))
	if !known {
		return entry, chain, false, nil
	}

	entry = DirEntry{
		Type:      entryType,
		Block:     block,
		Parent:    beUint32(buf, bs-12),
		Size:      beUint32(buf, bs-188),
		Access:    Access(beUint32(buf, bs-192)),
		Date:      readDate(buf, bs-92),
		RealEntry: beUint32(buf, bs-44),
	}

	entry.nameLen = buf[bs-80]
	if entry.nameLen > MaxNameLen {
		return entry, chain, false, checkpoint.From(ErrNameTooLong)
	}
	copy(entry.name[:entry.nameLen], buf[bs-80+1:])

	entry.commentLen = buf[bs-184]
	if entry.commentLen > MaxCommentLen {
		entry.commentLen = MaxCommentLen
	}
	copy(entry.comment[:entry.commentLen], buf[bs-184+1:])

	return entry, chain, true, nil
}

// dirHashTable loads the hash table of the directory headed by block.
func (fs *VarFs) dirHashTable(block uint32) ([]uint32, error) {
	buf := make([]byte, fs.blockSize)
	if err := fs.readBlock(block, buf); err != nil {
		return nil, err
	}

	if beUint32(buf, offChecksum) != normalSumSlice(buf, offChecksum) {
		return nil, checkpoint.From(ErrChecksumMismatch)
	}
	if beInt32(buf, 0) != typeHeader {
		return nil, checkpoint.From(ErrInvalidBlockType)
	}
	if block != fs.rootBlock {
		secType := EntryType(beInt32(buf, fs.blockSize-4))
		if !secType.IsDir() {
			return nil, checkpoint.From(ErrNotADirectory)
		}
	}

	table := make([]uint32, fs.hashTableSize)
	for i := range table {
		table[i] = beUint32(buf, offHashTable+i*4)
	}
	return table, nil
}

// VarDirIter walks a variable block-size directory lazily, in on-disk
// order, with the same contract as DirIter.
type VarDirIter struct {
	fs    *VarFs
	table []uint32
	slot  int
	chain uint32
	hops  uint32
	entry DirEntry
	err   error
	buf   []byte
}

// ReadDir iterates over the directory headed by block.
func (fs *VarFs) ReadDir(block uint32) (*VarDirIter, error) {
	table, err := fs.dirHashTable(block)
	if err != nil {
		return nil, err
	}
	return &VarDirIter{fs: fs, table: table, buf: make([]byte, fs.blockSize)}, nil
}

// ReadRootDir iterates over the root directory.
func (fs *VarFs) ReadRootDir() (*VarDirIter, error) {
	return fs.ReadDir(fs.rootBlock)
}

// Next advances to the next entry; see DirIter.Next.
func (it *VarDirIter) Next() bool {
	if it.err != nil {
		return false
	}

	for {
		if it.chain != 0 {
			if it.hops >= it.fs.totalBlocks {
				it.err = checkpoint.From(ErrCorruptVolume)
				return false
			}
			it.hops++

			block := it.chain
			if err := it.fs.readBlock(block, it.buf); err != nil {
				it.err = err
				return false
			}
			entry, chain, ok, err := it.fs.parseVarEntry(it.buf, block)
			if err != nil {
				it.err = err
				return false
			}
			it.chain = chain
			if !ok {
				continue
			}
			it.entry = entry
			return true
		}

		for it.slot < len(it.table) {
			block := it.table[it.slot]
			it.slot++
			if block != 0 {
				it.chain = block
				it.hops = 0
				break
			}
		}
		if it.chain == 0 {
			return false
		}
	}
}

// Entry returns the entry produced by the last successful Next.
func (it *VarDirIter) Entry() *DirEntry {
	return &it.entry
}

// Err returns the error that terminated iteration, if any.
func (it *VarDirIter) Err() error {
	return it.err
}

// FindEntry looks up a name in the directory headed by dirBlock. The hash
// slot count follows the block size, so the slot is the name hash modulo
// the volume's table size rather than 72.
func (fs *VarFs) FindEntry(dirBlock uint32, name []byte) (*DirEntry, error) {
	if len(name) > MaxNameLen {
		return nil, checkpoint.From(ErrNameTooLong)
	}

	table, err := fs.dirHashTable(dirBlock)
	if err != nil {
		return nil, err
	}

	intl := fs.Intl()
	block := table[hashNameSized(name, intl, uint32(fs.hashTableSize))]

	buf := make([]byte, fs.blockSize)
	for hops := uint32(0); block != 0; hops++ {
		if hops >= fs.totalBlocks {
			return nil, checkpoint.From(ErrCorruptVolume)
		}
		if err := fs.readBlock(block, buf); err != nil {
			return nil, err
		}
		entry, chain, ok, err := fs.parseVarEntry(buf, block)
		if err != nil {
			return nil, err
		}
		if ok && namesEqual(entry.Name(), name, intl) {
			return &entry, nil
		}
		block = chain
	}

	return nil, checkpoint.From(ErrEntryNotFound)
}

// RootEntry returns a directory entry descriptor for the root directory
// itself, named after the volume.
func (fs *VarFs) RootEntry() DirEntry {
	e := DirEntry{
		Type:  EntryTypeRoot,
		Block: fs.rootBlock,
		Date:  fs.modified,
	}
	e.nameLen = fs.diskNameLen
	copy(e.name[:], fs.diskName[:])
	return e
}

// FindPath resolves a slash-separated path from the root, with the same
// rules as Fs.FindPath.
func (fs *VarFs) FindPath(path string) (*DirEntry, error) {
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

		if entry.Type.IsDir() {
			current = entry.Block
		} else if hasNonEmpty(components[i+1:]) {
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

// ReadFile opens a streaming reader over the file headed by block.
func (fs *VarFs) ReadFile(block uint32) (*VarFileReader, error) {
	buf := make([]byte, fs.blockSize)
	if err := fs.readBlock(block, buf); err != nil {
		return nil, err
	}

	entry, _, ok, err := fs.parseVarEntry(buf, block)
	if err != nil {
		return nil, err
	}
	if !ok || !entry.Type.IsFile() {
		return nil, checkpoint.From(ErrNotAFile)
	}

	bs := fs.blockSize
	f := &VarFileReader{
		fs:            fs,
		headerBlock:   block,
		fileSize:      entry.Size,
		remaining:     entry.Size,
		blocksInTable: beUint32(buf, 8),
		nextExtension: beUint32(buf, bs-8),
		table:         make([]uint32, fs.hashTableSize),
		buf:           make([]byte, bs),
	}
	for i := range f.table {
		f.table[i] = beUint32(buf, offHashTable+i*4)
	}
	if f.blocksInTable > uint32(fs.hashTableSize) {
		return nil, checkpoint.From(ErrCorruptFile)
	}
	if (entry.Size == 0) != (f.table[fs.hashTableSize-1] == 0) {
		return nil, checkpoint.From(ErrCorruptFile)
	}

	return f, nil
}

// VarFileReader streams a file on a variable block-size FFS volume.
type VarFileReader struct {
	fs          *VarFs
	headerBlock uint32
	fileSize    uint32
	remaining   uint32

	table         []uint32
	blocksInTable uint32
	indexInTable  uint32
	nextExtension uint32

	offsetInBlock int
	haveBlock     bool
	err           error
	buf           []byte
}

// Size returns the file size in bytes.
func (f *VarFileReader) Size() uint32 {
	return f.fileSize
}

// Remaining returns the number of bytes left to read.
func (f *VarFileReader) Remaining() uint32 {
	return f.remaining
}

// Read fills out with file data; the contract matches FileReader.Read.
func (f *VarFileReader) Read(out []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.remaining == 0 {
		return 0, io.EOF
	}

	total := 0
	for total < len(out) && f.remaining > 0 {
		avail := f.availableInBlock()
		if !f.haveBlock || avail == 0 {
			if err := f.loadNextDataBlock(); err != nil {
				f.err = err
				return total, err
			}
			continue
		}

		n := avail
		if n > len(out)-total {
			n = len(out) - total
		}
		copy(out[total:total+n], f.buf[f.offsetInBlock:f.offsetInBlock+n])

		total += n
		f.offsetInBlock += n
		f.remaining -= uint32(n)
	}

	return total, nil
}

func (f *VarFileReader) availableInBlock() int {
	if !f.haveBlock {
		return 0
	}
	valid := f.offsetInBlock + int(f.remaining)
	if valid > f.fs.blockSize {
		valid = f.fs.blockSize
	}
	return valid - f.offsetInBlock
}

func (f *VarFileReader) loadNextDataBlock() error {
	block, err := f.nextTableBlock()
	if err != nil {
		return err
	}
	if block == 0 {
		return checkpoint.From(ErrCorruptFile)
	}

	if err := f.fs.readBlock(block, f.buf); err != nil {
		return err
	}
	f.offsetInBlock = 0
	f.haveBlock = true
	return nil
}

func (f *VarFileReader) nextTableBlock() (uint32, error) {
	size := uint32(f.fs.hashTableSize)

	if f.indexInTable >= f.blocksInTable {
		if f.nextExtension == 0 {
			return 0, nil
		}

		bs := f.fs.blockSize
		ext := make([]byte, bs)
		if err := f.fs.readBlock(f.nextExtension, ext); err != nil {
			return 0, err
		}
		if beUint32(ext, offChecksum) != normalSumSlice(ext, offChecksum) {
			return 0, checkpoint.From(ErrChecksumMismatch)
		}
		if beInt32(ext, 0) != typeList {
			return 0, checkpoint.From(ErrInvalidBlockType)
		}
		if beUint32(ext, 4) != f.nextExtension {
			return 0, checkpoint.From(ErrInvalidBlockType)
		}

		f.blocksInTable = beUint32(ext, 8)
		if f.blocksInTable > size {
			return 0, checkpoint.From(ErrCorruptFile)
		}
		for i := range f.table {
			f.table[i] = beUint32(ext, offHashTable+i*4)
		}
		f.nextExtension = beUint32(ext, bs-8)
		f.indexInTable = 0

		if f.indexInTable >= f.blocksInTable {
			return 0, nil
		}
	}

	// Reverse order, as on 512-byte volumes: the first data block sits
	// in the last table slot.
	block := f.table[size-1-f.indexInTable]
	f.indexInTable++
	return block, nil
}
