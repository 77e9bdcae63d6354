package affs

import (
	"errors"
	"io"

	"github.com/MuntasirSZN/affs-read/checkpoint"
)

// These errors may occur while streaming file data.
var (
	ErrCorruptFile    = errors.New("file structure is corrupt")
	ErrBufferTooSmall = errors.New("buffer smaller than remaining file data")
	ErrSeekPastEnd    = errors.New("seek position past end of file")
)

// FileReader streams a file's contents block by block.
//
// On OFS volumes data blocks form a checksummed linked list; the reader
// validates every block's checksum, owner and sequence number as it goes.
// On FFS volumes data blocks are raw payloads located through the header's
// pointer table and, past 72 blocks, through chained extension blocks.
//
// The reader keeps one block of state and performs exactly one device read
// per data block plus one per extension block. It is not safe for
// concurrent use.
type FileReader struct {
	fs          *Fs
	fast        bool
	headerBlock uint32
	fileSize    uint32
	remaining   uint32

	// blockIndex counts data blocks consumed, which doubles as the
	// expected OFS sequence number minus one.
	blockIndex uint32

	// Pointer table state (FFS).
	table         [MaxDataBlocks]uint32
	blocksInTable uint32
	indexInTable  uint32
	nextExtension uint32

	// Linked list state (OFS).
	currentData uint32
	ofsHeader   OfsDataBlock

	// Initial state for Reset.
	initTable     [MaxDataBlocks]uint32
	initBlocks    uint32
	initExtension uint32
	initFirstData uint32

	offsetInBlock int
	haveBlock     bool
	err           error
	buf           [BlockSize]byte
}

// newFileReader opens a reader over the file headed by headerBlock.
func newFileReader(fs *Fs, headerBlock uint32) (*FileReader, error) {
	entry, err := fs.ReadEntry(headerBlock)
	if err != nil {
		return nil, err
	}
	return newFileReaderFromEntry(fs, headerBlock, entry)
}

// newFileReaderFromEntry skips re-reading an already parsed header block.
func newFileReaderFromEntry(fs *Fs, headerBlock uint32, entry *EntryBlock) (*FileReader, error) {
	if !entry.IsFile() {
		return nil, checkpoint.From(ErrNotAFile)
	}
	if entry.HighSeq < 0 || entry.HighSeq > MaxDataBlocks {
		return nil, checkpoint.From(ErrCorruptFile)
	}

	f := &FileReader{
		fs:            fs,
		fast:          fs.FsType().Fast(),
		headerBlock:   headerBlock,
		fileSize:      entry.ByteSize,
		remaining:     entry.ByteSize,
		blocksInTable: uint32(entry.HighSeq),
		nextExtension: entry.Extension,
		currentData:   entry.FirstData,
	}
	copy(f.table[:], entry.HashTable[:])

	// A file has data exactly when its size is non-zero; a header that
	// disagrees with itself is corrupt.
	if f.fast {
		if (entry.ByteSize == 0) != (entry.DataBlock(0) == 0) {
			return nil, checkpoint.From(ErrCorruptFile)
		}
	} else {
		if (entry.ByteSize == 0) != (entry.FirstData == 0) {
			return nil, checkpoint.From(ErrCorruptFile)
		}
	}

	f.initTable = f.table
	f.initBlocks = f.blocksInTable
	f.initExtension = f.nextExtension
	f.initFirstData = f.currentData

	return f, nil
}

// Size returns the file size in bytes.
func (f *FileReader) Size() uint32 {
	return f.fileSize
}

// HeaderBlock returns the block number of the file header.
func (f *FileReader) HeaderBlock() uint32 {
	return f.headerBlock
}

// Remaining returns the number of bytes left to read.
func (f *FileReader) Remaining() uint32 {
	return f.remaining
}

// Position returns the current offset within the file.
func (f *FileReader) Position() uint32 {
	return f.fileSize - f.remaining
}

// IsEOF reports whether the whole file has been consumed.
func (f *FileReader) IsEOF() bool {
	return f.remaining == 0
}

// Reset rewinds the reader to the start of the file and clears any error
// state.
func (f *FileReader) Reset() {
	f.remaining = f.fileSize
	f.blockIndex = 0
	f.table = f.initTable
	f.blocksInTable = f.initBlocks
	f.indexInTable = 0
	f.nextExtension = f.initExtension
	f.currentData = f.initFirstData
	f.offsetInBlock = 0
	f.haveBlock = false
	f.err = nil
}

// Read fills out with file data and returns the number of bytes copied.
// At end of file it returns 0 and io.EOF, indefinitely. After a decoding
// error every further call returns the same error.
func (f *FileReader) Read(out []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.remaining == 0 {
		return 0, io.EOF
	}
	if len(out) == 0 {
		return 0, nil
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
		if uint32(n) > f.remaining {
			n = int(f.remaining)
		}

		start := f.dataOffset() + f.offsetInBlock
		copy(out[total:total+n], f.buf[start:start+n])

		total += n
		f.offsetInBlock += n
		f.remaining -= uint32(n)
	}

	return total, nil
}

// ReadAll reads the rest of the file into out, which must be large enough
// to hold it. It returns the number of bytes read.
func (f *FileReader) ReadAll(out []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if len(out) < int(f.remaining) {
		return 0, checkpoint.From(ErrBufferTooSmall)
	}

	total := 0
	for f.remaining > 0 {
		n, err := f.Read(out[total:])
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Seek positions the reader at an absolute offset. Seeking backwards
// rewinds to the start and streams forward again, which re-reads extension
// blocks on large files.
func (f *FileReader) Seek(position uint32) error {
	if f.err != nil {
		return f.err
	}
	if position > f.fileSize {
		return checkpoint.From(ErrSeekPastEnd)
	}
	if position == f.Position() {
		return nil
	}
	if position < f.Position() {
		f.Reset()
	}

	var discard [BlockSize]byte
	for f.Position() < position {
		chunk := position - f.Position()
		if chunk > BlockSize {
			chunk = BlockSize
		}
		n, err := f.Read(discard[:chunk])
		if err != nil {
			return err
		}
		if n == 0 {
			return checkpoint.From(ErrCorruptFile)
		}
	}
	return nil
}

// dataOffset returns where payload starts within the current block buffer.
func (f *FileReader) dataOffset() int {
	if f.fast {
		return 0
	}
	return OfsDataOffset
}

// availableInBlock returns how many unread payload bytes the current block
// still holds.
func (f *FileReader) availableInBlock() int {
	if !f.haveBlock {
		return 0
	}
	if f.fast {
		// FFS blocks carry no size of their own; the last block of the
		// file is clipped by the remaining byte count.
		valid := f.offsetInBlock + int(f.remaining)
		if valid > BlockSize {
			valid = BlockSize
		}
		return valid - f.offsetInBlock
	}
	return int(f.ofsHeader.DataSize) - f.offsetInBlock
}

// loadNextDataBlock fetches and validates the next data block.
func (f *FileReader) loadNextDataBlock() error {
	var block uint32
	if f.fast {
		next, err := f.nextTableBlock()
		if err != nil {
			return err
		}
		block = next
	} else {
		if f.blockIndex == 0 {
			block = f.currentData
		} else {
			block = f.ofsHeader.Next
		}
	}

	// Running out of chain while bytes are still owed means the header
	// and the data disagree.
	if block == 0 {
		return checkpoint.From(ErrCorruptFile)
	}

	if err := f.fs.readBlock(block, &f.buf); err != nil {
		return err
	}

	if !f.fast {
		header, err := parseOfsDataBlock(&f.buf)
		if err != nil {
			return err
		}
		// OFS data blocks name their owner and their position; both
		// must agree with the walk or the list is cross-linked.
		if header.HeaderKey != f.headerBlock {
			return checkpoint.From(ErrCorruptFile)
		}
		if header.SeqNum != f.blockIndex+1 {
			return checkpoint.From(ErrCorruptFile)
		}
		if header.DataSize == 0 || header.DataSize > f.remaining {
			return checkpoint.From(ErrCorruptFile)
		}
		// Only the final block may be partial; a short block with data
		// still owed means payload went missing.
		if header.DataSize < OfsDataSize && header.DataSize != f.remaining {
			return checkpoint.From(ErrCorruptFile)
		}
		f.ofsHeader = header
		f.currentData = block
	}

	f.offsetInBlock = 0
	f.haveBlock = true
	f.blockIndex++
	return nil
}

// nextTableBlock produces the next FFS data block number, switching to the
// next extension block when the current pointer table is exhausted.
func (f *FileReader) nextTableBlock() (uint32, error) {
	if f.indexInTable >= f.blocksInTable {
		if f.nextExtension == 0 {
			return 0, nil
		}

		ext, err := f.readExtension(f.nextExtension)
		if err != nil {
			return 0, err
		}
		copy(f.table[:], ext.DataBlocks[:])
		f.blocksInTable = uint32(ext.HighSeq)
		f.nextExtension = ext.Extension
		f.indexInTable = 0

		if f.indexInTable >= f.blocksInTable {
			return 0, nil
		}
	}

	// The pointer table is stored in reverse: the first data block sits
	// in the last slot. See EntryBlock.DataBlock.
	block := f.table[MaxDataBlocks-1-f.indexInTable]
	f.indexInTable++
	return block, nil
}

// readExtension loads and validates a file extension block.
func (f *FileReader) readExtension(block uint32) (*FileExtBlock, error) {
	var buf [BlockSize]byte
	if err := f.fs.readBlock(block, &buf); err != nil {
		return nil, err
	}
	ext, err := parseFileExtBlock(&buf, block)
	if err != nil {
		return nil, err
	}
	if ext.HighSeq < 0 || ext.HighSeq > MaxDataBlocks {
		return nil, checkpoint.From(ErrCorruptFile)
	}
	return &ext, nil
}
