package affs

import (
	"bytes"
	"errors"

	"github.com/MuntasirSZN/affs-read/checkpoint"
)

// These errors may occur while parsing raw blocks.
var (
	ErrInvalidBootBlock = errors.New("invalid boot block signature")
	ErrChecksumMismatch = errors.New("block checksum mismatch")
	ErrInvalidBlockType = errors.New("unexpected block type")
	ErrNameTooLong      = errors.New("name longer than 30 bytes")
)

// Fixed field offsets of the 512-byte header block layout. The tail fields
// sit at fixed distances from the end of the block, which is what lets the
// same layout scale to larger blocks on hard disk partitions.
const (
	offChecksum   = 20
	offHashTable  = 24
	offBitmapFlag = 0x138
	offBitmapPage = 0x13C
	offBitmapExt  = 0x1A0
	offDate       = 0x1A4
	offName       = 0x1B0
	offDiskMod    = 0x1D8
	offAccess     = 0x140
	offByteSize   = 0x144
	offComment    = 0x148
	offRealEntry  = 0x1D4
	offNextLink   = 0x1D8
	offHashChain  = 0x1F0
	offParent     = 0x1F4
	offExtension  = 0x1F8
	offSecType    = 0x1FC
)

// BootBlock is the decoded boot region of a volume.
type BootBlock struct {
	// DosType holds the four signature bytes, "DOS" plus the dialect.
	DosType [4]byte
	// Checksum is the stored boot checksum. Only meaningful when boot
	// code is present.
	Checksum uint32
	// RootBlock is the root block number stored by the formatter. Zero
	// means the reader derives it from the volume size.
	RootBlock uint32
}

// parseBootBlock decodes and validates the 1024-byte boot region.
//
// The checksum is only verified when the block carries boot code (first
// byte after the header is non-zero); plain data volumes leave the field
// stale and AmigaDOS ignores it.
func parseBootBlock(buf *[BootBlockSize]byte) (BootBlock, error) {
	var b BootBlock
	copy(b.DosType[:], buf[0:4])

	if !bytes.Equal(b.DosType[:3], []byte("DOS")) || b.DosType[3] > byte(FsTypeFFSDirCache) {
		return b, checkpoint.From(ErrInvalidBootBlock)
	}

	b.Checksum = beUint32(buf[:], 4)
	b.RootBlock = beUint32(buf[:], 8)

	if buf[12] != 0 {
		if b.Checksum != bootSum(buf) {
			return b, checkpoint.From(ErrChecksumMismatch)
		}
	}

	return b, nil
}

// FsType returns the dialect selected by the fourth signature byte.
func (b *BootBlock) FsType() FsType {
	return FsType(b.DosType[3])
}

// RootBlock is the decoded root block of a volume.
type RootBlock struct {
	// HashTable is the root directory's 72-slot hash table.
	HashTable [HashTableSize]uint32
	// BitmapFlag is -1 when the block allocation bitmap is valid.
	BitmapFlag int32
	// BitmapPages holds up to 25 bitmap block pointers.
	BitmapPages [BitmapPagesRoot]uint32
	// BitmapExt points to the first bitmap extension block, used by
	// volumes too large for 25 pages.
	BitmapExt uint32
	// Created is the volume creation stamp.
	Created AmigaDate
	// Modified is the volume modification stamp.
	Modified AmigaDate
	// NameLen and DiskName hold the volume label.
	NameLen  uint8
	DiskName [MaxNameLen]byte
	// Extension is the first directory cache block on DC volumes.
	Extension uint32
}

// parseRootBlock decodes and validates a root block.
func parseRootBlock(buf *[BlockSize]byte) (RootBlock, error) {
	var r RootBlock

	// The checksum gates the parse; no other field is interpreted before
	// it holds.
	if beUint32(buf[:], offChecksum) != normalSum(buf, offChecksum) {
		return r, checkpoint.From(ErrChecksumMismatch)
	}
	if beInt32(buf[:], 0) != typeHeader {
		return r, checkpoint.From(ErrInvalidBlockType)
	}
	if EntryType(beInt32(buf[:], offSecType)) != EntryTypeRoot {
		return r, checkpoint.From(ErrInvalidBlockType)
	}
	// The hash table size field predates the fixed 72-slot layout; no
	// volume in the wild uses another value, so anything else is treated
	// as a foreign block.
	if beInt32(buf[:], 12) != HashTableSize {
		return r, checkpoint.From(ErrInvalidBlockType)
	}

	for i := range r.HashTable {
		r.HashTable[i] = beUint32(buf[:], offHashTable+i*4)
	}

	r.BitmapFlag = beInt32(buf[:], offBitmapFlag)
	for i := range r.BitmapPages {
		r.BitmapPages[i] = beUint32(buf[:], offBitmapPage+i*4)
	}
	r.BitmapExt = beUint32(buf[:], offBitmapExt)

	r.Created = readDate(buf[:], offDate)
	r.Modified = readDate(buf[:], offDiskMod)

	r.NameLen = buf[offName]
	if r.NameLen > MaxNameLen {
		return r, checkpoint.From(ErrNameTooLong)
	}
	copy(r.DiskName[:r.NameLen], buf[offName+1:])

	r.Extension = beUint32(buf[:], offExtension)

	return r, nil
}

// Name returns the volume label as raw bytes.
func (r *RootBlock) Name() []byte {
	return r.DiskName[:r.NameLen]
}

// BitmapValid reports whether the allocation bitmap was committed by the
// last writer.
func (r *RootBlock) BitmapValid() bool {
	return r.BitmapFlag == bitmapValid
}

// EntryBlock is a decoded header block: a user directory, a file header, or
// one of the link variants. The same 512-byte layout backs all of them; the
// secondary type tells them apart.
type EntryBlock struct {
	// HeaderKey is the block's own number, kept on disk as a redundancy
	// check.
	HeaderKey uint32
	// HighSeq is the number of used data block pointers (files).
	HighSeq int32
	// FirstData points to the first OFS data block (files).
	FirstData uint32
	// HashTable is the directory hash table, or for files the data block
	// pointer table, stored in reverse order.
	HashTable [HashTableSize]uint32
	// Access holds the protection bits.
	Access Access
	// ByteSize is the file size in bytes (files).
	ByteSize uint32
	// CommentLen and Comment hold the entry comment.
	CommentLen uint8
	Comment    [MaxCommentLen]byte
	// Date is the last modification stamp.
	Date AmigaDate
	// NameLen and Name hold the entry name.
	NameLen uint8
	Name    [MaxNameLen]byte
	// RealEntry points to the linked-to header for hard links.
	RealEntry uint32
	// NextLink chains the hard links of an entry.
	NextLink uint32
	// HashChain points to the next entry in the same hash slot.
	HashChain uint32
	// Parent is the owning directory's block.
	Parent uint32
	// Extension points to the first file extension block (files) or the
	// directory cache block (directories on DC volumes).
	Extension uint32
	// SecType is the raw secondary type.
	SecType int32
}

// parseEntryBlock decodes and validates a header block loaded from
// blockNum. The stored header key must match the block number the block was
// read from; a mismatch means the pointer that led here was stale.
func parseEntryBlock(buf *[BlockSize]byte, blockNum uint32) (EntryBlock, error) {
	var e EntryBlock

	if beUint32(buf[:], offChecksum) != normalSum(buf, offChecksum) {
		return e, checkpoint.From(ErrChecksumMismatch)
	}
	if beInt32(buf[:], 0) != typeHeader {
		return e, checkpoint.From(ErrInvalidBlockType)
	}

	e.HeaderKey = beUint32(buf[:], 4)
	if e.HeaderKey != blockNum {
		return e, checkpoint.From(ErrInvalidBlockType)
	}

	e.HighSeq = beInt32(buf[:], 8)
	e.FirstData = beUint32(buf[:], 16)

	for i := range e.HashTable {
		e.HashTable[i] = beUint32(buf[:], offHashTable+i*4)
	}

	e.Access = Access(beUint32(buf[:], offAccess))
	e.ByteSize = beUint32(buf[:], offByteSize)

	e.CommentLen = buf[offComment]
	if e.CommentLen > MaxCommentLen {
		e.CommentLen = MaxCommentLen
	}
	copy(e.Comment[:e.CommentLen], buf[offComment+1:])

	e.Date = readDate(buf[:], offDate)

	e.NameLen = buf[offName]
	if e.NameLen > MaxNameLen {
		return e, checkpoint.From(ErrNameTooLong)
	}
	copy(e.Name[:e.NameLen], buf[offName+1:])

	e.RealEntry = beUint32(buf[:], offRealEntry)
	e.NextLink = beUint32(buf[:], offNextLink)
	e.HashChain = beUint32(buf[:], offHashChain)
	e.Parent = beUint32(buf[:], offParent)
	e.Extension = beUint32(buf[:], offExtension)
	e.SecType = beInt32(buf[:], offSecType)

	return e, nil
}

// EntryName returns the entry name as raw bytes.
func (e *EntryBlock) EntryName() []byte {
	return e.Name[:e.NameLen]
}

// EntryComment returns the comment as raw bytes.
func (e *EntryBlock) EntryComment() []byte {
	return e.Comment[:e.CommentLen]
}

// Type returns the entry type; ok is false for unknown secondary types.
func (e *EntryBlock) Type() (EntryType, bool) {
	return entryTypeOf(e.SecType)
}

// IsDir reports whether the block heads a traversable directory.
func (e *EntryBlock) IsDir() bool {
	return EntryType(e.SecType).IsDir()
}

// IsFile reports whether the block heads a file.
func (e *EntryBlock) IsFile() bool {
	return EntryType(e.SecType).IsFile()
}

// DataBlock returns the data block pointer at the logical index, unwinding
// the on-disk reversal: the table stores the first data block in the last
// slot, so logical index 0 lives at HashTable[71].
func (e *EntryBlock) DataBlock(index int) uint32 {
	if index < 0 || index >= MaxDataBlocks {
		return 0
	}
	return e.HashTable[MaxDataBlocks-1-index]
}

// FileExtBlock is a decoded file extension block: the continuation of a file
// header's data block table.
type FileExtBlock struct {
	// HeaderKey is the block's own number.
	HeaderKey uint32
	// HighSeq is the number of used data block pointers.
	HighSeq int32
	// DataBlocks is the pointer table, stored in reverse order like the
	// file header's.
	DataBlocks [MaxDataBlocks]uint32
	// Parent points back to the file header.
	Parent uint32
	// Extension points to the next extension block, zero at the end.
	Extension uint32
}

// parseFileExtBlock decodes and validates a file extension block loaded
// from blockNum.
func parseFileExtBlock(buf *[BlockSize]byte, blockNum uint32) (FileExtBlock, error) {
	var x FileExtBlock

	if beUint32(buf[:], offChecksum) != normalSum(buf, offChecksum) {
		return x, checkpoint.From(ErrChecksumMismatch)
	}
	if beInt32(buf[:], 0) != typeList {
		return x, checkpoint.From(ErrInvalidBlockType)
	}
	if EntryType(beInt32(buf[:], offSecType)) != EntryTypeFile {
		return x, checkpoint.From(ErrInvalidBlockType)
	}

	x.HeaderKey = beUint32(buf[:], 4)
	if x.HeaderKey != blockNum {
		return x, checkpoint.From(ErrInvalidBlockType)
	}

	x.HighSeq = beInt32(buf[:], 8)
	for i := range x.DataBlocks {
		x.DataBlocks[i] = beUint32(buf[:], offHashTable+i*4)
	}
	x.Parent = beUint32(buf[:], offParent)
	x.Extension = beUint32(buf[:], offExtension)

	return x, nil
}

// DataBlock returns the pointer at the logical index, see
// EntryBlock.DataBlock for the reversal.
func (x *FileExtBlock) DataBlock(index int) uint32 {
	if index < 0 || index >= MaxDataBlocks {
		return 0
	}
	return x.DataBlocks[MaxDataBlocks-1-index]
}

// OfsDataBlock is the decoded header of an OFS data block. FFS data blocks
// have no structure and never pass through here.
type OfsDataBlock struct {
	// HeaderKey points back to the owning file header block.
	HeaderKey uint32
	// SeqNum is the 1-based position of this block in the file.
	SeqNum uint32
	// DataSize is the number of payload bytes, at most OfsDataSize.
	DataSize uint32
	// Next points to the following data block, zero on the last.
	Next uint32
}

// parseOfsDataBlock decodes and validates an OFS data block header.
func parseOfsDataBlock(buf *[BlockSize]byte) (OfsDataBlock, error) {
	var d OfsDataBlock

	if beUint32(buf[:], offChecksum) != normalSum(buf, offChecksum) {
		return d, checkpoint.From(ErrChecksumMismatch)
	}
	if beInt32(buf[:], 0) != typeData {
		return d, checkpoint.From(ErrInvalidBlockType)
	}

	d.HeaderKey = beUint32(buf[:], 4)
	d.SeqNum = beUint32(buf[:], 8)
	d.DataSize = beUint32(buf[:], 12)
	d.Next = beUint32(buf[:], 16)

	if d.DataSize > OfsDataSize {
		return d, checkpoint.From(ErrInvalidBlockType)
	}

	return d, nil
}

// Data returns the payload bytes of an OFS data block buffer given its
// decoded header.
func (d *OfsDataBlock) Data(buf *[BlockSize]byte) []byte {
	return buf[OfsDataOffset : OfsDataOffset+d.DataSize]
}

// BitmapBlock is a decoded block allocation bitmap page. Each page maps
// 127*32 blocks, one bit per block, set bits marking free blocks.
type BitmapBlock struct {
	// Map holds the 127 map words.
	Map [BitmapMapSize]uint32
}

// parseBitmapBlock decodes and validates a bitmap block. The checksum is
// the first word and covers the rest of the block.
func parseBitmapBlock(buf *[BlockSize]byte) (BitmapBlock, error) {
	var b BitmapBlock

	if beUint32(buf[:], 0) != bitmapSum(buf) {
		return b, checkpoint.From(ErrChecksumMismatch)
	}
	for i := range b.Map {
		b.Map[i] = beUint32(buf[:], 4+i*4)
	}
	return b, nil
}

// Free reports whether the bit at the page-relative index marks the block
// as free. Bit 0 of word 0 is the first block covered by the page.
func (b *BitmapBlock) Free(index int) bool {
	return b.Map[index/32]>>(index%32)&1 != 0
}
