package affs

import (
	"github.com/MuntasirSZN/affs-read/checkpoint"
)

// DirEntry describes one entry discovered during directory traversal.
type DirEntry struct {
	// Type is the decoded entry type.
	Type EntryType
	// Block is the header block of the entry.
	Block uint32
	// Parent is the owning directory's block.
	Parent uint32
	// Size is the file size in bytes, zero for directories.
	Size uint32
	// Access holds the protection bits.
	Access Access
	// Date is the last modification stamp.
	Date AmigaDate
	// RealEntry is the linked-to header block for hard links.
	RealEntry uint32

	name       [MaxNameLen]byte
	nameLen    uint8
	comment    [MaxCommentLen]byte
	commentLen uint8
}

// newDirEntry builds a DirEntry from a parsed header block. ok is false for
// secondary types this package does not know.
func newDirEntry(block uint32, e *EntryBlock) (DirEntry, bool) {
	entryType, ok := e.Type()
	if !ok {
		return DirEntry{}, false
	}

	d := DirEntry{
		Type:      entryType,
		Block:     block,
		Parent:    e.Parent,
		Size:      e.ByteSize,
		Access:    e.Access,
		Date:      e.Date,
		RealEntry: e.RealEntry,
	}
	d.nameLen = e.NameLen
	copy(d.name[:], e.Name[:])
	d.commentLen = e.CommentLen
	copy(d.comment[:], e.Comment[:])
	return d, true
}

// Name returns the entry name as raw bytes. Names on disk are Latin-1 and
// not necessarily valid UTF-8.
func (e *DirEntry) Name() []byte {
	return e.name[:e.nameLen]
}

// NameString returns the name when it is valid UTF-8.
func (e *DirEntry) NameString() (string, bool) {
	return utf8String(e.Name())
}

// DisplayName returns the name decoded from Latin-1, which always succeeds.
func (e *DirEntry) DisplayName() string {
	return latin1String(e.Name())
}

// Comment returns the entry comment as raw bytes.
func (e *DirEntry) Comment() []byte {
	return e.comment[:e.commentLen]
}

// CommentString returns the comment when it is valid UTF-8.
func (e *DirEntry) CommentString() (string, bool) {
	return utf8String(e.Comment())
}

// IsDir reports whether the entry can be traversed as a directory.
func (e *DirEntry) IsDir() bool {
	return e.Type.IsDir()
}

// IsFile reports whether the entry carries file data.
func (e *DirEntry) IsFile() bool {
	return e.Type.IsFile()
}

// IsSymlink reports whether the entry is a soft link.
func (e *DirEntry) IsSymlink() bool {
	return e.Type.IsSymlink()
}

// DirIter walks a directory lazily, one block read per entry. It scans the
// 72 hash table slots in order and follows each slot's hash chain to its
// end, so iteration order is the on-disk order.
//
//	it := fs.ReadRootDir()
//	for it.Next() {
//		entry := it.Entry()
//		...
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
//
// The iterator is single-use; it cannot be reset or shared.
type DirIter struct {
	fs        *Fs
	hashTable [HashTableSize]uint32
	slot      int
	chain     uint32
	hops      uint32
	entry     DirEntry
	err       error
	buf       [BlockSize]byte
}

func newDirIter(fs *Fs, hashTable [HashTableSize]uint32) *DirIter {
	return &DirIter{fs: fs, hashTable: hashTable}
}

// Next advances to the next entry. It returns false when the directory is
// exhausted or an error occurred; Err tells the two apart.
func (it *DirIter) Next() bool {
	if it.err != nil {
		return false
	}

	for {
		// Continue the current hash chain first.
		if it.chain != 0 {
			// More hops than blocks on the volume proves a chain
			// cycle in a malformed image.
			if it.hops >= it.fs.totalBlocks {
				it.err = checkpoint.From(ErrCorruptVolume)
				return false
			}
			it.hops++

			block := it.chain
			if err := it.fs.readBlock(block, &it.buf); err != nil {
				it.err = err
				return false
			}
			entry, err := parseEntryBlock(&it.buf, block)
			if err != nil {
				it.err = err
				return false
			}
			it.chain = entry.HashChain

			de, ok := newDirEntry(block, &entry)
			if !ok {
				// Unknown secondary types are skipped, not
				// errors, so newer dialects stay listable.
				continue
			}
			it.entry = de
			return true
		}

		// Move on to the next occupied slot.
		for it.slot < HashTableSize {
			block := it.hashTable[it.slot]
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

// Entry returns the entry produced by the last successful Next. The
// returned pointer is only valid until the next call to Next.
func (it *DirIter) Entry() *DirEntry {
	return &it.entry
}

// Err returns the error that terminated iteration, if any.
func (it *DirIter) Err() error {
	return it.err
}
