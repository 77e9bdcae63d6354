package affs

import (
	"github.com/MuntasirSZN/affs-read/checkpoint"
)

// The block allocation bitmap covers every block from number 2 upward; the
// boot blocks are never part of it. Each bitmap page maps 127*32 = 4064
// blocks, one bit per block with set bits marking free blocks. The root
// block carries the first 25 page pointers; larger volumes chain additional
// pointers through bitmap extension blocks holding 127 pointers plus a next
// pointer in the final word.

// bitmapBlocksPerPage is the number of volume blocks one bitmap page maps.
const bitmapBlocksPerPage = BitmapMapSize * 32

// BlockFree reports whether the allocation bitmap marks the given block as
// free. Blocks 0 and 1 are outside the bitmap and always reported as in
// use.
func (fs *Fs) BlockFree(block uint32) (bool, error) {
	if block >= fs.totalBlocks {
		return false, checkpoint.From(ErrBlockOutOfRange)
	}
	if block < 2 {
		return false, nil
	}

	index := block - 2
	pageBlock, err := fs.bitmapPage(index / bitmapBlocksPerPage)
	if err != nil {
		return false, err
	}

	var buf [BlockSize]byte
	if err := fs.readBlock(pageBlock, &buf); err != nil {
		return false, err
	}
	page, err := parseBitmapBlock(&buf)
	if err != nil {
		return false, err
	}

	return page.Free(int(index % bitmapBlocksPerPage)), nil
}

// bitmapPage resolves the block number of the n-th bitmap page, following
// the extension chain for pages beyond the root block's 25.
func (fs *Fs) bitmapPage(n uint32) (uint32, error) {
	if n < BitmapPagesRoot {
		page := fs.root.BitmapPages[n]
		if page == 0 {
			return 0, checkpoint.From(ErrBlockOutOfRange)
		}
		return page, nil
	}

	n -= BitmapPagesRoot
	ext := fs.root.BitmapExt

	var buf [BlockSize]byte
	// Bound the chain walk the same way as hash chains: more extension
	// blocks than the volume has blocks proves a cycle.
	for hops := uint32(0); ext != 0; hops++ {
		if hops >= fs.totalBlocks {
			return 0, checkpoint.From(ErrCorruptVolume)
		}
		if err := fs.readBlock(ext, &buf); err != nil {
			return 0, err
		}

		// A bitmap extension block is 127 page pointers followed by
		// the next extension pointer. It carries no checksum.
		if n < BitmapMapSize {
			page := beUint32(buf[:], int(n)*4)
			if page == 0 {
				return 0, checkpoint.From(ErrBlockOutOfRange)
			}
			return page, nil
		}
		n -= BitmapMapSize
		ext = beUint32(buf[:], (BlockSize/4-1)*4)
	}

	return 0, checkpoint.From(ErrBlockOutOfRange)
}
