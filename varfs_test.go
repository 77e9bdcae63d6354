package affs

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestNewVar512(t *testing.T) {
	// A plain DD floppy is also a valid variable block-size volume; the
	// probe must settle on 512.
	v := newTestVolume(t, FsTypeFFS, FloppyDDBlocks)
	v.addDir(v.root, 882, "Libs")
	content := pattern(700)
	v.addFile(882, 883, "asl.library", content, 890)

	fs, err := NewVar(v.dev, FloppyDDBlocks)
	if err != nil {
		t.Fatalf("NewVar() error = %v", err)
	}

	if fs.BlockSize() != BlockSize {
		t.Errorf("BlockSize() = %d, want %d", fs.BlockSize(), BlockSize)
	}
	if fs.HashTableSize() != HashTableSize {
		t.Errorf("HashTableSize() = %d, want %d", fs.HashTableSize(), HashTableSize)
	}
	if fs.RootBlock() != 880 {
		t.Errorf("RootBlock() = %d, want 880", fs.RootBlock())
	}
	if fs.Label() != "WORK" {
		t.Errorf("Label() = %q, want WORK", fs.Label())
	}
	if fs.FsType() != FsTypeFFS {
		t.Errorf("FsType() = %v, want FFS", fs.FsType())
	}

	entry, err := fs.FindPath("Libs/asl.library")
	if err != nil {
		t.Fatalf("FindPath() error = %v", err)
	}
	if entry.Size != 700 {
		t.Errorf("Size = %d, want 700", entry.Size)
	}

	reader, err := fs.ReadFile(entry.Block)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	got := make([]byte, 700)
	n, err := io.ReadFull(readerToIO{reader}, got)
	if err != nil {
		t.Fatalf("read error = %v after %d bytes", err, n)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("content mismatch")
	}
}

// readerToIO adapts VarFileReader to io.Reader for test convenience.
type readerToIO struct {
	r *VarFileReader
}

func (a readerToIO) Read(p []byte) (int, error) {
	return a.r.Read(p)
}

// varVolume1024 hand-builds a minimal 1024-byte-block FFS volume:
// a root with one file "hello" carrying the given content (one block max).
func varVolume1024(t *testing.T, content []byte) *testDevice {
	t.Helper()

	const bs = 1024
	htSize := varHashTableSize(bs) // 200

	const (
		rootBlock = 10
		fileBlock = 12
		dataBlock = 14
	)

	dev := newTestDevice(64) // 64 sectors = 32 blocks

	writeBlock := func(block uint32, buf []byte) {
		for i := 0; i < bs/BlockSize; i++ {
			copy(dev.blocks[int(block)*2+i][:], buf[i*BlockSize:])
		}
	}

	// Boot sector.
	boot := dev.blocks[0][:]
	copy(boot[0:3], "DOS")
	boot[3] = byte(FsTypeFFS)
	putU32(boot, 8, rootBlock)

	// Root block.
	root := make([]byte, bs)
	putI32(root, 0, typeHeader)
	putI32(root, 12, int32(htSize))
	root[bs-80] = 3
	copy(root[bs-80+1:], "BIG")
	putI32(root, bs-4, int32(EntryTypeRoot))
	slot := hashNameSized([]byte("hello"), false, uint32(htSize))
	putU32(root, offHashTable+int(slot)*4, fileBlock)
	putU32(root, offChecksum, normalSumSlice(root, offChecksum))
	writeBlock(rootBlock, root)

	// File header block.
	file := make([]byte, bs)
	putI32(file, 0, typeHeader)
	putU32(file, 4, fileBlock)
	putI32(file, 8, 1) // one data block
	putU32(file, 16, dataBlock)
	putU32(file, offHashTable+(htSize-1)*4, dataBlock)
	putU32(file, bs-188, uint32(len(content)))
	file[bs-80] = 5
	copy(file[bs-80+1:], "hello")
	putU32(file, bs-12, rootBlock)
	putI32(file, bs-4, int32(EntryTypeFile))
	putU32(file, offChecksum, normalSumSlice(file, offChecksum))
	writeBlock(fileBlock, file)

	// Data block, raw payload.
	data := make([]byte, bs)
	copy(data, content)
	writeBlock(dataBlock, data)

	return dev
}

func TestNewVar1024(t *testing.T) {
	content := pattern(900)
	dev := varVolume1024(t, content)

	fs, err := NewVar(dev, 64)
	if err != nil {
		t.Fatalf("NewVar() error = %v", err)
	}

	if fs.BlockSize() != 1024 {
		t.Errorf("BlockSize() = %d, want 1024", fs.BlockSize())
	}
	if fs.HashTableSize() != 200 {
		t.Errorf("HashTableSize() = %d, want 200", fs.HashTableSize())
	}
	if fs.TotalBlocks() != 32 {
		t.Errorf("TotalBlocks() = %d, want 32", fs.TotalBlocks())
	}
	if fs.Label() != "BIG" {
		t.Errorf("Label() = %q, want BIG", fs.Label())
	}

	it, err := fs.ReadRootDir()
	if err != nil {
		t.Fatalf("ReadRootDir() error = %v", err)
	}
	if !it.Next() {
		t.Fatalf("root empty, err = %v", it.Err())
	}
	entry := it.Entry()
	if entry.DisplayName() != "hello" || entry.Size != 900 {
		t.Errorf("entry = %q size %d", entry.DisplayName(), entry.Size)
	}
	if it.Next() {
		t.Errorf("unexpected extra entry")
	}

	found, err := fs.FindEntry(fs.RootBlock(), []byte("HELLO"))
	if err != nil {
		t.Fatalf("FindEntry() error = %v", err)
	}
	if found.Block != entry.Block {
		t.Errorf("FindEntry() block = %d, want %d", found.Block, entry.Block)
	}

	reader, err := fs.ReadFile(entry.Block)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	got := make([]byte, 900)
	if _, err := io.ReadFull(readerToIO{reader}, got); err != nil {
		t.Fatalf("read error = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("content mismatch")
	}

	// Reading past the end keeps returning EOF.
	if n, err := reader.Read(got); n != 0 || err != io.EOF {
		t.Errorf("Read() after EOF = %d, %v", n, err)
	}
}

func TestNewVarRejectsOFS(t *testing.T) {
	v := newTestVolume(t, FsTypeOFS, FloppyDDBlocks)
	if _, err := NewVar(v.dev, FloppyDDBlocks); !errors.Is(err, ErrNoVolumeFound) {
		t.Errorf("NewVar(OFS) error = %v, want %v", err, ErrNoVolumeFound)
	}
}

func TestNewVarNoVolume(t *testing.T) {
	if _, err := NewVar(newTestDevice(16), 16); !errors.Is(err, ErrNoVolumeFound) {
		t.Errorf("NewVar(blank) error = %v, want %v", err, ErrNoVolumeFound)
	}
}
