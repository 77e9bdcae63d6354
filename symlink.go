package affs

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/MuntasirSZN/affs-read/checkpoint"
)

// Soft link headers store their target in place of the hash table: a
// NUL-terminated Latin-1 path starting at offset 24. The usable region ends
// 200 bytes before the end of the block, where the shared header tail
// begins.
const (
	symlinkOffset = 24
	headerTailLen = 200
)

// MaxSymlinkLen is the longest symlink target a 512-byte block can store.
const MaxSymlinkLen = BlockSize - symlinkOffset - headerTailLen

// ReadSymlink reads the target of the soft link headed by block. The target
// is returned as UTF-8; a leading ':', which names the volume root on
// AmigaDOS, is replaced with '/'.
func (fs *Fs) ReadSymlink(block uint32) (string, error) {
	var buf [BlockSize]byte
	if err := fs.readBlock(block, &buf); err != nil {
		return "", err
	}

	entry, err := parseEntryBlock(&buf, block)
	if err != nil {
		return "", err
	}
	if !EntryType(entry.SecType).IsSymlink() {
		return "", checkpoint.From(ErrNotASymlink)
	}

	return decodeSymlinkTarget(buf[symlinkOffset : BlockSize-headerTailLen])
}

// decodeSymlinkTarget converts the raw target region to a UTF-8 path.
func decodeSymlinkTarget(raw []byte) (string, error) {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	if len(raw) > 0 && raw[0] == ':' {
		target := latin1String(raw[1:])
		return "/" + target, nil
	}
	return latin1String(raw), nil
}

// latin1String decodes Latin-1 bytes to a UTF-8 string. Latin-1 covers all
// 256 byte values, so this never fails.
func latin1String(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		// Every byte is a valid Latin-1 code point; the decoder cannot
		// fail on any input.
		return string(b)
	}
	return string(s)
}

// utf8String returns the bytes as a string when they are valid UTF-8.
func utf8String(b []byte) (string, bool) {
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}
