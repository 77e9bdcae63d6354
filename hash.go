package affs

// Directory lookup hashes the entry name to one of the 72 hash table slots.
// Two case folding variants exist: plain ASCII, and the international fold
// introduced with the INTL dialects which also uppercases the Latin-1
// accented range.

// asciiUpper folds an ASCII letter to uppercase and leaves every other byte
// alone.
func asciiUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c & 0xDF
	}
	return c
}

// intlUpper folds like asciiUpper but additionally maps the Latin-1
// lowercase range 0xE0..0xFE to its uppercase counterparts. 0xF7 is the
// division sign and stays as is.
func intlUpper(c byte) byte {
	if (c >= 'a' && c <= 'z') || (c >= 0xE0 && c <= 0xFE && c != 0xF7) {
		return c - 0x20
	}
	return c
}

// fold applies the case fold selected by the volume's INTL flag.
func fold(c byte, intl bool) byte {
	if intl {
		return intlUpper(c)
	}
	return asciiUpper(c)
}

// hashName computes the hash table slot for a name.
//
// The algorithm starts from the name length and mixes every folded byte with
// a multiply by 13, masking to 11 bits after each step. The 0x7FF mask is
// part of the original AmigaDOS algorithm and changing it changes slot
// assignment on real volumes, so it must stay bit-exact.
func hashName(name []byte, intl bool) uint32 {
	return hashNameSized(name, intl, HashTableSize)
}

// hashNameSized is hashName for directories whose hash table has a
// non-standard slot count, as on large-block hard disk volumes.
func hashNameSized(name []byte, intl bool, tableSize uint32) uint32 {
	hash := uint32(len(name))
	for _, c := range name {
		hash = (hash*13 + uint32(fold(c, intl))) & 0x7FF
	}
	return hash % tableSize
}

// namesEqual compares two names case-insensitively under the fold selected
// by intl.
func namesEqual(a, b []byte, intl bool) bool {
	if len(a) != len(b) {
		return false
	}
	if intl {
		for i := range a {
			if intlUpper(a[i]) != intlUpper(b[i]) {
				return false
			}
		}
		return true
	}
	for i := range a {
		if asciiUpper(a[i]) != asciiUpper(b[i]) {
			return false
		}
	}
	return true
}
