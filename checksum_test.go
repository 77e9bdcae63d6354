package affs

import (
	"testing"
)

func TestBeUint32(t *testing.T) {
	buf := []byte{0x12, 0x34, 0x56, 0x78}
	if got := beUint32(buf, 0); got != 0x12345678 {
		t.Errorf("beUint32() = %#x, want 0x12345678", got)
	}
}

func TestBeInt32(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFD}
	if got := beInt32(buf, 0); got != -3 {
		t.Errorf("beInt32() = %d, want -3", got)
	}
}

func TestBeUint16(t *testing.T) {
	buf := []byte{0xAB, 0xCD}
	if got := beUint16(buf, 0); got != 0xABCD {
		t.Errorf("beUint16() = %#x, want 0xABCD", got)
	}
}

func TestNormalSum(t *testing.T) {
	tests := []struct {
		name string
		fill func(buf *[BlockSize]byte)
		want uint32
	}{
		{
			name: "all zero",
			fill: func(buf *[BlockSize]byte) {},
			want: 0,
		},
		{
			name: "only the checksum word is set",
			fill: func(buf *[BlockSize]byte) {
				putU32(buf[:], offChecksum, 0xDEADBEEF)
			},
			want: 0,
		},
		{
			name: "single word",
			fill: func(buf *[BlockSize]byte) {
				putU32(buf[:], 0, 5)
			},
			want: 0xFFFFFFFB,
		},
		{
			name: "wrapping",
			fill: func(buf *[BlockSize]byte) {
				putU32(buf[:], 0, 0xFFFFFFFF)
				putU32(buf[:], 4, 2)
			},
			want: 0xFFFFFFFF,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf [BlockSize]byte
			tt.fill(&buf)
			if got := normalSum(&buf, offChecksum); got != tt.want {
				t.Errorf("normalSum() = %#x, want %#x", got, tt.want)
			}
		})
	}
}

// TestNormalSumBalances stores the computed checksum and verifies the
// defining property: the sum of all words including the checksum is zero.
func TestNormalSumBalances(t *testing.T) {
	var buf [BlockSize]byte
	for i := range buf {
		buf[i] = byte(i*31 + 7)
	}
	putU32(buf[:], offChecksum, normalSum(&buf, offChecksum))

	var sum uint32
	for off := 0; off < BlockSize; off += 4 {
		sum += beUint32(buf[:], off)
	}
	if sum != 0 {
		t.Errorf("sum over block with stored checksum = %#x, want 0", sum)
	}

	if got := normalSum(&buf, offChecksum); got != beUint32(buf[:], offChecksum) {
		t.Errorf("normalSum() not stable after storing checksum")
	}
}

func TestBootSum(t *testing.T) {
	tests := []struct {
		name string
		fill func(buf *[BootBlockSize]byte)
		want uint32
	}{
		{
			name: "all zero",
			fill: func(buf *[BootBlockSize]byte) {},
			want: 0xFFFFFFFF,
		},
		{
			name: "checksum word itself is skipped",
			fill: func(buf *[BootBlockSize]byte) {
				putU32(buf[:], 4, 0x12345678)
			},
			want: 0xFFFFFFFF,
		},
		{
			name: "single word",
			fill: func(buf *[BootBlockSize]byte) {
				putU32(buf[:], 0, 1)
			},
			want: 0xFFFFFFFE,
		},
		{
			name: "end-around carry",
			fill: func(buf *[BootBlockSize]byte) {
				putU32(buf[:], 0, 0xFFFFFFFF)
				putU32(buf[:], 8, 1)
			},
			// 0xFFFFFFFF + 1 overflows to 0, the carry makes it 1,
			// complemented 0xFFFFFFFE.
			want: 0xFFFFFFFE,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf [BootBlockSize]byte
			tt.fill(&buf)
			if got := bootSum(&buf); got != tt.want {
				t.Errorf("bootSum() = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestBitmapSum(t *testing.T) {
	var buf [BlockSize]byte
	putU32(buf[:], 4, 5)
	putU32(buf[:], 8, 7)

	var want uint32
	want -= 5
	want -= 7
	if got := bitmapSum(&buf); got != want {
		t.Errorf("bitmapSum() = %#x, want %#x", got, want)
	}

	// Storing the checksum in word 0 must not change the result; the
	// first word is outside the sum.
	putU32(buf[:], 0, want)
	if got := bitmapSum(&buf); got != want {
		t.Errorf("bitmapSum() after store = %#x, want %#x", got, want)
	}
}

func BenchmarkNormalSum(b *testing.B) {
	var buf [BlockSize]byte
	for i := range buf {
		buf[i] = byte(i)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		normalSum(&buf, offChecksum)
	}
}

func BenchmarkBootSum(b *testing.B) {
	var buf [BootBlockSize]byte
	for i := range buf {
		buf[i] = byte(i)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		bootSum(&buf)
	}
}

func BenchmarkBitmapSum(b *testing.B) {
	var buf [BlockSize]byte
	for i := range buf {
		buf[i] = byte(i)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		bitmapSum(&buf)
	}
}
