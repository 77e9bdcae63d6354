package affs

import (
	"time"
)

// amigaEpoch is the AmigaDOS epoch, January 1, 1978 UTC.
var amigaEpoch = time.Date(1978, time.January, 1, 0, 0, 0, 0, time.UTC)

// unixEpochOffset is the number of seconds between the Unix epoch and the
// Amiga epoch: 8 years including the leap days of 1972 and 1976, so
// 365*8+2 = 2922 days.
const unixEpochOffset = 2922 * 86400

// AmigaDate is a timestamp as stored on disk:
//
//	Days:  days since January 1, 1978
//	Mins:  minutes since midnight
//	Ticks: 1/50ths of a second within the minute
//
// Root blocks carry the volume creation and modification stamps in this
// form, entry blocks the last modification of the entry.
type AmigaDate struct {
	Days  int32
	Mins  int32
	Ticks int32
}

// Time converts the date to a time.Time in UTC.
func (d AmigaDate) Time() time.Time {
	return amigaEpoch.Add(time.Duration(d.Days)*24*time.Hour +
		time.Duration(d.Mins)*time.Minute +
		time.Duration(d.Ticks)*20*time.Millisecond)
}

// Unix returns the date as seconds since the Unix epoch, truncating the
// ticks to whole seconds the way GRUB's aftime2ctime does:
// days*86400 + mins*60 + ticks/50 + epoch offset.
func (d AmigaDate) Unix() int64 {
	return int64(d.Days)*86400 + int64(d.Mins)*60 + int64(d.Ticks)/50 +
		unixEpochOffset
}

// IsZero reports whether the date is the unset zero value, which volumes
// written by some tools use for "no timestamp".
func (d AmigaDate) IsZero() bool {
	return d == AmigaDate{}
}

// readDate decodes the three-word date triplet at off.
func readDate(buf []byte, off int) AmigaDate {
	return AmigaDate{
		Days:  beInt32(buf, off),
		Mins:  beInt32(buf, off+4),
		Ticks: beInt32(buf, off+8),
	}
}
