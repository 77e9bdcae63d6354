// Package checkpoint decorates errors with the file and line of the place
// they passed through, building up something similar to a stack trace while
// keeping the full errors.Is / errors.As chain intact.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// From wraps err in a checkpoint carrying the caller's position. It returns
// nil for a nil error.
func From(err error) error {
	// io.EOF and io.ErrUnexpectedEOF are compared by identity all over
	// the standard library and must pass through untouched.
	// https://github.com/golang/go/issues/39155
	if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
		return err
	}

	_, file, line, ok := runtime.Caller(1)
	return &checkpoint{err: err, haveCaller: ok, file: filepath.Base(file), line: line}
}

// Wrap decorates prev with a checkpoint that additionally records err, so a
// low-level cause can be tagged with a higher-level sentinel:
//
//	var ErrOpenVolume = errors.New("could not open the volume")
//
//	if err := readRoot(); err != nil {
//		return checkpoint.Wrap(err, ErrOpenVolume)
//	}
//
// Callers can then match either error with errors.Is. Wrap returns nil when
// prev is nil, so it can tail-wrap functions that usually succeed.
func Wrap(prev, err error) error {
	if prev == nil || prev == io.EOF {
		return prev
	}

	_, file, line, ok := runtime.Caller(1)
	return &checkpoint{err: err, prev: prev, haveCaller: ok, file: filepath.Base(file), line: line}
}

type checkpoint struct {
	err  error
	prev error

	haveCaller bool
	file       string
	line       int
}

func (c *checkpoint) Error() string {
	var sb strings.Builder

	if c.haveCaller {
		fmt.Fprintf(&sb, "File: %s:%d\n\t%v", c.file, c.line, c.err)
	} else {
		fmt.Fprintf(&sb, "File: unknown\n\t%v", c.err)
	}

	if c.prev != nil {
		prev := c.prev.Error()
		if _, ok := c.prev.(*checkpoint); !ok {
			prev = "File: unknown\n\t" + strings.ReplaceAll(prev, "\n", "\n\t")
		}
		sb.WriteString("\n")
		sb.WriteString(prev)
	}

	return sb.String()
}

func (c *checkpoint) Unwrap() error {
	if c.prev != nil {
		return c.prev
	}
	return c.err
}

func (c *checkpoint) Is(target error) bool {
	return errors.Is(c.err, target)
}

func (c *checkpoint) As(target interface{}) bool {
	return errors.As(c.err, target)
}
