package block

import (
	"fmt"
	"io"
)

// Element is an opaque application record. The on-disk element codec is
// an external collaborator (spec.md §1); flowcore only needs to move
// bytes, not interpret them.
type Element = string

// Serializer converts Elements to and from their on-disk byte form. A
// Serializer must be safe to reuse across partitions of the same block.
type Serializer interface {
	Serialize(w io.Writer, e Element) (int, error)
	Deserialize(r io.Reader, length int) (Element, error)
}

// LineSerializer is the default Serializer: one newline-terminated
// Element per write, matching the teacher's bufio.Scanner-based line
// records in internal/worker/executor.go.
type LineSerializer struct{}

// Serialize writes e followed by a newline and returns the number of
// bytes written, including the trailing newline, so callers can record
// an accurate partition length.
func (LineSerializer) Serialize(w io.Writer, e Element) (int, error) {
	n, err := fmt.Fprintln(w, e)
	return n, err
}

// Deserialize reads exactly length bytes and strips a single trailing
// newline if present.
func (LineSerializer) Deserialize(r io.Reader, length int) (Element, error) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("flowcore: short read deserializing element: %w", err)
	}
	if len(buf) > 0 && buf[len(buf)-1] == '\n' {
		buf = buf[:len(buf)-1]
	}
	return Element(buf), nil
}
