// Package block implements the per-executor block store: immutable,
// committed blocks composed of keyed partitions, with a strict
// single-writer / multi-reader lifecycle. Grounded on FileBlock.java and
// the teacher's internal/storage/memory.go locking pattern.
package block

import "github.com/google/uuid"

// NewBlockID generates an opaque, unique block id.
func NewBlockID() string {
	return "block-" + uuid.New().String()
}

// UserKey is the application-level partition key. The actual key
// encoding is an opaque, external concern (spec.md places the element
// codec out of scope); a block only ever compares keys for equality and
// range membership via a KeyRangeFunc.
type UserKey = string

// PartitionMetadata records where one partition's bytes live within a
// block's backing file.
type PartitionMetadata struct {
	Key          UserKey
	Offset       uint64
	Length       uint32
	ElementCount uint32
}

// FileArea is a zero-copy descriptor used to forward a byte range to a
// remote reader without deserializing it locally.
type FileArea struct {
	Path   string
	Offset uint64
	Length uint64
}

// KeyRangeFunc reports whether a key falls in some caller-defined range,
// decoupling the block store from any particular hash-range scheme.
type KeyRangeFunc func(key UserKey) bool

// BlockState is the block lifecycle: open -> committed (terminal).
type BlockState int

const (
	Open BlockState = iota
	Committed
)

func (s BlockState) String() string {
	if s == Committed {
		return "COMMITTED"
	}
	return "OPEN"
}
