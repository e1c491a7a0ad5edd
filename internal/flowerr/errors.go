// Package flowerr holds the transient I/O errors a caller can
// reasonably recover from by resubmission. The failure causes recorded
// against a task group on a failed-recoverable transition live in
// model.FailCause instead, since that enum is the JobStateManager's,
// not the block store's.
package flowerr

import "fmt"

// BlockWriteError wraps any error encountered while writing to a block.
// The block remains in its prior state (open) and its storage may be
// inconsistent; callers must treat the block as poisoned.
type BlockWriteError struct {
	BlockID string
	Err     error
}

func (e *BlockWriteError) Error() string {
	return fmt.Sprintf("flowcore: write to block %q failed: %v", e.BlockID, e.Err)
}

func (e *BlockWriteError) Unwrap() error { return e.Err }

// BlockFetchError wraps any error encountered while reading from a
// block. Read errors never mutate block state.
type BlockFetchError struct {
	BlockID string
	Err     error
}

func (e *BlockFetchError) Error() string {
	return fmt.Sprintf("flowcore: read from block %q failed: %v", e.BlockID, e.Err)
}

func (e *BlockFetchError) Unwrap() error { return e.Err }
