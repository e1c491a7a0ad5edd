package block

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"flowcore/internal/flowerr"
	"flowcore/internal/telemetry"
)

// FileBlock is the sole Block implementation: a single local file of
// concatenated partition payloads in write order, with metadata kept
// in memory until commit. Concurrent read is supported; concurrent
// write is not and is detected, not merely serialized, via a
// try-lock — a second writer finds the block "busy" and panics rather
// than silently blocking, per spec.md §7(b)'s fail-fast contract for
// writer-concurrency violations.
//
// Grounded on FileBlock.java (local-filesystem path only; the Crail
// remote-store variant there has no in-scope analogue here).
type FileBlock struct {
	id         string
	serializer Serializer
	path       string

	writeGuard sync.Mutex

	stateMu    sync.RWMutex
	state      BlockState
	deleted    bool
	metadata   []PartitionMetadata
	nextOffset uint64
	totals     map[UserKey]uint64

	bufOrder []UserKey
	buf      map[UserKey]*bytes.Buffer
	bufCount map[UserKey]uint32
}

// Create opens a new block in state Open, backed by a fresh file at path.
func Create(id string, serializer Serializer, path string) (*FileBlock, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &flowerr.BlockWriteError{BlockID: id, Err: err}
	}
	_ = f.Close()
	return &FileBlock{
		id:         id,
		serializer: serializer,
		path:       path,
		state:      Open,
		buf:        make(map[UserKey]*bytes.Buffer),
		bufCount:   make(map[UserKey]uint32),
	}, nil
}

// ID returns the block's id.
func (b *FileBlock) ID() string { return b.id }

// State returns the block's current lifecycle state.
func (b *FileBlock) State() BlockState {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

func (b *FileBlock) isCommitted() bool {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state == Committed
}

// tryEnterWrite enforces the single-writer invariant by construction:
// a second concurrent writer observes the block busy and panics
// instead of queueing behind the first, since writer concurrency is a
// programmer error, not a transient condition to wait out.
func (b *FileBlock) tryEnterWrite() {
	if !b.writeGuard.TryLock() {
		panic(fmt.Sprintf("flowcore: concurrent writer detected on block %q", b.id))
	}
}

func (b *FileBlock) exitWrite() {
	b.writeGuard.Unlock()
}

// Write buffers element into the in-memory partition for key. Nothing
// is flushed to storage until CommitPartitions or Commit.
func (b *FileBlock) Write(key UserKey, e Element) error {
	b.tryEnterWrite()
	defer b.exitWrite()

	if b.isCommitted() {
		return &flowerr.BlockWriteError{BlockID: b.id, Err: fmt.Errorf("block already committed")}
	}

	buffer, ok := b.buf[key]
	if !ok {
		buffer = &bytes.Buffer{}
		b.buf[key] = buffer
		b.bufOrder = append(b.bufOrder, key)
	}
	if _, err := b.serializer.Serialize(buffer, e); err != nil {
		return &flowerr.BlockWriteError{BlockID: b.id, Err: err}
	}
	b.bufCount[key]++
	return nil
}

// WritePartitions serializes and appends partitions to storage
// immediately, in the order given, updating metadata as it goes.
func (b *FileBlock) WritePartitions(partitions []NonSerializedPartition) error {
	serialized := make([]SerializedPartition, 0, len(partitions))
	for _, p := range partitions {
		var out bytes.Buffer
		for _, e := range p.Elements {
			if _, err := b.serializer.Serialize(&out, e); err != nil {
				return &flowerr.BlockWriteError{BlockID: b.id, Err: err}
			}
		}
		serialized = append(serialized, SerializedPartition{
			Key:          p.Key,
			Bytes:        out.Bytes(),
			ElementCount: uint32(len(p.Elements)),
		})
	}
	return b.WriteSerializedPartitions(serialized)
}

// WriteSerializedPartitions appends already-encoded partitions to
// storage immediately, in the order given, updating metadata.
func (b *FileBlock) WriteSerializedPartitions(partitions []SerializedPartition) error {
	b.tryEnterWrite()
	defer b.exitWrite()
	return b.writeToFileLocked(partitions)
}

// writeToFileLocked assumes the write guard is already held.
func (b *FileBlock) writeToFileLocked(partitions []SerializedPartition) error {
	if b.isCommitted() {
		return &flowerr.BlockWriteError{BlockID: b.id, Err: fmt.Errorf("block already committed")}
	}

	f, err := os.OpenFile(b.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &flowerr.BlockWriteError{BlockID: b.id, Err: err}
	}
	defer f.Close()

	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	for _, p := range partitions {
		n, err := f.Write(p.Bytes)
		if err != nil {
			telemetry.L().Sugar().Errorw("block write failed", "block", b.id, "key", p.Key, "err", err)
			return &flowerr.BlockWriteError{BlockID: b.id, Err: err}
		}
		b.metadata = append(b.metadata, PartitionMetadata{
			Key:          p.Key,
			Offset:       b.nextOffset,
			Length:       uint32(n),
			ElementCount: p.ElementCount,
		})
		b.nextOffset += uint64(n)
	}
	return nil
}

// CommitPartitions flushes any buffered Write-ed partitions, in
// insertion order, then clears the buffer. Safe to call multiple times.
func (b *FileBlock) CommitPartitions() error {
	b.tryEnterWrite()
	defer b.exitWrite()

	serialized := make([]SerializedPartition, 0, len(b.bufOrder))
	for _, key := range b.bufOrder {
		serialized = append(serialized, SerializedPartition{
			Key:          key,
			Bytes:        b.buf[key].Bytes(),
			ElementCount: b.bufCount[key],
		})
	}
	if err := b.writeToFileLocked(serialized); err != nil {
		return err
	}
	b.bufOrder = nil
	b.buf = make(map[UserKey]*bytes.Buffer)
	b.bufCount = make(map[UserKey]uint32)
	return nil
}

// Commit flushes remaining buffered partitions and transitions the
// block to Committed, returning total bytes written per key. A second
// call is a no-op that returns the same totals.
func (b *FileBlock) Commit() (map[UserKey]uint64, error) {
	if b.isCommitted() {
		b.stateMu.RLock()
		defer b.stateMu.RUnlock()
		return cloneTotals(b.totals), nil
	}

	if err := b.CommitPartitions(); err != nil {
		return nil, err
	}

	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	if b.state == Committed {
		return cloneTotals(b.totals), nil
	}
	b.state = Committed
	totals := make(map[UserKey]uint64, len(b.metadata))
	for _, m := range b.metadata {
		totals[m.Key] += uint64(m.Length)
	}
	b.totals = totals
	return cloneTotals(totals), nil
}

func cloneTotals(in map[UserKey]uint64) map[UserKey]uint64 {
	out := make(map[UserKey]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ReadPartitions streams, in metadata order, the deserialized
// partitions whose key is accepted by include. Fails unless committed.
func (b *FileBlock) ReadPartitions(include KeyRangeFunc) ([]NonSerializedPartition, error) {
	if !b.isCommitted() {
		return nil, &flowerr.BlockFetchError{BlockID: b.id, Err: fmt.Errorf("cannot read before commit")}
	}

	f, err := os.Open(b.path)
	if err != nil {
		return nil, &flowerr.BlockFetchError{BlockID: b.id, Err: err}
	}
	defer f.Close()

	var out []NonSerializedPartition
	for _, m := range b.snapshotMetadata() {
		if include(m.Key) {
			raw := make([]byte, m.Length)
			if _, err := io.ReadFull(f, raw); err != nil {
				return nil, &flowerr.BlockFetchError{BlockID: b.id, Err: err}
			}
			elems, err := decodeElements(b.serializer, raw, int(m.ElementCount))
			if err != nil {
				return nil, &flowerr.BlockFetchError{BlockID: b.id, Err: err}
			}
			out = append(out, NonSerializedPartition{Key: m.Key, Elements: elems})
		} else if err := skipExactly(f, int64(m.Length)); err != nil {
			return nil, &flowerr.BlockFetchError{BlockID: b.id, Err: err}
		}
	}
	return out, nil
}

// ReadSerializedPartitions streams, in metadata order, the raw encoded
// bytes of partitions whose key is accepted by include. Fails unless
// committed.
func (b *FileBlock) ReadSerializedPartitions(include KeyRangeFunc) ([]SerializedPartition, error) {
	if !b.isCommitted() {
		return nil, &flowerr.BlockFetchError{BlockID: b.id, Err: fmt.Errorf("cannot read before commit")}
	}

	f, err := os.Open(b.path)
	if err != nil {
		return nil, &flowerr.BlockFetchError{BlockID: b.id, Err: err}
	}
	defer f.Close()

	var out []SerializedPartition
	for _, m := range b.snapshotMetadata() {
		if include(m.Key) {
			raw := make([]byte, m.Length)
			if _, err := io.ReadFull(f, raw); err != nil {
				return nil, &flowerr.BlockFetchError{BlockID: b.id, Err: err}
			}
			out = append(out, SerializedPartition{Key: m.Key, Bytes: raw, ElementCount: m.ElementCount})
		} else if err := skipExactly(f, int64(m.Length)); err != nil {
			return nil, &flowerr.BlockFetchError{BlockID: b.id, Err: err}
		}
	}
	return out, nil
}

// AsFileAreas returns zero-copy descriptors for the partitions whose
// key is accepted by include, for forwarding to remote readers without
// local deserialization.
func (b *FileBlock) AsFileAreas(include KeyRangeFunc) ([]FileArea, error) {
	if !b.isCommitted() {
		return nil, &flowerr.BlockFetchError{BlockID: b.id, Err: fmt.Errorf("cannot read before commit")}
	}
	var areas []FileArea
	for _, m := range b.snapshotMetadata() {
		if include(m.Key) {
			areas = append(areas, FileArea{Path: b.path, Offset: m.Offset, Length: uint64(m.Length)})
		}
	}
	return areas, nil
}

// Delete removes the block's backing file. Must only be called once
// every outstanding reader has finished; the caller is responsible for
// that ordering (spec.md §4.2).
func (b *FileBlock) Delete() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	if b.deleted {
		return nil
	}
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	b.metadata = nil
	b.deleted = true
	return nil
}

func (b *FileBlock) snapshotMetadata() []PartitionMetadata {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	out := make([]PartitionMetadata, len(b.metadata))
	copy(out, b.metadata)
	return out
}

// skipExactly discards exactly n bytes, erroring on an over- or
// under-skip rather than tolerating a short skip silently.
func skipExactly(r io.Reader, n int64) error {
	copied, err := io.CopyN(io.Discard, r, n)
	if err != nil {
		return fmt.Errorf("flowcore: expected to skip %d bytes, skipped %d: %w", n, copied, err)
	}
	return nil
}

func decodeElements(s Serializer, raw []byte, count int) ([]Element, error) {
	r := bytes.NewReader(raw)
	if count <= 0 {
		// Fall back to reading the whole partition as a single element
		// when the writer didn't record a count (e.g. WriteSerializedPartitions
		// called directly with externally produced bytes).
		e, err := s.Deserialize(bytes.NewReader(raw), len(raw))
		if err != nil {
			return nil, err
		}
		return []Element{e}, nil
	}
	elems := make([]Element, 0, count)
	for i := 0; i < count; i++ {
		e, err := readOneLine(r, s)
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	return elems, nil
}

// readOneLine reads up to and including the next newline from r and
// deserializes it, matching LineSerializer's on-disk framing. Other
// Serializer implementations that need multi-element partitions should
// provide their own length-prefixed framing; LineSerializer is the
// default and the only one flowcore ships.
func readOneLine(r *bytes.Reader, s Serializer) (Element, error) {
	var line []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				break
			}
			return "", err
		}
		line = append(line, c)
		if c == '\n' {
			break
		}
	}
	return s.Deserialize(bytes.NewReader(line), len(line))
}
