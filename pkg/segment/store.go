// Package segment holds the chunk arithmetic shared by both transfer sides
// and the receiver's reassembly store.
package segment

import (
	"io"
	"sort"
)

// Count reports how many segments a file of fileSize bytes occupies at the
// given segment size. A zero-length file still counts as one segment: it
// travels as a single empty DATA frame with the last flag set.
func Count(fileSize int64, segmentSize int) uint32 {
	if segmentSize <= 0 {
		panic("segmentSize must be > 0")
	}
	if fileSize == 0 {
		return 1
	}
	return uint32((fileSize + int64(segmentSize) - 1) / int64(segmentSize))
}

// Range reports the byte window segment seq covers inside a file of
// fileSize bytes. The final segment may be shorter than segmentSize; for a
// zero-length file segment 0 is the empty window at offset 0.
func Range(seq uint32, fileSize int64, segmentSize int) (offset int64, length int) {
	offset = int64(seq) * int64(segmentSize)
	remaining := fileSize - offset
	if remaining <= 0 {
		return offset, 0
	}
	if remaining < int64(segmentSize) {
		return offset, int(remaining)
	}
	return offset, segmentSize
}

// Store collects received segment payloads keyed by sequence number. It is
// owned by a single session and is not safe for concurrent use.
type Store struct {
	segments map[uint32][]byte
	bytes    int64
}

func NewStore() *Store {
	return &Store{segments: make(map[uint32][]byte)}
}

// Put records a payload for seq and reports whether it was new. Duplicates
// never overwrite: the first arrival wins. The payload is copied, so
// callers may hand in slices aliasing a reused read buffer.
func (s *Store) Put(seq uint32, payload []byte) bool {
	if _, dup := s.segments[seq]; dup {
		return false
	}
	owned := make([]byte, len(payload))
	copy(owned, payload)
	s.segments[seq] = owned
	s.bytes += int64(len(owned))
	return true
}

func (s *Store) Has(seq uint32) bool {
	_, ok := s.segments[seq]
	return ok
}

// Len reports how many distinct sequences are stored.
func (s *Store) Len() int { return len(s.segments) }

// Bytes reports the total payload bytes stored.
func (s *Store) Bytes() int64 { return s.bytes }

// Missing lists, in ascending order, every sequence in [0, total) that has
// not been stored.
func (s *Store) Missing(total uint32) []uint32 {
	var missing []uint32
	for seq := uint32(0); seq < total; seq++ {
		if _, ok := s.segments[seq]; !ok {
			missing = append(missing, seq)
		}
	}
	return missing
}

// WriteTo writes every stored payload to w in ascending sequence order.
// Gaps are skipped, which is what produces a partial artifact when
// recovery ran out of attempts.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	seqs := make([]uint32, 0, len(s.segments))
	for seq := range s.segments {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	var written int64
	for _, seq := range seqs {
		n, err := w.Write(s.segments[seq])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
