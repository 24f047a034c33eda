package mesh

import (
	"time"

	"github.com/valentinpurrucker/quackmesh/pkg/protocol"
)

type seenEntry struct {
	id        uint8
	src       protocol.Address
	dst       protocol.Address
	kind      protocol.Kind
	remaining time.Duration
}

// seenSet suppresses duplicates. The kind discriminator is part of the key
// so a forwarded frame and a locally delivered one never alias, nor a
// confirmed frame and its acknowledgement. Entries age out on the cleanup
// cadence; at capacity the oldest insert is evicted.
type seenSet struct {
	entries []seenEntry
	max     int
	ttl     time.Duration
}

func newSeenSet(max int, ttl time.Duration) *seenSet {
	return &seenSet{max: max, ttl: ttl}
}

func (s *seenSet) contains(f *protocol.Frame, kind protocol.Kind) bool {
	for i := range s.entries {
		e := &s.entries[i]
		if e.remaining > 0 && e.id == f.ID && e.src == f.Src && e.dst == f.Dst && e.kind == kind {
			return true
		}
	}
	return false
}

func (s *seenSet) remember(f *protocol.Frame, kind protocol.Kind) {
	if s.contains(f, kind) {
		return
	}
	if len(s.entries) >= s.max {
		s.entries = s.entries[1:]
	}
	s.entries = append(s.entries, seenEntry{
		id:        f.ID,
		src:       f.Src,
		dst:       f.Dst,
		kind:      kind,
		remaining: s.ttl,
	})
}

func (s *seenSet) age(elapsed time.Duration) {
	kept := s.entries[:0]
	for _, e := range s.entries {
		e.remaining -= elapsed
		if e.remaining > 0 {
			kept = append(kept, e)
		}
	}
	s.entries = kept
}

func (s *seenSet) len() int { return len(s.entries) }
