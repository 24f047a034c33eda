package mesh

import (
	"testing"
	"time"

	"github.com/valentinpurrucker/quackmesh/pkg/protocol"
)

func seenFrame(id uint8) *protocol.Frame {
	return &protocol.Frame{
		Type:     protocol.TypeConfirmed,
		ID:       id,
		HopCount: 3,
		Src:      protocol.Address{1},
		Dst:      protocol.Address{2},
	}
}

func TestSeenSetKeyIncludesKind(t *testing.T) {
	s := newSeenSet(10, 2*time.Second)
	f := seenFrame(1)

	s.remember(f, protocol.KindConfirmed)
	if !s.contains(f, protocol.KindConfirmed) { t.Fatal("confirmed entry missing") }
	if s.contains(f, protocol.KindForwarded) { t.Fatal("kind must discriminate") }
	if s.contains(f, protocol.KindAcknowledgement) { t.Fatal("kind must discriminate") }

	// Same id from a different source is a different message.
	other := *f
	other.Src = protocol.Address{9}
	if s.contains(&other, protocol.KindConfirmed) { t.Fatal("src must discriminate") }
}

func TestSeenSetAging(t *testing.T) {
	s := newSeenSet(10, 2*time.Second)
	f := seenFrame(1)
	s.remember(f, protocol.KindConfirmed)

	s.age(1500 * time.Millisecond)
	if !s.contains(f, protocol.KindConfirmed) { t.Fatal("entry expired early") }
	s.age(600 * time.Millisecond)
	if s.contains(f, protocol.KindConfirmed) { t.Fatal("entry should have expired") }
	if s.len() != 0 { t.Fatalf("len = %d", s.len()) }
}

func TestSeenSetEvictsOldest(t *testing.T) {
	s := newSeenSet(3, 2*time.Second)
	for id := uint8(0); id < 4; id++ {
		s.remember(seenFrame(id), protocol.KindConfirmed)
	}
	if s.len() != 3 { t.Fatalf("len = %d", s.len()) }
	if s.contains(seenFrame(0), protocol.KindConfirmed) { t.Fatal("oldest should be evicted") }
	for id := uint8(1); id < 4; id++ {
		if !s.contains(seenFrame(id), protocol.KindConfirmed) {
			t.Fatalf("entry %d missing", id)
		}
	}
}

func TestSeenSetRememberIsIdempotent(t *testing.T) {
	s := newSeenSet(3, 2*time.Second)
	f := seenFrame(1)
	s.remember(f, protocol.KindConfirmed)
	s.remember(f, protocol.KindConfirmed)
	if s.len() != 1 { t.Fatalf("len = %d", s.len()) }
}
