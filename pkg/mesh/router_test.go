package mesh

import (
	"testing"
	"time"

	"github.com/valentinpurrucker/quackmesh/pkg/driver/sim"
	"github.com/valentinpurrucker/quackmesh/pkg/link"
	"github.com/valentinpurrucker/quackmesh/pkg/protocol"
)

func newBenchRouter(t *testing.T) *Router {
	t.Helper()
	m := sim.NewMedium()
	radio := m.Attach(protocol.Address{0xA0, 0, 0, 0, 0, 1})
	a := link.NewAdapter(radio, link.Options{})
	r := NewRouter(a, Options{}, RouterOptions{})
	if err := r.Begin(); err != nil { t.Fatalf("begin: %v", err) }
	return r
}

var (
	dstX  = protocol.Address{0x10, 0, 0, 0, 0, 1}
	viaY  = protocol.Address{0x20, 0, 0, 0, 0, 2}
	viaZ  = protocol.Address{0x30, 0, 0, 0, 0, 3}
)

func TestRoutingAddAndNextHop(t *testing.T) {
	r := newBenchRouter(t)

	if r.nextHopFor(dstX) != protocol.Broadcast {
		t.Fatal("empty table should fall back to broadcast")
	}
	r.addOrUpdate(dstX, viaY, 2)
	if got := r.nextHopFor(dstX); got != viaY {
		t.Fatalf("next hop = %s, want %s", got, viaY)
	}
}

func TestRoutingShorterRouteWins(t *testing.T) {
	r := newBenchRouter(t)
	r.addOrUpdate(dstX, viaY, 2)
	r.addOrUpdate(dstX, viaZ, 1)
	if got := r.nextHopFor(dstX); got != viaZ {
		t.Fatalf("next hop = %s, want shorter route via %s", got, viaZ)
	}

	// A worse or equal route never replaces the current one.
	r.addOrUpdate(dstX, viaY, 1)
	if got := r.nextHopFor(dstX); got != viaZ {
		t.Fatalf("equal-hop route replaced entry, next hop = %s", got)
	}
	r.addOrUpdate(dstX, viaY, 3)
	if got := r.nextHopFor(dstX); got != viaZ {
		t.Fatalf("worse route replaced entry, next hop = %s", got)
	}
	if r.table[0].hops != 1 { t.Fatalf("hops = %d, want 1", r.table[0].hops) }
}

func TestRoutingCapacityEvictsClosestToExpiry(t *testing.T) {
	r := newBenchRouter(t)
	for i := 0; i < r.ropts.MaxEntries; i++ {
		r.addOrUpdate(protocol.Address{byte(i + 1)}, viaY, 1)
	}
	// Age one entry halfway so it is the eviction candidate.
	r.table[3].remaining /= 2
	victim := r.table[3].destination

	r.addOrUpdate(dstX, viaZ, 1)
	if len(r.table) != r.ropts.MaxEntries {
		t.Fatalf("table size = %d", len(r.table))
	}
	if r.nextHopFor(victim) != protocol.Broadcast {
		t.Fatal("aged entry should have been evicted")
	}
	if r.nextHopFor(dstX) != viaZ {
		t.Fatal("new entry missing after eviction")
	}
}

func TestRoutingAging(t *testing.T) {
	r := newBenchRouter(t)
	r.addOrUpdate(dstX, viaY, 1)

	now := time.Unix(0, 0)
	r.ageTable(now) // arms the cadence
	now = now.Add(r.ropts.TTL / 2)
	r.ageTable(now)
	if r.nextHopFor(dstX) != viaY { t.Fatal("entry expired early") }

	now = now.Add(r.ropts.TTL)
	r.ageTable(now)
	if r.nextHopFor(dstX) != protocol.Broadcast { t.Fatal("entry should have expired") }
}

func TestLearnFromReceivedFrame(t *testing.T) {
	r := newBenchRouter(t)

	// Direct neighbor: full hop count left.
	f := &protocol.Frame{Type: protocol.TypeUnconfirmed, ID: 1, HopCount: 3, Src: dstX, Dst: protocol.Address{0xEE}}
	r.learn(f, dstX)
	if got := r.nextHopFor(dstX); got != dstX { t.Fatalf("next hop = %s", got) }
	if r.table[0].hops != 0 { t.Fatalf("hops = %d, want 0", r.table[0].hops) }

	// One forwarder in between.
	f2 := &protocol.Frame{Type: protocol.TypeUnconfirmed, ID: 2, HopCount: 2, Src: viaZ, Dst: protocol.Address{0xEE}}
	r.learn(f2, viaY)
	if got := r.nextHopFor(viaZ); got != viaY { t.Fatalf("next hop = %s", got) }
	if r.table[1].hops != 1 { t.Fatalf("hops = %d, want 1", r.table[1].hops) }

	// Frames originated here never create routes.
	f3 := &protocol.Frame{Type: protocol.TypeUnconfirmed, ID: 3, HopCount: 3, Src: r.LocalAddress(), Dst: dstX}
	r.learn(f3, viaY)
	if len(r.table) != 2 { t.Fatalf("table size = %d", len(r.table)) }
}

func TestForwardDecrementsHopCount(t *testing.T) {
	r := newBenchRouter(t)
	f := &protocol.Frame{Type: protocol.TypeUnconfirmed, ID: 9, HopCount: 3, Src: dstX, Dst: viaZ, Payload: []byte{1}}

	r.forward(f)
	if len(r.queue) != 1 { t.Fatalf("queue = %d", len(r.queue)) }
	q := r.queue[0]
	if q.kind != protocol.KindForwarded { t.Fatalf("kind = %s", q.kind) }
	if q.frame.HopCount != 2 { t.Fatalf("hop count = %d, want 2", q.frame.HopCount) }
	if f.HopCount != 3 { t.Fatal("input frame mutated") }

	// A duplicate is not forwarded twice.
	r.forward(f)
	if len(r.queue) != 1 { t.Fatalf("duplicate forwarded, queue = %d", len(r.queue)) }
}

func TestForwardTTLExhausted(t *testing.T) {
	r := newBenchRouter(t)
	f := &protocol.Frame{Type: protocol.TypeUnconfirmed, ID: 9, HopCount: 1, Src: dstX, Dst: viaZ}
	r.forward(f)
	if len(r.queue) != 0 { t.Fatal("hop count 1 must not be forwarded") }
}
