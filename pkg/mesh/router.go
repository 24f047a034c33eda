package mesh

import (
	"time"

	"go.uber.org/zap"

	"github.com/valentinpurrucker/quackmesh/pkg/link"
	"github.com/valentinpurrucker/quackmesh/pkg/protocol"
)

// RouterOptions tune the routing table.
type RouterOptions struct {
	UpdateInterval time.Duration
	TTL            time.Duration
	MaxEntries     int
}

func DefaultRouterOptions() RouterOptions {
	return RouterOptions{
		UpdateInterval: 100 * time.Millisecond,
		TTL:            10000 * time.Millisecond,
		MaxEntries:     10,
	}
}

func (o RouterOptions) withDefaults() RouterOptions {
	d := DefaultRouterOptions()
	if o.UpdateInterval <= 0 {
		o.UpdateInterval = d.UpdateInterval
	}
	if o.TTL <= 0 {
		o.TTL = d.TTL
	}
	if o.MaxEntries <= 0 {
		o.MaxEntries = d.MaxEntries
	}
	return o
}

type routingEntry struct {
	destination protocol.Address
	link        protocol.Address
	hops        uint8
	remaining   time.Duration
}

// Router extends a Device with forwarding of non-local frames and a
// time-aged routing table with shortest-hop selection. It installs itself
// into the device's hook points rather than subclassing it.
type Router struct {
	*Device
	ropts RouterOptions

	table     []routingEntry
	lastAging time.Time
}

func NewRouter(adapter *link.Adapter, opts Options, ropts RouterOptions) *Router {
	r := &Router{
		Device: NewDevice(adapter, opts),
		ropts:  ropts.withDefaults(),
	}
	r.Device.foreign = r.forward
	r.Device.nextHop = r.nextHopFor
	r.Device.observe = r.learn
	return r
}

// Tick runs the device iteration and then ages the routing table.
func (r *Router) Tick(now time.Time) {
	r.Device.Tick(now)
	r.ageTable(now)
}

// learn registers a route to the frame's original source via the immediate
// sender, for every valid received frame. The hop distance is the number of
// forwarders the frame passed: initial hop count minus the received value.
func (r *Router) learn(f *protocol.Frame, via protocol.Address) {
	if f.Src == r.LocalAddress() || via.IsBroadcast() {
		return
	}
	var hops uint8
	if f.HopCount < r.opts.InitialHopCount {
		hops = r.opts.InitialHopCount - f.HopCount
	}
	r.addOrUpdate(f.Src, via, hops)
}

// addOrUpdate inserts or improves a routing entry. An existing route is
// replaced only by a strictly shorter one; at capacity the entry closest to
// expiry makes room.
func (r *Router) addOrUpdate(destination, via protocol.Address, hops uint8) {
	for i := range r.table {
		e := &r.table[i]
		if e.destination == destination {
			if hops < e.hops {
				e.link = via
				e.hops = hops
				e.remaining = r.ropts.TTL
			}
			return
		}
	}
	entry := routingEntry{destination: destination, link: via, hops: hops, remaining: r.ropts.TTL}
	if len(r.table) >= r.ropts.MaxEntries {
		oldest := 0
		for i := range r.table {
			if r.table[i].remaining < r.table[oldest].remaining {
				oldest = i
			}
		}
		zap.L().Debug("routing table full, evicting",
			zap.String("destination", r.table[oldest].destination.String()))
		r.table[oldest] = entry
		return
	}
	r.table = append(r.table, entry)
}

// nextHopFor returns the learned link for a destination, or broadcast when
// the table has no live entry.
func (r *Router) nextHopFor(dst protocol.Address) protocol.Address {
	for i := range r.table {
		if r.table[i].destination == dst && r.table[i].remaining > 0 {
			return r.table[i].link
		}
	}
	return protocol.Broadcast
}

// forward re-enqueues a non-local frame with a decremented hop count,
// subject to TTL exhaustion and duplicate suppression.
func (r *Router) forward(f *protocol.Frame) {
	if f.HopCount <= 1 {
		return
	}
	if r.seen.contains(f, protocol.KindForwarded) {
		return
	}
	r.seen.remember(f, protocol.KindForwarded)

	fwd := *f
	fwd.HopCount--
	fwd.Payload = make([]byte, len(f.Payload))
	copy(fwd.Payload, f.Payload)

	if err := r.enqueue(enqueued{kind: protocol.KindForwarded, frame: fwd}); err != nil {
		zap.L().Debug("forward dropped, queue full",
			zap.Uint8("id", f.ID), zap.String("dst", f.Dst.String()))
	}
}

func (r *Router) ageTable(now time.Time) {
	if r.lastAging.IsZero() {
		r.lastAging = now
		return
	}
	elapsed := now.Sub(r.lastAging)
	if elapsed < r.ropts.UpdateInterval {
		return
	}
	r.lastAging = now

	kept := r.table[:0]
	for _, e := range r.table {
		e.remaining -= elapsed
		if e.remaining > 0 {
			kept = append(kept, e)
		}
	}
	r.table = kept
}
