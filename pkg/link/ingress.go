package link

import (
	"sync/atomic"

	"github.com/valentinpurrucker/quackmesh/pkg/protocol"
)

type ingressFrame struct {
	src  protocol.Address
	data []byte
}

// ingressRing is a bounded single-producer single-consumer queue carrying
// frames from the driver's receive interrupt to the cooperative side. The
// producer is the receive callback, the consumer is Tick; neither blocks.
// When the ring is full the producer drops the frame and counts it, which
// is the back-pressure the radio segment expects.
type ingressRing struct {
	buf   []ingressFrame
	mask  uint64
	head  atomic.Uint64 // consumer position
	tail  atomic.Uint64 // producer position
	drops atomic.Uint64
}

func newIngressRing(capacity int) *ingressRing {
	// round up to a power of two for cheap masking
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &ingressRing{buf: make([]ingressFrame, n), mask: uint64(n - 1)}
}

// push runs on the producer side only.
func (r *ingressRing) push(f ingressFrame) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() >= uint64(len(r.buf)) {
		r.drops.Add(1)
		return false
	}
	r.buf[tail&r.mask] = f
	r.tail.Store(tail + 1)
	return true
}

// pop runs on the consumer side only.
func (r *ingressRing) pop() (ingressFrame, bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		return ingressFrame{}, false
	}
	f := r.buf[head&r.mask]
	r.buf[head&r.mask] = ingressFrame{}
	r.head.Store(head + 1)
	return f, true
}

func (r *ingressRing) dropped() uint64 { return r.drops.Load() }
