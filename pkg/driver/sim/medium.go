// Package sim provides an in-process broadcast medium and radio driver for
// exercising the mesh engine without hardware. Every attached radio hears
// every other radio unless a directed link is blocked.
package sim

import (
	"sync"

	"go.uber.org/zap"

	"github.com/valentinpurrucker/quackmesh/pkg/protocol"
)

// TapFunc observes every transmission crossing the medium before delivery.
type TapFunc func(src, dst protocol.Address, data []byte)

// Medium connects simulated radios. Delivery is synchronous: receive
// callbacks run inside the sender's Send call, mimicking the tight timing
// of a single-hop radio segment.
type Medium struct {
	mu      sync.Mutex
	radios  map[protocol.Address]*Radio
	blocked map[[2]protocol.Address]bool
	tap     TapFunc
}

func NewMedium() *Medium {
	return &Medium{
		radios:  make(map[protocol.Address]*Radio),
		blocked: make(map[[2]protocol.Address]bool),
	}
}

// Attach creates a radio with the given address and joins it to the medium.
func (m *Medium) Attach(addr protocol.Address) *Radio {
	r := &Radio{medium: m, addr: addr, peers: make(map[protocol.Address]uint8)}
	m.mu.Lock()
	m.radios[addr] = r
	m.mu.Unlock()
	return r
}

// Block drops all transmissions from src that would reach dst. The reverse
// direction is unaffected.
func (m *Medium) Block(src, dst protocol.Address) {
	m.mu.Lock()
	m.blocked[[2]protocol.Address{src, dst}] = true
	m.mu.Unlock()
}

// Unblock restores the directed link.
func (m *Medium) Unblock(src, dst protocol.Address) {
	m.mu.Lock()
	delete(m.blocked, [2]protocol.Address{src, dst})
	m.mu.Unlock()
}

// SetTap installs an observer for all transmissions.
func (m *Medium) SetTap(fn TapFunc) {
	m.mu.Lock()
	m.tap = fn
	m.mu.Unlock()
}

func (m *Medium) reaches(src, dst protocol.Address) bool {
	return !m.blocked[[2]protocol.Address{src, dst}]
}

// transmit delivers one frame and reports whether the link-level attempt
// succeeded. Unicast succeeds only when the destination is attached and the
// directed link is open; broadcast always succeeds once on the air.
func (m *Medium) transmit(from *Radio, dst protocol.Address, data []byte) bool {
	m.mu.Lock()
	tap := m.tap
	var targets []*Radio
	ok := false
	if dst.IsBroadcast() {
		ok = true
		for addr, r := range m.radios {
			if addr != from.addr && m.reaches(from.addr, addr) {
				targets = append(targets, r)
			}
		}
	} else if r, present := m.radios[dst]; present && m.reaches(from.addr, dst) {
		ok = true
		targets = append(targets, r)
	}
	m.mu.Unlock()

	if tap != nil {
		tap(from.addr, dst, data)
	}
	for _, r := range targets {
		r.deliver(from.addr, data)
	}
	zap.L().Debug("sim transmit",
		zap.String("src", from.addr.String()),
		zap.String("dst", dst.String()),
		zap.Int("bytes", len(data)),
		zap.Bool("ok", ok))
	return ok
}
