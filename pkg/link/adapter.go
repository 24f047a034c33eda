// Package link serializes sends over a half-duplex radio driver with
// asynchronous completion and bounded retries, and turns the driver's
// interrupt-context receive callback into a polled ingress stream. One
// adapter owns one driver instance.
package link

import (
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/valentinpurrucker/quackmesh/pkg/driver"
	"github.com/valentinpurrucker/quackmesh/pkg/protocol"
)

// ErrBusy is returned by Send while a previous send awaits its outcome.
var ErrBusy = errors.New("link: send in flight")

// DefaultSendInterval rate-limits transmission attempts.
const DefaultSendInterval = 100 * time.Millisecond

// DefaultIngressCapacity bounds frames buffered between interrupt and tick.
const DefaultIngressCapacity = 8

type sendState uint8

const (
	stateIdle sendState = iota
	stateArmed
	stateInFlight
)

// ReceiveFunc is called from Tick with the immediate sender and raw frame.
type ReceiveFunc func(src protocol.Address, data []byte)

// SentFunc is called from Tick with the terminal outcome of a send.
type SentFunc func(status protocol.SendStatus)

// Options tune an Adapter. Zero values select the defaults.
type Options struct {
	SendInterval    time.Duration
	IngressCapacity int
}

type staged struct {
	dst       protocol.Address
	data      []byte
	triesLeft int
	channel   uint8
}

// Adapter drives one radio. All methods except the driver callbacks must be
// called from the cooperative loop.
type Adapter struct {
	drv  driver.Driver
	ring *ingressRing

	onReceive ReceiveFunc
	onSent    SentFunc

	sendInterval time.Duration
	state        sendState
	cur          staged
	lastAttempt  time.Time

	// written from the driver's send interrupt, consumed by Tick
	statusReady atomic.Bool
	statusOK    atomic.Bool

	shortDrops atomic.Uint64
}

func NewAdapter(drv driver.Driver, opts Options) *Adapter {
	if opts.SendInterval <= 0 {
		opts.SendInterval = DefaultSendInterval
	}
	if opts.IngressCapacity <= 0 {
		opts.IngressCapacity = DefaultIngressCapacity
	}
	return &Adapter{
		drv:          drv,
		ring:         newIngressRing(opts.IngressCapacity),
		sendInterval: opts.SendInterval,
	}
}

// Begin initializes the driver and installs the interrupt hooks. Driver
// init failure is the only surfaced initialization fault of the engine.
func (a *Adapter) Begin() error {
	if err := a.drv.Init(); err != nil {
		return err
	}
	a.drv.RegisterRecv(a.handleRecv)
	a.drv.RegisterSend(a.handleSent)
	return nil
}

// Stop unregisters the hooks and tears the driver down. An in-flight send
// loses its completion path.
func (a *Adapter) Stop() error {
	a.drv.RegisterRecv(nil)
	a.drv.RegisterSend(nil)
	return a.drv.Deinit()
}

func (a *Adapter) SetOnReceive(fn ReceiveFunc) { a.onReceive = fn }
func (a *Adapter) SetOnSent(fn SentFunc)       { a.onSent = fn }

func (a *Adapter) LocalAddress() protocol.Address { return a.drv.LocalAddress() }

// SendingPossible reports whether Send would accept a frame.
func (a *Adapter) SendingPossible() bool { return a.state == stateIdle }

// Send stages one frame for transmission. maxTries bounds link-layer
// attempts. The frame goes out on a later Tick.
func (a *Adapter) Send(dst protocol.Address, data []byte, maxTries int, channel uint8) error {
	if a.state != stateIdle {
		return ErrBusy
	}
	if maxTries < 1 {
		maxTries = 1
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	a.cur = staged{dst: dst, data: buf, triesLeft: maxTries, channel: channel}
	a.state = stateArmed
	return nil
}

// Tick drains the interrupt state, drives the send machine, and dispatches
// at most one buffered ingress frame to the receive callback.
func (a *Adapter) Tick(now time.Time) {
	a.reconcileStatus()
	a.emit(now)
	if f, ok := a.ring.pop(); ok && a.onReceive != nil {
		a.onReceive(f.src, f.data)
	}
}

// reconcileStatus folds a pending delivery report into the send machine.
func (a *Adapter) reconcileStatus() {
	if !a.statusReady.CompareAndSwap(true, false) {
		return
	}
	if a.state != stateInFlight {
		return
	}
	if a.statusOK.Load() {
		status := protocol.SendSuccess
		if a.cur.dst.IsBroadcast() {
			// The driver's success for broadcast only means the frame
			// entered the air; it must not read as delivery.
			status = protocol.SendBroadcast
		}
		a.finish(status)
		return
	}
	if a.cur.triesLeft > 0 {
		a.state = stateArmed
		zap.L().Debug("link retry", zap.String("dst", a.cur.dst.String()),
			zap.Int("tries_left", a.cur.triesLeft))
		return
	}
	a.finish(protocol.SendFail)
}

// emit transmits the staged frame when the machine is armed and the rate
// limit allows another attempt.
func (a *Adapter) emit(now time.Time) {
	if a.state != stateArmed {
		return
	}
	if !a.lastAttempt.IsZero() && now.Sub(a.lastAttempt) < a.sendInterval {
		return
	}
	a.lastAttempt = now
	a.state = stateInFlight
	a.cur.triesLeft--

	_ = a.drv.AddPeer(a.cur.dst, a.cur.channel)
	err := a.drv.Send(a.cur.dst, a.cur.data)
	_ = a.drv.DelPeer(a.cur.dst)
	if err != nil {
		// The frame never left the driver; no delivery report will come.
		zap.L().Debug("link send rejected", zap.Error(err))
		a.statusReady.Store(false)
		a.finish(protocol.SendFail)
	}
}

func (a *Adapter) finish(status protocol.SendStatus) {
	a.state = stateIdle
	a.cur = staged{}
	if a.onSent != nil {
		a.onSent(status)
	}
}

// IngressDrops counts frames lost to ring back-pressure or short frames.
func (a *Adapter) IngressDrops() uint64 {
	return a.ring.dropped() + a.shortDrops.Load()
}

// handleRecv runs in interrupt context.
func (a *Adapter) handleRecv(src protocol.Address, data []byte) {
	if len(data) < protocol.HeaderSize {
		a.shortDrops.Add(1)
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	a.ring.push(ingressFrame{src: src, data: buf})
}

// handleSent runs in interrupt context.
func (a *Adapter) handleSent(dst protocol.Address, ok bool) {
	a.statusOK.Store(ok)
	a.statusReady.Store(true)
}
