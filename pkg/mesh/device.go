// Package mesh implements the per-node message engine: end-to-end framing,
// duplicate suppression, acknowledgements with timeouts, and dispatch to
// application callbacks, with an optional routing extension for forwarding.
package mesh

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/valentinpurrucker/quackmesh/pkg/link"
	"github.com/valentinpurrucker/quackmesh/pkg/protocol"
)

var (
	// ErrQueueFull is returned when the outbound queue is at capacity.
	ErrQueueFull = errors.New("mesh: outbound queue full")
	// ErrPayloadTooLarge is returned for payloads over one frame.
	ErrPayloadTooLarge = errors.New("mesh: payload exceeds frame capacity")
)

// MessageFunc receives locally addressed datagrams.
type MessageFunc func(msgType uint8, src protocol.Address, payload []byte)

// StatusFunc receives the end-to-end outcome of confirmed sends.
type StatusFunc func(status protocol.SendStatus)

// Options tune a Device. DefaultOptions matches the engine's canonical
// timings.
type Options struct {
	MaxSeen             int
	SeenCleanupInterval time.Duration
	SeenTTL             time.Duration
	ConfirmTimeout      time.Duration
	InitialHopCount     uint8
	MaxQueue            int
	LinkMaxTries        int
}

func DefaultOptions() Options {
	return Options{
		MaxSeen:             10,
		SeenCleanupInterval: 1000 * time.Millisecond,
		SeenTTL:             2000 * time.Millisecond,
		ConfirmTimeout:      1000 * time.Millisecond,
		InitialHopCount:     3,
		MaxQueue:            16,
		LinkMaxTries:        2,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxSeen <= 0 {
		o.MaxSeen = d.MaxSeen
	}
	if o.SeenCleanupInterval <= 0 {
		o.SeenCleanupInterval = d.SeenCleanupInterval
	}
	if o.SeenTTL <= 0 {
		o.SeenTTL = d.SeenTTL
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = d.ConfirmTimeout
	}
	if o.InitialHopCount == 0 {
		o.InitialHopCount = d.InitialHopCount
	}
	if o.MaxQueue <= 0 {
		o.MaxQueue = d.MaxQueue
	}
	if o.LinkMaxTries <= 0 {
		o.LinkMaxTries = d.LinkMaxTries
	}
	return o
}

type enqueued struct {
	kind    protocol.Kind
	channel uint8
	frame   protocol.Frame
}

type pendingConfirmation struct {
	id        uint8
	dst       protocol.Address
	remaining time.Duration
	// notified marks pendings whose status callback already fired (the
	// broadcast outcome); ack and timeout then resolve silently.
	notified bool
}

// Device is a single mesh node. It owns its link adapter and all engine
// state; Tick must be driven from one cooperative loop.
type Device struct {
	adapter *link.Adapter
	opts    Options

	onMessage MessageFunc
	onStatus  StatusFunc

	queue          []enqueued
	sendInProgress bool
	pending        []pendingConfirmation
	seen           *seenSet
	nextID         uint8

	lastCleanup      time.Time
	lastTimeoutCheck time.Time

	// Hook points the router installs; nil on a plain device.
	foreign func(f *protocol.Frame)
	nextHop func(dst protocol.Address) protocol.Address
	observe func(f *protocol.Frame, via protocol.Address)
}

func NewDevice(adapter *link.Adapter, opts Options) *Device {
	opts = opts.withDefaults()
	d := &Device{
		adapter: adapter,
		opts:    opts,
		seen:    newSeenSet(opts.MaxSeen, opts.SeenTTL),
	}
	adapter.SetOnReceive(d.handleReceive)
	adapter.SetOnSent(d.handleSent)
	return d
}

// Begin brings the link up.
func (d *Device) Begin() error { return d.adapter.Begin() }

// Stop tears the link down and unregisters the application callbacks.
// In-flight sends lose their completion path.
func (d *Device) Stop() error {
	d.onMessage = nil
	d.onStatus = nil
	return d.adapter.Stop()
}

func (d *Device) SetOnMessage(fn MessageFunc) { d.onMessage = fn }
func (d *Device) SetOnStatus(fn StatusFunc)   { d.onStatus = fn }

func (d *Device) LocalAddress() protocol.Address { return d.adapter.LocalAddress() }

// SendMessage enqueues a fire-and-forget datagram.
func (d *Device) SendMessage(payload []byte, dst protocol.Address) error {
	return d.enqueueNew(payload, dst, false)
}

// SendConfirmedMessage enqueues a datagram whose delivery is acknowledged
// end-to-end; the outcome arrives through the status callback.
func (d *Device) SendConfirmedMessage(payload []byte, dst protocol.Address) error {
	return d.enqueueNew(payload, dst, true)
}

// Tick runs one cooperative iteration: link maintenance, seen-set aging,
// confirmation timeouts, and at most one queue submission.
func (d *Device) Tick(now time.Time) {
	d.adapter.Tick(now)
	d.updateSeen(now)
	d.checkConfirmTimeouts(now)
	d.processQueue()
}

func (d *Device) enqueueNew(payload []byte, dst protocol.Address, confirmed bool) error {
	if len(payload) > protocol.MaxPayload {
		return ErrPayloadTooLarge
	}
	typ := protocol.TypeUnconfirmed
	kind := protocol.KindUnconfirmed
	if confirmed {
		typ = protocol.TypeConfirmed
		kind = protocol.KindConfirmed
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	f := protocol.Frame{
		Type:     typ,
		ID:       d.newMessageID(),
		HopCount: d.opts.InitialHopCount,
		Src:      d.LocalAddress(),
		Dst:      dst,
		Payload:  buf,
	}
	return d.enqueue(enqueued{kind: kind, frame: f})
}

func (d *Device) enqueue(e enqueued) error {
	if len(d.queue) >= d.opts.MaxQueue {
		return ErrQueueFull
	}
	d.queue = append(d.queue, e)
	return nil
}

// newMessageID is a wrapping 8-bit counter. Reuse is tolerated because the
// seen-set key includes both addresses and entries expire well before a
// realistic wrap at this send rate.
func (d *Device) newMessageID() uint8 {
	id := d.nextID
	d.nextID++
	return id
}

// processQueue submits the queue head to the link. The head stays queued
// until the sent callback fires; a link rejection discards it unsent.
func (d *Device) processQueue() {
	if d.sendInProgress || len(d.queue) == 0 {
		return
	}
	if !d.adapter.SendingPossible() {
		return
	}
	head := &d.queue[0]
	buf, err := head.frame.MarshalBinary()
	if err != nil {
		zap.L().Warn("dropping unencodable frame", zap.Error(err))
		d.queue = d.queue[1:]
		return
	}
	linkDst := d.resolveNextHop(head.frame.Dst)
	if err := d.adapter.Send(linkDst, buf, d.opts.LinkMaxTries, head.channel); err != nil {
		d.queue = d.queue[1:]
		return
	}
	d.sendInProgress = true
	if head.kind == protocol.KindConfirmed {
		d.pending = append(d.pending, pendingConfirmation{
			id:        head.frame.ID,
			dst:       head.frame.Dst,
			remaining: d.opts.ConfirmTimeout,
		})
	}
}

func (d *Device) resolveNextHop(dst protocol.Address) protocol.Address {
	if d.nextHop != nil {
		return d.nextHop(dst)
	}
	return protocol.Broadcast
}

// handleSent consumes the link-level outcome for the queue head.
func (d *Device) handleSent(status protocol.SendStatus) {
	if len(d.queue) == 0 {
		d.sendInProgress = false
		return
	}
	head := d.queue[0]
	if head.kind == protocol.KindConfirmed {
		switch {
		case status == protocol.SendFail:
			d.erasePending(head.frame.ID, head.frame.Dst)
			d.notifyStatus(protocol.SendFail)
		case status == protocol.SendBroadcast && head.frame.Dst.IsBroadcast():
			// A broadcast-addressed confirmed message gets exactly one
			// status callback: the broadcast outcome. The pending entry
			// stays to absorb stray acks, muted.
			d.mutePending(head.frame.ID, head.frame.Dst)
			d.notifyStatus(protocol.SendBroadcast)
		}
		// A unicast frame relayed over the broadcast link, or a link-level
		// success, resolves through ack or timeout.
	}
	d.sendInProgress = false
	d.queue = d.queue[1:]
}

// handleReceive decodes one ingress frame and dispatches by destination.
func (d *Device) handleReceive(src protocol.Address, data []byte) {
	var f protocol.Frame
	if err := f.UnmarshalBinary(data); err != nil {
		zap.L().Debug("dropping malformed frame", zap.Error(err))
		return
	}
	if d.observe != nil {
		d.observe(&f, src)
	}
	if f.Dst == d.LocalAddress() {
		d.handleOwn(&f)
	} else {
		d.handleForeign(&f)
	}
}

func (d *Device) handleOwn(f *protocol.Frame) {
	kind := protocol.KindForType(f.Type)
	if d.seen.contains(f, kind) {
		return
	}
	d.seen.remember(f, kind)

	switch f.Type {
	case protocol.TypeUnconfirmed:
		d.deliver(f)
	case protocol.TypeConfirmed:
		d.sendAcknowledgement(f)
		d.deliver(f)
	case protocol.TypeAck:
		d.handleAcknowledgement(f)
	default:
		d.deliver(f)
	}
}

// handleForeign drops frames for other nodes unless a router installed its
// forwarding hook.
func (d *Device) handleForeign(f *protocol.Frame) {
	if d.foreign != nil {
		d.foreign(f)
	}
}

func (d *Device) deliver(f *protocol.Frame) {
	if d.onMessage != nil {
		d.onMessage(f.Type, f.Src, f.Payload)
	}
}

func (d *Device) sendAcknowledgement(f *protocol.Frame) {
	ack := protocol.Frame{
		Type:     protocol.TypeAck,
		ID:       f.ID,
		HopCount: d.opts.InitialHopCount,
		Src:      d.LocalAddress(),
		Dst:      f.Src,
	}
	if err := d.enqueue(enqueued{kind: protocol.KindAcknowledgement, frame: ack}); err != nil {
		zap.L().Debug("ack dropped, queue full",
			zap.Uint8("id", f.ID), zap.String("dst", f.Src.String()))
	}
}

func (d *Device) handleAcknowledgement(f *protocol.Frame) {
	for i := range d.pending {
		p := d.pending[i]
		if p.id == f.ID && p.dst == f.Src {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			if !p.notified {
				d.notifyStatus(protocol.SendSuccess)
			}
			return
		}
	}
}

func (d *Device) erasePending(id uint8, dst protocol.Address) {
	for i := range d.pending {
		if d.pending[i].id == id && d.pending[i].dst == dst {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			return
		}
	}
}

func (d *Device) mutePending(id uint8, dst protocol.Address) {
	for i := range d.pending {
		if d.pending[i].id == id && d.pending[i].dst == dst {
			d.pending[i].notified = true
			return
		}
	}
}

func (d *Device) notifyStatus(status protocol.SendStatus) {
	if d.onStatus != nil {
		d.onStatus(status)
	}
}

// updateSeen ages the seen-set on the cleanup cadence. Each cleanup
// subtracts the whole time since the previous cleanup from every entry,
// including entries remembered partway through that interval, so an entry
// can expire up to one cleanup interval before a full TTL has passed since
// it was remembered.
func (d *Device) updateSeen(now time.Time) {
	if d.lastCleanup.IsZero() {
		d.lastCleanup = now
		return
	}
	elapsed := now.Sub(d.lastCleanup)
	if elapsed < d.opts.SeenCleanupInterval {
		return
	}
	d.lastCleanup = now
	d.seen.age(elapsed)
}

func (d *Device) checkConfirmTimeouts(now time.Time) {
	if d.lastTimeoutCheck.IsZero() {
		d.lastTimeoutCheck = now
		return
	}
	elapsed := now.Sub(d.lastTimeoutCheck)
	d.lastTimeoutCheck = now

	expired := 0
	kept := d.pending[:0]
	for _, p := range d.pending {
		p.remaining -= elapsed
		if p.remaining > 0 {
			kept = append(kept, p)
			continue
		}
		if !p.notified {
			expired++
		}
	}
	d.pending = kept
	// Callbacks run after the sweep so they may safely enqueue new sends.
	for ; expired > 0; expired-- {
		d.notifyStatus(protocol.SendFail)
	}
}
