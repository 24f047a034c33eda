// Package driver defines the contract between the mesh engine and an
// ESP-NOW-class radio: send one frame at a time, learn the outcome through
// an asynchronous delivery report, and receive frames through a callback
// that may fire on any goroutine.
package driver

import "github.com/valentinpurrucker/quackmesh/pkg/protocol"

// RecvFunc is invoked for every frame the radio captures, with the MAC of
// the immediate transmitter. It runs in interrupt context (an arbitrary
// goroutine here) and must not block.
type RecvFunc func(src protocol.Address, data []byte)

// SentFunc reports the outcome of the previous Send attempt. ok means the
// unicast peer acknowledged the frame at the link layer, or, for broadcast,
// that the frame entered the air.
type SentFunc func(dst protocol.Address, ok bool)

// Driver is the minimal radio primitive the link adapter drives.
type Driver interface {
	Init() error
	Deinit() error

	// RegisterRecv and RegisterSend install the interrupt callbacks.
	// Passing nil unregisters.
	RegisterRecv(fn RecvFunc)
	RegisterSend(fn SentFunc)

	// AddPeer and DelPeer bracket a unicast Send; channel 0 keeps the
	// radio on its current channel.
	AddPeer(mac protocol.Address, channel uint8) error
	DelPeer(mac protocol.Address) error

	// Send transmits one frame. The result of the attempt arrives through
	// the registered SentFunc; an error return means the frame never left
	// the driver.
	Send(mac protocol.Address, data []byte) error

	LocalAddress() protocol.Address
}
