package sim

import (
	"errors"
	"sync"

	"github.com/valentinpurrucker/quackmesh/pkg/driver"
	"github.com/valentinpurrucker/quackmesh/pkg/protocol"
)

var errNotInited = errors.New("sim: radio not initialized")

// Radio implements driver.Driver on top of a Medium. The delivery report
// fires synchronously from Send, after any receive callbacks on the peers.
type Radio struct {
	medium *Medium
	addr   protocol.Address

	mu     sync.Mutex
	inited bool
	recv   driver.RecvFunc
	sent   driver.SentFunc
	peers  map[protocol.Address]uint8
}

var _ driver.Driver = (*Radio)(nil)

func (r *Radio) Init() error {
	r.mu.Lock()
	r.inited = true
	r.mu.Unlock()
	return nil
}

func (r *Radio) Deinit() error {
	r.mu.Lock()
	r.inited = false
	r.mu.Unlock()
	return nil
}

func (r *Radio) RegisterRecv(fn driver.RecvFunc) {
	r.mu.Lock()
	r.recv = fn
	r.mu.Unlock()
}

func (r *Radio) RegisterSend(fn driver.SentFunc) {
	r.mu.Lock()
	r.sent = fn
	r.mu.Unlock()
}

func (r *Radio) AddPeer(mac protocol.Address, channel uint8) error {
	r.mu.Lock()
	r.peers[mac] = channel
	r.mu.Unlock()
	return nil
}

func (r *Radio) DelPeer(mac protocol.Address) error {
	r.mu.Lock()
	delete(r.peers, mac)
	r.mu.Unlock()
	return nil
}

func (r *Radio) Send(mac protocol.Address, data []byte) error {
	r.mu.Lock()
	inited, sent := r.inited, r.sent
	r.mu.Unlock()
	if !inited {
		return errNotInited
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	ok := r.medium.transmit(r, mac, buf)
	if sent != nil {
		sent(mac, ok)
	}
	return nil
}

func (r *Radio) LocalAddress() protocol.Address { return r.addr }

func (r *Radio) deliver(src protocol.Address, data []byte) {
	r.mu.Lock()
	recv, inited := r.recv, r.inited
	r.mu.Unlock()
	if !inited || recv == nil {
		return
	}
	recv(src, data)
}
