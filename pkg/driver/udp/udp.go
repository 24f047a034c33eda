// Package udp implements the radio driver contract over UDP datagrams so
// host processes on one network segment can form a test mesh. Each datagram
// carries the 6-byte sender identity followed by the frame bytes; unicast
// resolves destinations through a static peer registry and broadcast fans
// out to every registered peer.
package udp

import (
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/valentinpurrucker/quackmesh/pkg/driver"
	"github.com/valentinpurrucker/quackmesh/pkg/protocol"
)

const maxDatagram = 6 + protocol.MaxFrameSize

// Config describes the local endpoint and the static peer registry.
type Config struct {
	// Listen is the local UDP address, e.g. ":17788".
	Listen string
	// Local is the 6-byte identity announced in outgoing datagrams.
	Local protocol.Address
	// Peers maps peer identities to UDP addresses.
	Peers map[protocol.Address]string
}

// Bridge is a driver.Driver carried over UDP.
type Bridge struct {
	cfg Config

	mu    sync.Mutex
	conn  *net.UDPConn
	recv  driver.RecvFunc
	sent  driver.SentFunc
	peers map[protocol.Address]*net.UDPAddr
	done  chan struct{}
}

var _ driver.Driver = (*Bridge)(nil)

func New(cfg Config) *Bridge {
	return &Bridge{cfg: cfg}
}

func (b *Bridge) Init() error {
	laddr, err := net.ResolveUDPAddr("udp", b.cfg.Listen)
	if err != nil { return err }
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil { return err }

	peers := make(map[protocol.Address]*net.UDPAddr, len(b.cfg.Peers))
	for id, addr := range b.cfg.Peers {
		ua, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			_ = conn.Close()
			return err
		}
		peers[id] = ua
	}

	b.mu.Lock()
	b.conn = conn
	b.peers = peers
	b.done = make(chan struct{})
	b.mu.Unlock()

	go b.readLoop(conn)
	zap.L().Info("udp bridge up",
		zap.String("listen", conn.LocalAddr().String()),
		zap.String("local", b.cfg.Local.String()),
		zap.Int("peers", len(peers)))
	return nil
}

func (b *Bridge) Deinit() error {
	b.mu.Lock()
	conn, done := b.conn, b.done
	b.conn = nil
	b.mu.Unlock()
	if conn == nil {
		return nil
	}
	close(done)
	return conn.Close()
}

func (b *Bridge) RegisterRecv(fn driver.RecvFunc) {
	b.mu.Lock()
	b.recv = fn
	b.mu.Unlock()
}

func (b *Bridge) RegisterSend(fn driver.SentFunc) {
	b.mu.Lock()
	b.sent = fn
	b.mu.Unlock()
}

// AddPeer and DelPeer are satisfied by the static registry; the per-send
// peer bracket the engine performs has no UDP equivalent.
func (b *Bridge) AddPeer(mac protocol.Address, channel uint8) error { return nil }
func (b *Bridge) DelPeer(mac protocol.Address) error                { return nil }

func (b *Bridge) Send(mac protocol.Address, data []byte) error {
	b.mu.Lock()
	conn, sent := b.conn, b.sent
	b.mu.Unlock()
	if conn == nil {
		return errors.New("udp: bridge not initialized")
	}

	buf := make([]byte, 0, 6+len(data))
	buf = append(buf, b.cfg.Local[:]...)
	buf = append(buf, data...)

	ok := false
	if mac.IsBroadcast() {
		for _, ua := range b.snapshotPeers() {
			if _, err := conn.WriteToUDP(buf, ua); err == nil {
				ok = true
			}
		}
	} else if ua := b.peerAddr(mac); ua != nil {
		_, err := conn.WriteToUDP(buf, ua)
		ok = err == nil
	}
	if sent != nil {
		sent(mac, ok)
	}
	return nil
}

func (b *Bridge) LocalAddress() protocol.Address { return b.cfg.Local }

func (b *Bridge) peerAddr(mac protocol.Address) *net.UDPAddr {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peers[mac]
}

func (b *Bridge) snapshotPeers() []*net.UDPAddr {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*net.UDPAddr, 0, len(b.peers))
	for _, ua := range b.peers {
		out = append(out, ua)
	}
	return out
}

func (b *Bridge) readLoop(conn *net.UDPConn) {
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			b.mu.Lock()
			done := b.done
			b.mu.Unlock()
			select {
			case <-done:
			default:
				zap.L().Warn("udp read failed", zap.Error(err))
			}
			return
		}
		if n < 6 {
			continue
		}
		var src protocol.Address
		copy(src[:], buf[:6])
		data := make([]byte, n-6)
		copy(data, buf[6:n])

		b.mu.Lock()
		recv := b.recv
		b.mu.Unlock()
		if recv != nil {
			recv(src, data)
		}
	}
}
