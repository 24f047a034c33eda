package mesh

import (
	"testing"
	"time"

	"github.com/valentinpurrucker/quackmesh/pkg/driver/sim"
	"github.com/valentinpurrucker/quackmesh/pkg/link"
	"github.com/valentinpurrucker/quackmesh/pkg/protocol"
)

// meshNet drives a set of nodes over one simulated medium with a manual
// clock stepped in millisecond ticks.
type meshNet struct {
	t       *testing.T
	medium  *sim.Medium
	now     time.Time
	tickers []func(time.Time)
}

func newMeshNet(t *testing.T) *meshNet {
	return &meshNet{t: t, medium: sim.NewMedium(), now: time.Unix(0, 0)}
}

func (n *meshNet) addDevice(addr protocol.Address, opts Options) *Device {
	n.t.Helper()
	radio := n.medium.Attach(addr)
	d := NewDevice(link.NewAdapter(radio, link.Options{}), opts)
	if err := d.Begin(); err != nil { n.t.Fatalf("begin %s: %v", addr, err) }
	n.tickers = append(n.tickers, d.Tick)
	return d
}

func (n *meshNet) addRouter(addr protocol.Address, opts Options, ropts RouterOptions) *Router {
	n.t.Helper()
	radio := n.medium.Attach(addr)
	r := NewRouter(link.NewAdapter(radio, link.Options{}), opts, ropts)
	if err := r.Begin(); err != nil { n.t.Fatalf("begin %s: %v", addr, err) }
	n.tickers = append(n.tickers, r.Tick)
	return r
}

// rawRadio attaches a bare radio for injecting hand-built frames.
func (n *meshNet) rawRadio(addr protocol.Address) *sim.Radio {
	n.t.Helper()
	radio := n.medium.Attach(addr)
	if err := radio.Init(); err != nil { n.t.Fatalf("init %s: %v", addr, err) }
	return radio
}

// run advances simulated time, ticking every node once per millisecond.
func (n *meshNet) run(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += time.Millisecond {
		n.now = n.now.Add(time.Millisecond)
		for _, tick := range n.tickers {
			tick(n.now)
		}
	}
}

func (n *meshNet) inject(from *sim.Radio, f *protocol.Frame) {
	n.t.Helper()
	b, err := f.MarshalBinary()
	if err != nil { n.t.Fatalf("marshal: %v", err) }
	if err := from.Send(protocol.Broadcast, b); err != nil { n.t.Fatalf("inject: %v", err) }
}
