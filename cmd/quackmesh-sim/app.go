package main

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/valentinpurrucker/quackmesh/pkg/config"
	"github.com/valentinpurrucker/quackmesh/pkg/driver/sim"
	"github.com/valentinpurrucker/quackmesh/pkg/link"
	"github.com/valentinpurrucker/quackmesh/pkg/mesh"
	"github.com/valentinpurrucker/quackmesh/pkg/observability"
	"github.com/valentinpurrucker/quackmesh/pkg/protocol"
	"github.com/valentinpurrucker/quackmesh/pkg/trace"
)

type node struct {
	addr protocol.Address
	tick func(time.Time)
	dev  *mesh.Device
}

// run is the main entry point after CLI parsing. It builds a simulated
// radio segment, lets every device send confirmed traffic across it, and
// reports delivery counts (plus an optional frame trace) at the end.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}
	applyFlags(cfg, opts)

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("quackmesh-sim started",
		zap.Int("nodes", cfg.Sim.Nodes),
		zap.Int("routers", cfg.Sim.Routers),
		zap.Int("duration_ms", cfg.Sim.DurationMS))

	medium := sim.NewMedium()
	start := time.Now()
	now := start

	recorder := trace.NewRecorder(start)
	if cfg.Sim.TraceFile != "" {
		medium.SetTap(func(src, dst protocol.Address, data []byte) {
			recorder.Observe(now, src, dst, data)
		})
	}

	nodes, err := buildNodes(medium, cfg)
	if err != nil {
		zap.L().Error("failed to start nodes", zap.Error(err))
		return 1
	}

	delivered := 0
	confirmed := 0
	for _, n := range nodes {
		n.dev.SetOnMessage(func(msgType uint8, src protocol.Address, payload []byte) {
			delivered++
			zap.L().Debug("delivered",
				zap.Uint8("type", msgType), zap.String("src", src.String()))
		})
		n.dev.SetOnStatus(func(s protocol.SendStatus) {
			if s == protocol.SendSuccess {
				confirmed++
			}
			zap.L().Debug("status", zap.String("status", s.String()))
		})
	}

	// Workload: each device periodically sends a confirmed frame to the
	// next device in the ring.
	step := time.Duration(cfg.Sim.StepMS) * time.Millisecond
	duration := time.Duration(cfg.Sim.DurationMS) * time.Millisecond
	sendEvery := 500 * time.Millisecond
	lastSend := time.Duration(0)

	for elapsed := time.Duration(0); elapsed < duration; elapsed += step {
		now = now.Add(step)
		if elapsed-lastSend >= sendEvery {
			lastSend = elapsed
			for i, n := range nodes {
				peer := nodes[(i+1)%len(nodes)]
				if peer.addr == n.addr {
					continue
				}
				if err := n.dev.SendConfirmedMessage([]byte{byte(i)}, peer.addr); err != nil {
					zap.L().Debug("send skipped", zap.Error(err))
				}
			}
		}
		for _, n := range nodes {
			n.tick(now)
		}
	}

	zap.L().Info("simulation finished",
		zap.Int("delivered", delivered),
		zap.Int("confirmed", confirmed),
		zap.Int("trace_records", recorder.Len()))

	if cfg.Sim.TraceFile != "" {
		f, err := os.Create(cfg.Sim.TraceFile)
		if err != nil {
			zap.L().Error("trace file", zap.Error(err))
			return 1
		}
		defer f.Close()
		if err := recorder.Dump(f, cfg.Sim.TraceFmt); err != nil {
			zap.L().Error("trace dump", zap.Error(err))
			return 1
		}
		zap.L().Info("trace written", zap.String("file", cfg.Sim.TraceFile))
	}
	return 0
}

func applyFlags(cfg *config.Config, opts Options) {
	if opts.Nodes > 0 {
		cfg.Sim.Nodes = opts.Nodes
	}
	if opts.Routers > 0 {
		cfg.Sim.Routers = opts.Routers
	}
	if opts.DurationMS > 0 {
		cfg.Sim.DurationMS = opts.DurationMS
	}
	if opts.TraceFile != "" {
		cfg.Sim.TraceFile = opts.TraceFile
	}
}

func buildNodes(medium *sim.Medium, cfg *config.Config) ([]node, error) {
	linkOpts := link.Options{
		SendInterval: time.Duration(cfg.Link.SendIntervalMS) * time.Millisecond,
	}
	var nodes []node
	for i := 0; i < cfg.Sim.Nodes; i++ {
		addr := protocol.Address{0xAA, 0, 0, 0, 0, byte(i + 1)}
		radio := medium.Attach(addr)
		dev := mesh.NewDevice(link.NewAdapter(radio, linkOpts), cfg.MeshOptions())
		if err := dev.Begin(); err != nil {
			return nil, err
		}
		nodes = append(nodes, node{addr: addr, tick: dev.Tick, dev: dev})
	}
	for i := 0; i < cfg.Sim.Routers; i++ {
		addr := protocol.Address{0xBB, 0, 0, 0, 0, byte(i + 1)}
		radio := medium.Attach(addr)
		rtr := mesh.NewRouter(link.NewAdapter(radio, linkOpts), cfg.MeshOptions(), cfg.RouterOptions())
		if err := rtr.Begin(); err != nil {
			return nil, err
		}
		nodes = append(nodes, node{addr: addr, tick: rtr.Tick, dev: rtr.Device})
	}
	zap.L().Info("nodes attached", zap.Int("count", len(nodes)))
	return nodes, nil
}
