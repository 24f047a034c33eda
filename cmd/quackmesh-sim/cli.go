package main

import "flag"

// Options holds CLI options for the simulator.
type Options struct {
	ConfigPath string
	Nodes      int
	Routers    int
	DurationMS int
	TraceFile  string
}

// ParseFlags parses CLI flags from args and returns Options. Flag values of
// zero/empty defer to the configuration file.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("quackmesh-sim", flag.ExitOnError)
	var opts Options
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
	fs.IntVar(&opts.Nodes, "nodes", 0, "Number of plain mesh devices")
	fs.IntVar(&opts.Routers, "routers", 0, "Number of mesh routers")
	fs.IntVar(&opts.DurationMS, "duration", 0, "Simulated run time in milliseconds")
	fs.StringVar(&opts.TraceFile, "trace", "", "Write a frame trace to this file")
	_ = fs.Parse(args)
	return opts
}
