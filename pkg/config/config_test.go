package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsMatchEngineTimings(t *testing.T) {
	cfg := Default()
	opts := cfg.MeshOptions()
	if opts.MaxSeen != 10 { t.Fatalf("max seen = %d", opts.MaxSeen) }
	if opts.SeenTTL != 2*time.Second { t.Fatalf("seen ttl = %v", opts.SeenTTL) }
	if opts.ConfirmTimeout != time.Second { t.Fatalf("confirm timeout = %v", opts.ConfirmTimeout) }
	if opts.InitialHopCount != 3 { t.Fatalf("initial hops = %d", opts.InitialHopCount) }
	if opts.LinkMaxTries != 2 { t.Fatalf("link tries = %d", opts.LinkMaxTries) }

	ropts := cfg.RouterOptions()
	if ropts.UpdateInterval != 100*time.Millisecond { t.Fatalf("update interval = %v", ropts.UpdateInterval) }
	if ropts.TTL != 10*time.Second { t.Fatalf("routing ttl = %v", ropts.TTL) }
	if ropts.MaxEntries != 10 { t.Fatalf("max entries = %d", ropts.MaxEntries) }
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatalf("expected error for explicit missing file, got config %+v", cfg)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quackmesh.yaml")
	body := []byte("app_name: testmesh\nmesh:\n  max_seen: 20\nrouting:\n  ttl_ms: 5000\nlog:\n  level: debug\n")
	if err := os.WriteFile(path, body, 0o644); err != nil { t.Fatalf("write: %v", err) }

	cfg, err := Load(path)
	if err != nil { t.Fatalf("load: %v", err) }
	if cfg.AppName != "testmesh" { t.Fatalf("app name = %q", cfg.AppName) }
	if cfg.Mesh.MaxSeen != 20 { t.Fatalf("max seen = %d", cfg.Mesh.MaxSeen) }
	if cfg.Routing.TTLMS != 5000 { t.Fatalf("routing ttl = %d", cfg.Routing.TTLMS) }
	// Unset keys keep their defaults.
	if cfg.Mesh.ConfirmTimeoutMS != 1000 { t.Fatalf("confirm timeout = %d", cfg.Mesh.ConfirmTimeoutMS) }
	if cfg.Link.MaxTries != 2 { t.Fatalf("link tries = %d", cfg.Link.MaxTries) }
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quackmesh.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid log level")
	}

	if err := os.WriteFile(path, []byte("link:\n  max_tries: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for zero link tries")
	}
}
