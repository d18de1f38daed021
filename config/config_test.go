package config

import (
	"path/filepath"
	"testing"
)

func withPeer(cfg *Config) *Config {
	cfg.FullNodePeer = &FullNodePeer{Host: "127.0.0.1", Port: 58444}
	return cfg
}

func TestDefaultConfigNeedsAPeerSource(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation to fail without introducer_peer or full_node_peer")
	}
	if err := withPeer(cfg).Validate(); err != nil {
		t.Fatalf("expected default config with a pinned peer to validate, got: %v", err)
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.DatabasePath = "" }},
		{"empty keystore path", func(c *Config) { c.KeystorePath = "" }},
		{"zero sync batches", func(c *Config) { c.NumSyncBatches = 0 }},
		{"zero target peers", func(c *Config) { c.TargetPeerCount = 0 }},
		{"zero peer connect interval", func(c *Config) { c.PeerConnectInterval = 0 }},
		{"rpc port out of range", func(c *Config) { c.RPCPort = 70000 }},
		{"partial tls config", func(c *Config) { c.TLS = &TLSConfig{CACert: "ca.pem"} }},
	}
	for _, tc := range cases {
		cfg := withPeer(DefaultConfig())
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestValidateRejectsIncompleteIntroducerPeer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IntroducerPeer = &IntroducerPeer{Host: "", Port: 58444}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for introducer_peer with empty host")
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.json"); err == nil {
		t.Fatal("expected error loading a missing config file")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	cfg := withPeer(DefaultConfig())
	cfg.RPCAuthToken = "s3cr3t"

	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.RPCAuthToken != cfg.RPCAuthToken {
		t.Errorf("RPCAuthToken: got %q want %q", loaded.RPCAuthToken, cfg.RPCAuthToken)
	}
	if loaded.FullNodePeer == nil || loaded.FullNodePeer.Host != cfg.FullNodePeer.Host {
		t.Error("full_node_peer did not survive the round trip")
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject a config with no peer source")
	}
}
