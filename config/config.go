package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`   // CA certificate PEM path
	NodeCert string `json:"node_cert"` // node certificate PEM path
	NodeKey  string `json:"node_key"`  // node private key PEM path
}

// IntroducerPeer identifies the introducer used to discover full-node peers
// (spec.md §4.6, §6 "introducer_peer").
type IntroducerPeer struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// FullNodePeer pins the single full node the wallet is allowed to sync
// against (spec.md §4.6 "only one full node" policy). Nil means the wallet
// must discover one via IntroducerPeer instead.
type FullNodePeer struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Config holds all wallet-node configuration (spec.md §6).
type Config struct {
	NodeID        string `json:"node_id"`
	P2PListenAddr string `json:"p2p_listen_addr"`

	DatabasePath        string `json:"database_path"`
	StartingHeight      uint32 `json:"starting_height"`
	StartHeightBuffer   uint32 `json:"start_height_buffer"`
	NumSyncBatches      int    `json:"num_sync_batches"`
	TargetPeerCount     int    `json:"target_peer_count"`
	WalletPeersPath     string `json:"wallet_peers_path"`
	PeerConnectInterval int    `json:"peer_connect_interval"` // seconds

	IntroducerPeer *IntroducerPeer `json:"introducer_peer,omitempty"`
	FullNodePeer   *FullNodePeer   `json:"full_node_peer,omitempty"`

	KeystorePath string     `json:"keystore_path"`
	RPCPort      int        `json:"rpc_port"`
	RPCAuthToken string     `json:"rpc_auth_token,omitempty"` // empty → no auth
	TLS          *TLSConfig `json:"tls,omitempty"`            // nil → plain TCP
}

// DefaultConfig returns a single-wallet development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:              "wallet",
		P2PListenAddr:       "127.0.0.1:0",
		DatabasePath:        "./data/wallet.db",
		StartingHeight:      0,
		StartHeightBuffer:   1000,
		NumSyncBatches:      5,
		TargetPeerCount:     3,
		WalletPeersPath:     "./data/peers.json",
		PeerConnectInterval: 30,
		KeystorePath:        "./data/keystore",
		RPCPort:             9256,
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty")
	}
	if c.KeystorePath == "" {
		return fmt.Errorf("keystore_path must not be empty")
	}
	if c.NumSyncBatches <= 0 {
		return fmt.Errorf("num_sync_batches must be positive, got %d", c.NumSyncBatches)
	}
	if c.TargetPeerCount <= 0 {
		return fmt.Errorf("target_peer_count must be positive, got %d", c.TargetPeerCount)
	}
	if c.PeerConnectInterval <= 0 {
		return fmt.Errorf("peer_connect_interval must be positive, got %d", c.PeerConnectInterval)
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.IntroducerPeer == nil && c.FullNodePeer == nil {
		return fmt.Errorf("either introducer_peer or full_node_peer must be set")
	}
	if c.IntroducerPeer != nil {
		if c.IntroducerPeer.Host == "" {
			return fmt.Errorf("introducer_peer.host must not be empty")
		}
		if c.IntroducerPeer.Port <= 0 || c.IntroducerPeer.Port > 65535 {
			return fmt.Errorf("introducer_peer.port must be 1-65535, got %d", c.IntroducerPeer.Port)
		}
	}
	if c.FullNodePeer != nil {
		if c.FullNodePeer.Host == "" {
			return fmt.Errorf("full_node_peer.host must not be empty")
		}
		if c.FullNodePeer.Port <= 0 || c.FullNodePeer.Port > 65535 {
			return fmt.Errorf("full_node_peer.port must be 1-65535, got %d", c.FullNodePeer.Port)
		}
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
