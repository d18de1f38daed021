// Command walletnode starts a TOL Chain light wallet sync engine.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/tolelom/tolwallet/config"
	"github.com/tolelom/tolwallet/crypto/certgen"
	"github.com/tolelom/tolwallet/events"
	"github.com/tolelom/tolwallet/network"
	"github.com/tolelom/tolwallet/rpc"
	"github.com/tolelom/tolwallet/statemanager"
	"github.com/tolelom/tolwallet/storage"
	"github.com/tolelom/tolwallet/wallet"
	"github.com/tolelom/tolwallet/walletsync"

	"github.com/tolelom/tolwallet/core"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	genKey := flag.Bool("genkey", false, "generate a new wallet key in the keystore dir and exit")
	genCerts := flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit (requires node_id from config)")
	fingerprint := flag.Uint("fingerprint", 0, "select a specific wallet key by fingerprint (0 = first enumerated key)")
	newWallet := flag.Bool("new-wallet", false, "this is a freshly created wallet, no backup to reconcile")
	backupFile := flag.String("backup-file", "", "path to a backup file to import on start")
	backupStartHeight := flag.Uint("backup-start-height", 0, "start_height recorded in the backup file named by -backup-file (parsing the backup file itself is out of scope; pass its recorded value here)")
	skipBackupImport := flag.Bool("skip-backup-import", false, "skip backup import for an existing wallet")
	flag.Parse()

	// Read the keystore password from the environment (not CLI flags — they leak via ps).
	password := os.Getenv("WALLET_PASSWORD")
	if password == "" {
		log.Println("WARNING: WALLET_PASSWORD not set — keystore will use an empty password")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *genKey {
		if err := os.MkdirAll(cfg.KeystorePath, 0755); err != nil {
			log.Fatalf("mkdir keystore dir: %v", err)
		}
		kc, err := wallet.LoadDirKeychain(cfg.KeystorePath, password)
		if err != nil {
			log.Fatalf("load keystore dir: %v", err)
		}
		info, err := kc.AddKey(cfg.KeystorePath, password)
		if err != nil {
			log.Fatalf("generate key: %v", err)
		}
		fmt.Printf("Generated key. Fingerprint: %08x\n", info.Fingerprint)
		fmt.Printf("Saved in: %s\n", cfg.KeystorePath)
		return
	}

	if *genCerts != "" {
		if err := certgen.GenerateAll(*genCerts, cfg.NodeID, nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s for node %q\n", *genCerts, cfg.NodeID)
		return
	}

	if err := os.MkdirAll(cfg.KeystorePath, 0755); err != nil {
		log.Fatalf("mkdir keystore dir: %v", err)
	}
	keychain, err := wallet.LoadDirKeychain(cfg.KeystorePath, password)
	if err != nil {
		log.Fatalf("load keystore: %v", err)
	}

	if err := os.MkdirAll(cfg.DatabasePath, 0755); err != nil {
		log.Fatalf("mkdir database dir: %v", err)
	}

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		log.Fatalf("tls: %v", err)
	}
	if tlsCfg != nil {
		log.Println("mTLS enabled for P2P")
	}

	node := network.NewNode(cfg.NodeID, cfg.P2PListenAddr, tlsCfg)
	if err := node.Start(); err != nil {
		log.Fatalf("p2p start: %v", err)
	}
	// node.Stop() is called by engine.Close() below, not deferred here.
	log.Printf("P2P listening on %s", cfg.P2PListenAddr)

	emitter := events.NewEmitter()

	var introducer core.IntroducerPeers
	if cfg.IntroducerPeer != nil {
		introducer = &walletsync.NetworkIntroducer{
			Addr:            net.JoinHostPort(cfg.IntroducerPeer.Host, strconv.Itoa(cfg.IntroducerPeer.Port)),
			TLS:             tlsCfg,
			RefreshInterval: time.Duration(cfg.PeerConnectInterval) * time.Second,
		}
	}

	engine := &walletsync.Engine{
		Config:     cfg,
		Keychain:   keychain,
		Network:    node,
		Introducer: introducer,
		Emitter:    emitter,
		OpenStateManager: func(fingerprint uint32) (core.StateManager, error) {
			return openStateManager(cfg.DatabasePath, fingerprint)
		},
	}

	var fpPtr *uint32
	if *fingerprint != 0 {
		fp := uint32(*fingerprint)
		fpPtr = &fp
	}
	var backupFilePtr *string
	if *backupFile != "" {
		backupFilePtr = backupFile
	}

	if err := engine.Start(fpPtr, *newWallet, backupFilePtr, *skipBackupImport, uint32(*backupStartHeight)); err != nil {
		if err == walletsync.ErrNeedsBackupDecision {
			log.Fatal("this wallet's backup state is undetermined: pass -new-wallet, -skip-backup-import, or -backup-file")
		}
		log.Fatalf("engine start: %v", err)
	}
	log.Println("Wallet sync engine started")

	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(engine.StateManager(), node)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		log.Fatalf("rpc start: %v", err)
	}
	defer rpcServer.Stop()
	log.Printf("RPC listening on %s", rpcAddr)
	if cfg.RPCAuthToken != "" {
		log.Println("RPC Bearer token authentication enabled")
	}

	if cfg.FullNodePeer != nil {
		log.Printf("Pinned full node: %s:%d", cfg.FullNodePeer.Host, cfg.FullNodePeer.Port)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	engine.Close()
	engine.AwaitClosed()
	log.Println("Shutdown complete.")
}

// openStateManager opens the per-fingerprint LevelDB database and wraps it
// in a statemanager.StateManager (spec.md §4.6: "open the per-key
// state-manager database"). isNewWallet is inferred from whether the
// fingerprint's directory previously existed.
func openStateManager(databasePath string, fingerprint uint32) (core.StateManager, error) {
	dir := filepath.Join(databasePath, fmt.Sprintf("%08x", fingerprint))
	_, statErr := os.Stat(dir)
	isNew := os.IsNotExist(statErr)

	db, err := storage.NewLevelDB(dir)
	if err != nil {
		return nil, fmt.Errorf("open wallet db %q: %w", dir, err)
	}
	return statemanager.Open(db, isNew)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
