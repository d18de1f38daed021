package wallet

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tolelom/tolwallet/core"
	"github.com/tolelom/tolwallet/crypto"
)

// DirKeychain implements core.Keychain over a directory of keystore files
// produced by SaveKey. Every file in the directory is decrypted with the
// same password at load time; this matches the single-password wallet
// model implied by spec.md §1's "enumerated private keys".
type DirKeychain struct {
	keys []core.KeyInfo
}

// LoadDirKeychain reads and decrypts every keystore file in dir, sorted by
// filename so Enumerate's order is stable across runs.
func LoadDirKeychain(dir, password string) (*DirKeychain, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir %q: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	kc := &DirKeychain{}
	for _, name := range names {
		priv, err := LoadKey(filepath.Join(dir, name), password)
		if err != nil {
			return nil, fmt.Errorf("load keystore %q: %w", name, err)
		}
		kc.keys = append(kc.keys, core.KeyInfo{
			Fingerprint: priv.Public().Fingerprint(),
			PrivateKey:  priv,
		})
	}
	return kc, nil
}

// Enumerate implements core.Keychain.
func (kc *DirKeychain) Enumerate() ([]core.KeyInfo, error) {
	out := make([]core.KeyInfo, len(kc.keys))
	copy(out, kc.keys)
	return out, nil
}

// Select implements core.Keychain.
func (kc *DirKeychain) Select(fingerprint *uint32) (core.KeyInfo, error) {
	if len(kc.keys) == 0 {
		return core.KeyInfo{}, core.ErrNoKey
	}
	if fingerprint == nil {
		return kc.keys[0], nil
	}
	for _, k := range kc.keys {
		if k.Fingerprint == *fingerprint {
			return k, nil
		}
	}
	return core.KeyInfo{}, core.ErrNoKey
}

// AddKey generates a fresh ed25519 key pair, persists it to dir encrypted
// with password, and adds it to the in-memory enumeration.
func (kc *DirKeychain) AddKey(dir, password string) (core.KeyInfo, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return core.KeyInfo{}, err
	}
	fp := priv.Public().Fingerprint()
	path := filepath.Join(dir, fmt.Sprintf("%08x.json", fp))
	if err := SaveKey(path, password, priv); err != nil {
		return core.KeyInfo{}, err
	}
	info := core.KeyInfo{Fingerprint: fp, PrivateKey: priv}
	kc.keys = append(kc.keys, info)
	return info, nil
}
