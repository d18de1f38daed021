package wallet

import (
	"testing"

	"github.com/tolelom/tolwallet/core"
)

func TestLoadDirKeychainEmptyDirHasNoKeys(t *testing.T) {
	dir := t.TempDir()
	kc, err := LoadDirKeychain(dir, "pw")
	if err != nil {
		t.Fatalf("LoadDirKeychain: %v", err)
	}
	keys, err := kc.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no keys in an empty dir, got %d", len(keys))
	}
	if _, err := kc.Select(nil); err != core.ErrNoKey {
		t.Errorf("Select on empty keychain: got %v want core.ErrNoKey", err)
	}
}

func TestAddKeyPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	kc, err := LoadDirKeychain(dir, "pw")
	if err != nil {
		t.Fatal(err)
	}
	info, err := kc.AddKey(dir, "pw")
	if err != nil {
		t.Fatalf("AddKey: %v", err)
	}

	reloaded, err := LoadDirKeychain(dir, "pw")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	keys, err := reloaded.Enumerate()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected 1 key after reload, got %d", len(keys))
	}
	if keys[0].Fingerprint != info.Fingerprint {
		t.Errorf("fingerprint mismatch: got %08x want %08x", keys[0].Fingerprint, info.Fingerprint)
	}
}

func TestSelectByFingerprint(t *testing.T) {
	dir := t.TempDir()
	kc, err := LoadDirKeychain(dir, "pw")
	if err != nil {
		t.Fatal(err)
	}
	a, err := kc.AddKey(dir, "pw")
	if err != nil {
		t.Fatal(err)
	}
	b, err := kc.AddKey(dir, "pw")
	if err != nil {
		t.Fatal(err)
	}

	got, err := kc.Select(&b.Fingerprint)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.Fingerprint != b.Fingerprint {
		t.Errorf("Select(%08x) returned fingerprint %08x", b.Fingerprint, got.Fingerprint)
	}

	missing := a.Fingerprint ^ b.Fingerprint ^ 0xFFFFFFFF
	if _, err := kc.Select(&missing); err != core.ErrNoKey {
		t.Errorf("Select(missing): got %v want core.ErrNoKey", err)
	}

	first, err := kc.Select(nil)
	if err != nil {
		t.Fatal(err)
	}
	if first.Fingerprint != a.Fingerprint {
		t.Errorf("Select(nil) should return the first enumerated key")
	}
}
