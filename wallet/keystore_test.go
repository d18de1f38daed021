package wallet

import (
	"path/filepath"
	"testing"

	"github.com/tolelom/tolwallet/crypto"
)

func TestSaveKeyLoadKeyRoundTrip(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := SaveKey(path, "correct horse", priv); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}

	loaded, err := LoadKey(path, "correct horse")
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if loaded.Public().Hex() != priv.Public().Hex() {
		t.Error("decrypted key does not match the original")
	}
}

func TestLoadKeyWrongPasswordFails(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := SaveKey(path, "correct horse", priv); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	if _, err := LoadKey(path, "wrong password"); err == nil {
		t.Fatal("expected an error decrypting with the wrong password")
	}
}

func TestLoadKeyMissingFile(t *testing.T) {
	if _, err := LoadKey(filepath.Join(t.TempDir(), "missing.json"), "x"); err == nil {
		t.Fatal("expected an error for a missing keystore file")
	}
}
