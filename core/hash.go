// Package core defines the data model shared by the wallet sync engine:
// header hashes, block records, header blocks, coin identifiers, and the
// external collaborator interfaces (state manager, keychain, peer
// discovery) that the engine talks to but does not implement.
package core

import (
	"encoding/hex"
	"encoding/json"
	"errors"
)

// HashSize is the length in bytes of a HeaderHash or CoinID.
const HashSize = 32

// HeaderHash is the 32-byte content identifier of a block header.
type HeaderHash [HashSize]byte

// ErrNotFound is returned by external collaborators when a requested object
// does not exist in their store.
var ErrNotFound = errors.New("not found")

// ErrNoKey is returned by Keychain.Select when no key matches the requested
// fingerprint, or no keys are enumerated at all.
var ErrNoKey = errors.New("no matching key")

// IsZero reports whether h is the all-zero hash, used as the "no value"
// sentinel for optional HeaderHash fields (e.g. BlockRecord.NewChallengeHash).
func (h HeaderHash) IsZero() bool {
	return h == HeaderHash{}
}

// Hex returns the lowercase hex encoding of h.
func (h HeaderHash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements fmt.Stringer.
func (h HeaderHash) String() string {
	return h.Hex()
}

// MarshalJSON encodes h as a hex string, matching the wire representation
// used by network/protocol.go's message payloads.
func (h HeaderHash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Hex())
}

// UnmarshalJSON decodes a hex string into h.
func (h *HeaderHash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := HeaderHashFromHex(s)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

// HeaderHashFromHex decodes a hex string into a HeaderHash.
func HeaderHashFromHex(s string) (HeaderHash, error) {
	var h HeaderHash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != HashSize {
		return h, errors.New("core: header hash must be 32 bytes")
	}
	copy(h[:], b)
	return h, nil
}

// CoinID is a 32-byte coin identifier (analogous to a UTXO outpoint hash).
type CoinID [HashSize]byte

// Hex returns the lowercase hex encoding of id.
func (id CoinID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String implements fmt.Stringer.
func (id CoinID) String() string {
	return id.Hex()
}

// MarshalJSON encodes id as a hex string.
func (id CoinID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Hex())
}

// UnmarshalJSON decodes a hex string into id.
func (id *CoinID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != HashSize {
		return errors.New("core: coin id must be 32 bytes")
	}
	copy(id[:], b)
	return nil
}

// CoinIDFromHex decodes a hex string into a CoinID.
func CoinIDFromHex(s string) (CoinID, error) {
	var id CoinID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != HashSize {
		return id, errors.New("core: coin id must be 32 bytes")
	}
	copy(id[:], b)
	return id, nil
}
