package gp

import (
	"bytes"
	"crypto/des"
	"fmt"
)

// AID is a GlobalPlatform Application Identifier: 5-16 bytes, compared by
// content. Immutable once constructed.
type AID struct {
	b []byte
}

// NewAID validates length and returns an AID copying the given bytes.
func NewAID(b []byte) (AID, error) {
	if len(b) < 5 || len(b) > 16 {
		return AID{}, newErr(KindInvalidArgument, fmt.Sprintf("AID must be 5-16 bytes, got %d", len(b)))
	}
	out := make([]byte, len(b))
	copy(out, b)
	return AID{b: out}, nil
}

// Bytes returns a defensive copy of the AID's content.
func (a AID) Bytes() []byte {
	out := make([]byte, len(a.b))
	copy(out, a.b)
	return out
}

func (a AID) String() string {
	return fmt.Sprintf("%X", a.b)
}

// Equal compares two AIDs by content.
func (a AID) Equal(other AID) bool {
	return bytes.Equal(a.b, other.b)
}

// KeyType identifies one key slot in a KeySet.
type KeyType int

const (
	KeyTypeENC KeyType = iota
	KeyTypeMAC
	KeyTypeKEK
	KeyTypeRMAC
)

func (k KeyType) String() string {
	switch k {
	case KeyTypeENC:
		return "ENC"
	case KeyTypeMAC:
		return "MAC"
	case KeyTypeKEK:
		return "KEK"
	case KeyTypeRMAC:
		return "RMAC"
	default:
		return "?"
	}
}

// Diversification names the key-diversification scheme a static KeySet
// should apply once the card's key-diversification data is known. The
// actual math lives in diversify.go; this package only needs the hook.
type Diversification int

const (
	DiversifyNone Diversification = iota
	DiversifyEMV
	DiversifyVISA2
	DiversifyKDF3
)

// KeySet holds the ENC/MAC/KEK (and, on a session key set, RMAC) key
// material for one Security Domain, plus its version/id and diversification
// configuration. A static KeySet is read-only once shared across setups
// except for the single allowed in-place Diversify call.
type KeySet struct {
	Version         byte // 0 or 255 mean "any/default"
	ID              byte // 0-127
	Diversification Diversification

	keys    map[KeyType][16]byte
	present map[KeyType]bool
	derived bool
}

// NewKeySet builds a static KeySet from raw 16-byte ENC/MAC/KEK keys.
func NewKeySet(version, id byte, enc, mac, kek [16]byte, div Diversification) *KeySet {
	ks := &KeySet{
		Version:         version,
		ID:              id,
		Diversification: div,
		keys:            make(map[KeyType][16]byte, 4),
		present:         make(map[KeyType]bool, 4),
	}
	ks.set(KeyTypeENC, enc)
	ks.set(KeyTypeMAC, mac)
	ks.set(KeyTypeKEK, kek)
	return ks
}

// DefaultTestKeySet builds the canonical all-default-key static KeySet used
// in spec.md's worked examples (ENC=MAC=KEK=DefaultTestKey).
func DefaultTestKeySet() *KeySet {
	return NewKeySet(0, 0, DefaultTestKey, DefaultTestKey, DefaultTestKey, DiversifyNone)
}

func (ks *KeySet) set(t KeyType, key [16]byte) {
	ks.keys[t] = key
	ks.present[t] = true
}

// Get returns the raw 16-byte key for t.
func (ks *KeySet) Get(t KeyType) [16]byte {
	k, ok := ks.keys[t]
	if !ok {
		panicInternal("key set has no %s key", t)
	}
	return k
}

// Has reports whether a key of type t is present.
func (ks *KeySet) Has(t KeyType) bool {
	return ks.present[t]
}

// Get3DES returns the 24-byte K1||K2||K1 expansion of the key for t.
func (ks *KeySet) Get3DES(t KeyType) []byte {
	k := ks.Get(t)
	return expandTo3DESKey(k[:])
}

// GetDES returns the 8-byte K1 of the key for t, for single-DES operations.
func (ks *KeySet) GetDES(t KeyType) []byte {
	k := ks.Get(t)
	return append([]byte{}, k[:8]...)
}

// NeedsDiversity reports whether this key set still needs Diversify applied:
// a diversification scheme was requested, it hasn't run yet, and the
// version is the "any/default" sentinel (0 or 255).
func (ks *KeySet) NeedsDiversity() bool {
	if ks.derived || ks.Diversification == DiversifyNone {
		return false
	}
	return ks.Version == 0 || ks.Version == 255
}

// Diversify mutates the key set in place using the configured scheme and
// the card's 28-byte INITIALIZE UPDATE response. It is a no-op the second
// time it is called (derived is sticky), matching spec.md §4.2 "applied at
// most once".
func (ks *KeySet) Diversify(cardResponse []byte) error {
	if ks.derived {
		return nil
	}
	if len(cardResponse) != 28 {
		return newErr(KindInvalidArgument, fmt.Sprintf("diversification input must be 28 bytes, got %d", len(cardResponse)))
	}
	diversData := cardResponse[0:10]

	var fn func(staticKey [16]byte, diversData []byte) [16]byte
	switch ks.Diversification {
	case DiversifyNone:
		return nil
	case DiversifyEMV:
		fn = diversifyEMVOptionA
	case DiversifyVISA2:
		fn = diversifyVISA2
	case DiversifyKDF3:
		fn = diversifyKDF3
	default:
		panicInternal("unknown diversification scheme %d", ks.Diversification)
	}

	for _, t := range []KeyType{KeyTypeENC, KeyTypeMAC, KeyTypeKEK} {
		if !ks.Has(t) {
			continue
		}
		ks.set(t, fn(ks.Get(t), diversData))
	}
	ks.derived = true
	return nil
}

// newSessionKeySet builds the (derived, always fully-present) key set a
// SecureChannelWrapper owns once session keys are computed.
func newSessionKeySet() *KeySet {
	return &KeySet{
		keys:    make(map[KeyType][16]byte, 4),
		present: make(map[KeyType]bool, 4),
		derived: true,
	}
}

// des3ECBBlockEncrypt 3DES-ECB-encrypts a single 8-byte block under a
// 16-byte key. The diversification schemes use tripleDESECBEncrypt instead.
func des3ECBBlockEncrypt(key16 [16]byte, block8 []byte) []byte {
	key24 := expandTo3DESKey(key16[:])
	c, err := des.NewTripleDESCipher(key24)
	if err != nil {
		panicInternal("3DES key setup: %v", err)
	}
	out := make([]byte, 8)
	c.Encrypt(out, block8)
	return out
}
