package gp

import (
	"crypto/rand"
	"log/slog"
)

// handshakePrefix is everything session setup and Probe share: INITIALIZE
// UPDATE, negotiation, diversification/version check, session-key
// derivation, and card-cryptogram verification (spec.md §4.3 steps 1-10).
type handshakePrefix struct {
	session        *KeySet
	variant        Variant
	level          SecurityLevel
	hostChallenge  []byte
	cardChallenge  []byte
	hostCryptogram []byte
}

func runHandshakePrefix(t Transport, static *KeySet, variant Variant, level SecurityLevel) (*handshakePrefix, error) {
	hostChallenge := make([]byte, 8)
	if _, err := rand.Read(hostChallenge); err != nil {
		return nil, wrapErr(KindTransport, "reading host challenge entropy", err)
	}

	le := byte(0x00)
	resp, err := Transmit(t, Command{
		CLA: ClaGP, INS: InsInitializeUpdate,
		P1: static.Version, P2: static.ID,
		Data: hostChallenge, Le: &le,
	})
	if err != nil {
		return nil, err
	}
	switch resp.SW() {
	case swSecurityLocked1, swSecurityLocked2:
		return nil, &Error{Kind: KindLocked, SW: resp.SW(), Msg: "card reports locked security status during INITIALIZE UPDATE"}
	case swOK:
	default:
		return nil, protoErr(resp.SW())
	}
	if len(resp.Data) != 28 {
		return nil, newErr(KindMalformedResponse, "INITIALIZE UPDATE response must be 28 bytes")
	}

	reportedKeyVersion := resp.Data[10]
	reportedFamily, err := familyFromByte(resp.Data[11])
	if err != nil {
		return nil, err
	}
	cardChallenge := resp.Data[12:20]
	cardCryptogram := resp.Data[20:28]

	negotiated, err := negotiate(variant, reportedFamily)
	if err != nil {
		return nil, err
	}
	vflags := variantFlags(negotiated)

	level = level.normalize(vflags.Family)

	if static.NeedsDiversity() {
		if err := static.Diversify(resp.Data[0:28]); err != nil {
			return nil, err
		}
	}
	if static.Version != 0 && static.Version != reportedKeyVersion {
		return nil, newErr(KindKeyMismatch, "static key version does not match card-reported key version")
	}

	session := newSessionKeySet()
	switch vflags.Family {
	case FamilySCP01:
		deriveSCP01SessionKeys(session, static, hostChallenge, cardChallenge)
	case FamilySCP02:
		deriveSCP02SessionKeys(session, static, cardChallenge)
	}

	zeroIV := make([]byte, 8)
	expectedCardCryptogram := macFull3DES(session.Get3DES(KeyTypeENC), zeroIV,
		concatBytes(hostChallenge, cardChallenge))
	if !constantTimeEqual(expectedCardCryptogram, cardCryptogram) {
		return nil, newErr(KindAuthenticationFailed, "card cryptogram verification failed")
	}
	slog.Debug("gp: card cryptogram verified", "variant", negotiated)

	hostCryptogram := macFull3DES(session.Get3DES(KeyTypeENC), zeroIV,
		concatBytes(cardChallenge, hostChallenge))

	return &handshakePrefix{
		session: session, variant: negotiated, level: level,
		hostChallenge: hostChallenge, cardChallenge: cardChallenge, hostCryptogram: hostCryptogram,
	}, nil
}

// OpenSession runs the full mutual-authentication handshake (spec.md §4.3)
// over t using static as the card's static key set, requesting variant
// (which may be VariantAny to autonegotiate) and level. On success it
// returns a ready-to-use SecureChannelWrapper.
func OpenSession(t Transport, static *KeySet, variant Variant, level SecurityLevel) (*SecureChannelWrapper, error) {
	hs, err := runHandshakePrefix(t, static, variant, level)
	if err != nil {
		return nil, err
	}

	w := newWrapper(hs.session, hs.variant, SecurityLevel(SecMAC))

	authResp, err := Transmit(t, w.mustWrapExternalAuthenticate(byte(hs.level), hs.hostCryptogram))
	if err != nil {
		return nil, err
	}
	if !authResp.IsOK() {
		return nil, newErr(KindAuthenticationFailed, "EXTERNAL AUTHENTICATE rejected")
	}

	w.level = hs.level
	if hs.level.has(SecRMAC) {
		w.setResponseICV()
	}
	slog.Debug("gp: secure channel established", "variant", hs.variant, "level", hs.level)
	return w, nil
}

// Probe runs INITIALIZE UPDATE and verifies the card cryptogram without
// sending EXTERNAL AUTHENTICATE, so it never changes the card's secure
// channel state. It is a safe way to check key material and negotiate the
// SCP variant before committing to a full session.
func Probe(t Transport, static *KeySet, variant Variant) (Variant, error) {
	hs, err := runHandshakePrefix(t, static, variant, SecurityLevel(SecMAC))
	if err != nil {
		return VariantAny, err
	}
	return hs.variant, nil
}

// mustWrapExternalAuthenticate builds and MAC-wraps the EXTERNAL
// AUTHENTICATE command; it reuses Wrap at the MAC-only level the wrapper
// was instantiated with (spec.md §4.3 step 12-13).
func (w *SecureChannelWrapper) mustWrapExternalAuthenticate(level byte, hostCryptogram []byte) Command {
	cmd, err := w.Wrap(Command{
		CLA: ClaGP, INS: InsExternalAuthenticate,
		P1: level, P2: 0x00, Data: hostCryptogram,
	})
	if err != nil {
		panicInternal("EXTERNAL AUTHENTICATE wrap: %v", err)
	}
	return cmd
}

func familyFromByte(b byte) (Family, error) {
	switch b {
	case 0x01:
		return FamilySCP01, nil
	case 0x02:
		return FamilySCP02, nil
	default:
		return 0, newErr(KindMalformedResponse, "unrecognized reported SCP protocol byte")
	}
}

func concatBytes(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// deriveSCP01SessionKeys implements spec.md §4.3 step 9 (SCP01 branch).
func deriveSCP01SessionKeys(session *KeySet, static *KeySet, hostChallenge, cardChallenge []byte) {
	derivationData := concatBytes(
		cardChallenge[4:8], hostChallenge[0:4],
		cardChallenge[0:4], hostChallenge[4:8],
	)
	for _, t := range []KeyType{KeyTypeENC, KeyTypeMAC, KeyTypeKEK} {
		key := tripleDESECBEncrypt(static.Get3DES(t), derivationData)
		var k [16]byte
		copy(k[:], key)
		session.set(t, k)
	}
}

// SCP02 derivation constants (spec.md §4.3 step 9, SCP02 branch).
const (
	scp02ConstMAC  = 0x0101
	scp02ConstRMAC = 0x0102
	scp02ConstENC  = 0x0182
	scp02ConstKEK  = 0x0181
)

// deriveSCP02SessionKeys implements spec.md §4.3 step 9 (SCP02 branch).
func deriveSCP02SessionKeys(session *KeySet, static *KeySet, cardChallenge []byte) {
	seqCounter := cardChallenge[0:2]
	derive := func(constant uint16, staticType KeyType) [16]byte {
		data := make([]byte, 16)
		data[0] = byte(constant >> 8)
		data[1] = byte(constant)
		copy(data[2:4], seqCounter)
		zeroIV := make([]byte, 8)
		out := tripleDESCBCEncrypt(static.Get3DES(staticType), zeroIV, data)
		var k [16]byte
		copy(k[:], out)
		return k
	}
	session.set(KeyTypeMAC, derive(scp02ConstMAC, KeyTypeMAC))
	session.set(KeyTypeENC, derive(scp02ConstENC, KeyTypeENC))
	session.set(KeyTypeKEK, derive(scp02ConstKEK, KeyTypeKEK))
	session.set(KeyTypeRMAC, derive(scp02ConstRMAC, KeyTypeMAC))
}
