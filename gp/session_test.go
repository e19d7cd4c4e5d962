package gp

import (
	"bytes"
	"testing"
)

func testSession() *KeySet {
	ks := newSessionKeySet()
	ks.set(KeyTypeENC, DefaultTestKey)
	ks.set(KeyTypeMAC, DefaultTestKey)
	ks.set(KeyTypeKEK, DefaultTestKey)
	ks.set(KeyTypeRMAC, DefaultTestKey)
	return ks
}

// TestWrapSCP02PreMAC implements spec.md's S3 scenario: a DELETE command
// wrapped under SCP02_15 (pre-MAC, ICV-encrypt) as the first command on a
// fresh wrapper with a zero ICV.
func TestWrapSCP02PreMAC(t *testing.T) {
	w := newWrapper(testSession(), VariantSCP02_15, SecurityLevel(SecMAC))
	cmd := Command{CLA: 0x80, INS: InsDelete, P1: 0x00, P2: 0x00,
		Data: []byte{0x4F, 0x08, 0xA0, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00}}

	wrapped, err := w.Wrap(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wrapped.CLA != 0x84 {
		t.Errorf("expected CLA=0x84, got 0x%02X", wrapped.CLA)
	}
	if len(wrapped.Data) != 0x12 {
		t.Errorf("expected Lc=0x12 (18 bytes), got %d", len(wrapped.Data))
	}
	if !bytes.Equal(wrapped.Data[:10], cmd.Data) {
		t.Errorf("expected unmodified command data followed by the MAC, got %X", wrapped.Data[:10])
	}
	// ICV started at zero and ICVEncrypt only applies from the second
	// command onward (spec.md's "first command" gating), so it stays zero
	// going into the MAC computation here; only the MAC step mutates it.
	var zero [8]byte
	if w.cmdICV == zero {
		t.Error("expected cmdICV to be updated to the MAC tag after wrapping")
	}
}

func TestWrapBudgetExceeded(t *testing.T) {
	w := newWrapper(testSession(), VariantSCP02_15, SecurityLevel(SecMAC|SecENC))
	cmd := Command{CLA: 0x80, INS: InsLoad, Data: make([]byte, 250)}
	if _, err := w.Wrap(cmd); err == nil {
		t.Fatal("expected TooLong error")
	} else if gerr, ok := err.(*Error); !ok || gerr.Kind != KindTooLong {
		t.Errorf("expected KindTooLong, got %v", err)
	}
}

func TestWrapPassthroughWithoutMACOrENC(t *testing.T) {
	w := newWrapper(testSession(), VariantSCP02_15, SecurityLevel(0))
	cmd := Command{CLA: 0x80, INS: InsGetStatus, Data: []byte{0x01, 0x02}}
	wrapped, err := w.Wrap(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wrapped.CLA != cmd.CLA || !bytes.Equal(wrapped.Data, cmd.Data) {
		t.Error("expected untouched passthrough when security level is zero")
	}
}

// freshRMACWrapper builds a wrapper that has wrapped exactly one GET STATUS
// command, leaving rmacBuf/respICV in the state Unwrap expects for the
// matching response.
func freshRMACWrapper(t *testing.T) *SecureChannelWrapper {
	t.Helper()
	w := newWrapper(testSession(), VariantSCP02_15, SecurityLevel(SecMAC|SecRMAC))
	if _, err := w.Wrap(Command{CLA: 0x80, INS: InsGetStatus, P1: 0x80, P2: 0x00, Data: []byte{0x4F, 0x00}}); err != nil {
		t.Fatalf("unexpected wrap error: %v", err)
	}
	return w
}

func rmacTagFor(w *SecureChannelWrapper, plain []byte, sw1, sw2 byte) []byte {
	buf := append([]byte{}, w.rmacBuf...)
	buf = append(buf, byte(len(plain)))
	buf = append(buf, plain...)
	buf = append(buf, sw1, sw2)
	return macRetailDES3DES(w.session.Get3DES(KeyTypeRMAC), w.respICV[:], buf)
}

// TestUnwrapRMAC implements spec.md's S6 scenario: a bit flip in the
// response data must invalidate the RMAC, and the untouched response must
// verify and strip the trailing MAC tag cleanly.
func TestUnwrapRMAC(t *testing.T) {
	plain := []byte{0x01, 0x02, 0x03, 0x04}

	reference := freshRMACWrapper(t)
	tag := rmacTagFor(reference, plain, 0x90, 0x00)

	w := freshRMACWrapper(t)
	good := Response{Data: append(append([]byte{}, plain...), tag...), SW1: 0x90, SW2: 0x00}
	unwrapped, err := w.Unwrap(good)
	if err != nil {
		t.Fatalf("unexpected error on valid RMAC: %v", err)
	}
	if !bytes.Equal(unwrapped.Data, plain) {
		t.Errorf("expected stripped plaintext %X, got %X", plain, unwrapped.Data)
	}

	w2 := freshRMACWrapper(t)
	flipped := append([]byte{}, plain...)
	flipped[0] ^= 0x01
	bad := Response{Data: append(append([]byte{}, flipped...), tag...), SW1: 0x90, SW2: 0x00}
	if _, err := w2.Unwrap(bad); err == nil {
		t.Fatal("expected RMacInvalid for a flipped response byte")
	} else if gerr, ok := err.(*Error); !ok || gerr.Kind != KindRMacInvalid {
		t.Errorf("expected KindRMacInvalid, got %v", err)
	}
}
