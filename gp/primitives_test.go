package gp

import (
	"bytes"
	"testing"
)

func TestIso7816Pad(t *testing.T) {
	cases := []struct {
		in   []byte
		want []byte
	}{
		{[]byte{}, []byte{0x80, 0, 0, 0, 0, 0, 0, 0}},
		{[]byte{0x01, 0x02}, []byte{0x01, 0x02, 0x80, 0, 0, 0, 0, 0}},
		{bytes.Repeat([]byte{0xAA}, 8), append(bytes.Repeat([]byte{0xAA}, 8), 0x80, 0, 0, 0, 0, 0, 0, 0)},
	}
	for _, c := range cases {
		got := iso7816Pad(c.in, 8)
		if !bytes.Equal(got, c.want) {
			t.Errorf("iso7816Pad(%X) = %X, want %X", c.in, got, c.want)
		}
	}
}

func TestExpandTo3DESKey(t *testing.T) {
	k16 := make([]byte, 16)
	for i := range k16 {
		k16[i] = byte(i)
	}
	got := expandTo3DESKey(k16)
	if len(got) != 24 {
		t.Fatalf("expected 24 bytes, got %d", len(got))
	}
	if !bytes.Equal(got[0:16], k16) || !bytes.Equal(got[16:24], k16[0:8]) {
		t.Errorf("expandTo3DESKey did not produce K1||K2||K1: %X", got)
	}
}

func TestExpandTo3DESKeyPanicsOnBadLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for invalid key length")
		}
	}()
	expandTo3DESKey(make([]byte, 10))
}

func TestTripleDESECBMultiBlock(t *testing.T) {
	key24 := expandTo3DESKey(DefaultTestKey[:])
	data := make([]byte, 16)
	out := tripleDESECBEncrypt(key24, data)
	if len(out) != 16 {
		t.Fatalf("expected 16-byte ciphertext, got %d", len(out))
	}
	// ECB: encrypting the same two zero blocks yields identical halves.
	if !bytes.Equal(out[0:8], out[8:16]) {
		t.Errorf("ECB of identical plaintext blocks should match: %X", out)
	}
}

func TestTLVFindAndEncode(t *testing.T) {
	buf := tlvEncode(0x6F, tlvEncode(0x84, []byte{0xA0, 0x00, 0x00, 0x01}))
	off, l, ok := tlvFind(buf, 0, 0x6F)
	if !ok {
		t.Fatal("expected to find tag 0x6F")
	}
	inner := buf[off : off+l]
	voff, vl, ok := tlvFind(inner, 0, 0x84)
	if !ok {
		t.Fatal("expected to find tag 0x84 within inner TLV")
	}
	if !bytes.Equal(inner[voff:voff+vl], []byte{0xA0, 0x00, 0x00, 0x01}) {
		t.Errorf("unexpected value: %X", inner[voff:voff+vl])
	}
}

func TestTLVFindNotFound(t *testing.T) {
	buf := tlvEncode(0x84, []byte{0x01})
	if _, _, ok := tlvFind(buf, 0, 0x6F); ok {
		t.Error("expected tag not found")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{1, 2, 3}
	c := []byte{1, 2, 4}
	if !constantTimeEqual(a, b) {
		t.Error("expected equal")
	}
	if constantTimeEqual(a, c) {
		t.Error("expected not equal")
	}
	if constantTimeEqual(a, []byte{1, 2}) {
		t.Error("expected length mismatch to be unequal")
	}
}
