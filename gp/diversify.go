package gp

// Key-diversification schemes per SPEC_FULL.md §11: each takes the static
// key for one key type and the 10-byte key-diversification data taken from
// the card's INITIALIZE UPDATE response, and returns the card-specific key.
// The EMV Option A pattern (double-DES-encrypt a derivation block, set odd
// parity) is grounded on the Andrei-cloud-go_hsm HSM emulator's
// cryptoutils.derive3DESKey/FixKeyParity; VISA2 and KDF3 reuse the same
// building blocks with different input-block constructions.

// fixKeyParity sets each byte to odd parity, as DES/3DES keys require.
func fixKeyParity(key []byte) []byte {
	out := make([]byte, len(key))
	for i, b := range key {
		parity := 0
		for x := b; x != 0; x &= x - 1 {
			parity ^= 1
		}
		if parity == 0 {
			out[i] = b ^ 0x01
		} else {
			out[i] = b
		}
	}
	return out
}

// diversifyEMVOptionA derives a 16-byte key by 3DES-encrypting the 10 bytes
// of diversification data (zero-padded to 16) under the static key, then
// fixing parity. This mirrors EMV Option A's ZL||ZR construction but over
// GlobalPlatform's diversification data rather than a PAN.
func diversifyEMVOptionA(staticKey [16]byte, diversData []byte) [16]byte {
	key24 := expandTo3DESKey(staticKey[:])

	block := make([]byte, 8)
	copy(block, diversData[0:8])
	zl := tripleDESECBEncrypt(key24, block)

	block2 := make([]byte, 8)
	copy(block2, diversData[8:10])
	zr := tripleDESECBEncrypt(key24, block2)

	derived := append(append([]byte{}, zl...), zr...)
	derived = fixKeyParity(derived)

	var out [16]byte
	copy(out[:], derived)
	return out
}

// diversifyVISA2 derives a 16-byte key using the VISA2 scheme: the left
// half is the diversification data itself complemented into two 8-byte
// blocks (data, data XOR 0xFF..FF) each 3DES-encrypted under the static key.
func diversifyVISA2(staticKey [16]byte, diversData []byte) [16]byte {
	key24 := expandTo3DESKey(staticKey[:])

	left := make([]byte, 8)
	copy(left, diversData[0:8])
	l := tripleDESECBEncrypt(key24, left)

	right := make([]byte, 8)
	for i := 0; i < 8; i++ {
		if i < len(diversData) {
			right[i] = diversData[i] ^ 0xFF
		} else {
			right[i] = 0xFF
		}
	}
	r := tripleDESECBEncrypt(key24, right)

	var out [16]byte
	copy(out[0:8], l)
	copy(out[8:16], r)
	return out
}

// diversifyKDF3 derives a 16-byte key via a counter-mode KDF: two 3DES-ECB
// blocks, each the first seven bytes of diversData followed by a counter
// byte (0x01, then 0x02), concatenated into the 16-byte key. This is the
// scheme some issuers label "KDF3".
func diversifyKDF3(staticKey [16]byte, diversData []byte) [16]byte {
	key24 := expandTo3DESKey(staticKey[:])

	mkBlock := func(counter byte) []byte {
		b := make([]byte, 8)
		n := copy(b, diversData)
		if n < 8 {
			b[7] = counter
		} else {
			b[len(b)-1] = counter
		}
		return b
	}

	b1 := tripleDESECBEncrypt(key24, mkBlock(0x01))
	b2 := tripleDESECBEncrypt(key24, mkBlock(0x02))

	var out [16]byte
	copy(out[0:8], b1)
	copy(out[8:16], b2)
	return out
}
