package gp

// SecurityLevel is a bitfield drawn from {SecMAC, SecENC, SecRMAC}. ENC
// implies MAC; RMAC is only legal under SCP02.
type SecurityLevel byte

func (l SecurityLevel) has(bit byte) bool { return byte(l)&bit != 0 }

// normalize applies the ENC-implies-MAC rule and, for SCP01 sessions, drops
// RMAC (spec.md §4.3 step 6 / §8 law 4).
func (l SecurityLevel) normalize(family Family) SecurityLevel {
	out := l
	if out.has(SecENC) {
		out |= SecurityLevel(SecMAC)
	}
	if family == FamilySCP01 {
		out &^= SecurityLevel(SecRMAC)
	}
	return out
}

// SecureChannelWrapper is the stateful command/response wrapper produced by
// session setup (auth.go). It owns the session KeySet, the chained command
// and response ICVs, the negotiated variant and its fixed flags, the active
// security level, and the accumulating RMAC input buffer. It is never safe
// for concurrent use: wrap/unwrap mutate ICV state that must stay ordered.
type SecureChannelWrapper struct {
	session  *KeySet
	variant  Variant
	flags    flags
	level    SecurityLevel
	cmdICV   [8]byte
	respICV  [8]byte
	rmacBuf  []byte
	wrapped0 bool // true once the first command has been wrapped
}

func newWrapper(session *KeySet, v Variant, level SecurityLevel) *SecureChannelWrapper {
	return &SecureChannelWrapper{
		session: session,
		variant: v,
		flags:   variantFlags(v),
		level:   level,
	}
}

// setResponseICV snapshots the current command ICV into the response ICV;
// session setup does this after EXTERNAL AUTHENTICATE when RMAC is active
// (spec.md §4.3 step 14).
func (w *SecureChannelWrapper) setResponseICV() {
	w.respICV = w.cmdICV
}

// Wrap applies MAC/ENC per spec.md §4.4 and returns the wire-ready command.
func (w *SecureChannelWrapper) Wrap(cmd Command) (Command, error) {
	macOn := w.level.has(SecMAC)
	encOn := w.level.has(SecENC)
	rmacOn := w.level.has(SecRMAC)

	budget := 255
	if macOn {
		budget -= 8
	}
	if encOn {
		budget -= 8
	}
	if len(cmd.Data) > budget {
		return Command{}, newErr(KindTooLong, "command data exceeds secure channel budget")
	}

	if rmacOn {
		w.appendRMACInput(cmd.CLA&^0x07, cmd.INS, cmd.P1, cmd.P2, cmd.Data)
	}

	if !macOn && !encOn {
		w.wrapped0 = true
		return cmd, nil
	}

	newCLA := cmd.CLA
	newData := cmd.Data
	newLc := len(cmd.Data)

	if w.flags.ICVEncrypt && w.wrapped0 {
		w.cmdICV = w.encryptICV(w.cmdICV)
	}

	var macTag []byte
	if macOn {
		if w.flags.PreMAC {
			newCLA = cmd.CLA | 0x04
			newLc = len(cmd.Data) + 8
		}
		macInput := make([]byte, 0, 5+len(newData))
		macInput = append(macInput, newCLA, cmd.INS, cmd.P1, cmd.P2, byte(newLc))
		macInput = append(macInput, newData...)

		switch w.flags.Family {
		case FamilySCP01:
			macTag = macFull3DES(w.session.Get3DES(KeyTypeMAC), w.cmdICV[:], macInput)
		case FamilySCP02:
			macTag = macRetailDES3DES(w.session.Get3DES(KeyTypeMAC), w.cmdICV[:], macInput)
		}
		copy(w.cmdICV[:], macTag)

		if w.flags.PostMAC {
			newCLA = cmd.CLA | 0x04
			newLc += 8
		}
	}

	if encOn && len(cmd.Data) > 0 {
		var encInput []byte
		switch w.flags.Family {
		case FamilySCP01:
			encInput = iso7816Pad(append([]byte{byte(len(cmd.Data))}, cmd.Data...), 8)
		case FamilySCP02:
			encInput = iso7816Pad(cmd.Data, 8)
		}
		zeroIV := make([]byte, 8)
		ciphertext := tripleDESCBCEncrypt(w.session.Get3DES(KeyTypeENC), zeroIV, encInput)
		newLc += len(ciphertext) - len(newData)
		newData = ciphertext
	}

	assembled := make([]byte, 0, len(newData)+8)
	assembled = append(assembled, newData...)
	if macOn {
		assembled = append(assembled, macTag...)
	}

	w.wrapped0 = true
	return Command{CLA: newCLA, INS: cmd.INS, P1: cmd.P1, P2: cmd.P2, Data: assembled, Le: cmd.Le}, nil
}

// Unwrap verifies and strips RMAC per spec.md §4.4; a no-op when RMAC is off.
func (w *SecureChannelWrapper) Unwrap(resp Response) (Response, error) {
	if !w.level.has(SecRMAC) {
		return resp, nil
	}
	if len(resp.Data) < 8 {
		return Response{}, newErr(KindMalformedResponse, "RMAC response shorter than MAC tag")
	}
	respLen := len(resp.Data) - 8
	plain := resp.Data[:respLen]
	tag := resp.Data[respLen:]

	w.rmacBuf = append(w.rmacBuf, byte(respLen))
	w.rmacBuf = append(w.rmacBuf, plain...)
	w.rmacBuf = append(w.rmacBuf, resp.SW1, resp.SW2)

	computed := macRetailDES3DES(w.session.Get3DES(KeyTypeRMAC), w.respICV[:], w.rmacBuf)
	copy(w.respICV[:], computed)

	if !constantTimeEqual(computed, tag) {
		return Response{}, newErr(KindRMacInvalid, "response MAC verification failed")
	}
	return Response{Data: plain, SW1: resp.SW1, SW2: resp.SW2}, nil
}

func (w *SecureChannelWrapper) appendRMACInput(cla, ins, p1, p2 byte, data []byte) {
	w.rmacBuf = append(w.rmacBuf, cla, ins, p1, p2)
	if len(data) > 0 {
		w.rmacBuf = append(w.rmacBuf, byte(len(data)))
		w.rmacBuf = append(w.rmacBuf, data...)
	}
}

func (w *SecureChannelWrapper) encryptICV(icv [8]byte) [8]byte {
	var out [8]byte
	switch w.flags.Family {
	case FamilySCP01:
		copy(out[:], tripleDESECBEncrypt(w.session.Get3DES(KeyTypeMAC), icv[:]))
	case FamilySCP02:
		copy(out[:], desECBEncrypt(w.session.GetDES(KeyTypeMAC), icv[:]))
	}
	return out
}

// SecurityLevel reports the active security level.
func (w *SecureChannelWrapper) SecurityLevel() SecurityLevel { return w.level }

// Variant reports the negotiated SCP variant.
func (w *SecureChannelWrapper) Variant() Variant { return w.variant }
