package gp

import (
	"fmt"
	"log/slog"
)

// AccessRule is one ARA-M (Access Rule Application Master) rule: which AID
// the rule applies to, the signing-certificate hash it binds, and the
// APDU/permission access rule to grant (spec.md §12 supplement, ported from
// the teacher's ARA-M STORE DATA helper).
type AccessRule struct {
	// TargetAID is the AID the rule applies to; FF...FF (6 bytes) is the
	// wildcard "any AID" value.
	TargetAID []byte
	// CertHash is the SHA-1 (20 bytes) or SHA-256 (32 bytes) hash of the
	// requesting application's signing certificate.
	CertHash []byte
	// Perm is the PERM-AR-DO (tag 0xDB) permission bitmask.
	Perm []byte
	// APDURule is the APDU-AR-DO (tag 0xD0) value; 0x01 means "always allow".
	APDURule byte
}

func aramTLV(tag byte, value []byte) []byte {
	out := make([]byte, 0, 2+len(value))
	out = append(out, tag, byte(len(value)))
	out = append(out, value...)
	return out
}

// BuildARAMStoreData builds a single-block GP STORE DATA payload for one
// ARA-M access rule:
//
//	E2 (REF-AR-DO) { E1 (REF-DO) { 4F (AID-REF-DO), C1 (DeviceAppID-REF-DO) },
//	                 E3 (AR-DO) { D0 (APDU-AR-DO), DB (PERM-AR-DO) } }
func BuildARAMStoreData(rule AccessRule) ([]byte, error) {
	if len(rule.TargetAID) == 0 {
		return nil, newErr(KindInvalidArgument, "empty TargetAID")
	}
	if len(rule.CertHash) != 20 && len(rule.CertHash) != 32 {
		return nil, newErr(KindInvalidArgument, "CertHash must be 20 (SHA-1) or 32 (SHA-256) bytes")
	}
	if len(rule.Perm) == 0 {
		return nil, newErr(KindInvalidArgument, "empty Perm")
	}

	refDo := make([]byte, 0, 2+len(rule.TargetAID)+2+len(rule.CertHash))
	refDo = append(refDo, aramTLV(0x4F, rule.TargetAID)...)
	refDo = append(refDo, aramTLV(0xC1, rule.CertHash)...)

	arDo := make([]byte, 0, 2+1+2+len(rule.Perm))
	arDo = append(arDo, aramTLV(0xD0, []byte{rule.APDURule})...)
	arDo = append(arDo, aramTLV(0xDB, rule.Perm)...)

	e1 := aramTLV(0xE1, refDo)
	e3 := aramTLV(0xE3, arDo)

	payload := make([]byte, 0, len(e1)+len(e3))
	payload = append(payload, e1...)
	payload = append(payload, e3...)

	return aramTLV(0xE2, payload), nil
}

// StoreARAMRule sends rule to the currently-selected ARA-M application as a
// single-block STORE DATA command (P1=0x80: last block, no further
// structure hint).
func StoreARAMRule(t Transport, w *SecureChannelWrapper, rule AccessRule) error {
	payload, err := BuildARAMStoreData(rule)
	if err != nil {
		return err
	}
	resp, err := wrapAndSend(t, w, Command{CLA: ClaGP, INS: InsStoreData, P1: 0x80, P2: 0x00, Data: payload})
	if err != nil {
		return err
	}
	if err := requireOK(resp); err != nil {
		return err
	}
	slog.Debug("gp: stored ARA-M rule", "target_aid", fmt.Sprintf("%X", rule.TargetAID))
	return nil
}
