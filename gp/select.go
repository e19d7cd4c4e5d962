package gp

import "log/slog"

// wellKnownSDAIDs is the fixed catalog of Issuer Security Domain AIDs tried
// in order when empty-AID selection does not reveal one via FCI (spec.md
// §4.5 step 4). A0000001510000 is the standard GlobalPlatform card-manager
// AID; the others are issuer variants commonly seen in the field.
var wellKnownSDAIDs = [][]byte{
	{0xA0, 0x00, 0x00, 0x01, 0x51, 0x00, 0x00},
	{0xA0, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00},
	{0xA0, 0x00, 0x00, 0x00, 0x18, 0x43, 0x4D, 0x00},
}

// SelectOptions controls SD selection behavior (spec.md §4.5).
type SelectOptions struct {
	// ExpectedAID, if non-nil, is compared against the selected SD's AID;
	// a mismatch is only a warning, never a failure.
	ExpectedAID *AID
	// Strict disables tolerance for "unfused"/"locked" SW codes during the
	// initial empty-AID SELECT.
	Strict bool
}

// SelectResult reports what SelectSD found.
type SelectResult struct {
	AID      AID
	Warnings []string
}

// SelectSD implements spec.md §4.5: select the Security Domain, preferring
// empty-AID selection and FCI parsing, falling back to a fixed AID catalog.
func SelectSD(t Transport, opts SelectOptions) (*SelectResult, error) {
	le := byte(0x00)
	resp, err := Transmit(t, Command{CLA: ClaISO, INS: InsSelect, P1: 0x04, P2: 0x00, Le: &le})
	if err != nil {
		return nil, err
	}

	result := &SelectResult{}

	switch resp.SW() {
	case swFileNotFound:
		result.Warnings = append(result.Warnings, "card reports unfused: no Security Domain selected by default")
		if opts.Strict {
			return nil, protoErr(resp.SW())
		}
	case swCardLocked:
		result.Warnings = append(result.Warnings, "card reports locked: Security Domain selection invalidated")
		if opts.Strict {
			return nil, protoErr(resp.SW())
		}
	case swOK:
	default:
		return nil, protoErr(resp.SW())
	}

	if resp.SW() == swOK || resp.SW() == swCardLocked {
		if aid, ok := parseFCIAID(resp.Data); ok {
			result.AID = aid
			if opts.ExpectedAID != nil && !opts.ExpectedAID.Equal(aid) {
				result.Warnings = append(result.Warnings,
					"selected Security Domain AID differs from the expected AID")
			}
			return result, nil
		}
	}

	for _, candidate := range wellKnownSDAIDs {
		aid, err := NewAID(candidate)
		if err != nil {
			panicInternal("well-known SD AID table entry invalid: %v", err)
		}
		resp, err := Transmit(t, Command{CLA: ClaISO, INS: InsSelect, P1: 0x04, P2: 0x00, Data: candidate, Le: &le})
		if err != nil {
			return nil, err
		}
		if resp.IsOK() {
			slog.Debug("gp: selected Security Domain from well-known catalog", "aid", aid)
			result.AID = aid
			return result, nil
		}
	}

	return nil, newErr(KindNoSecurityDomain, "no Security Domain could be selected")
}

// parseFCIAID extracts the SD AID from an FCI template: tag 0x6F wraps the
// template, tag 0x84 inside it holds the AID.
func parseFCIAID(fci []byte) (AID, bool) {
	fciValueOff, fciValueLen, ok := tlvFind(fci, 0, 0x6F)
	if !ok {
		return AID{}, false
	}
	inner := fci[fciValueOff : fciValueOff+fciValueLen]
	aidOff, aidLen, ok := tlvFind(inner, 0, 0x84)
	if !ok {
		return AID{}, false
	}
	aid, err := NewAID(inner[aidOff : aidOff+aidLen])
	if err != nil {
		return AID{}, false
	}
	return aid, true
}
