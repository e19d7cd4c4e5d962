package gp

import (
	"bytes"
	"testing"
)

// fakeCapFile is a minimal CapFile for testing LoadCapFile's payload shape;
// it carries no real component data.
type fakeCapFile struct {
	pkgAID AID
}

func (f fakeCapFile) PackageAID() AID                  { return f.pkgAID }
func (f fakeCapFile) CodeLength(includeDebug bool) uint32 { return 0 }
func (f fakeCapFile) LoadBlocks(includeDebug, separateComponents bool, blockSize int) [][]byte {
	return nil
}
func (f fakeCapFile) LoadFileDataHash(includeDebug bool) []byte { return nil }

// TestLoadCapFileInstallPayload implements spec.md's S4 scenario: the
// INSTALL [for load] payload for a package/SD pair with no hash or params.
func TestLoadCapFileInstallPayload(t *testing.T) {
	pkgAID, _ := NewAID([]byte{0xA0, 0x00, 0x00, 0x00, 0x62, 0x03, 0x01, 0x08, 0x01})
	sdAID, _ := NewAID([]byte{0xA0, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00})

	transport := &scriptedTransport{responses: [][]byte{sw(0x90, 0x00)}}
	w := newWrapper(testSession(), VariantSCP02_15, SecurityLevel(0))

	cap := fakeCapFile{pkgAID: pkgAID}
	if err := LoadCapFile(transport, w, sdAID, cap, LoadOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []byte{
		0x09, 0xA0, 0x00, 0x00, 0x00, 0x62, 0x03, 0x01, 0x08, 0x01,
		0x08, 0xA0, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00,
		0x00, // empty hash LV
		0x00, // empty loadParams LV (codeLength is zero for this fake CapFile)
		0x00, // trailing token byte
	}
	sent := lastSent(transport)
	// sent = CLA INS P1 P2 Lc <payload> (no Le on this command).
	gotPayload := sent[5:]
	if !bytes.Equal(gotPayload, want) {
		t.Errorf("INSTALL [for load] payload mismatch:\n got  %X\n want %X", gotPayload, want)
	}
}

// TestDeletePayload implements spec.md's S5 scenario.
func TestDeletePayload(t *testing.T) {
	aid, _ := NewAID([]byte{0xA0, 0x00, 0x00, 0x00, 0x62, 0x03, 0x01, 0x08, 0x01})
	transport := &scriptedTransport{responses: [][]byte{sw(0x90, 0x00)}}
	w := newWrapper(testSession(), VariantSCP02_15, SecurityLevel(0))

	if err := Delete(transport, w, aid, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []byte{0x80, 0xE4, 0x00, 0x80, 0x0B, 0x4F, 0x09,
		0xA0, 0x00, 0x00, 0x00, 0x62, 0x03, 0x01, 0x08, 0x01}
	if !bytes.Equal(lastSent(transport), want) {
		t.Errorf("DELETE APDU mismatch:\n got  %X\n want %X", lastSent(transport), want)
	}
}

// TestGetStatusPagination exercises the §8 "three 0x6310 responses before
// 0x9000" pagination property: the registry must contain the concatenation
// of all four paginated chunks (aid1, aid2, aid3, aid4), in order, once the
// other P1 rounds report no entries of their own.
func TestGetStatusPagination(t *testing.T) {
	aid1 := []byte{0x05, 0xA0, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00}
	aid2 := []byte{0x05, 0xA0, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00}
	aid3 := []byte{0x05, 0xA0, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00}
	aid4 := []byte{0x05, 0xA0, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00}

	transport := &scriptedTransport{responses: [][]byte{
		sw(0x63, 0x10, aid1...), // P1=0x80, page 1
		sw(0x63, 0x10, aid2...), // P1=0x80, page 2
		sw(0x63, 0x10, aid3...), // P1=0x80, page 3
		sw(0x90, 0x00, aid4...), // P1=0x80, final page
		sw(0x90, 0x00),          // P1=0x40 empty
		sw(0x90, 0x00),          // P1=0x10 empty (succeeds -> P1=0x20 skipped)
	}}
	w := newWrapper(testSession(), VariantSCP02_15, SecurityLevel(0))

	reg, err := GetStatus(transport, w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(reg.Entries) != 4 {
		t.Fatalf("expected 4 entries from the concatenated P1=0x80 pages, got %d: %+v", len(reg.Entries), reg.Entries)
	}
	// Each record is len(05) || 5-byte AID || life cycle || privileges.
	wantAIDs := [][]byte{
		{0xA0, 0x00, 0x00, 0x00, 0x01},
		{0xA0, 0x00, 0x00, 0x00, 0x02},
		{0xA0, 0x00, 0x00, 0x00, 0x03},
		{0xA0, 0x00, 0x00, 0x00, 0x04},
	}
	for i, want := range wantAIDs {
		if !bytes.Equal(reg.Entries[i].AID.Bytes(), want) {
			t.Errorf("entry %d AID mismatch: got %X, want %X", i, reg.Entries[i].AID.Bytes(), want)
		}
		if reg.Entries[i].Kind != KindISD {
			t.Errorf("entry %d: expected KindISD (P1=0x80), got %v", i, reg.Entries[i].Kind)
		}
	}
}

// TestGetStatusFailurePropagates checks that a mid-sweep protocol failure
// (here, P1=0x40) surfaces as KindProtocolError rather than being silently
// swallowed.
func TestGetStatusFailurePropagates(t *testing.T) {
	transport := &scriptedTransport{responses: [][]byte{
		sw(0x90, 0x00), // P1=0x80 empty
		sw(0x69, 0x82), // P1=0x40 fails outright
	}}
	w := newWrapper(testSession(), VariantSCP02_15, SecurityLevel(0))

	_, err := GetStatus(transport, w)
	if err == nil {
		t.Fatal("expected an error to surface from the P1=0x40 failure")
	}
	gerr, ok := err.(*Error)
	if !ok || gerr.Kind != KindProtocolError {
		t.Fatalf("expected KindProtocolError from P1=0x40, got %v", err)
	}
}

// TestGetStatusSkipsELFWhenELFAndModulesSucceed confirms P1=0x20 is skipped
// once P1=0x10 succeeds (spec.md §4.6).
func TestGetStatusSkipsELFWhenELFAndModulesSucceed(t *testing.T) {
	isdRecord := []byte{0x07, 0xA0, 0x00, 0x00, 0x01, 0x51, 0x00, 0x00, 0x00, 0x80}
	appRecord := []byte{0x05, 0xA0, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00}
	elfModRecord := append([]byte{0x05, 0xA0, 0x00, 0x00, 0x00, 0x02, 0x00}, 0x00, 0x00)

	transport := &scriptedTransport{responses: [][]byte{
		sw(0x90, 0x00, isdRecord...),
		sw(0x90, 0x00, appRecord...),
		sw(0x90, 0x00, elfModRecord...),
	}}
	w := newWrapper(testSession(), VariantSCP02_15, SecurityLevel(0))

	reg, err := GetStatus(transport, w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transport.sent) != 3 {
		t.Errorf("expected exactly 3 round trips (P1=0x10 success skips P1=0x20), got %d", len(transport.sent))
	}
	if len(reg.Entries) != 3 {
		t.Errorf("expected 3 registry entries, got %d", len(reg.Entries))
	}
}
