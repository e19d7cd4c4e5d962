package gp

import "log/slog"

// CapFile abstracts a parsed CAP (Converted Applet) file; parsing itself is
// out of scope for this package (spec.md §1/§6) — callers supply an
// implementation that already knows how to slice load blocks.
type CapFile interface {
	PackageAID() AID
	CodeLength(includeDebug bool) uint32
	LoadBlocks(includeDebug, separateComponents bool, blockSize int) [][]byte
	LoadFileDataHash(includeDebug bool) []byte
}

// lv prefixes value with its single-byte length (the length-value framing
// used throughout the GP command layer's TLV-ish payloads).
func lv(value []byte) []byte {
	out := make([]byte, 0, 1+len(value))
	out = append(out, byte(len(value)))
	out = append(out, value...)
	return out
}

func wrapAndSend(t Transport, w *SecureChannelWrapper, cmd Command) (Response, error) {
	wrapped, err := w.Wrap(cmd)
	if err != nil {
		return Response{}, err
	}
	resp, err := Transmit(t, wrapped)
	if err != nil {
		return Response{}, err
	}
	return w.Unwrap(resp)
}

// requireOK fails with ProtocolError unless resp is 0x9000.
func requireOK(resp Response) error {
	if !resp.IsOK() {
		return protoErr(resp.SW())
	}
	return nil
}

// LoadOptions controls what LoadCapFile includes (spec.md §4.6).
type LoadOptions struct {
	IncludeDebug       bool
	SeparateComponents bool
	BlockSize          int
}

// LoadCapFile implements INSTALL [for load] + LOAD (spec.md §4.6).
func LoadCapFile(t Transport, w *SecureChannelWrapper, sdAID AID, cap CapFile, opts LoadOptions) error {
	if opts.BlockSize <= 0 {
		opts.BlockSize = 247
	}

	hash := cap.LoadFileDataHash(opts.IncludeDebug)
	codeLen := cap.CodeLength(opts.IncludeDebug)
	var loadParams []byte
	if codeLen > 0 {
		loadParams = []byte{0xEF, 0x04, 0xC6, 0x02, byte(codeLen >> 8), byte(codeLen)}
	}

	payload := make([]byte, 0, 64)
	payload = append(payload, lv(cap.PackageAID().Bytes())...)
	payload = append(payload, lv(sdAID.Bytes())...)
	payload = append(payload, lv(hash)...)
	payload = append(payload, lv(loadParams)...)
	payload = append(payload, 0x00)

	resp, err := wrapAndSend(t, w, Command{CLA: ClaGP, INS: InsInstall, P1: 0x02, P2: 0x00, Data: payload})
	if err != nil {
		return err
	}
	if err := requireOK(resp); err != nil {
		return err
	}

	blocks := cap.LoadBlocks(opts.IncludeDebug, opts.SeparateComponents, opts.BlockSize)
	for i, block := range blocks {
		p1 := byte(0x00)
		if i == len(blocks)-1 {
			p1 = 0x80
		}
		resp, err := wrapAndSend(t, w, Command{CLA: ClaGP, INS: InsLoad, P1: p1, P2: byte(i), Data: block})
		if err != nil {
			return err
		}
		if err := requireOK(resp); err != nil {
			return err
		}
	}
	slog.Debug("gp: load complete", "package", cap.PackageAID(), "blocks", len(blocks))
	return nil
}

// InstallOptions controls INSTALL [for install and make selectable]
// defaults (spec.md §4.6).
type InstallOptions struct {
	InstanceAID AID // defaults to appletAID when zero-value
	Privileges  byte
	Params      []byte // defaults to C9 00
	Token       []byte
}

// InstallAndMakeSelectable implements INSTALL [for install and make
// selectable] (spec.md §4.6).
func InstallAndMakeSelectable(t Transport, w *SecureChannelWrapper, pkgAID, appletAID AID, opts InstallOptions) error {
	instance := opts.InstanceAID
	if len(instance.Bytes()) == 0 {
		instance = appletAID
	}
	params := opts.Params
	if params == nil {
		params = []byte{0xC9, 0x00}
	}

	payload := make([]byte, 0, 64)
	payload = append(payload, lv(pkgAID.Bytes())...)
	payload = append(payload, lv(appletAID.Bytes())...)
	payload = append(payload, lv(instance.Bytes())...)
	payload = append(payload, 0x01, opts.Privileges)
	payload = append(payload, lv(params)...)
	payload = append(payload, lv(opts.Token)...)

	resp, err := wrapAndSend(t, w, Command{CLA: ClaGP, INS: InsInstall, P1: 0x0C, P2: 0x00, Data: payload})
	if err != nil {
		return err
	}
	return requireOK(resp)
}

// MakeDefaultSelected implements the Make-Default-Selected INSTALL variant
// (spec.md §4.6).
func MakeDefaultSelected(t Transport, w *SecureChannelWrapper, appletAID AID, privileges byte) error {
	payload := make([]byte, 0, 16)
	payload = append(payload, 0x00, 0x00)
	payload = append(payload, lv(appletAID.Bytes())...)
	payload = append(payload, 0x01, privileges)
	payload = append(payload, 0x00, 0x00)

	resp, err := wrapAndSend(t, w, Command{CLA: ClaGP, INS: InsInstall, P1: 0x08, P2: 0x00, Data: payload})
	if err != nil {
		return err
	}
	return requireOK(resp)
}

// Delete implements DELETE (spec.md §4.6). deleteDeps sets P2=0x80 to also
// remove dependent applications and load-file-referenced modules.
func Delete(t Transport, w *SecureChannelWrapper, aid AID, deleteDeps bool) error {
	payload := append([]byte{0x4F}, lv(aid.Bytes())...)
	p2 := byte(0x00)
	if deleteDeps {
		p2 = 0x80
	}
	resp, err := wrapAndSend(t, w, Command{CLA: ClaGP, INS: InsDelete, P1: 0x00, P2: p2, Data: payload})
	if err != nil {
		return err
	}
	return requireOK(resp)
}

// getStatusP1s is the ordered set of P1 values GetStatus issues, each
// mapping to an AIDRegistry Kind; P1=0x40 yields SecurityDomain or
// Application depending on the privileges byte (spec.md §4.6).
var getStatusP1s = []byte{0x80, 0x40, 0x10, 0x20}

// GetStatus implements GET STATUS with 0x6310 pagination across the full
// ordered P1 set, building an AIDRegistry from the parsed records (spec.md
// §4.6). If P1=0x10 succeeds, P1=0x20 is skipped per spec.
func GetStatus(t Transport, w *SecureChannelWrapper) (*AIDRegistry, error) {
	reg := &AIDRegistry{}
	loadFilesAndModulesSucceeded := false

	for _, p1 := range getStatusP1s {
		if p1 == 0x20 && loadFilesAndModulesSucceeded {
			continue
		}

		var data []byte
		p2 := byte(0x00)
		succeeded := true
		for {
			resp, err := wrapAndSend(t, w, Command{CLA: ClaGP, INS: InsGetStatus, P1: p1, P2: p2, Data: []byte{0x4F, 0x00}})
			if err != nil {
				return nil, err
			}
			if resp.SW() != swOK && resp.SW() != swMoreData {
				if p1 == 0x10 {
					succeeded = false
					break
				}
				return nil, protoErr(resp.SW())
			}
			data = append(data, resp.Data...)
			if resp.SW() != swMoreData {
				break
			}
			p2 = 0x01
		}

		if p1 == 0x10 && succeeded {
			loadFilesAndModulesSucceeded = true
		}
		if p1 == 0x10 && !succeeded {
			continue
		}

		entries, err := parseStatusRecords(data, p1)
		if err != nil {
			return nil, err
		}
		reg.Entries = append(reg.Entries, entries...)
	}
	return reg, nil
}

func statusKindForP1(p1 byte, privileges byte) Kind {
	switch p1 {
	case 0x80:
		return KindISD
	case 0x40:
		if privileges&0x80 != 0 {
			return KindSecurityDomain
		}
		return KindApplication
	case 0x10:
		return KindExecutableLoadFilesAndModules
	case 0x20:
		return KindExecutableLoadFiles
	default:
		panicInternal("unknown GET STATUS P1 value %02X", p1)
		return 0
	}
}

// parseStatusRecords walks the concatenated GET STATUS data as a stream of
// `len ‖ aid ‖ life_cycle ‖ privileges [‖ num_modules ‖ (len‖module_aid)*]`
// records; the module sub-record only appears for p1=0x10 (spec.md §4.6).
func parseStatusRecords(data []byte, p1 byte) ([]Entry, error) {
	var entries []Entry
	off := 0
	for off < len(data) {
		if off+1 > len(data) {
			return nil, newErr(KindMalformedResponse, "truncated GET STATUS record")
		}
		aidLen := int(data[off])
		off++
		if off+aidLen+2 > len(data) {
			return nil, newErr(KindMalformedResponse, "truncated GET STATUS record")
		}
		aid, err := NewAID(data[off : off+aidLen])
		if err != nil {
			return nil, wrapErr(KindMalformedResponse, "GET STATUS record AID", err)
		}
		off += aidLen
		lifeCycle := data[off]
		privileges := data[off+1]
		off += 2

		entry := Entry{
			AID:        aid,
			Kind:       statusKindForP1(p1, privileges),
			LifeCycle:  lifeCycle,
			Privileges: privileges,
		}

		if p1 == 0x10 {
			if off >= len(data) {
				return nil, newErr(KindMalformedResponse, "truncated GET STATUS module count")
			}
			numModules := int(data[off])
			off++
			for i := 0; i < numModules; i++ {
				if off+1 > len(data) {
					return nil, newErr(KindMalformedResponse, "truncated GET STATUS module record")
				}
				modLen := int(data[off])
				off++
				if off+modLen > len(data) {
					return nil, newErr(KindMalformedResponse, "truncated GET STATUS module record")
				}
				modAID, err := NewAID(data[off : off+modLen])
				if err != nil {
					return nil, wrapErr(KindMalformedResponse, "GET STATUS module AID", err)
				}
				entry.ModuleAIDs = append(entry.ModuleAIDs, modAID)
				off += modLen
			}
		}

		entries = append(entries, entry)
	}
	return entries, nil
}
