package gp

import "fmt"

// Transport is the abstract channel every core operation speaks over. The
// caller is responsible for obtaining a connected, selected channel (see
// internal/pcsc for a concrete PC/SC-backed implementation); this package
// never knows it is talking to a real card.
type Transport interface {
	// Transmit sends the full APDU wire-format bytes and returns the
	// response, including its trailing two status-word bytes.
	Transmit(command []byte) ([]byte, error)
}

// Command is a standard short-form ISO 7816-4 APDU: CLA INS P1 P2 [Lc data] [Le].
type Command struct {
	CLA  byte
	INS  byte
	P1   byte
	P2   byte
	Data []byte
	Le   *byte // nil means no Le byte at all; non-nil 0x00 means Le=256
}

// Bytes serializes the command to its wire form.
func (c Command) Bytes() []byte {
	out := make([]byte, 0, 5+len(c.Data)+1)
	out = append(out, c.CLA, c.INS, c.P1, c.P2)
	if len(c.Data) > 0 {
		out = append(out, byte(len(c.Data)))
		out = append(out, c.Data...)
	}
	if c.Le != nil {
		out = append(out, *c.Le)
	}
	return out
}

// Response is a parsed APDU response: the data field and the 2-byte SW.
type Response struct {
	Data []byte
	SW1  byte
	SW2  byte
}

// SW returns the status word as a single 16-bit value.
func (r Response) SW() uint16 {
	return uint16(r.SW1)<<8 | uint16(r.SW2)
}

// IsOK reports whether SW is 0x9000.
func (r Response) IsOK() bool {
	return r.SW() == swOK
}

// Transmit sends cmd over t and parses the response, extracting SW1/SW2
// from the trailing two bytes.
func Transmit(t Transport, cmd Command) (Response, error) {
	raw, err := t.Transmit(cmd.Bytes())
	if err != nil {
		return Response{}, wrapErr(KindTransport, "transmit failed", err)
	}
	if len(raw) < 2 {
		return Response{}, newErr(KindMalformedResponse, fmt.Sprintf("short response: %d bytes", len(raw)))
	}
	return Response{
		Data: raw[:len(raw)-2],
		SW1:  raw[len(raw)-2],
		SW2:  raw[len(raw)-1],
	}, nil
}

// SWToString renders a status word the way the teacher's SWToString helper
// does: a short human label for the well-known codes, a generic fallback
// otherwise.
func SWToString(sw uint16) string {
	switch sw {
	case swOK:
		return "success"
	case swSecurityLocked1:
		return "security status not satisfied"
	case swSecurityLocked2:
		return "authentication method blocked"
	case swFileNotFound:
		return "file/application not found"
	case swCardLocked:
		return "selected file invalidated"
	case swMoreData:
		return "more data available"
	default:
		return "unknown status"
	}
}
