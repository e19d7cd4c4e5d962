package gp

import "fmt"

// Family distinguishes the two secure-channel protocol generations this
// package supports. SCP03 (AES-based) is an explicit non-goal.
type Family int

const (
	FamilySCP01 Family = iota
	FamilySCP02
)

func (f Family) String() string {
	if f == FamilySCP01 {
		return "SCP01"
	}
	return "SCP02"
}

// Variant is a tagged SCP option profile: protocol family plus the GP "i"
// option byte. Ten concrete profiles are enumerated plus Any, which defers
// the choice to session setup's autonegotiation (spec.md §4.3 step 5).
type Variant int

const (
	VariantAny Variant = iota
	VariantSCP01_05
	VariantSCP01_15
	VariantSCP02_04
	VariantSCP02_05
	VariantSCP02_0A
	VariantSCP02_0B
	VariantSCP02_14
	VariantSCP02_15
	VariantSCP02_1A
	VariantSCP02_1B
)

func (v Variant) String() string {
	switch v {
	case VariantAny:
		return "any"
	case VariantSCP01_05:
		return "SCP01_05"
	case VariantSCP01_15:
		return "SCP01_15"
	case VariantSCP02_04:
		return "SCP02_04"
	case VariantSCP02_05:
		return "SCP02_05"
	case VariantSCP02_0A:
		return "SCP02_0A"
	case VariantSCP02_0B:
		return "SCP02_0B"
	case VariantSCP02_14:
		return "SCP02_14"
	case VariantSCP02_15:
		return "SCP02_15"
	case VariantSCP02_1A:
		return "SCP02_1A"
	case VariantSCP02_1B:
		return "SCP02_1B"
	default:
		return "unknown"
	}
}

// ParseVariant accepts the CLI spelling ("scp01-05", "scp02-1b", "any") and
// returns the matching Variant.
func ParseVariant(s string) (Variant, error) {
	for v := VariantAny; v <= VariantSCP02_1B; v++ {
		if cliSpelling(v) == s {
			return v, nil
		}
	}
	return VariantAny, newErr(KindInvalidArgument, fmt.Sprintf("unknown SCP variant %q", s))
}

func cliSpelling(v Variant) string {
	switch v {
	case VariantAny:
		return "any"
	case VariantSCP01_05:
		return "scp01-05"
	case VariantSCP01_15:
		return "scp01-15"
	case VariantSCP02_04:
		return "scp02-04"
	case VariantSCP02_05:
		return "scp02-05"
	case VariantSCP02_0A:
		return "scp02-0a"
	case VariantSCP02_0B:
		return "scp02-0b"
	case VariantSCP02_14:
		return "scp02-14"
	case VariantSCP02_15:
		return "scp02-15"
	case VariantSCP02_1A:
		return "scp02-1a"
	case VariantSCP02_1B:
		return "scp02-1b"
	default:
		return ""
	}
}

// flags is the trio of booleans a variant fixes for the lifetime of a
// SecureChannelWrapper, plus the protocol family they belong to. Exactly one
// of PreMAC/PostMAC is true for every concrete (non-Any) variant.
type flags struct {
	Family    Family
	ICVEncrypt bool
	PreMAC    bool
	PostMAC   bool
}

// variantTable is the single lookup table the wrap/unwrap path consults
// (through variantFlags);
// spec.md §8 calls out centralizing variant branching here instead of
// scattering `if scp==...` checks through the crypto path.
var variantTable = map[Variant]flags{
	VariantSCP01_05: {Family: FamilySCP01, ICVEncrypt: false, PreMAC: true, PostMAC: false},
	VariantSCP01_15: {Family: FamilySCP01, ICVEncrypt: true, PreMAC: true, PostMAC: false},

	VariantSCP02_04: {Family: FamilySCP02, ICVEncrypt: false, PreMAC: false, PostMAC: true},
	VariantSCP02_05: {Family: FamilySCP02, ICVEncrypt: false, PreMAC: true, PostMAC: false},
	VariantSCP02_0A: {Family: FamilySCP02, ICVEncrypt: false, PreMAC: false, PostMAC: true},
	VariantSCP02_0B: {Family: FamilySCP02, ICVEncrypt: false, PreMAC: true, PostMAC: false},
	VariantSCP02_14: {Family: FamilySCP02, ICVEncrypt: true, PreMAC: false, PostMAC: true},
	VariantSCP02_15: {Family: FamilySCP02, ICVEncrypt: true, PreMAC: true, PostMAC: false},
	VariantSCP02_1A: {Family: FamilySCP02, ICVEncrypt: true, PreMAC: false, PostMAC: true},
	VariantSCP02_1B: {Family: FamilySCP02, ICVEncrypt: true, PreMAC: true, PostMAC: false},
}

// variantFlags resolves v's flags. v must be a concrete variant; passing
// VariantAny is a programming error since autonegotiation must have already
// settled on a concrete variant by the time the wrapper needs flags.
func variantFlags(v Variant) flags {
	f, ok := variantTable[v]
	if !ok {
		panicInternal("variantFlags called with non-concrete variant %v", v)
	}
	return f
}

// negotiate implements spec.md §4.3 step 5: when requested is Any, pick
// SCP02_15 if the card reports SCP02, else SCP01_05. Otherwise, require
// reportedFamily to match requested's family.
func negotiate(requested Variant, reportedFamily Family) (Variant, error) {
	if requested == VariantAny {
		if reportedFamily == FamilySCP02 {
			return VariantSCP02_15, nil
		}
		return VariantSCP01_05, nil
	}
	if variantFlags(requested).Family != reportedFamily {
		return VariantAny, newErr(KindVersionMismatch,
			fmt.Sprintf("card reported %s but %s was requested", reportedFamily, requested))
	}
	return requested, nil
}
