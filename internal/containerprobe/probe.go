// Package containerprobe performs the first step of every container
// open: confirming the file signature and reading the format family off
// the version word (spec.md §4.F).
package containerprobe

import (
	"keevault/internal/bin"
	"keevault/internal/kerrors"
	"keevault/internal/magic"
)

// Family distinguishes the legacy KDB container from the KDBX family.
type Family int

const (
	FamilyKDB Family = iota
	FamilyKDBX
)

// Result is the outcome of probing a container's leading bytes.
type Result struct {
	Family     Family
	MinorMajor uint32 // KDBX only: the version word's major.minor, packed as major<<16|minor
}

// Probe reads the 4-byte signature and 4-byte version word from the
// start of buf and classifies the container; for KDBX it also reads the
// 4-byte minor/major word at offset 8. It does not consume the rest of
// buf.
func Probe(buf []byte) (Result, error) {
	sig, err := bin.Slice(buf, 0, 4)
	if err != nil {
		return Result{}, kerrors.New(kerrors.KindInvalidKDBXIdentifier)
	}
	if [4]byte(sig) != magic.FileSignature {
		return Result{}, kerrors.WithBytes(kerrors.KindInvalidKDBXIdentifier, sig)
	}

	version, err := bin.U32(buf, 4)
	if err != nil {
		return Result{}, kerrors.New(kerrors.KindInvalidKDBXVersion)
	}

	switch version {
	case magic.VersionKDB:
		return Result{Family: FamilyKDB}, nil
	case magic.VersionKDBX:
		minorMajor, err := bin.U32(buf, 8)
		if err != nil {
			return Result{}, kerrors.New(kerrors.KindInvalidKDBXVersion)
		}
		return Result{Family: FamilyKDBX, MinorMajor: minorMajor}, nil
	default:
		return Result{}, kerrors.WithBytes(kerrors.KindInvalidKDBXVersion, buf[4:8])
	}
}

// IsKDBX4 reports whether a probed KDBX version word's major component is
// 4 or higher, selecting the typed-KDF-parameters outer header shape over
// KDBX3's fixed field set.
func (r Result) IsKDBX4() bool {
	major := r.MinorMajor & 0xFFFF0000 >> 16
	return major >= 4
}
