// Package capfile provides a minimal gp.CapFile implementation over a raw
// load-file byte stream. Parsing the CAP container format proper (its
// per-component JAR structure) is out of scope (spec.md §1); this package
// treats the file as the opaque, already-linked code image gp.LoadCapFile
// expects and only slices it into load blocks.
package capfile

import (
	"crypto/sha1"
	"fmt"
	"os"

	"github.com/denisoancea/GlobalPlatformPro/gp"
)

// File is a raw load-file image paired with the package AID it installs.
type File struct {
	PkgAID gp.AID
	Code   []byte
}

// Load reads path as a raw load-file image for pkgAID.
func Load(pkgAID gp.AID, path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CAP file: %w", err)
	}
	return &File{PkgAID: pkgAID, Code: data}, nil
}

// PackageAID implements gp.CapFile.
func (f *File) PackageAID() gp.AID { return f.PkgAID }

// CodeLength implements gp.CapFile. includeDebug is a no-op here since this
// loader does not distinguish debug components.
func (f *File) CodeLength(includeDebug bool) uint32 { return uint32(len(f.Code)) }

// LoadBlocks implements gp.CapFile by splitting Code into fixed-size
// chunks. separateComponents has no effect without CAP component
// boundaries to respect.
func (f *File) LoadBlocks(includeDebug, separateComponents bool, blockSize int) [][]byte {
	if blockSize <= 0 {
		blockSize = 247
	}
	var blocks [][]byte
	for off := 0; off < len(f.Code); off += blockSize {
		end := off + blockSize
		if end > len(f.Code) {
			end = len(f.Code)
		}
		blocks = append(blocks, f.Code[off:end])
	}
	return blocks
}

// LoadFileDataHash implements gp.CapFile with a SHA-1 digest of the whole
// code image, the hash algorithm GlobalPlatform load-file-data-hash uses.
func (f *File) LoadFileDataHash(includeDebug bool) []byte {
	sum := sha1.Sum(f.Code)
	return sum[:]
}
