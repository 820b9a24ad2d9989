package protocol

import (
	"fmt"
	"io"
	"strings"
)

// CompatibilityFlags are exchanged by the daemon right after the binary
// version exchange for protocols 30 and newer.
type CompatibilityFlags uint32

const (
	CompatIncRecurse CompatibilityFlags = 1 << iota
	CompatSymlinkTimes
	CompatSymlinkIconv
	CompatSafeFileList
	CompatAvoidXattrOptimization
	CompatChecksumSeedFix
	CompatInplacePartialDir
	CompatVarintFlistFlags
	CompatID0Names

	CompatNone CompatibilityFlags = 0
)

var compatNames = []struct {
	flag CompatibilityFlags
	name string
}{
	{CompatIncRecurse, "CF_INC_RECURSE"},
	{CompatSymlinkTimes, "CF_SYMLINK_TIMES"},
	{CompatSymlinkIconv, "CF_SYMLINK_ICONV"},
	{CompatSafeFileList, "CF_SAFE_FLIST"},
	{CompatAvoidXattrOptimization, "CF_AVOID_XATTR_OPTIM"},
	{CompatChecksumSeedFix, "CF_CHKSUM_SEED_FIX"},
	{CompatInplacePartialDir, "CF_INPLACE_PARTIAL_DIR"},
	{CompatVarintFlistFlags, "CF_VARINT_FLIST_FLAGS"},
	{CompatID0Names, "CF_ID0_NAMES"},
}

// KnownCompatibilityFlags is the union of every flag we understand.
func KnownCompatibilityFlags() CompatibilityFlags {
	var all CompatibilityFlags
	for _, n := range compatNames {
		all |= n.flag
	}
	return all
}

func (f CompatibilityFlags) Contains(other CompatibilityFlags) bool {
	return f&other == other
}

func (f CompatibilityFlags) Union(other CompatibilityFlags) CompatibilityFlags {
	return f | other
}

func (f CompatibilityFlags) IsEmpty() bool {
	return f == 0
}

// UnknownBits are the set bits that don't correspond to a known flag.
func (f CompatibilityFlags) UnknownBits() uint32 {
	return uint32(f &^ KnownCompatibilityFlags())
}

func (f CompatibilityFlags) String() string {
	if f == 0 {
		return "CF_NONE"
	}

	parts := make([]string, 0, len(compatNames)+1)
	for _, n := range compatNames {
		if f.Contains(n.flag) {
			parts = append(parts, n.name)
		}
	}

	if unknown := f.UnknownBits(); unknown != 0 {
		parts = append(parts, fmt.Sprintf("unknown(0x%x)", unknown))
	}

	return strings.Join(parts, " | ")
}

// ParseCompatibilityFlags accepts a list of CF_ names separated by '|', ','
// or whitespace. An empty string or CF_NONE yields no flags.
func ParseCompatibilityFlags(s string) (CompatibilityFlags, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ',' || r == ' ' || r == '\t'
	})

	var flags CompatibilityFlags

next:
	for _, field := range fields {
		name := strings.ToUpper(field)
		if name == "CF_NONE" {
			continue
		}

		for _, n := range compatNames {
			if n.name == name {
				flags |= n.flag
				continue next
			}
		}

		return 0, fmt.Errorf("unknown compatibility flag name: %q", field)
	}

	return flags, nil
}

// Encode returns the varint wire form of the flags.
func (f CompatibilityFlags) Encode() []byte {
	return AppendVarint(nil, int32(f))
}

func (f CompatibilityFlags) WriteTo(w io.Writer) (int64, error) {
	b := f.Encode()
	n, err := w.Write(b)
	return int64(n), err
}

func ReadCompatibilityFlags(r io.Reader) (CompatibilityFlags, error) {
	v, err := ReadVarint(r)
	if err != nil {
		return 0, fmt.Errorf("Failed to read compatibility flags: %w", err)
	}

	return CompatibilityFlags(uint32(v)), nil
}
