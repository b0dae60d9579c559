package blacklist

import (
	"math/bits"
	"net/netip"
)

// prefixToRange converts a CIDR prefix to its inclusive address range.
func prefixToRange(p netip.Prefix) Range {
	p = p.Masked()
	start := addrToUint32(p.Addr().As4())
	size := uint64(1) << uint(32-p.Bits())
	end := uint32(uint64(start) + size - 1)
	return Range{Start: start, End: end}
}

// rangeToCIDRs decomposes an inclusive [start, end] span into the minimal
// set of CIDR blocks that exactly covers it, the emit side of the §8
// "Blacklist round-trip" property: re-emitting a parsed range as CIDR must
// yield equivalent coverage, not identical text.
func rangeToCIDRs(start, end uint32) []netip.Prefix {
	var out []netip.Prefix
	s := uint64(start)
	e := uint64(end)
	for s <= e {
		maxBits := 32
		if s != 0 {
			if tz := bits.TrailingZeros64(s); tz < maxBits {
				maxBits = tz
			}
		}
		for maxBits > 0 {
			blockSize := uint64(1) << uint(maxBits)
			if s+blockSize-1 <= e {
				break
			}
			maxBits--
		}
		prefixLen := 32 - maxBits
		out = append(out, netip.PrefixFrom(uint32ToAddr(uint32(s)), prefixLen))
		s += uint64(1) << uint(maxBits)
		if s == 0 {
			break // wrapped past 0xFFFFFFFF, nothing left to cover
		}
	}
	return out
}

// ToCIDRs re-expresses every range in the list as a minimal covering set of
// CIDR prefixes, dropping labels (CIDR notation carries none).
func (l *List) ToCIDRs() []netip.Prefix {
	var out []netip.Prefix
	for _, r := range l.Ranges() {
		out = append(out, rangeToCIDRs(r.Start, r.End)...)
	}
	return out
}
