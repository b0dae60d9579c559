package blacklist

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"strings"
)

// ParseCIDR reads a CIDR list: one prefix per line, with an optional
// ",label" suffix. Blank lines and lines starting with '#' are skipped.
//
//	203.0.113.0/24
//	198.51.100.0/24,known scanner range
func ParseCIDR(r io.Reader) (*List, error) {
	l := New()
	return l, scanLines(r, func(lineNo int, line string) error {
		field, label := splitLabel(line, ",")
		prefix, err := netip.ParsePrefix(field)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		rng := prefixToRange(prefix)
		rng.Label = label
		l.Add(rng)
		return nil
	})
}

// ParseP2P reads the eMule/PeerGuardian ".p2p" text format:
//
//	label:start-end
func ParseP2P(r io.Reader) (*List, error) {
	l := New()
	return l, scanLines(r, func(lineNo int, line string) error {
		label, rangePart, ok := strings.Cut(line, ":")
		if !ok {
			return fmt.Errorf("line %d: missing ':' separator", lineNo)
		}
		startStr, endStr, ok := strings.Cut(rangePart, "-")
		if !ok {
			return fmt.Errorf("line %d: missing '-' in range", lineNo)
		}
		rng, err := parseIPRange(strings.TrimSpace(startStr), strings.TrimSpace(endStr))
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		rng.Label = strings.TrimSpace(label)
		l.Add(rng)
		return nil
	})
}

// ParseDAT reads the PeerGuardian ".dat" text format:
//
//	start - end , level , label
func ParseDAT(r io.Reader) (*List, error) {
	l := New()
	return l, scanLines(r, func(lineNo int, line string) error {
		fields := strings.SplitN(line, ",", 3)
		if len(fields) < 3 {
			return fmt.Errorf("line %d: expected 3 comma-separated fields", lineNo)
		}
		startStr, endStr, ok := strings.Cut(fields[0], "-")
		if !ok {
			return fmt.Errorf("line %d: missing '-' in range", lineNo)
		}
		rng, err := parseIPRange(strings.TrimSpace(startStr), strings.TrimSpace(endStr))
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		rng.Label = strings.TrimSpace(fields[2])
		l.Add(rng)
		return nil
	})
}

func parseIPRange(startStr, endStr string) (Range, error) {
	start, err := netip.ParseAddr(startStr)
	if err != nil {
		return Range{}, fmt.Errorf("parse start address %q: %w", startStr, err)
	}
	end, err := netip.ParseAddr(endStr)
	if err != nil {
		return Range{}, fmt.Errorf("parse end address %q: %w", endStr, err)
	}
	if !start.Is4() || !end.Is4() {
		return Range{}, fmt.Errorf("only IPv4 ranges are supported: %s-%s", startStr, endStr)
	}
	return Range{Start: addrToUint32(start.As4()), End: addrToUint32(end.As4())}, nil
}

func splitLabel(line, sep string) (field, label string) {
	field, label, ok := strings.Cut(line, sep)
	if !ok {
		return strings.TrimSpace(line), ""
	}
	return strings.TrimSpace(field), strings.TrimSpace(label)
}

func scanLines(r io.Reader, fn func(lineNo int, line string) error) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
