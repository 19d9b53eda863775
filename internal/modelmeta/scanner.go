package modelmeta

import "strings"

// DefaultMinRunLength is the shortest printable run the scanner reports
const DefaultMinRunLength = 4

// ScanText returns every maximal run of printable ASCII bytes (space through
// tilde) of at least minLen bytes, in file order. minLen is raised to
// DefaultMinRunLength when smaller.
func ScanText(data []byte, minLen int) []string {
	if minLen < DefaultMinRunLength {
		minLen = DefaultMinRunLength
	}

	var fragments []string
	start := -1
	for i, b := range data {
		if isPrintableASCII(b) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= minLen {
			fragments = append(fragments, decodeFragment(data[start:i]))
		}
		start = -1
	}
	if start >= 0 && len(data)-start >= minLen {
		fragments = append(fragments, decodeFragment(data[start:]))
	}

	return fragments
}

func isPrintableASCII(b byte) bool {
	return b >= 0x20 && b <= 0x7e
}

// decodeFragment decodes a run as UTF-8, dropping anything undecodable
func decodeFragment(run []byte) string {
	return strings.ToValidUTF8(string(run), "")
}
