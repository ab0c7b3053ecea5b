// Package naming assigns deterministic per-group names to retrieved assets
// and implements the natural-order comparison that keeps the output stable
// regardless of download completion order.
package naming

import "unicode"

// Compare orders two strings with digit runs compared as numbers and letters
// compared case-insensitively, so "img2" sorts before "img10". Returns
// -1, 0, or 1 in the usual way. Equal-valued digit runs with different
// amounts of leading zeros fall back to length ("01" sorts after "1") so the
// ordering stays total.
func Compare(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	i, j := 0, 0

	for i < len(ra) && j < len(rb) {
		ca, cb := ra[i], rb[j]

		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			si, sj := i, j
			for i < len(ra) && unicode.IsDigit(ra[i]) {
				i++
			}
			for j < len(rb) && unicode.IsDigit(rb[j]) {
				j++
			}
			da := trimZeros(ra[si:i])
			db := trimZeros(rb[sj:j])
			if len(da) != len(db) {
				if len(da) < len(db) {
					return -1
				}
				return 1
			}
			for k := range da {
				if da[k] != db[k] {
					if da[k] < db[k] {
						return -1
					}
					return 1
				}
			}
			// Same numeric value; more leading zeros sorts later.
			if i-si != j-sj {
				if i-si < j-sj {
					return -1
				}
				return 1
			}
			continue
		}

		la, lb := unicode.ToLower(ca), unicode.ToLower(cb)
		if la != lb {
			if la < lb {
				return -1
			}
			return 1
		}
		i++
		j++
	}

	switch {
	case i < len(ra):
		return 1
	case j < len(rb):
		return -1
	default:
		return 0
	}
}

// Less is a sort.SliceStable-friendly wrapper around Compare.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

func trimZeros(digits []rune) []rune {
	k := 0
	for k < len(digits)-1 && digits[k] == '0' {
		k++
	}
	return digits[k:]
}
