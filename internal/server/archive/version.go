package archive

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeVersion converts a package version to its canonical form:
// major.minor.patch, a fourth revision part only when non-zero, leading zeros
// removed, build metadata dropped and the release label kept as written.
//
//	"1.0"             -> "1.0.0"
//	"01.2.3.0"        -> "1.2.3"
//	"1.2.3.4-beta+sha" -> "1.2.3.4-beta"
func NormalizeVersion(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("empty version")
	}

	if i := strings.IndexByte(v, '+'); i >= 0 {
		if !validIdentifiers(v[i+1:]) {
			return "", fmt.Errorf("invalid build metadata in %q", v)
		}
		v = v[:i]
	}

	var label string
	if i := strings.IndexByte(v, '-'); i >= 0 {
		label = v[i+1:]
		v = v[:i]
		if !validIdentifiers(label) {
			return "", fmt.Errorf("invalid release label %q", label)
		}
	}

	parts := strings.Split(v, ".")
	if len(parts) < 1 || len(parts) > 4 {
		return "", fmt.Errorf("version %q must have between one and four parts", v)
	}

	nums := make([]uint64, 4)
	for i, p := range parts {
		if p == "" {
			return "", fmt.Errorf("version %q has an empty part", v)
		}
		n, err := strconv.ParseUint(p, 10, 31)
		if err != nil {
			return "", fmt.Errorf("version part %q is not a number", p)
		}
		nums[i] = n
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", nums[0], nums[1], nums[2])
	if nums[3] > 0 {
		fmt.Fprintf(&b, ".%d", nums[3])
	}
	if label != "" {
		b.WriteByte('-')
		b.WriteString(label)
	}
	return b.String(), nil
}

func validIdentifiers(s string) bool {
	if s == "" {
		return false
	}
	for _, id := range strings.Split(s, ".") {
		if id == "" {
			return false
		}
		for _, c := range id {
			switch {
			case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '-':
			default:
				return false
			}
		}
	}
	return true
}
