package domain

import (
	"strconv"
	"strings"
)

// MajorVersion reads the major component of a version or version spec such
// as "2", "2.*" or "2.1.0".
func MajorVersion(v string) (int, bool) {
	head, _, _ := strings.Cut(strings.TrimSpace(v), ".")
	n, err := strconv.Atoi(head)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
