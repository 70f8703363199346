package embedpy

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a major.minor.patch version. Minor and Patch are -1 when
// absent, so "1" parses as {1, -1, -1}.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion accepts "X", "X.Y" or "X.Y.Z", with an optional leading "v".
// Anything after the numeric components ("1.2.3-rc1") is ignored.
func ParseVersion(s string) (Version, error) {
	v := Version{Minor: -1, Patch: -1}
	rest := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if end := strings.IndexFunc(rest, func(r rune) bool { return r != '.' && (r < '0' || r > '9') }); end >= 0 {
		rest = rest[:end]
	}
	parts := strings.Split(strings.TrimSuffix(rest, "."), ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	fields := []*int{&v.Major, &v.Minor, &v.Patch}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q", s)
		}
		*fields[i] = n
	}
	return v, nil
}

// Compare returns -1, 0 or 1 as v is older than, equal to, or newer than
// other, comparing major, then minor, then patch.
func (v Version) Compare(other Version) int {
	for _, d := range [][2]int{{v.Major, other.Major}, {v.Minor, other.Minor}, {v.Patch, other.Patch}} {
		switch {
		case d[0] > d[1]:
			return 1
		case d[0] < d[1]:
			return -1
		}
	}
	return 0
}

// Compatible reports whether v and other share a major version.
func (v Version) Compatible(other Version) bool { return v.Major == other.Major }

// String omits absent components: "1.0.2", "1.0", "1".
func (v Version) String() string {
	switch {
	case v.Patch != -1:
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	case v.Minor != -1:
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return strconv.Itoa(v.Major)
}

// MinorString is "major.minor".
func (v Version) MinorString() string {
	return fmt.Sprintf("%d.%d", v.Major, max(v.Minor, 0))
}
