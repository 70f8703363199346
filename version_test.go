package embedpy

import "testing"

func TestParseVersion(t *testing.T) {
	cases := []struct {
		in   string
		want Version
	}{
		{"1", Version{1, -1, -1}},
		{"1.0", Version{1, 0, -1}},
		{"v2.3.4", Version{2, 3, 4}},
		{"1.2.3-rc1", Version{1, 2, 3}},
		{" 3.9.1.7 ", Version{3, 9, 1}},
	}
	for _, c := range cases {
		got, err := ParseVersion(c.in)
		if err != nil || got != c.want {
			t.Errorf("ParseVersion(%q) = %+v, %v; want %+v", c.in, got, err, c.want)
		}
	}
	for _, bad := range []string{"", "x.y", "v"} {
		if _, err := ParseVersion(bad); err == nil {
			t.Errorf("ParseVersion(%q) succeeded", bad)
		}
	}
}

func TestVersionCompare(t *testing.T) {
	a := Version{1, 2, 3}
	if a.Compare(Version{1, 2, 3}) != 0 || a.Compare(Version{1, 3, 0}) != -1 || a.Compare(Version{0, 9, 9}) != 1 {
		t.Error("Compare ordered versions incorrectly")
	}
	if !a.Compatible(Version{1, 0, -1}) || a.Compatible(Version{2, 2, 3}) {
		t.Error("Compatible does not follow the major version")
	}
	if s := (Version{1, 0, -1}).String(); s != "1.0" {
		t.Errorf("String() = %q", s)
	}
	if s := (Version{4, -1, -1}).MinorString(); s != "4.0" {
		t.Errorf("MinorString() = %q", s)
	}
}
