package maven

import "testing"

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0.0", 0},
		{"1", "1-ga", 0},
		{"1.0", "1.1", -1},
		{"1.10", "1.9", 1},
		{"1.0-alpha", "1.0-beta", -1},
		{"1.0-beta-2", "1.0-beta-10", -1},
		{"1.0-M1", "1.0-RC1", -1},
		{"1.0-rc1", "1.0-SNAPSHOT", -1},
		{"1.0-SNAPSHOT", "1.0", -1},
		{"1.0", "1.0-sp1", -1},
		{"1.0.1", "1.0-alpha", 1},
		{"2.0-android", "2.0-jre", -1},
		{"1.0-sp", "1.0-zeta", -1},
		{"007", "7", 0},
		{"1.0-alpha", "1-alpha", 0},
		{"1.0.0-rc1", "1-rc1", 0},
		{"1.0.0-alpha", "1.0-beta", -1},
		{"1.0-1", "1-1", 0},
		{"1.0.0-alpha", "1.0", -1},
		{"1-1", "1.1", -1},
		{"1.0-a1", "1.0-alpha-1", 0},
		{"1.0-cr2", "1.0-rc-2", 0},
	}
	for _, tc := range cases {
		if got := CompareVersions(tc.a, tc.b); got != tc.want {
			t.Fatalf("CompareVersions(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
		if got := CompareVersions(tc.b, tc.a); got != -tc.want {
			t.Fatalf("CompareVersions(%q, %q) not antisymmetric: %d", tc.b, tc.a, got)
		}
	}
}
