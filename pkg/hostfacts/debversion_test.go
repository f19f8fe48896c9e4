package hostfacts

import "testing"

func TestCompareDebVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.0", "1.1", -1},
		{"1.10", "1.9", 1},
		{"1:1.0", "2.0", 1},
		{"1.0~rc1", "1.0", -1},
		{"1.0-1", "1.0-2", -1},
		{"2.31-0ubuntu9.9", "2.31-0ubuntu9.10", -1},
		{"008-1build1", "008-1", 1},
		{"1.0a", "1.0", 1},
		{"1.0+b1", "1.0a", 1},
		{"0.0001", "0.1", 0},
	}
	for _, c := range cases {
		if got := CompareDebVersions(c.a, c.b); got != c.want {
			t.Errorf("compare(%q, %q): want %d got %d", c.a, c.b, c.want, got)
		}
		if got := CompareDebVersions(c.b, c.a); got != -c.want {
			t.Errorf("compare(%q, %q): want %d got %d", c.b, c.a, -c.want, got)
		}
	}
}
