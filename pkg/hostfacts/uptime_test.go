package hostfacts

import "testing"

func TestParseUptime(t *testing.T) {
	cases := []struct {
		line    string
		minutes int
		loadavg string
	}{
		{" 10:44:11 up  5:41,  1 user,  load average: 0.01, 0.02, 0.00", 341, "0.01, 0.02, 0.00"},
		{" 10:44:11 up 3 days,  2:10,  2 users,  load average: 1.00, 0.50, 0.25", 3*24*60 + 130, "1.00, 0.50, 0.25"},
		{" 10:44:11 up 42 min,  0 users,  load average: 3.10, 2.00, 1.00", 42, "3.10, 2.00, 1.00"},
	}
	for _, c := range cases {
		u, ok := ParseUptime(c.line)
		if !ok {
			t.Errorf("failed to parse %q", c.line)
			continue
		}
		if u.Minutes != c.minutes || u.LoadAvg != c.loadavg {
			t.Errorf("%q: want (%d, %q) got (%d, %q)", c.line, c.minutes, c.loadavg, u.Minutes, u.LoadAvg)
		}
	}

	if _, ok := ParseUptime("garbage"); ok {
		t.Errorf("garbage should not parse")
	}

	u := Uptime{Minutes: 125}
	if u.Hours() != 2 || u.Seconds() != 7500 {
		t.Errorf("unexpected conversions %d %d", u.Hours(), u.Seconds())
	}
}
