package hostfacts

import (
	"regexp"
	"strconv"

	"k8s.io/klog/v2"
)

var (
	// covers the formats produced by procps uptime: "5:41", "3 days, 2:10"
	// and "42 min".
	uptimeExpr = regexp.MustCompile(`^\s*[\d:]+ up (?:([\d:]+)|(\d+\s+\S+,\s+[\d:]+)|(\d+\s+\S+)),.+ load average: (.+)`)
	hourExpr   = regexp.MustCompile(`(\d+):(\d+)`)
	dayExpr    = regexp.MustCompile(`(\d+)\s+\S+,\s+(\d+):(\d+)`)
	minExpr    = regexp.MustCompile(`(\d+)\s+(\S+)`)
)

type Uptime struct {
	Minutes int
	LoadAvg string
}

func (u Uptime) Seconds() int {
	return u.Minutes * 60
}

func (u Uptime) Hours() int {
	return u.Minutes / 60
}

// ParseUptime parses the output of the uptime command.
func ParseUptime(line string) (Uptime, bool) {
	m := uptimeExpr.FindStringSubmatch(line)
	if m == nil {
		return Uptime{}, false
	}

	u := Uptime{LoadAvg: m[4]}
	atoi := func(s string) int {
		v, _ := strconv.Atoi(s)
		return v
	}

	switch {
	case m[1] != "":
		if r := hourExpr.FindStringSubmatch(m[1]); r != nil {
			u.Minutes = atoi(r[1])*60 + atoi(r[2])
			return u, true
		}
	case m[2] != "":
		if r := dayExpr.FindStringSubmatch(m[2]); r != nil {
			u.Minutes = atoi(r[1])*24*60 + atoi(r[2])*60 + atoi(r[3])
			return u, true
		}
	case m[3] != "":
		if r := minExpr.FindStringSubmatch(m[3]); r != nil {
			u.Minutes = atoi(r[1])
			return u, true
		}
	}

	klog.Warningf("unknown uptime format in %q", line)
	return Uptime{}, false
}

// Uptime returns the parsed uptime of the snapshot host.
func (p *Provider) Uptime() (Uptime, bool) {
	lines, err := p.CommandOutput("uptime")
	if err != nil || len(lines) == 0 {
		klog.V(2).Info("uptime not available")
		return Uptime{}, false
	}
	return ParseUptime(lines[0])
}
