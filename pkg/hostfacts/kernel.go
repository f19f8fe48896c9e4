package hostfacts

import (
	"bufio"
	"regexp"
	"strings"
)

// Sysctl returns the value of a kernel parameter.
func (p *Provider) Sysctl(key string) (string, bool, error) {
	values, err := memo(p, "sysctl", p.loadSysctl)
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (p *Provider) loadSysctl() (map[string]string, error) {
	lines, err := p.CommandOutput("sysctl_all")
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	for _, line := range lines {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return values, nil
}

// KernelCmdline returns the boot parameters from proc/cmdline.
func (p *Provider) KernelCmdline() ([]string, error) {
	return memo(p, "cmdline", func() ([]string, error) {
		content, err := p.ReadFile("proc/cmdline")
		if err != nil {
			return nil, err
		}
		return strings.Fields(string(content)), nil
	})
}

// KernelVersion returns the running kernel release from uname -a.
func (p *Provider) KernelVersion() string {
	lines, err := p.CommandOutput("uname")
	if err != nil || len(lines) == 0 {
		return ""
	}
	fields := strings.Fields(lines[0])
	if len(fields) < 3 {
		return ""
	}
	return fields[2]
}

var configLine = regexp.MustCompile(`^\s*([^#;=:\s]+)\s*[=:\s]\s*(.*?)\s*$`)

// ConfigValue reads key from a simple key/value configuration file. Keys and
// values may be separated by '=', ':' or whitespace; quotes around values are
// stripped and the last assignment wins.
func (p *Provider) ConfigValue(path, key string) (string, bool, error) {
	content, err := p.ReadFile(path)
	if err != nil {
		return "", false, err
	}

	var (
		value string
		found bool
	)
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	for scanner.Scan() {
		m := configLine.FindStringSubmatch(scanner.Text())
		if m == nil || m[1] != key {
			continue
		}
		value, found = strings.Trim(m[2], `"'`), true
	}
	return value, found, scanner.Err()
}
