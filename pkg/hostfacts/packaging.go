package hostfacts

import (
	"strings"
)

// PackageVersion returns the installed version of a dpkg package.
func (p *Provider) PackageVersion(name string) (string, bool, error) {
	pkgs, err := memo(p, "dpkg", p.loadDpkg)
	if err != nil {
		return "", false, err
	}
	v, ok := pkgs[name]
	return v, ok, nil
}

// Packages returns every installed dpkg package and its version.
func (p *Provider) Packages() (map[string]string, error) {
	return memo(p, "dpkg", p.loadDpkg)
}

func (p *Provider) loadDpkg() (map[string]string, error) {
	lines, err := p.CommandOutput("dpkg_l")
	if err != nil {
		return nil, err
	}

	pkgs := make(map[string]string)
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 3 || (fields[0] != "ii" && fields[0] != "hi") {
			continue
		}
		name := fields[1]
		if i := strings.Index(name, ":"); i >= 0 {
			name = name[:i]
		}
		pkgs[name] = fields[2]
	}
	return pkgs, nil
}

// SnapVersion returns the version of the active revision of a snap.
func (p *Provider) SnapVersion(name string) (string, bool, error) {
	snaps, err := memo(p, "snaps", p.loadSnaps)
	if err != nil {
		return "", false, err
	}
	v, ok := snaps[name]
	return v, ok, nil
}

func (p *Provider) loadSnaps() (map[string]string, error) {
	lines, err := p.CommandOutput("snap_list_all")
	if err != nil {
		return nil, err
	}

	snaps := make(map[string]string)
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[0] == "Name" {
			continue
		}
		if strings.Contains(line, "disabled") {
			continue
		}
		snaps[fields[0]] = fields[1]
	}
	return snaps, nil
}
