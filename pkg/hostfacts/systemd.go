package hostfacts

import (
	"strings"
)

// UnitFileState returns the unit file state (enabled, disabled, masked,
// static, ...) of a systemd unit. Units may be given with or without the
// .service suffix.
func (p *Provider) UnitFileState(unit string) (string, bool, error) {
	units, err := memo(p, "unit-files", p.loadUnitFiles)
	if err != nil {
		return "", false, err
	}
	if state, ok := units[unit]; ok {
		return state, true, nil
	}
	state, ok := units[unit+".service"]
	return state, ok, nil
}

func (p *Provider) UnitFiles() (map[string]string, error) {
	return memo(p, "unit-files", p.loadUnitFiles)
}

func (p *Provider) loadUnitFiles() (map[string]string, error) {
	lines, err := p.CommandOutput("systemctl_list_unit_files")
	if err != nil {
		return nil, err
	}

	units := make(map[string]string)
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] == "UNIT" {
			continue
		}
		if !strings.Contains(fields[0], ".") {
			continue
		}
		units[fields[0]] = fields[1]
	}
	return units, nil
}
