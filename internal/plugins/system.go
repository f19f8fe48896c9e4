package plugins

import (
	"context"
	"fmt"
)

func init() {
	RegisterCollector("system", collectorFunc{name: "system-info", fn: collectSystem})
}

func collectSystem(_ context.Context, r *Runner) (map[string]interface{}, error) {
	facts := r.Facts()
	out := map[string]interface{}{}

	if h := facts.Hostname(); h != "" {
		out["hostname"] = h
	}
	if v, ok, _ := facts.ConfigValue("etc/lsb-release", "DISTRIB_CODENAME"); ok {
		out["os"] = fmt.Sprintf("ubuntu %s", v)
	}
	if u, ok := facts.Uptime(); ok {
		out["uptime"] = fmt.Sprintf("%dd:%dh:%dm", u.Minutes/(24*60), u.Minutes/60%24, u.Minutes%60)
		out["load"] = u.LoadAvg
	}
	if pkgs, err := facts.Packages(); err == nil {
		out["num-installed-packages"] = len(pkgs)
	}
	if units, err := facts.UnitFiles(); err == nil {
		enabled := 0
		for _, state := range units {
			if state == "enabled" {
				enabled++
			}
		}
		out["num-enabled-units"] = enabled
	}
	return out, nil
}
