package plugins

import (
	"context"
	"strings"
)

func init() {
	RegisterCollector("kernel", collectorFunc{name: "kernel-info", fn: collectKernel})
}

// collectKernel reports the running kernel, its boot parameters and the cpu
// isolation settings of the host.
func collectKernel(_ context.Context, r *Runner) (map[string]interface{}, error) {
	facts := r.Facts()
	out := map[string]interface{}{}

	if v := facts.KernelVersion(); v != "" {
		out["version"] = v
	}
	if cmdline, err := facts.KernelCmdline(); err == nil && len(cmdline) > 0 {
		out["boot"] = strings.Join(cmdline, " ")
	}

	if v, ok, _ := facts.ConfigValue("etc/systemd/system.conf", "CPUAffinity"); ok && v != "" {
		out["systemd"] = map[string]interface{}{"CPUAffinity": v}
	}

	cpu := map[string]interface{}{}
	if lines, err := facts.ReadLines("sys/devices/system/cpu/isolated"); err == nil && len(lines) > 0 && lines[0] != "" {
		cpu["isolated"] = strings.TrimSpace(lines[0])
	}
	if lines, err := facts.ReadLines("sys/devices/system/cpu/cpu0/cpufreq/scaling_governor"); err == nil && len(lines) > 0 {
		cpu["governor"] = strings.TrimSpace(lines[0])
	}
	if len(cpu) > 0 {
		out["cpu"] = cpu
	}
	return out, nil
}
