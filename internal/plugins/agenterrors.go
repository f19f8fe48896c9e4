package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/scitix/snapcheck/pkg/searchtools"
)

func init() {
	RegisterCollector("openstack", collectorFunc{name: "agent-errors", fn: collectAgentErrors})
}

// agentLogs maps a service to the logs of its agents.
var agentLogs = map[string]string{
	"nova":    "var/log/nova/*.log",
	"neutron": "var/log/neutron/*.log",
	"cinder":  "var/log/cinder/*.log",
	"octavia": "var/log/octavia/*.log",
}

const agentErrorExpr = `^(\d{4}-\d{2}-\d{2}) (\d{2}:\d{2}):\d{2}\.\d+ \d+ (ERROR|WARNING) (\S+)`

// collectAgentErrors counts ERROR and WARNING log lines per service, level
// and module. Counts are keyed by date, or by date and minute when
// AgentErrorKeyByTime is set.
func collectAgentErrors(ctx context.Context, r *Runner) (map[string]interface{}, error) {
	searcher := searchtools.NewFileSearcher(r.Options().Search)
	services := make([]string, 0, len(agentLogs))
	for service := range agentLogs {
		services = append(services, service)
	}
	sort.Strings(services)

	for _, service := range services {
		def, err := searchtools.NewSearchDef("agent-errors."+service, "", agentErrorExpr)
		if err != nil {
			return nil, err
		}
		searcher.Add(def, filepath.Join(r.Facts().DataRoot(), agentLogs[service]))
	}
	results := searcher.Search(ctx)

	agentErrors := map[string]interface{}{}
	for _, service := range services {
		counts := map[string]map[string]map[string]int{}
		for _, res := range results.FindByTag("agent-errors." + service) {
			values := res.Values()
			if len(values) < 4 {
				continue
			}
			key := values[0]
			if r.Options().AgentErrorKeyByTime {
				key = fmt.Sprintf("%s %s", values[0], values[1])
			}
			level, module := values[2], values[3]
			if counts[level] == nil {
				counts[level] = map[string]map[string]int{}
			}
			if counts[level][module] == nil {
				counts[level][module] = map[string]int{}
			}
			counts[level][module][key]++
		}
		if len(counts) > 0 {
			agentErrors[service] = counts
		}
	}

	if len(agentErrors) == 0 {
		return nil, nil
	}
	return map[string]interface{}{"agent-errors": agentErrors}, nil
}
