package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fileScans = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "snapcheck",
		Subsystem: "search",
		Name:      "file_scans_total",
		Help:      "Count of files scanned by the search engine",
	})

	fileScanErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "snapcheck",
		Subsystem: "search",
		Name:      "file_scan_errors_total",
		Help:      "Count of files the search engine failed to read",
	})

	searchMatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "snapcheck",
		Subsystem: "search",
		Name:      "matches_total",
		Help:      "Count of search results produced by all search passes",
	})

	checkResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapcheck",
		Subsystem: "check",
		Name:      "results_total",
		Help:      "Count of evaluated checks by outcome",
	}, []string{"result"})

	checkErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "snapcheck",
		Subsystem: "check",
		Name:      "errors_total",
		Help:      "Count of checks that failed to evaluate",
	})

	scenarioEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapcheck",
		Subsystem: "scenario",
		Name:      "evaluations_total",
		Help:      "Count of evaluated scenarios",
	}, []string{"plugin", "fired"})

	issuesRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapcheck",
		Subsystem: "issues",
		Name:      "raised_total",
		Help:      "Count of issues raised",
	}, []string{"plugin", "type"})
)

func OnFileScan() {
	fileScans.Inc()
}

func OnFileScanError() {
	fileScanErrors.Inc()
}

func OnSearchMatches(n int) {
	searchMatches.Add(float64(n))
}

func OnCheckResult(result bool) {
	checkResults.With(prometheus.Labels{"result": strconv.FormatBool(result)}).Inc()
}

func OnCheckError() {
	checkErrors.Inc()
}

func OnScenario(plugin string, fired bool) {
	scenarioEvaluations.With(prometheus.Labels{
		"plugin": plugin,
		"fired":  strconv.FormatBool(fired),
	}).Inc()
}

func OnIssue(plugin, issueType string) {
	issuesRaised.With(prometheus.Labels{
		"plugin": plugin,
		"type":   issueType,
	}).Inc()
}

// WriteTextfile dumps every registered metric in the node_exporter textfile
// format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
