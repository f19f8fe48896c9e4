package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(fileScans)
	OnFileScan()
	OnFileScan()
	if got := testutil.ToFloat64(fileScans) - before; got != 2 {
		t.Errorf("file scans: want 2 got %v", got)
	}

	before = testutil.ToFloat64(issuesRaised.WithLabelValues("kernel", "KernelWarning"))
	OnIssue("kernel", "KernelWarning")
	if got := testutil.ToFloat64(issuesRaised.WithLabelValues("kernel", "KernelWarning")) - before; got != 1 {
		t.Errorf("issues raised: want 1 got %v", got)
	}

	before = testutil.ToFloat64(checkResults.WithLabelValues("true"))
	OnCheckResult(true)
	OnCheckResult(false)
	if got := testutil.ToFloat64(checkResults.WithLabelValues("true")) - before; got != 1 {
		t.Errorf("check results true: want 1 got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	OnScenario("system", true)

	path := filepath.Join(t.TempDir(), "snapcheck.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "snapcheck_scenario_evaluations_total") {
		t.Errorf("textfile does not contain scenario metric:\n%s", content)
	}
}
