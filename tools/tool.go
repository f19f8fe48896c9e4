package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/template"

	"k8s.io/klog/v2"
)

// TimestampLayout is the default layout of log timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// RenderTemplate renders tmp with data. Keys that are not provided can be
// kept verbatim with {{keep "name"}}.
func RenderTemplate(name, tmp string, data map[string]interface{}, funcs template.FuncMap) (string, error) {
	keep := func(key string) string {
		return fmt.Sprintf("{{.%s}}", key)
	}
	funcMap := template.FuncMap{
		"keep": keep,
	}
	for k, f := range funcs {
		funcMap[k] = f
	}

	tmpl, err := template.New(name).Funcs(funcMap).Option("missingkey=error").Parse(tmp)
	if err != nil {
		return "", err
	}
	buf := &bytes.Buffer{}
	if err := tmpl.Execute(buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type Exiter func(code int)

// HandleInterrupt cancels the run on SIGINT or SIGTERM and exits without
// emitting partial results.
func HandleInterrupt(ctx context.Context, cancel context.CancelFunc, exit Exiter) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signalChan)

	select {
	case sig := <-signalChan:
		klog.InfoS("Received signal, aborting run", "signal", sig.String())
		cancel()
		exit(130)
	case <-ctx.Done():
	}
}
