package plugins

import (
	"context"
	"fmt"
)

// Collector builds part of a plugin summary from the snapshot.
type Collector interface {
	Name() string
	Collect(ctx context.Context, r *Runner) (map[string]interface{}, error)
}

var collectors = make(map[string][]Collector)

// RegisterCollector adds a collector to a plugin. Collectors run in the
// order they were registered.
func RegisterCollector(plugin string, c Collector) error {
	for _, existing := range collectors[plugin] {
		if existing.Name() == c.Name() {
			return fmt.Errorf("collector %s already registered for %s", c.Name(), plugin)
		}
	}
	collectors[plugin] = append(collectors[plugin], c)
	return nil
}

type collectorFunc struct {
	name string
	fn   func(ctx context.Context, r *Runner) (map[string]interface{}, error)
}

func (c collectorFunc) Name() string {
	return c.name
}

func (c collectorFunc) Collect(ctx context.Context, r *Runner) (map[string]interface{}, error) {
	return c.fn(ctx, r)
}
