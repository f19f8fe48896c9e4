package engine

import (
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/scitix/snapcheck/pkg/searchtools"
)

// Input names the files a search reads, relative to the data root.
type Input struct {
	Paths []string
	// LiveOnly disables rotated history for these paths.
	LiveOnly bool
}

func loadInput(path string, n *yaml.Node, vars map[string]interface{}) (*Input, error) {
	n = resolveNode(n)
	in := &Input{}

	if n != nil && n.Kind != yaml.MappingNode {
		paths, err := stringList(path, n)
		if err != nil {
			return nil, err
		}
		in.Paths = paths
	} else {
		pairs, err := mappingPairs(path, n)
		if err != nil {
			return nil, err
		}
		if err := checkKeys(path, kindInput, pairs); err != nil {
			return nil, err
		}
		for _, p := range pairs {
			switch p.key {
			case "path", "paths":
				paths, err := stringList(joinPath(path, p.key), p.value)
				if err != nil {
					return nil, err
				}
				in.Paths = append(in.Paths, paths...)
			case "options":
				var opts struct {
					DisableAllLogs bool `yaml:"disable-all-logs"`
				}
				if err := p.value.Decode(&opts); err != nil {
					return nil, definitionErrorf(joinPath(path, p.key), "%v", err)
				}
				in.LiveOnly = opts.DisableAllLogs
			}
		}
	}

	if len(in.Paths) == 0 {
		return nil, definitionErrorf(path, "input declares no paths")
	}
	for i, p := range in.Paths {
		expanded, err := expandVar(path, p, vars)
		if err != nil {
			return nil, err
		}
		in.Paths[i] = expanded
	}
	return in, nil
}

// register binds def to every input path under root.
func (in *Input) register(searcher *searchtools.FileSearcher, root string, def searchtools.Definition) {
	var opts []searchtools.AddOption
	if in.LiveOnly {
		opts = append(opts, searchtools.LiveOnly())
	}
	for _, p := range in.Paths {
		searcher.Add(def, filepath.Join(root, p), opts...)
	}
}
