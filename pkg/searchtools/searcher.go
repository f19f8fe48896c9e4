package searchtools

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/scitix/snapcheck/pkg/metrics"
)

const maxLineSize = 4 * 1024 * 1024

type Options struct {
	// AllLogs includes the logrotate history of every path.
	AllLogs bool
	// MaxLogrotateDepth caps the rotated files scanned per path.
	MaxLogrotateDepth int
	// MaxParallel bounds the number of files scanned concurrently.
	MaxParallel int
}

type registration struct {
	path     string
	liveOnly bool
}

type AddOption func(*registration)

// LiveOnly restricts a registration to the current file even when the
// searcher includes rotated history.
func LiveOnly() AddOption {
	return func(r *registration) {
		r.liveOnly = true
	}
}

// FileSearcher collects tagged definitions per path and scans each distinct
// file exactly once, feeding every line to all definitions bound to it.
type FileSearcher struct {
	opts Options

	order []registration
	defs  map[registration][]Definition
}

func NewFileSearcher(opts Options) *FileSearcher {
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	return &FileSearcher{
		opts: opts,
		defs: make(map[registration][]Definition),
	}
}

// Add registers def against path. Several definitions may target the same
// path; they are all served by a single scan.
func (s *FileSearcher) Add(def Definition, path string, opts ...AddOption) {
	r := registration{path: path}
	for _, o := range opts {
		o(&r)
	}
	if _, ok := s.defs[r]; !ok {
		s.order = append(s.order, r)
	}
	s.defs[r] = append(s.defs[r], def)
}

func (s *FileSearcher) Empty() bool {
	return len(s.order) == 0
}

type fileJob struct {
	path string
	defs []Definition
}

// Search executes the pending plan. It never fails as a whole: files that
// cannot be read are recorded as SearchIOErrors on the returned collection
// and their searches produce no results.
func (s *FileSearcher) Search(ctx context.Context) *ResultCollection {
	collection := newResultCollection()

	jobs, index := []*fileJob{}, map[string]*fileJob{}
	for _, r := range s.order {
		files, err := expandPath(r.path, s.opts.AllLogs && !r.liveOnly, s.opts.MaxLogrotateDepth)
		if err != nil {
			klog.V(2).Infof("search path %s not available: %v", r.path, err)
			collection.errs = append(collection.errs, &SearchIOError{Path: r.path, Err: err})
			continue
		}
		for _, f := range files {
			job, ok := index[f]
			if !ok {
				job = &fileJob{path: f}
				index[f] = job
				jobs = append(jobs, job)
			}
			job.defs = appendUnique(job.defs, s.defs[r]...)
		}
	}

	type fileResult struct {
		results []SearchResult
		err     error
	}
	out := make([]fileResult, len(jobs))

	var mu sync.Mutex
	g := errgroup.Group{}
	g.SetLimit(s.opts.MaxParallel)
	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results, err := scanFile(job.path, job.defs)
			mu.Lock()
			out[i] = fileResult{results: results, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i, job := range jobs {
		res := out[i]
		if res.err != nil {
			klog.Warningf("search of %s failed, dropping its results: %v", job.path, res.err)
			metrics.OnFileScanError()
			collection.errs = append(collection.errs, &SearchIOError{Path: job.path, Err: res.err})
			continue
		}
		collection.files = append(collection.files, job.path)
		for _, r := range res.results {
			collection.byTag[r.Tag] = append(collection.byTag[r.Tag], r)
		}
		metrics.OnSearchMatches(len(res.results))
	}

	klog.V(4).Infof("search pass complete: %d files, %d results", len(collection.files), collection.Len())
	return collection
}

func appendUnique(defs []Definition, add ...Definition) []Definition {
	for _, d := range add {
		dup := false
		for _, existing := range defs {
			if existing.Tag() == d.Tag() {
				dup = true
				break
			}
		}
		if !dup {
			defs = append(defs, d)
		}
	}
	return defs
}

func scanFile(path string, defs []Definition) ([]SearchResult, error) {
	klog.V(4).Infof("scanning %s with %d definitions", path, len(defs))
	metrics.OnFileScan()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}

	matchers := make([]matcher, len(defs))
	for i, d := range defs {
		matchers[i] = d.newMatcher(path)
	}

	var results []SearchResult
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for _, m := range matchers {
			results = append(results, m.feed(lineNo, line)...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	for _, m := range matchers {
		results = append(results, m.finish()...)
	}
	return results, nil
}
