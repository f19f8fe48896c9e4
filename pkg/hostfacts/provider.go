package hostfacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cache "github.com/patrickmn/go-cache"
	"k8s.io/klog/v2"
)

var ErrNoSource = errors.New("NoSource")

// commandSources maps a command to the files a snapshot may store its output
// in, most preferred first.
var commandSources = map[string][]string{
	"dpkg_l":                    {"sos_commands/dpkg/dpkg_-l", "dpkg_-l"},
	"snap_list_all":             {"sos_commands/snap/snap_list_--all", "snap_list_--all"},
	"systemctl_list_unit_files": {"sos_commands/systemd/systemctl_list-unit-files", "systemctl_list-unit-files"},
	"sysctl_all":                {"sos_commands/kernel/sysctl_-a", "sysctl_-a"},
	"uname":                     {"sos_commands/kernel/uname_-a", "uname"},
	"uptime":                    {"uptime", "sos_commands/host/uptime"},
	"hostname":                  {"hostname", "etc/hostname"},
}

// Provider answers fact queries against a captured snapshot rooted at a data
// root. File reads and parsed tables are memoized and shared by every caller,
// so a Provider is safe to use from concurrent workers.
type Provider struct {
	root  string
	cache *cache.Cache
}

func NewProvider(root string) *Provider {
	return &Provider{
		root:  root,
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func (p *Provider) DataRoot() string {
	return p.root
}

// Path joins rel onto the data root.
func (p *Provider) Path(rel string) string {
	return filepath.Join(p.root, rel)
}

func (p *Provider) Exists(rel string) bool {
	_, err := os.Stat(p.Path(rel))
	return err == nil
}

func (p *Provider) ReadFile(rel string) ([]byte, error) {
	key := "file:" + rel
	if v, ok := p.cache.Get(key); ok {
		return v.([]byte), nil
	}

	content, err := os.ReadFile(p.Path(rel))
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, content, cache.NoExpiration)
	return content, nil
}

func (p *Provider) ReadLines(rel string) ([]string, error) {
	content, err := p.ReadFile(rel)
	if err != nil {
		return nil, err
	}
	return splitLines(string(content)), nil
}

// CommandOutput returns the captured output of a known command.
func (p *Provider) CommandOutput(name string) ([]string, error) {
	sources, ok := commandSources[name]
	if !ok {
		return nil, fmt.Errorf("unknown command %s", name)
	}
	for _, src := range sources {
		lines, err := p.ReadLines(src)
		if err == nil {
			return lines, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			klog.Warningf("failed to read %s output from %s: %v", name, src, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSource, name)
}

// memo caches the value built by fn under key.
func memo[T any](p *Provider, key string, fn func() (T, error)) (T, error) {
	if v, ok := p.cache.Get(key); ok {
		return v.(T), nil
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	p.cache.Set(key, v, cache.NoExpiration)
	return v, nil
}

func (p *Provider) Hostname() string {
	lines, err := p.CommandOutput("hostname")
	if err != nil || len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[0])
}

func splitLines(content string) []string {
	content = strings.TrimRight(content, "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}
