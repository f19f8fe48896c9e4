package issues

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func TestStoreAdd(t *testing.T) {
	s := NewStore()
	if s.RunID() == "" {
		t.Fatalf("run id not set")
	}

	if err := s.Add(Issue{Type: "KernelWarning", Desc: "a"}); !errors.Is(err, ErrEmptyPlugin) {
		t.Errorf("want ErrEmptyPlugin got %v", err)
	}
	if err := s.Add(Issue{Plugin: "kernel", Desc: "a"}); !errors.Is(err, ErrEmptyType) {
		t.Errorf("want ErrEmptyType got %v", err)
	}

	for _, issue := range []Issue{
		{Plugin: "kernel", Type: "KernelWarning", Desc: "first"},
		{Plugin: "kernel", Type: "MemoryWarning", Desc: "second"},
		{Plugin: "kernel", Type: "KernelWarning", Desc: "third"},
		{Plugin: "system", Type: "SystemWarning", Desc: "fourth"},
	} {
		if err := s.Add(issue); err != nil {
			t.Fatal(err)
		}
	}

	all := s.All()
	if len(all["kernel"]) != 3 || len(all["system"]) != 1 {
		t.Errorf("unexpected grouping %v", all)
	}
	byType := s.ByType("kernel")
	if len(byType["KernelWarning"]) != 2 || byType["KernelWarning"][1] != "third" {
		t.Errorf("unexpected by-type grouping %v", byType)
	}
	if plugins := s.Plugins(); len(plugins) != 2 || plugins[0] != "kernel" {
		t.Errorf("unexpected plugins %v", plugins)
	}
}

func TestStoreConcurrentAdd(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Add(Issue{Plugin: "p", Type: "T", Desc: "d"})
		}()
	}
	wg.Wait()
	if got := len(s.Plugin("p")); got != 50 {
		t.Errorf("want 50 issues got %d", got)
	}
}

func TestStoreSaveLoad(t *testing.T) {
	s := NewStore()
	_ = s.Add(Issue{Plugin: "kernel", Type: "KernelWarning", Desc: "oom", Origin: "kernel.memory.oom"})

	path := filepath.Join(t.TempDir(), "issues.yaml")
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.RunID() != s.RunID() {
		t.Errorf("run id: want %s got %s", s.RunID(), loaded.RunID())
	}
	got := loaded.Plugin("kernel")
	if len(got) != 1 || got[0] != (Issue{Plugin: "kernel", Type: "KernelWarning", Desc: "oom", Origin: "kernel.memory.oom"}) {
		t.Errorf("unexpected issues after load %+v", got)
	}
}
