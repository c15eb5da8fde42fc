package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// existsSet is a FilesystemManager that only answers Exists.
type existsSet map[string]bool

func (existsSet) Scan(context.Context, string) (*ScanResult, error) { return nil, nil }
func (s existsSet) Exists(path string) bool                          { return s[path] }

func TestRawBackupPlanner_Plan(t *testing.T) {
	ts := time.Date(2024, 6, 15, 18, 45, 30, 0, time.UTC)
	root := filepath.Join("/backup")
	source := filepath.Join("/card")
	base := filepath.Join(root, "2024-06-15_184530")
	files := []ScannedFile{
		{Path: filepath.Join(source, "DCIM", "100", "a.nef")},
		{Path: filepath.Join(source, "b.jpg")},
		{Path: filepath.Join("/elsewhere", "c.jpg")},
	}

	t.Run("keeps structure", func(t *testing.T) {
		p := NewRawBackupPlanner(existsSet{}, "")
		plan, err := p.Plan(files, source, root, ts)
		if err != nil {
			t.Fatal(err)
		}
		if plan.Dir != base {
			t.Errorf("Dir = %q, want %q", plan.Dir, base)
		}
		want := map[string]string{
			files[0].Path: filepath.Join(base, "DCIM", "100", "a.nef"),
			files[1].Path: filepath.Join(base, "b.jpg"),
			files[2].Path: filepath.Join(base, "c.jpg"),
		}
		for src, target := range want {
			got, ok := plan.Target(src)
			if !ok || got != target {
				t.Errorf("Target(%s) = %q, %v; want %q", src, got, ok, target)
			}
		}
		if _, ok := plan.Target("/unknown"); ok {
			t.Error("Target() found an unplanned source")
		}
	})

	t.Run("existing directory gets suffix", func(t *testing.T) {
		p := NewRawBackupPlanner(existsSet{base: true, base + "_01": true}, "")
		plan, err := p.Plan(files, source, root, ts)
		if err != nil {
			t.Fatal(err)
		}
		if plan.Dir != base+"_02" {
			t.Errorf("Dir = %q, want %q", plan.Dir, base+"_02")
		}
	})

	t.Run("claims within one process", func(t *testing.T) {
		p := NewRawBackupPlanner(existsSet{}, "")
		first, err := p.Plan(files, source, root, ts)
		if err != nil {
			t.Fatal(err)
		}
		second, err := p.Plan(files, source, root, ts)
		if err != nil {
			t.Fatal(err)
		}
		if first.Dir == second.Dir {
			t.Errorf("two plans share %q", first.Dir)
		}
	})

	t.Run("preview does not claim", func(t *testing.T) {
		p := NewRawBackupPlanner(existsSet{}, "")
		preview, err := p.Preview(files, source, root, ts)
		if err != nil {
			t.Fatal(err)
		}
		plan, err := p.Plan(files, source, root, ts)
		if err != nil {
			t.Fatal(err)
		}
		if preview.Dir != plan.Dir {
			t.Errorf("preview %q differs from plan %q", preview.Dir, plan.Dir)
		}
	})

	t.Run("concurrent plans never collide", func(t *testing.T) {
		p := NewRawBackupPlanner(existsSet{}, "")
		var mu sync.Mutex
		seen := make(map[string]bool)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				plan, err := p.Plan(files, source, root, ts)
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if seen[plan.Dir] {
					t.Errorf("directory %q handed out twice", plan.Dir)
				}
				seen[plan.Dir] = true
			}()
		}
		wg.Wait()
	})

	t.Run("exhausted", func(t *testing.T) {
		taken := existsSet{base: true}
		for n := 1; n <= maxBackupSuffix; n++ {
			taken[fmt.Sprintf("%s_%02d", base, n)] = true
		}
		_, err := NewRawBackupPlanner(taken, "").Plan(files, source, root, ts)
		if !errors.Is(err, ErrBackupDirExhausted) {
			t.Fatalf("Plan() error = %v, want ErrBackupDirExhausted", err)
		}
	})

	t.Run("no backup root", func(t *testing.T) {
		_, err := NewRawBackupPlanner(existsSet{}, "").Plan(files, source, "", ts)
		var planErr *PlanningError
		if !errors.As(err, &planErr) {
			t.Fatalf("Plan() error = %v, want PlanningError", err)
		}
	})

	t.Run("custom layout", func(t *testing.T) {
		plan, err := NewRawBackupPlanner(existsSet{}, "20060102").Plan(files, source, root, ts)
		if err != nil {
			t.Fatal(err)
		}
		if plan.Dir != filepath.Join(root, "20240615") {
			t.Errorf("Dir = %q", plan.Dir)
		}
	})
}
