package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultBackupTimestampLayout names raw backup directories.
const DefaultBackupTimestampLayout = "2006-01-02_150405"

const maxBackupSuffix = 99

// RawBackupEntry maps one source file to its backup location.
type RawBackupEntry struct {
	Source string
	Target string
}

// RawBackupPlan is the backup directory chosen for one run.
type RawBackupPlan struct {
	Dir     string
	Entries []RawBackupEntry
}

// Target returns the backup path planned for source, if any.
func (p *RawBackupPlan) Target(source string) (string, bool) {
	for _, e := range p.Entries {
		if e.Source == source {
			return e.Target, true
		}
	}
	return "", false
}

// RawBackupPlanner lays out structure-preserving backups under a fresh
// timestamped directory per run.
type RawBackupPlanner struct {
	fsmgr  FilesystemManager
	layout string

	mu      sync.Mutex
	claimed map[string]bool
}

func NewRawBackupPlanner(fsmgr FilesystemManager, layout string) *RawBackupPlanner {
	if layout == "" {
		layout = DefaultBackupTimestampLayout
	}
	return &RawBackupPlanner{fsmgr: fsmgr, layout: layout, claimed: make(map[string]bool)}
}

// Plan chooses and claims the backup directory for this run. A name is
// unavailable when it exists on disk or was claimed earlier by this planner.
func (p *RawBackupPlanner) Plan(files []ScannedFile, sourceRoot, backupRoot string, runTimestamp time.Time) (*RawBackupPlan, error) {
	return p.plan(files, sourceRoot, backupRoot, runTimestamp, true)
}

// Preview is Plan without claiming the directory, for dry runs.
func (p *RawBackupPlanner) Preview(files []ScannedFile, sourceRoot, backupRoot string, runTimestamp time.Time) (*RawBackupPlan, error) {
	return p.plan(files, sourceRoot, backupRoot, runTimestamp, false)
}

func (p *RawBackupPlanner) plan(files []ScannedFile, sourceRoot, backupRoot string, runTimestamp time.Time, claim bool) (*RawBackupPlan, error) {
	if backupRoot == "" {
		return nil, &PlanningError{Path: sourceRoot, Reason: "raw backup is enabled but no backup root is configured"}
	}

	dir, err := p.resolveDir(filepath.Join(backupRoot, runTimestamp.Format(p.layout)), claim)
	if err != nil {
		return nil, err
	}

	plan := &RawBackupPlan{Dir: dir, Entries: make([]RawBackupEntry, 0, len(files))}
	taken := make(map[string]bool)
	for _, f := range files {
		plan.Entries = append(plan.Entries, RawBackupEntry{
			Source: f.Path,
			Target: uniqueInPlan(filepath.Join(dir, relativeToRoot(f.Path, sourceRoot)), taken),
		})
	}
	return plan, nil
}

func (p *RawBackupPlanner) resolveDir(base string, claim bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for n := 0; n <= maxBackupSuffix; n++ {
		candidate := base
		if n > 0 {
			candidate = fmt.Sprintf("%s_%02d", base, n)
		}
		if p.claimed[candidate] || p.fsmgr.Exists(candidate) {
			continue
		}
		if claim {
			p.claimed[candidate] = true
		}
		return candidate, nil
	}
	return "", fmt.Errorf("%s: %w after %d attempts", base, ErrBackupDirExhausted, maxBackupSuffix)
}

// relativeToRoot keeps the path relative to root, or just the file name
// when the file is outside root.
func relativeToRoot(path, root string) string {
	if root != "" {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != "." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != ".." {
			return rel
		}
	}
	return filepath.Base(path)
}
