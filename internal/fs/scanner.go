package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"photo-ingest/internal/ingest"
)

// IgnoreFileName is read from the root of every scanned source.
const IgnoreFileName = ".ingestignore"

// ScannerOptions lists the supported extensions per file type, without
// dots, plus ignore patterns applied on top of the source's ignore file.
type ScannerOptions struct {
	Raw    []string
	JPEG   []string
	Video  []string
	Ignore []string
}

// Scanner is the real-filesystem FilesystemManager. It records per
// directory state so unchanged directories can be served from caches.
type Scanner struct {
	cache  ingest.DirScanCache
	types  map[string]ingest.FileType
	ignore []string
	logger ingest.Logger
	clock  ingest.Clock
}

// NewScanner creates a Scanner. cache may be nil, in which case no file is
// ever marked as cached.
func NewScanner(cache ingest.DirScanCache, opts ScannerOptions, logger ingest.Logger, clock ingest.Clock) *Scanner {
	types := make(map[string]ingest.FileType)
	add := func(exts []string, t ingest.FileType) {
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
			if ext != "" {
				types["."+ext] = t
			}
		}
	}
	add(opts.Raw, ingest.TypeRaw)
	add(opts.JPEG, ingest.TypeJPEG)
	add(opts.Video, ingest.TypeVideo)

	return &Scanner{
		cache:  cache,
		types:  types,
		ignore: opts.Ignore,
		logger: logger,
		clock:  clock,
	}
}

// TypeOf returns the file type for path and whether it is supported.
func (s *Scanner) TypeOf(path string) (ingest.FileType, bool) {
	t, ok := s.types[strings.ToLower(filepath.Ext(path))]
	return t, ok
}

type dirState struct {
	scan ingest.DirScan
	// index into the result of every file found directly in the directory
	files []int
}

// Scan walks root recursively and returns supported, non-ignored regular
// files sorted by path. Unreadable subdirectories are logged and skipped.
func (s *Scanner) Scan(ctx context.Context, root string) (*ingest.ScanResult, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source is not a directory: %s", absRoot)
	}

	patterns, err := ParseIgnoreFile(filepath.Join(absRoot, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	matcher := NewIgnoreMatcher(append(append([]string{}, s.ignore...), patterns...))

	result := &ingest.ScanResult{Root: absRoot}
	dirs := make(map[string]*dirState)
	var order []string

	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if p == absRoot {
				return walkErr
			}
			s.logger.Warn("skipping unreadable path", "path", p, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return fmt.Errorf("calculating relative path: %w", err)
		}

		if d.IsDir() {
			if p != absRoot && matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			info, err := d.Info()
			if err != nil {
				s.logger.Warn("skipping directory", "path", p, "error", err)
				return filepath.SkipDir
			}
			dirs[p] = &dirState{scan: ingest.DirScan{Path: p, LastModified: info.ModTime().Unix()}}
			order = append(order, p)
			return nil
		}

		if !d.Type().IsRegular() || matcher.Match(rel, false) {
			return nil
		}
		fileType, ok := s.TypeOf(p)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			s.logger.Warn("skipping file", "path", p, "error", err)
			return nil
		}

		state := dirs[filepath.Dir(p)]
		state.scan.FileCount++
		if m := info.ModTime().Unix(); m > state.scan.LastModified {
			state.scan.LastModified = m
		}
		state.files = append(state.files, len(result.Files))
		result.Files = append(result.Files, ingest.ScannedFile{
			Path:    p,
			RelPath: rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Type:    fileType,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", absRoot, err)
	}

	now := s.clock.Now()
	for _, p := range order {
		state := dirs[p]
		state.scan.ScannedAt = now
		result.Dirs = append(result.Dirs, state.scan)

		if !s.unchanged(ctx, state.scan) {
			continue
		}
		result.Unchanged++
		for _, i := range state.files {
			result.Files[i].Cached = true
		}
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return result.Files[i].Path < result.Files[j].Path
	})
	return result, nil
}

// unchanged reports whether the directory's watermark has not advanced and
// its file count is the same as at the last recorded scan.
func (s *Scanner) unchanged(ctx context.Context, observed ingest.DirScan) bool {
	if s.cache == nil {
		return false
	}
	cached, err := s.cache.GetDirScan(ctx, observed.Path)
	if err != nil {
		s.logger.Warn("directory cache read failed", "path", observed.Path, "error", err)
		return false
	}
	if cached == nil {
		return false
	}
	return observed.LastModified <= cached.LastModified && observed.FileCount == cached.FileCount
}

// Exists reports whether anything is present at path.
func (s *Scanner) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

var _ ingest.FilesystemManager = (*Scanner)(nil)
