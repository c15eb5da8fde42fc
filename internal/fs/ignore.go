package fs

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// defaultIgnorePatterns are applied before configured and per-source rules.
// In-flight placement temp files and the ignore file itself never count as
// photos.
var defaultIgnorePatterns = []string{IgnoreFileName, ".ingest-*"}

type ignoreRule struct {
	glob    string
	negate  bool // "!pattern" re-includes a previously ignored path
	dirOnly bool // "pattern/" only matches directories
	anchor  bool // contains a '/', matched against the path from the source root
}

// IgnoreMatcher decides which entries of a source tree the scanner skips.
// Rules are evaluated in order and the last matching rule wins, so a
// negated rule can re-include something an earlier rule ignored.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher parses raw pattern lines. Blank lines and lines starting
// with '#' are skipped. Invalid globs never match.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, raw := range append(append([]string{}, defaultIgnorePatterns...), rawPatterns...) {
		if r, ok := parseIgnoreRule(raw); ok {
			m.rules = append(m.rules, r)
		}
	}
	return m
}

func parseIgnoreRule(raw string) (ignoreRule, bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return ignoreRule{}, false
	}
	var r ignoreRule
	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.Contains(line, "/") {
		r.anchor = true
		line = strings.TrimPrefix(line, "/")
	}
	if line == "" {
		return ignoreRule{}, false
	}
	if _, err := path.Match(line, ""); err != nil {
		return ignoreRule{}, false
	}
	r.glob = line
	return r, true
}

// Match reports whether relPath (relative to the source root, OS separators)
// is ignored. isDir selects whether directory-only rules apply.
func (m *IgnoreMatcher) Match(relPath string, isDir bool) bool {
	if relPath == "" || relPath == "." {
		return false
	}
	slashed := filepath.ToSlash(relPath)
	base := path.Base(slashed)

	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		subject := base
		if r.anchor {
			subject = slashed
		}
		if ok, _ := path.Match(r.glob, subject); ok {
			ignored = !r.negate
		}
	}
	return ignored
}

// ParseIgnoreFile reads an ignore file and returns its raw lines.
// A missing file yields no patterns and no error.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file %s: %w", path, err)
	}
	return lines, nil
}
