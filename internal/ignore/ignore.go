// Package ignore matches corpus paths against gitignore-style patterns.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileName is the ignore file read from the corpus root.
const FileName = ".opsdocsignore"

// Matcher decides whether a corpus-relative path is ignored.
type Matcher struct {
	rules []rule
}

type rule struct {
	pattern  string
	anchored bool // pattern contains a slash and matches from the root
	dirOnly  bool // pattern ended with a slash
}

// New compiles patterns. Blank lines, comments and negations are skipped.
func New(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	seen := make(map[string]bool)
	for _, line := range patterns {
		r, ok := parseLine(line)
		if !ok {
			continue
		}
		if _, err := path.Match(r.pattern, "probe"); err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", line, err)
		}
		key := fmt.Sprintf("%s|%t|%t", r.pattern, r.anchored, r.dirOnly)
		if seen[key] {
			continue
		}
		seen[key] = true
		m.rules = append(m.rules, r)
	}
	return m, nil
}

// Load reads root/.opsdocsignore, if present, and combines it with extra.
func Load(root string, extra []string) (*Matcher, error) {
	patterns := append([]string(nil), extra...)
	filePatterns, err := readFile(filepath.Join(root, FileName))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return New(append(patterns, filePatterns...))
}

func readFile(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// Match reports whether relPath, relative to the corpus root, is ignored.
// A path is also ignored when any of its parent directories is.
func (m *Matcher) Match(relPath string, isDir bool) bool {
	if m == nil || len(m.rules) == 0 {
		return false
	}
	rel := strings.Trim(filepath.ToSlash(relPath), "/")
	if rel == "" || rel == "." {
		return false
	}
	segments := strings.Split(rel, "/")
	for _, r := range m.rules {
		if r.matches(segments, isDir) {
			return true
		}
	}
	return false
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}

func (r rule) matches(segments []string, isDir bool) bool {
	last := len(segments) - 1
	if r.anchored {
		for i := range segments {
			if i == last && r.dirOnly && !isDir {
				break
			}
			if ok, _ := path.Match(r.pattern, strings.Join(segments[:i+1], "/")); ok {
				return true
			}
		}
		return false
	}
	for i, seg := range segments {
		if i == last && r.dirOnly && !isDir {
			break
		}
		if ok, _ := path.Match(r.pattern, seg); ok {
			return true
		}
	}
	return false
}

// parseLine turns one gitignore-style line into a rule.
func parseLine(line string) (rule, bool) {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return rule{}, false
	}

	var r rule
	line = strings.TrimPrefix(line, "**/")
	if strings.HasSuffix(line, "/**") {
		line = strings.TrimSuffix(line, "/**")
		r.dirOnly = true
	}
	if strings.HasSuffix(line, "/") {
		line = strings.TrimSuffix(line, "/")
		r.dirOnly = true
	}
	if strings.HasPrefix(line, "/") {
		line = strings.TrimPrefix(line, "/")
		r.anchored = true
	}
	if strings.Contains(line, "/") {
		r.anchored = true
	}
	if line == "" {
		return rule{}, false
	}
	r.pattern = line
	return r, true
}
