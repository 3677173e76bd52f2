// Package scanner expands directory arguments into sample files.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/panbanda/wpct/pkg/config"
)

// ErrNoSampleFiles is returned when a directory holds no sample files.
var ErrNoSampleFiles = errors.New("no sample files found")

// sampleExtensions are the file types picked up when walking a directory.
// Files named explicitly are always loaded whatever their extension.
var sampleExtensions = map[string]bool{
	".csv":  true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".txt":  true,
}

// Scanner finds sample files in directories.
type Scanner struct {
	config *config.Config
}

// NewScanner creates a new file scanner.
func NewScanner(cfg *config.Config) *Scanner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Scanner{config: cfg}
}

// IsSampleFile reports whether path has a sample file extension.
func IsSampleFile(path string) bool {
	return sampleExtensions[strings.ToLower(filepath.Ext(path))]
}

// Expand replaces each directory in paths with the sample files under it.
// Other paths, including "-" for stdin, pass through in order.
func (s *Scanner) Expand(paths []string) ([]string, error) {
	var out []string
	for _, path := range paths {
		if path == "-" {
			out = append(out, path)
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, path)
			continue
		}
		files, err := s.ScanDir(path)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("%s: %w", path, ErrNoSampleFiles)
		}
		out = append(out, files...)
	}
	return out, nil
}

// findGitRoot finds the root of the git repository by looking for .git directory.
// Returns empty string if not in a git repository.
func findGitRoot(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// matcher applies gitignore patterns relative to a base directory.
type matcher struct {
	base string
	m    gitignore.Matcher
}

func (m matcher) excluded(absPath string, isDir bool) bool {
	rel, err := filepath.Rel(m.base, absPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	return m.m.Match(strings.Split(rel, string(filepath.Separator)), isDir)
}

// loadMatchers builds matchers for the configured exclude patterns, which are
// relative to the scanned directory, and for .gitignore files, which are
// relative to the repository root.
func (s *Scanner) loadMatchers(absRoot string) []matcher {
	var matchers []matcher

	if len(s.config.Input.Exclude) > 0 {
		patterns := make([]gitignore.Pattern, 0, len(s.config.Input.Exclude))
		for _, p := range s.config.Input.Exclude {
			patterns = append(patterns, gitignore.ParsePattern(p, nil))
		}
		matchers = append(matchers, matcher{base: absRoot, m: gitignore.NewMatcher(patterns)})
	}

	if s.config.Input.Gitignore {
		if gitRoot := findGitRoot(absRoot); gitRoot != "" {
			patterns, err := gitignore.ReadPatterns(osfs.New(gitRoot), nil)
			if err == nil && len(patterns) > 0 {
				matchers = append(matchers, matcher{base: gitRoot, m: gitignore.NewMatcher(patterns)})
			}
		}
	}
	return matchers
}

// ScanDir recursively lists sample files under root in lexical order.
// Symlinks that resolve outside root are skipped.
func (s *Scanner) ScanDir(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}
	matchers := s.loadMatchers(absRoot)

	excluded := func(path string, isDir bool) bool {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return false
		}
		abs := filepath.Join(absRoot, rel)
		for _, m := range matchers {
			if m.excluded(abs, isDir) {
				return true
			}
		}
		return false
	}

	var files []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil || !isWithinRoot(resolved, absRoot) {
				return nil
			}
		}

		if d.IsDir() {
			if d.Name() == ".git" || excluded(path, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if IsSampleFile(path) && !excluded(path, false) {
			files = append(files, path)
		}
		return nil
	})

	return files, walkErr
}

// isWithinRoot checks if a path is contained within the root directory.
func isWithinRoot(path, root string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)

	// The separator keeps "/root2" from matching "/root".
	return absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator))
}
