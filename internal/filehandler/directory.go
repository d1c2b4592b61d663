package filehandler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// ScanOptions bounds a directory scan.
type ScanOptions struct {
	// MaxDepth limits recursion. 0 = unlimited, 1 = the directory itself only.
	MaxDepth int

	// Limit caps the number of images returned. 0 = unlimited.
	Limit int
}

// scan accumulates one ScanDirectory walk.
type scan struct {
	root    string
	opts    ScanOptions
	paths   []string
	ignored int
	capped  bool
}

// ScanDirectory returns the absolute paths of supported images under dirPath,
// sorted. Hidden entries are skipped, as are symlinks to directories.
func ScanDirectory(dirPath string, opts ScanOptions) ([]string, error) {
	root, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dirPath, err)
	}
	info, err := os.Stat(root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("directory not found: %s", dirPath)
	case err != nil:
		return nil, fmt.Errorf("stat %s: %w", dirPath, err)
	case !info.IsDir():
		return nil, fmt.Errorf("not a directory: %s", dirPath)
	}

	s := &scan{root: root, opts: opts}
	if err := filepath.WalkDir(root, s.visit); err != nil {
		return nil, fmt.Errorf("walk %s: %w", dirPath, err)
	}
	sort.Strings(s.paths)

	log.Debug().
		Str("dir", root).
		Int("images", len(s.paths)).
		Int("ignored", s.ignored).
		Bool("limitReached", s.capped).
		Msg("Directory scanned")
	return s.paths, nil
}

// depth is the number of path segments between the root and p.
func (s *scan) depth(p string) int {
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}

func (s *scan) visit(p string, d fs.DirEntry, err error) error {
	if err != nil {
		log.Warn().Err(err).Str("path", p).Msg("Unreadable path skipped")
		return nil
	}
	if p == s.root {
		return nil
	}
	if strings.HasPrefix(d.Name(), ".") {
		if d.IsDir() {
			return fs.SkipDir
		}
		return nil
	}

	if d.IsDir() {
		if s.opts.MaxDepth > 0 && s.depth(p) >= s.opts.MaxDepth {
			return fs.SkipDir
		}
		return nil
	}
	if d.Type()&fs.ModeSymlink != 0 {
		target, err := os.Stat(p)
		if err != nil || target.IsDir() {
			return nil
		}
	}

	if !IsImage(filepath.Ext(p)) {
		s.ignored++
		return nil
	}
	if s.opts.Limit > 0 && len(s.paths) >= s.opts.Limit {
		s.capped = true
		return fs.SkipAll
	}
	s.paths = append(s.paths, p)
	return nil
}
