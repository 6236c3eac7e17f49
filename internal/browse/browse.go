package browse

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// shadowPrefix marks AppleDouble resource-fork files that macOS leaves
// next to real files on non-HFS volumes.
const shadowPrefix = "._"

// SourceFile is a candidate recording found by a scan
type SourceFile struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Scanner finds source recordings in a directory
type Scanner struct {
	extensions []string
}

// NewScanner creates a Scanner matching the given extensions. Matching is
// case-insensitive and a missing leading dot is added.
func NewScanner(extensions []string) *Scanner {
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return &Scanner{extensions: normalized}
}

// IsCandidate reports whether a file name is a source recording
func (s *Scanner) IsCandidate(name string) bool {
	if strings.HasPrefix(name, shadowPrefix) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range s.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Scan returns the candidates in dir sorted by path. With recursive set,
// subdirectories are searched too. Unreadable entries below dir are
// skipped.
func (s *Scanner) Scan(ctx context.Context, dir string, recursive bool) ([]SourceFile, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var files []SourceFile
	add := func(path string, d fs.DirEntry) {
		if d.IsDir() || !s.IsCandidate(d.Name()) {
			return
		}
		info, err := d.Info()
		if err != nil {
			return
		}
		files = append(files, SourceFile{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	if recursive {
		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				return nil // Skip errors
			}
			add(path, d)
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			add(filepath.Join(dir, e.Name()), e)
		}
	}

	// Sort by path for consistent ordering
	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	return files, nil
}

// OutputPath returns src with its extension replaced by ext
func OutputPath(src, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.TrimSuffix(src, filepath.Ext(src)) + ext
}

// TotalSize sums the sizes of files
func TotalSize(files []SourceFile) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}
