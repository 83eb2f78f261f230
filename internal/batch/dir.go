package batch

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// ArchiveDir is the subdirectory synced files are moved into.
const ArchiveDir = "Synced"

// File is an export found in a drop directory.
type File struct {
	Path    string
	Dataset string
	Kind    Kind
	Size    int64
}

// ScanDir lists the exports in dir, sorted by name. Subdirectories, hidden
// files, Office lock files (~$...) and unsupported extensions are ignored.
func ScanDir(fs afero.Fs, dir string) ([]File, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var files []File
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			continue
		}
		kind, err := KindOf(name)
		if err != nil {
			continue
		}
		files = append(files, File{
			Path:    filepath.Join(dir, name),
			Dataset: DatasetName(name),
			Kind:    kind,
			Size:    e.Size(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Archive moves a processed file into dir/Synced so the next scan skips it.
func Archive(fs afero.Fs, dir string, f File) (string, error) {
	target := filepath.Join(dir, ArchiveDir)
	if err := fs.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	dest := filepath.Join(target, filepath.Base(f.Path))
	if err := fs.Rename(f.Path, dest); err != nil {
		return "", fmt.Errorf("archive %s: %w", filepath.Base(f.Path), err)
	}
	return dest, nil
}
