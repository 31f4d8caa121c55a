package gallery

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wenc23/zimagetool/internal/common/fsutil"
)

// Item is one listed artifact.
type Item struct {
	Folder string
	File   string
	Info   map[string]string
}

// RelPath is the image path relative to the root, slash separated.
func (it Item) RelPath() string { return path.Join(it.Folder, it.File) }

// List returns artifact folders in reverse name order (timestamped
// duplicates sort after their base). Folders without an image are skipped.
func (s *Store) List() ([]Item, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read gallery: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() > entries[j].Name() })
	var items []Item
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		img, ok := firstImage(dir)
		if !ok {
			continue
		}
		it := Item{Folder: e.Name(), File: img, Info: map[string]string{}}
		stem := strings.TrimSuffix(img, filepath.Ext(img))
		if f, err := os.Open(filepath.Join(dir, stem+infoSuffix)); err == nil {
			if info, err := ParseInfo(f); err == nil {
				it.Info = info
			}
			f.Close()
		}
		items = append(items, it)
	}
	return items, nil
}

func firstImage(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			return e.Name(), true
		}
	}
	return "", false
}

// checkFolderName rejects anything but a single path element.
func checkFolderName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") || filepath.IsAbs(name) {
		return ErrInvalidName
	}
	return nil
}

// Delete removes one artifact folder. Names that are not a single path
// element inside the root are rejected before the filesystem is touched.
func (s *Store) Delete(folder string) error {
	if err := checkFolderName(folder); err != nil {
		return err
	}
	dir, err := fsutil.Within(s.root, folder)
	if err != nil {
		return ErrInvalidName
	}
	fi, err := os.Lstat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	if !fi.IsDir() {
		return ErrNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete %s: %w", folder, err)
	}
	return nil
}

// Resolve maps a slash-separated path relative to the root to an existing
// regular file inside the root. Links that lead out of the root are refused.
func (s *Store) Resolve(rel string) (string, error) {
	rel = strings.TrimPrefix(rel, "/")
	for _, part := range strings.Split(rel, "/") {
		if part == ".." {
			return "", ErrInvalidName
		}
	}
	p, err := fsutil.Within(s.root, rel)
	if err != nil {
		return "", ErrInvalidName
	}
	if _, err := fsutil.WithinResolved(s.root, rel); errors.Is(err, fsutil.ErrOutsideRoot) {
		return "", ErrInvalidName
	} else if err != nil {
		return "", ErrNotFound
	}
	fi, err := os.Stat(p)
	if err != nil || !fi.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return p, nil
}
