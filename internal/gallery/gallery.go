// Package gallery persists generated images, one folder per artifact, with a
// plain-text metadata file next to each image.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wenc23/zimagetool/internal/common/fsutil"
)

var (
	// ErrInvalidName is returned for folder or file names that would escape
	// the gallery root.
	ErrInvalidName = errors.New("gallery: invalid name")
	// ErrNotFound is returned when a folder or file does not exist.
	ErrNotFound = errors.New("gallery: not found")
)

const (
	infoSuffix      = "_info.txt"
	stampLayout     = "20060102_150405"
	createdLayout   = "2006-01-02 15:04:05"
	defaultFilename = "generated_image.png"
)

// Metadata describes one artifact.
type Metadata struct {
	Filename  string
	Prompt    string
	Width     int
	Height    int
	Steps     int
	Profile   string
	Elapsed   time.Duration
	CreatedAt time.Time
}

// Artifact is the stored result of Save.
type Artifact struct {
	// Dir is the absolute artifact folder.
	Dir string
	// Folder is Dir relative to the gallery root.
	Folder string
	// File is the image file name inside Folder.
	File string
	// InfoFile is the metadata file name inside Folder.
	InfoFile string
}

// RelPath is the image path relative to the gallery root, slash separated.
func (a Artifact) RelPath() string { return a.Folder + "/" + a.File }

// Store is a gallery rooted at a directory.
type Store struct {
	root string
	now  func() time.Time
}

// New creates the root directory if needed.
func New(root string) (*Store, error) {
	abs, err := fsutil.Resolve(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create gallery root: %w", err)
	}
	return &Store{root: abs, now: time.Now}, nil
}

// Root returns the absolute gallery root.
func (s *Store) Root() string { return s.root }

// NormalizeFilename keeps only the base name and makes sure it ends in
// .png, .jpg or .jpeg (appending .png otherwise).
func NormalizeFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	name = filepath.Base(filepath.FromSlash(name))
	if name == "." || name == "/" || name == ".." || name == "" {
		name = defaultFilename
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
	default:
		name += ".png"
	}
	if strings.HasPrefix(name, ".") {
		name = "image" + name
	}
	return name
}

// Save writes img and its metadata into a new folder named after the file
// stem. An existing folder gets a _YYYYMMDD_HHMMSS suffix. On any error the
// partial folder is removed.
func (s *Store) Save(ctx context.Context, img image.Image, meta Metadata) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	if img == nil {
		return Artifact{}, errors.New("gallery: nil image")
	}
	name := NormalizeFilename(meta.Filename)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now()
	}

	folder, dir, err := s.claimFolder(stem, meta.CreatedAt)
	if err != nil {
		return Artifact{}, err
	}
	art := Artifact{Dir: dir, Folder: folder, File: name, InfoFile: stem + infoSuffix}
	if err := writeImage(filepath.Join(dir, name), img, ext); err != nil {
		_ = os.RemoveAll(dir)
		return Artifact{}, err
	}
	meta.Filename = name
	if err := writeInfo(filepath.Join(dir, art.InfoFile), meta); err != nil {
		_ = os.RemoveAll(dir)
		return Artifact{}, err
	}
	return art, nil
}

// claimFolder creates the artifact folder atomically via Mkdir.
func (s *Store) claimFolder(stem string, at time.Time) (string, string, error) {
	candidates := []string{stem, stem + "_" + at.Format(stampLayout)}
	for i := 2; i <= 100; i++ {
		candidates = append(candidates, fmt.Sprintf("%s_%s_%d", stem, at.Format(stampLayout), i))
	}
	for _, c := range candidates {
		dir, err := fsutil.Within(s.root, c)
		if err != nil {
			return "", "", ErrInvalidName
		}
		err = os.Mkdir(dir, 0o755)
		if err == nil {
			return c, dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", "", fmt.Errorf("create artifact folder: %w", err)
		}
	}
	return "", "", fmt.Errorf("gallery: no free folder name for %q", stem)
}

func writeImage(path string, img image.Image, ext string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("encode image: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync image: %w", err)
	}
	return f.Close()
}
