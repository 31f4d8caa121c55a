package gallery

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for x := 0; x < 8; x++ {
		img.Set(x, 1, color.RGBA{R: 200, A: 255})
	}
	return img
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "gallery"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }
	return s
}

func TestNormalizeFilename(t *testing.T) {
	cases := map[string]string{
		"fox.png":          "fox.png",
		"fox.JPG":          "fox.JPG",
		"fox.jpeg":         "fox.jpeg",
		"fox":              "fox.png",
		"fox.webp":         "fox.webp.png",
		"../../etc/passwd": "passwd.png",
		`..\..\x.png`:      "x.png",
		"":                 "generated_image.png",
		"a/b/c.png":        "c.png",
	}
	for in, want := range cases {
		if got := NormalizeFilename(in); got != want {
			t.Fatalf("NormalizeFilename(%q)=%q want %q", in, got, want)
		}
	}
}

func TestSaveWritesImageAndInfo(t *testing.T) {
	s := newStore(t)
	meta := Metadata{
		Filename: "fox.png", Prompt: "A red fox\nin snow", Width: 8, Height: 4,
		Steps: 9, Profile: "balanced", Elapsed: 1234 * time.Millisecond,
	}
	art, err := s.Save(context.Background(), testImage(), meta)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if art.Folder != "fox" || art.File != "fox.png" || art.RelPath() != "fox/fox.png" {
		t.Fatalf("unexpected artifact: %+v", art)
	}
	f, err := os.Open(filepath.Join(art.Dir, art.File))
	if err != nil {
		t.Fatalf("open image: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Fatalf("bounds %v", b)
	}
	raw, err := os.ReadFile(filepath.Join(art.Dir, "fox_info.txt"))
	if err != nil {
		t.Fatalf("read info: %v", err)
	}
	info, err := ParseInfo(strings.NewReader(string(raw)))
	if err != nil {
		t.Fatalf("ParseInfo: %v", err)
	}
	want := map[string]string{
		KeyName: "fox.png", KeyPrompt: "A red fox in snow", KeySize: "8x4", KeySteps: "9",
		KeyProfile: "balanced", KeyElapsed: "1.23s", KeyCreated: "2025-03-04 05:06:07",
	}
	for k, v := range want {
		if info[k] != v {
			t.Fatalf("info[%s]=%q want %q (raw=%q)", k, info[k], v, raw)
		}
	}
}

func TestSaveCollisionUsesTimestamp(t *testing.T) {
	s := newStore(t)
	meta := Metadata{Filename: "fox", Prompt: "p", Width: 8, Height: 4, Steps: 1}
	a1, err := s.Save(context.Background(), testImage(), meta)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	a2, err := s.Save(context.Background(), testImage(), meta)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	a3, err := s.Save(context.Background(), testImage(), meta)
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if a1.Folder != "fox" || a2.Folder != "fox_20250304_050607" || a3.Folder != "fox_20250304_050607_2" {
		t.Fatalf("folders: %q %q %q", a1.Folder, a2.Folder, a3.Folder)
	}
}

func TestSaveJPEG(t *testing.T) {
	s := newStore(t)
	art, err := s.Save(context.Background(), testImage(), Metadata{Filename: "x.jpg", Prompt: "p"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(art.Dir, art.File))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(raw) < 2 || raw[0] != 0xFF || raw[1] != 0xD8 {
		t.Fatalf("expected JPEG SOI marker")
	}
}

func TestSaveFailureRemovesFolder(t *testing.T) {
	s := newStore(t)
	// nil image fails before any folder is created
	if _, err := s.Save(context.Background(), nil, Metadata{Filename: "nil.png"}); err == nil {
		t.Fatalf("expected error for nil image")
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "nil")); !os.IsNotExist(err) {
		t.Fatalf("folder should not exist: %v", err)
	}
	// an empty image cannot be encoded as PNG
	empty := image.NewRGBA(image.Rect(0, 0, 0, 0))
	if _, err := s.Save(context.Background(), empty, Metadata{Filename: "empty.png"}); err == nil {
		t.Fatalf("expected encode error")
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "empty")); !os.IsNotExist(err) {
		t.Fatalf("partial folder left behind: %v", err)
	}
}

func TestSaveCancelledContext(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Save(ctx, testImage(), Metadata{Filename: "c.png"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestListNewestFirstAndDelete(t *testing.T) {
	s := newStore(t)
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		if _, err := s.Save(context.Background(), testImage(), Metadata{Filename: name, Prompt: name}); err != nil {
			t.Fatalf("Save %s: %v", name, err)
		}
	}
	// folders without images are skipped
	if err := os.Mkdir(filepath.Join(s.Root(), "zzz-empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	items, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 3 || items[0].Folder != "c" || items[2].Folder != "a" {
		t.Fatalf("unexpected listing: %+v", items)
	}
	if items[0].RelPath() != "c/c.png" || items[0].Info[KeyPrompt] != "c.png" {
		t.Fatalf("unexpected item: %+v", items[0])
	}
	if err := s.Delete("b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete want ErrNotFound, got %v", err)
	}
	items, _ = s.List()
	if len(items) != 2 {
		t.Fatalf("want 2 items after delete, got %d", len(items))
	}
}

func TestDeleteRejectsTraversal(t *testing.T) {
	s := newStore(t)
	outside := filepath.Join(filepath.Dir(s.Root()), "victim")
	if err := os.Mkdir(outside, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", ".", "..", "../victim", "a/b", `a\b`, "/etc", outside} {
		if err := s.Delete(name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Delete(%q) want ErrInvalidName, got %v", name, err)
		}
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("outside dir must survive: %v", err)
	}
}

func TestResolve(t *testing.T) {
	s := newStore(t)
	art, err := s.Save(context.Background(), testImage(), Metadata{Filename: "r.png"})
	if err != nil {
		t.Fatal(err)
	}
	p, err := s.Resolve(art.RelPath())
	if err != nil || p != filepath.Join(art.Dir, art.File) {
		t.Fatalf("Resolve: %q %v", p, err)
	}
	if _, err := s.Resolve("r/missing.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing want ErrNotFound, got %v", err)
	}
	if _, err := s.Resolve("r"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("directory want ErrNotFound, got %v", err)
	}
	if _, err := s.Resolve("../secret"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("traversal want ErrInvalidName, got %v", err)
	}
}

func TestResolveRefusesLinkOutOfRoot(t *testing.T) {
	s := newStore(t)
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.png"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(s.Root(), "leak")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, err := s.Resolve("leak/secret.png"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("link out of root want ErrInvalidName, got %v", err)
	}
}

func TestParseInfoSplitsOnFirstColon(t *testing.T) {
	info, err := ParseInfo(strings.NewReader("prompt: a: b\nnoise\ncreated: 2025-01-01 10:11:12\n"))
	if err != nil {
		t.Fatal(err)
	}
	if info["prompt"] != "a: b" || info["created"] != "2025-01-01 10:11:12" || len(info) != 2 {
		t.Fatalf("unexpected %v", info)
	}
}
