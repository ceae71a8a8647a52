package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWalker_IncludesAndExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.md", "b")
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "docs/guide.md", "guide")
	writeFile(t, root, "image.png", "png")
	writeFile(t, root, "node_modules/pkg/readme.md", "skip")
	writeFile(t, root, ".nexus/notes.md", "skip")

	w := NewWalker(
		[]string{"**/*.md", "**/*.txt"},
		[]string{"**/node_modules/**", "**/.nexus/**"},
	)
	files, err := w.Walk(root)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"a.txt", "b.md", "docs/guide.md"}
	if len(files) != len(want) {
		t.Fatalf("expected %v, got %+v", want, files)
	}
	for i, f := range files {
		if f.RelPath != want[i] {
			t.Errorf("file %d: expected %s, got %s", i, want[i], f.RelPath)
		}
		if !filepath.IsAbs(f.Path) {
			t.Errorf("expected absolute path, got %s", f.Path)
		}
	}
}

func TestWalker_DefaultIncludesEverything(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x/y/z.dat", "z")

	files, err := NewWalker(nil, nil).Walk(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].RelPath != "x/y/z.dat" || files[0].Size != 1 {
		t.Errorf("unexpected files: %+v", files)
	}
}

func TestReadFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ok.md", "The sky is blue.")
	writeFile(t, root, "bin.md", string([]byte{0xff, 0xfe, 0x00}))

	text, err := Reader{}.ReadFile(filepath.Join(root, "ok.md"))
	if err != nil || text != "The sky is blue." {
		t.Errorf("unexpected read: %q, %v", text, err)
	}
	if _, err := ReadFile(filepath.Join(root, "bin.md")); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
	if _, err := ReadFile(filepath.Join(root, "missing.md")); err == nil {
		t.Error("expected error for missing file")
	}
}
