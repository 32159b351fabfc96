package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/starford/bok/internal/apperr"
	"github.com/starford/bok/internal/nodeid"
)

func tempTree(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return fs
}

func TestCreateAndReadContent(t *testing.T) {
	s := tempTree(t)
	id, err := s.Create("Hello", "# Hello\nWorld\n", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != nodeid.Of("Hello") {
		t.Errorf("id = %s, want %s", id, nodeid.Of("Hello"))
	}
	got, err := s.ReadContent(id)
	if err != nil {
		t.Fatalf("ReadContent: %v", err)
	}
	if got != "# Hello\nWorld\n" {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestCreateLayout(t *testing.T) {
	s := tempTree(t)
	id, err := s.Create("Layout", "body", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	dir := filepath.Join(s.Root(), id+" Layout")
	for _, name := range []string{ContentFile, MetaFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	matches, _ := filepath.Glob(filepath.Join(dir, ".*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestCreateUnderParent(t *testing.T) {
	s := tempTree(t)
	parent, _ := s.Create("Parent", "p", "", "")
	child, err := s.Create("Child", "c", parent, "")
	if err != nil {
		t.Fatalf("Create child: %v", err)
	}
	rel, err := s.Find(child)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if want := filepath.Join(parent+" Parent", child+" Child"); rel != want {
		t.Errorf("path = %q, want %q", rel, want)
	}
}

func TestCreateMissingParent(t *testing.T) {
	s := tempTree(t)
	_, err := s.Create("Orphan", "x", "doesnotexist", "")
	if !errors.Is(err, apperr.ErrParentNotFound) {
		t.Fatalf("err = %v, want ErrParentNotFound", err)
	}
	entries, _ := os.ReadDir(s.Root())
	if len(entries) != 0 {
		t.Errorf("expected no directories, found %d", len(entries))
	}
}

func TestCreateEmptyTitle(t *testing.T) {
	s := tempTree(t)
	if _, err := s.Create("  ", "x", "", ""); err == nil {
		t.Error("expected error for empty title")
	}
}

func TestCreateCollisionDisambiguates(t *testing.T) {
	s := tempTree(t)
	first, _ := s.Create("Same", "one", "", "")
	second, err := s.Create("Same", "two", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first == second {
		t.Fatal("second node reused the first id")
	}
	if second != nodeid.Of("Same (2)") {
		t.Errorf("id = %s, want id of %q", second, "Same (2)")
	}
	n, err := s.Get(second)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n.Title() != "Same (2)" {
		t.Errorf("title = %q", n.Title())
	}
}

func TestCreateSanitizesDirName(t *testing.T) {
	s := tempTree(t)
	id, err := s.Create("a/b\nc", "x", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rel, _ := s.Find(id)
	if rel != id+" a b c" {
		t.Errorf("path = %q", rel)
	}
	n, _ := s.Get(id)
	if n.Title() != "a/b\nc" {
		t.Errorf("stored title = %q", n.Title())
	}
}

func TestFindPrefix(t *testing.T) {
	s := tempTree(t)
	id, _ := s.Create("Prefix", "x", "", "")
	rel, err := s.Find(id[:3])
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !strings.HasPrefix(rel, id+" ") {
		t.Errorf("path = %q", rel)
	}
}

func TestFindNotFound(t *testing.T) {
	s := tempTree(t)
	if _, err := s.Find("12345"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.ReadContent("12345"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("ReadContent err = %v, want ErrNotFound", err)
	}
}

func TestFindAmbiguous(t *testing.T) {
	s := tempTree(t)
	s.paths["1234"] = "1234 a"
	s.paths["1299"] = "1299 b"
	if _, err := s.Find("12"); !errors.Is(err, apperr.ErrAmbiguous) {
		t.Errorf("err = %v, want ErrAmbiguous", err)
	}
	if p, err := s.Find("1234"); err != nil || p != "1234 a" {
		t.Errorf("exact match = %q, %v", p, err)
	}
}

func TestRemoveSubtree(t *testing.T) {
	s := tempTree(t)
	parent, _ := s.Create("Parent", "p", "", "")
	child, _ := s.Create("Child", "c", parent, "")

	rel, err := s.Remove(parent)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), rel)); !os.IsNotExist(err) {
		t.Errorf("directory still exists: %v", err)
	}
	if _, err := s.Find(child); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("child still indexed: %v", err)
	}
	if _, err := s.Remove(parent); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second remove err = %v", err)
	}
}

func TestLoadTreeOrdersSiblings(t *testing.T) {
	s := tempTree(t)
	a, _ := s.Create("Zeta first", "a", "", "")
	b, _ := s.Create("Alpha second", "b", "", a)
	_, _ = s.Create("Middle third", "c", "", b)
	_, _ = s.Create("Nested", "n", b, "")

	forest, err := s.LoadTree("")
	if err != nil {
		t.Fatalf("LoadTree: %v", err)
	}
	var titles []string
	for _, n := range forest {
		titles = append(titles, n.Title())
	}
	want := []string{"Zeta first", "Alpha second", "Middle third"}
	if strings.Join(titles, "|") != strings.Join(want, "|") {
		t.Errorf("titles = %v, want %v", titles, want)
	}
	if len(forest[1].Children) != 1 || forest[1].Children[0].Title() != "Nested" {
		t.Errorf("children = %+v", forest[1].Children)
	}
}

func TestLoadTreeSkipsForeignDirs(t *testing.T) {
	s := tempTree(t)
	_ = os.Mkdir(filepath.Join(s.Root(), ".git"), 0o755)
	_ = os.Mkdir(filepath.Join(s.Root(), "123 no meta"), 0o755)
	_, _ = s.Create("Real", "r", "", "")

	forest, err := s.LoadTree("")
	if err != nil {
		t.Fatalf("LoadTree: %v", err)
	}
	if len(forest) != 1 {
		t.Errorf("len = %d, want 1", len(forest))
	}
}

func TestFlattenDepthFirst(t *testing.T) {
	s := tempTree(t)
	a, _ := s.Create("A", "a", "", "")
	_, _ = s.Create("A1", "a1", a, "")
	_, _ = s.Create("B", "b", "", a)

	refs, err := s.Flatten()
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	var got []string
	for _, r := range refs {
		got = append(got, r.Title)
	}
	if strings.Join(got, ",") != "A,A1,B" {
		t.Errorf("flatten = %v", got)
	}
}

func TestReloadPicksUpExternalChanges(t *testing.T) {
	s := tempTree(t)
	other, err := Open(s.Root(), nil)
	if err != nil {
		t.Fatal(err)
	}
	id, _ := other.Create("External", "e", "", "")
	if _, err := s.Find(id); err == nil {
		t.Fatal("expected stale index before reload")
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, err := s.Find(id); err != nil {
		t.Errorf("Find after reload: %v", err)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempTree(t)
	for _, p := range []string{"../../etc", "../outside", "/etc"} {
		if _, err := s.LoadTree(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
	}
}

func TestOpen_NonExistentDir(t *testing.T) {
	if _, err := Open("/tmp/bok-does-not-exist-"+t.Name(), nil); err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestOpen_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "bok-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := Open(f.Name(), nil); err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestCreateLongMultibyteTitle(t *testing.T) {
	s := tempTree(t)
	title := strings.Repeat("😀", 70)
	id, err := s.Create(title, "x", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rel, err := s.Find(id)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	name := filepath.Base(rel)
	if len(name) > maxNameBytes {
		t.Errorf("dir name is %d bytes, limit %d", len(name), maxNameBytes)
	}
	if !utf8.ValidString(name) {
		t.Errorf("dir name cut inside a rune: %q", name)
	}
	n, _ := s.Get(id)
	if n.Title() != title {
		t.Errorf("stored title was truncated: %q", n.Title())
	}
}

func TestDirNameByteBudget(t *testing.T) {
	id := "4294967295"
	name := dirName(id, strings.Repeat("𝄞", 100))
	if len(name) > maxNameBytes {
		t.Errorf("len = %d", len(name))
	}
	if !utf8.ValidString(name) {
		t.Errorf("invalid utf8: %q", name)
	}
	if got := dirName(id, "short"); got != id+" short" {
		t.Errorf("dirName = %q", got)
	}
}

func TestCreateWriteFailureLeavesNothing(t *testing.T) {
	s := tempTree(t)
	orig := atomicWrite
	t.Cleanup(func() { atomicWrite = orig })
	atomicWrite = func(dir, name string, data []byte) error {
		if name == MetaFile {
			return fmt.Errorf("disk full: %w", apperr.ErrIO)
		}
		return orig(dir, name, data)
	}

	_, err := s.Create("Broken", "body", "", "")
	if !errors.Is(err, apperr.ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}
	entries, _ := os.ReadDir(s.Root())
	if len(entries) != 0 {
		t.Errorf("node directory left behind: %v", entries)
	}
	if _, err := s.Find(nodeid.Of("Broken")); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Find err = %v, want ErrNotFound", err)
	}
}

func TestCreateAmbiguousParent(t *testing.T) {
	s := tempTree(t)
	s.paths["1234"] = "1234 a"
	s.paths["1299"] = "1299 b"
	_, err := s.Create("Child", "c", "12", "")
	if !errors.Is(err, apperr.ErrAmbiguous) {
		t.Fatalf("err = %v, want ErrAmbiguous", err)
	}
	if errors.Is(err, apperr.ErrParentNotFound) {
		t.Error("ambiguous parent reported as missing")
	}
}

func TestLoadTreeSkipsDuplicateIDs(t *testing.T) {
	s := tempTree(t)
	id, _ := s.Create("Original", "o", "", "")
	dup := filepath.Join(s.Root(), id+" zz copy")
	if err := os.Mkdir(dup, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dup, MetaFile), []byte("title: Copy\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(); err != nil {
		t.Fatal(err)
	}

	forest, err := s.LoadTree("")
	if err != nil {
		t.Fatalf("LoadTree: %v", err)
	}
	if len(forest) != 1 {
		t.Fatalf("len = %d, want 1", len(forest))
	}
	rel, _ := s.Find(id)
	if forest[0].Path != rel {
		t.Errorf("LoadTree kept %q, Find resolves %q", forest[0].Path, rel)
	}
	refs, _ := s.Flatten()
	if len(refs) != 1 {
		t.Errorf("Flatten = %v", refs)
	}
}
