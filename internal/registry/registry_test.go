package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/harshul/microrun/internal/failure"
)

type recordingStopper struct {
	stopped []string
	err     error
}

func (s *recordingStopper) Stop(_ context.Context, id string) error {
	s.stopped = append(s.stopped, id)
	return s.err
}

func openTemp(t *testing.T, opts Options) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	r, err := Open(path, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return r, path
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	r, path := openTemp(t, Options{})
	if len(r.List()) != 0 {
		t.Errorf("expected empty registry")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Open should not create the file")
	}
}

func TestSaveLoadFixedPoint(t *testing.T) {
	r, path := openTemp(t, Options{})
	dir := t.TempDir()
	api := filepath.Join(dir, "Api", "Api.csproj")
	web := filepath.Join(dir, "Web", "Web.csproj")

	if _, err := r.Add(api); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Add(web); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.UpdateSelection(api, "Api"); err != nil {
		t.Fatalf("UpdateSelection: %v", err)
	}
	if err := r.SetBatchSelected(web, true); err != nil {
		t.Fatalf("SetBatchSelected: %v", err)
	}

	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	reopened, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reflect.DeepEqual(reopened.List(), r.List()) {
		t.Errorf("reloaded %+v, want %+v", reopened.List(), r.List())
	}
	if err := reopened.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("save(load(x)) changed the file:\n%s\n---\n%s", first, second)
	}

	want := []Record{
		{FilePath: api, SelectedConfiguration: "Api"},
		{FilePath: web, IsChecked: true},
	}
	if !reflect.DeepEqual(reopened.List(), want) {
		t.Errorf("got %+v, want %+v", reopened.List(), want)
	}
}

func TestLoadAcceptsFieldCase(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	body := `[{"FilePath": "/src/Api/Api.csproj", "SelectedConfiguration": "Api", "IsChecked": true}]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	list := r.List()
	if len(list) != 1 || list[0].SelectedConfiguration != "Api" || !list[0].IsChecked {
		t.Errorf("unexpected records %+v", list)
	}
}

func TestOpenMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(path, Options{}); !errors.Is(err, failure.PersistenceFailed) {
		t.Fatalf("expected PersistenceFailed, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "{not json" {
		t.Errorf("malformed file was overwritten")
	}
}

func TestAddDuplicate(t *testing.T) {
	r, _ := openTemp(t, Options{})
	path := filepath.Join(t.TempDir(), "Api.csproj")
	if _, err := r.Add(path); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Add(path); !errors.Is(err, failure.AlreadyTracked) {
		t.Errorf("expected AlreadyTracked, got %v", err)
	}
	if len(r.List()) != 1 {
		t.Errorf("expected one record")
	}
}

func TestRemoveStopsFirst(t *testing.T) {
	stopper := &recordingStopper{}
	r, _ := openTemp(t, Options{Stopper: stopper})
	path := filepath.Join(t.TempDir(), "Api.csproj")
	if _, err := r.Add(path); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := r.Remove(context.Background(), path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(stopper.stopped) != 1 || stopper.stopped[0] != path {
		t.Errorf("expected stop of %s, got %v", path, stopper.stopped)
	}
	if _, ok := r.Get(path); ok {
		t.Errorf("expected project to be removed")
	}
	if err := r.Remove(context.Background(), path); !errors.Is(err, failure.NotTracked) {
		t.Errorf("expected NotTracked, got %v", err)
	}
}

func TestRemoveKeepsProjectWhenStopFails(t *testing.T) {
	stopper := &recordingStopper{err: errors.New("boom")}
	r, _ := openTemp(t, Options{Stopper: stopper})
	path := filepath.Join(t.TempDir(), "Api.csproj")
	if _, err := r.Add(path); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Remove(context.Background(), path); err == nil {
		t.Fatalf("expected stop error")
	}
	if _, ok := r.Get(path); !ok {
		t.Errorf("project should stay tracked")
	}
}

func TestReplaceKeepsPosition(t *testing.T) {
	stopper := &recordingStopper{}
	r, _ := openTemp(t, Options{Stopper: stopper})
	dir := t.TempDir()
	a := filepath.Join(dir, "A.csproj")
	b := filepath.Join(dir, "B.csproj")
	c := filepath.Join(dir, "C.csproj")
	for _, p := range []string{a, b} {
		if _, err := r.Add(p); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := r.UpdateSelection(a, "A"); err != nil {
		t.Fatalf("UpdateSelection: %v", err)
	}
	if err := r.SetBatchSelected(a, true); err != nil {
		t.Fatalf("SetBatchSelected: %v", err)
	}

	rec, err := r.Replace(context.Background(), a, c)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if rec.SelectedConfiguration != "" || !rec.IsChecked {
		t.Errorf("expected cleared selection and kept batch flag, got %+v", rec)
	}
	list := r.List()
	if list[0].FilePath != c || list[1].FilePath != b {
		t.Errorf("unexpected order %+v", list)
	}
	if len(stopper.stopped) != 1 || stopper.stopped[0] != a {
		t.Errorf("expected old project stopped, got %v", stopper.stopped)
	}

	if _, err := r.Replace(context.Background(), c, b); !errors.Is(err, failure.AlreadyTracked) {
		t.Errorf("expected AlreadyTracked, got %v", err)
	}
}

func TestSaveFailureKeepsMemory(t *testing.T) {
	r, path := openTemp(t, Options{})
	// A non-empty directory at the file path makes the rename fail.
	if err := os.MkdirAll(filepath.Join(path, "blocker"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	project := filepath.Join(t.TempDir(), "Api.csproj")
	_, err := r.Add(project)
	if !errors.Is(err, failure.PersistenceFailed) {
		t.Fatalf("expected PersistenceFailed, got %v", err)
	}
	if _, ok := r.Get(project); !ok {
		t.Errorf("in-memory add should survive a failed save")
	}
}

func TestUpdateUnknown(t *testing.T) {
	r, _ := openTemp(t, Options{})
	if err := r.UpdateSelection("/nowhere/X.csproj", "X"); !errors.Is(err, failure.NotTracked) {
		t.Errorf("expected NotTracked, got %v", err)
	}
}

func TestFailedWriteLeavesTargetInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	// An empty directory can be removed, but a file cannot be renamed over it.
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := writeFileAtomic(path, []byte("[]\n"), 0o644); err == nil {
		t.Fatalf("expected the write to fail")
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		t.Errorf("expected the existing entry to survive, got %v, %v", info, err)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected no temp files left behind, got %d entries", len(entries))
	}
}
