package browse

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func makeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"b.mp3", "a.flac", "notes.txt", ".hidden.mp3"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "albums"), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func names(entries []models.TreeEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = filepath.Base(e.Name)
	}
	return out
}

func TestReadFiltersAndSorts(t *testing.T) {
	dir := makeTree(t)
	c := NewCache(nil, nil, false, quietLogger())

	entries, err := c.Read(dir)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	got := names(entries)
	// Directories first, then audio files sorted; txt and hidden excluded.
	want := []string{"albums", "a.flac", "b.mp3"}
	if len(got) != len(want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entries = %v, want %v", got, want)
			break
		}
	}
	if !entries[0].IsDirectory() {
		t.Error("first entry should be the directory")
	}
}

func TestShowHidden(t *testing.T) {
	dir := makeTree(t)
	c := NewCache(nil, nil, true, quietLogger())

	entries, err := c.Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, n := range names(entries) {
		if n == ".hidden.mp3" {
			found = true
		}
	}
	if !found {
		t.Errorf("hidden file missing with show_hidden: %v", names(entries))
	}
}

func TestReadErrors(t *testing.T) {
	c := NewCache(nil, nil, false, quietLogger())

	if _, err := c.Read("/does/not/exist"); !errs.Is(err, errs.NotFound) {
		t.Errorf("missing dir = %v, want NotFound", err)
	}

	file := filepath.Join(t.TempDir(), "file.mp3")
	os.WriteFile(file, []byte("x"), 0o644)
	if _, err := c.Read(file); !errs.Is(err, errs.InvalidArgument) {
		t.Errorf("non-directory = %v, want InvalidArgument", err)
	}

	// Failures are not cached.
	if c.Size() != 0 {
		t.Errorf("cache size = %d after failed reads, want 0", c.Size())
	}
}

func TestInvalidate(t *testing.T) {
	dir := makeTree(t)
	c := NewCache(nil, nil, false, quietLogger())

	if _, err := c.Read(dir); err != nil {
		t.Fatal(err)
	}
	if c.Size() != 1 {
		t.Fatalf("cache size = %d, want 1", c.Size())
	}

	c.Invalidate(dir)
	if c.Size() != 0 {
		t.Errorf("cache size after invalidate = %d, want 0", c.Size())
	}

	// New files appear after the invalidated key is rebuilt.
	os.WriteFile(filepath.Join(dir, "c.ogg"), []byte("x"), 0o644)
	entries, err := c.Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, n := range names(entries) {
		if n == "c.ogg" {
			found = true
		}
	}
	if !found {
		t.Errorf("rebuilt listing missing new file: %v", names(entries))
	}
}

// TestConcurrentFirstRead races several readers against an uncached
// directory; everyone must see the full listing, not an empty snapshot from
// an entry whose first build is still running.
func TestConcurrentFirstRead(t *testing.T) {
	dir := makeTree(t)
	c := NewCache(nil, nil, false, quietLogger())

	const readers = 8
	var wg sync.WaitGroup
	got := make([][]models.TreeEntry, readers)
	errors := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			got[n], errors[n] = c.Read(dir)
		}(i)
	}
	wg.Wait()

	for i := 0; i < readers; i++ {
		if errors[i] != nil {
			t.Fatalf("reader %d: %v", i, errors[i])
		}
		if len(got[i]) != 3 {
			t.Errorf("reader %d saw %v, want 3 entries", i, names(got[i]))
		}
	}
}

// TestConcurrentFirstReadFailure checks that a failed first build reaches
// the readers waiting on it and leaves nothing cached.
func TestConcurrentFirstReadFailure(t *testing.T) {
	c := NewCache(nil, nil, false, quietLogger())
	missing := filepath.Join(t.TempDir(), "gone")

	const readers = 4
	var wg sync.WaitGroup
	errors := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errors[n] = c.Read(missing)
		}(i)
	}
	wg.Wait()

	for i := 0; i < readers; i++ {
		if errors[i] == nil {
			t.Errorf("reader %d got nil error for missing directory", i)
		}
	}
	if c.Size() != 0 {
		t.Errorf("failed build left %d cached entries", c.Size())
	}
}

func TestHitRefreshesInBackground(t *testing.T) {
	dir := makeTree(t)
	c := NewCache(nil, nil, false, quietLogger())

	before, err := c.Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "zz.wav"), []byte("x"), 0o644)

	// The hit returns the stale snapshot but schedules a refresh.
	stale, err := c.Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != len(before) {
		t.Errorf("hit should serve the cached snapshot, got %v", names(stale))
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, _ := c.Read(dir)
		if len(entries) == len(before)+1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("background refresh never picked up the new file")
}

// recordingIndexer counts IndexEntries calls.
type recordingIndexer struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingIndexer) IndexEntries([]models.TreeEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil
}

func TestListingsAreIndexed(t *testing.T) {
	dir := makeTree(t)
	idx := &recordingIndexer{}
	c := NewCache(nil, idx, false, quietLogger())

	if _, err := c.Read(dir); err != nil {
		t.Fatal(err)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.calls == 0 {
		t.Error("fresh listing should be handed to the indexer")
	}
}
