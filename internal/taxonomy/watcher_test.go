package taxonomy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTaxonomyFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher(t *testing.T) {
	t.Run("initial load failure", func(t *testing.T) {
		_, err := NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil)
		if err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("reload on content change", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "taxonomy.yaml")
		writeTaxonomyFile(t, path, "weights:\n  questions: 1\n")

		changed := make(chan *Taxonomy, 1)
		w, err := NewWatcher(path, func(_, updated *Taxonomy) {
			changed <- updated
		}, WithInterval(10*time.Millisecond))
		if err != nil {
			t.Fatalf("NewWatcher: %v", err)
		}
		defer w.Stop()

		if got := w.Current().Weight(CategoryQuestions); got != 1 {
			t.Fatalf("initial questions weight = %d, want 1", got)
		}

		writeTaxonomyFile(t, path, "weights:\n  questions: 9\n")
		// Force a distinct mtime in case the filesystem's resolution is coarse.
		future := time.Now().Add(2 * time.Second)
		if err := os.Chtimes(path, future, future); err != nil {
			t.Fatal(err)
		}

		select {
		case updated := <-changed:
			if got := updated.Weight(CategoryQuestions); got != 9 {
				t.Errorf("reloaded questions weight = %d, want 9", got)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for reload callback")
		}

		if got := w.Current().Weight(CategoryQuestions); got != 9 {
			t.Errorf("Current() questions weight = %d, want 9", got)
		}
	})

	t.Run("invalid file keeps previous taxonomy", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "taxonomy.yaml")
		writeTaxonomyFile(t, path, "weights:\n  questions: 2\n")

		w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
		if err != nil {
			t.Fatalf("NewWatcher: %v", err)
		}
		defer w.Stop()

		writeTaxonomyFile(t, path, "categories:\n  direct: []\n")
		future := time.Now().Add(2 * time.Second)
		if err := os.Chtimes(path, future, future); err != nil {
			t.Fatal(err)
		}

		time.Sleep(100 * time.Millisecond)
		if got := w.Current().Weight(CategoryQuestions); got != 2 {
			t.Errorf("questions weight after bad reload = %d, want 2", got)
		}
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "taxonomy.yaml")
		writeTaxonomyFile(t, path, "")

		w, err := NewWatcher(path, nil)
		if err != nil {
			t.Fatalf("NewWatcher: %v", err)
		}
		w.Stop()
		w.Stop()
	})
}
