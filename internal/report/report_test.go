package report

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pdf-redactor/internal/models"
)

func TestJournal_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.json")
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	j := NewJournal(path, models.Report{RunID: "run-1", StartedAt: started})

	j.Add(models.FileResult{Input: "a.pdf", Output: "out/a.pdf", OriginalSize: 100, FinalSize: 90, ReplacementNeeded: true})
	j.Add(models.FileResult{Input: "b.pdf", Error: "engine: open b.pdf: broken"})

	if err := j.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if r.RunID != "run-1" || !r.StartedAt.Equal(started) {
		t.Errorf("unexpected header: %+v", r)
	}
	if len(r.Files) != 2 || r.Succeeded() != 1 || r.Failures() != 1 {
		t.Errorf("unexpected files: %+v", r.Files)
	}
	orig, final := r.SizeTotals()
	if orig != 100 || final != 90 {
		t.Errorf("unexpected totals: %d, %d", orig, final)
	}
}

func TestJournal_NoPathIsMemoryOnly(t *testing.T) {
	j := NewJournal("", models.Report{})
	j.Add(models.FileResult{Input: "a.pdf"})

	if err := j.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if got := len(j.Report().Files); got != 1 {
		t.Errorf("expected 1 result, got %d", got)
	}
}

func TestJournal_ConcurrentAdd(t *testing.T) {
	j := NewJournal("", models.Report{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.Add(models.FileResult{Input: "x.pdf"})
		}()
	}
	wg.Wait()

	if got := len(j.Report().Files); got != 50 {
		t.Errorf("expected 50 results, got %d", got)
	}
}
