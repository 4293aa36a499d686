package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"pdf-redactor/internal/models"
)

// Journal collects file results of a run and persists them as JSON.
// Add may be called from several workers.
type Journal struct {
	Path string

	mu     sync.Mutex
	report models.Report
}

// NewJournal creates a journal for a run. An empty path keeps results in
// memory only.
func NewJournal(path string, base models.Report) *Journal {
	return &Journal{Path: path, report: base}
}

// Load reads a previously saved report from path.
func Load(path string) (models.Report, error) {
	var r models.Report
	data, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	err = json.Unmarshal(data, &r)
	return r, err
}

// Add records a result.
func (j *Journal) Add(result models.FileResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.report.Files = append(j.report.Files, result)
}

// Report returns a snapshot of the collected results.
func (j *Journal) Report() models.Report {
	j.mu.Lock()
	defer j.mu.Unlock()
	r := j.report
	r.Files = append([]models.FileResult(nil), j.report.Files...)
	return r
}

// Save writes the report to Path. It is a no-op without a path.
func (j *Journal) Save() error {
	if j.Path == "" {
		return nil
	}
	data, err := json.MarshalIndent(j.Report(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(j.Path), 0755); err != nil {
		return err
	}
	return os.WriteFile(j.Path, data, 0644)
}
