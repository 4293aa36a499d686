package models

import "time"

// DocumentInfo describes a PDF without modifying it.
type DocumentInfo struct {
	Path              string            `json:"path"`
	Pages             int               `json:"pages"`
	Version           string            `json:"version,omitempty"`
	Encrypted         bool              `json:"encrypted"`
	UsesCompression   bool              `json:"uses_compression"`
	CompressedStreams int               `json:"compressed_streams"`
	FileSize          int64             `json:"file_size"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// FileResult is the outcome of redacting one file.
type FileResult struct {
	Input             string `json:"input"`
	Output            string `json:"output,omitempty"`
	OriginalSize      int64  `json:"original_size"`
	FinalSize         int64  `json:"final_size,omitempty"`
	ReplacementNeeded bool   `json:"replacement_needed"`
	ChangedOperators  int    `json:"changed_operators"`
	DryRun            bool   `json:"dry_run,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Failed reports whether the file could not be processed.
func (r FileResult) Failed() bool {
	return r.Error != ""
}

// SizeChangePercent is the relative size change of the output.
func (r FileResult) SizeChangePercent() float64 {
	if r.OriginalSize == 0 {
		return 0
	}
	return float64(r.FinalSize-r.OriginalSize) / float64(r.OriginalSize) * 100
}

// Report summarizes one redaction run.
type Report struct {
	RunID     string       `json:"run_id"`
	StartedAt time.Time    `json:"started_at"`
	Files     []FileResult `json:"files"`
}

// Succeeded counts files processed without error.
func (r Report) Succeeded() int {
	n := 0
	for _, f := range r.Files {
		if !f.Failed() {
			n++
		}
	}
	return n
}

// Failures counts files that could not be processed.
func (r Report) Failures() int {
	return len(r.Files) - r.Succeeded()
}

// SizeTotals sums original and final sizes over successful files.
func (r Report) SizeTotals() (original, final int64) {
	for _, f := range r.Files {
		if f.Failed() || f.DryRun {
			continue
		}
		original += f.OriginalSize
		final += f.FinalSize
	}
	return original, final
}
