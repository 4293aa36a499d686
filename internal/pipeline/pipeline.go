// Package pipeline drives redaction of single files and directories: text
// extraction, rule application, rewriting and atomic output.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"pdf-redactor/internal/engine"
	"pdf-redactor/internal/models"
	"pdf-redactor/internal/redaction"
	"pdf-redactor/internal/report"
	"pdf-redactor/internal/session"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// Options controls a pipeline run.
type Options struct {
	// DryRun reports whether replacements are needed without writing output.
	DryRun bool
	// Workers bounds concurrent files in RedactDir. Zero means NumCPU.
	Workers int
	// CopyUnchanged copies inputs whose rewrite changes nothing byte for
	// byte instead of writing the re-serialized document.
	CopyUnchanged bool
	// ReportPath, when set, receives the JSON run report of RedactDir.
	ReportPath string
	// Diagnostics receives warnings and errors. Defaults to the progress
	// logger.
	Diagnostics *log.Logger
}

// IOError reports a filesystem failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Pipeline redacts documents with one engine and one compiled rule list.
// It is safe for concurrent use.
type Pipeline struct {
	engine   engine.Engine
	redactor *redaction.Redactor
	logger   *log.Logger
	diag     *log.Logger
	opts     Options
}

// New creates a pipeline.
func New(eng engine.Engine, redactor *redaction.Redactor, logger *log.Logger, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	diag := opts.Diagnostics
	if diag == nil {
		diag = logger
	}
	return &Pipeline{engine: eng, redactor: redactor, logger: logger, diag: diag, opts: opts}
}

// Inspect returns document metadata without modifying the file.
func (p *Pipeline) Inspect(path string) (models.DocumentInfo, error) {
	return p.engine.Inspect(path)
}

// RedactFile redacts in and writes the result to out. The rewritten document
// is staged next to out and only renamed into place once its text matches
// the rules applied to the input text.
func (p *Pipeline) RedactFile(ctx context.Context, in, out string) (models.FileResult, error) {
	result := models.FileResult{Input: in, Output: out, DryRun: p.opts.DryRun}
	logger := p.logger.With("file", filepath.Base(in))
	diag := p.diag.With("file", filepath.Base(in))

	if err := ctx.Err(); err != nil {
		return p.fail(result, err)
	}

	fi, err := os.Stat(in)
	if err != nil {
		return p.fail(result, &IOError{Op: "stat", Path: in, Err: err})
	}
	result.OriginalSize = fi.Size()
	logger.Info("Processing", "path", in, "size", humanize.Bytes(uint64(fi.Size())))

	text, err := p.engine.ExtractText(in)
	if err != nil {
		return p.fail(result, err)
	}
	redacted, needed := p.redactor.Redact(text)
	result.ReplacementNeeded = needed
	if needed {
		logger.Info("Text replacements needed")
	} else {
		logger.Info("No text replacements needed")
	}

	if p.opts.DryRun {
		result.Output = ""
		return result, nil
	}

	res, err := p.engine.Rewrite(in, p.redactor.Apply)
	if err != nil {
		return p.fail(result, err)
	}
	result.ChangedOperators = res.ChangedOperators
	if res.ChangedOperators > 0 {
		logger.Info("Applied text replacements", "operators", res.ChangedOperators)
	}

	data := res.Data
	unchanged := !needed && res.ChangedOperators == 0
	if unchanged && p.opts.CopyUnchanged {
		logger.Debug("Copying file as-is")
		data, err = os.ReadFile(in)
		if err != nil {
			return p.fail(result, &IOError{Op: "read", Path: in, Err: err})
		}
	}

	tmp, err := stage(out, data)
	if err != nil {
		return p.fail(result, err)
	}
	if !unchanged {
		if err := p.verify(in, tmp, redacted); err != nil {
			os.Remove(tmp)
			diag.Error("Refusing to write partially redacted output", "path", out, "err", err)
			return p.fail(result, err)
		}
	}
	if err := commit(tmp, out); err != nil {
		return p.fail(result, err)
	}

	result.FinalSize = int64(len(data))
	logger.Info("Original size", "bytes", humanize.Comma(result.OriginalSize))
	logger.Info("Final size", "bytes", humanize.Comma(result.FinalSize), "change", fmt.Sprintf("%+.1f%%", result.SizeChangePercent()))
	logger.Info("Successfully created", "path", out)
	return result, nil
}

// verify checks that the staged document shows exactly the redacted text.
func (p *Pipeline) verify(in, staged, want string) error {
	got, err := p.engine.ExtractText(staged)
	if err != nil {
		return err
	}
	if got != want {
		return &engine.EngineError{Op: "verify", Path: in, Err: engine.ErrIncompleteRedaction}
	}
	return nil
}

func (p *Pipeline) fail(result models.FileResult, err error) (models.FileResult, error) {
	result.Error = err.Error()
	return result, err
}

// stage writes data to a temp file next to path and returns its name.
func stage(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	tmp := session.TempPath(path)
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return "", &IOError{Op: "write", Path: tmp, Err: err}
	}
	return tmp, nil
}

// commit renames a staged file into place.
func commit(tmp, path string) error {
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// FindPDFs lists the PDF files directly inside dir, sorted by name.
func FindPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &IOError{Op: "read dir", Path: dir, Err: err}
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// RedactDir redacts every PDF in inDir into outDir using up to Workers
// concurrent files. A failing file is recorded in the report and does not
// stop the others; the returned error is non-nil when any file failed.
func (p *Pipeline) RedactDir(ctx context.Context, inDir, outDir string) (models.Report, error) {
	run := session.New()
	logger := p.logger.With("run", run.ShortID())
	diag := p.diag.With("run", run.ShortID())
	journal := report.NewJournal(p.opts.ReportPath, models.Report{RunID: run.ID, StartedAt: run.StartedAt})

	files, err := FindPDFs(inDir)
	if err != nil {
		return journal.Report(), err
	}
	logger.Info(fmt.Sprintf("Found %d PDF files to process", len(files)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for _, in := range files {
		in := in
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := filepath.Join(outDir, filepath.Base(in))
			res, err := p.RedactFile(ctx, in, out)
			if err != nil {
				diag.Error("Error processing file", "path", in, "err", err)
			}
			journal.Add(res)
			return nil
		})
	}
	waitErr := g.Wait()

	r := journal.Report()
	sort.Slice(r.Files, func(i, j int) bool { return r.Files[i].Input < r.Files[j].Input })
	logger.Info(fmt.Sprintf("Successfully processed %d/%d files", r.Succeeded(), len(files)))
	if orig, final := r.SizeTotals(); orig > 0 {
		logger.Info("Total size", "original", humanize.Bytes(uint64(orig)), "final", humanize.Bytes(uint64(final)))
	}

	if err := journal.Save(); err != nil {
		return r, &IOError{Op: "write report", Path: journal.Path, Err: err}
	}
	if waitErr != nil {
		return r, waitErr
	}
	if n := r.Failures(); n > 0 {
		return r, fmt.Errorf("%d of %d files failed", n, len(files))
	}
	return r, nil
}
