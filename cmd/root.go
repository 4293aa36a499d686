package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"pdf-redactor/internal/config"
	"pdf-redactor/internal/engine"
	"pdf-redactor/internal/logging"
	"pdf-redactor/internal/pipeline"
	"pdf-redactor/internal/redaction"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	settings   config.Settings
	logger     *log.Logger
	diagLogger *log.Logger

	configPath       string
	findText         string
	replaceText      string
	useRegex         bool
	caseInsensitive  bool
	noCompress       bool
	compressionLevel int
	showInfo         bool
	inputDir         string
	outputDir        string
	workers          int
	reportPath       string
	dryRun           bool
	verbose          bool
)

var rootCmd = &cobra.Command{
	Use:   "pdf-redactor [flags] input.pdf output.pdf",
	Short: "Replace sensitive text in PDF files",
	Long: `Replace sensitive text in PDF files using literal or regular expression
rules, while keeping the output compressed.

Rules come from --find/--replace, from a rules document (--config), or both.
Rules from the document run first, the command-line rule runs last.`,
	Example: `  pdf-redactor input.pdf output.pdf --find "John Doe" --replace "[REDACTED]"
  pdf-redactor input.pdf output.pdf --find "\d{3}-\d{2}-\d{4}" --replace "XXX-XX-XXXX" --regex
  pdf-redactor input.pdf output.pdf --config replacements.json
  pdf-redactor --input-dir ./pdfs --output-dir ./redacted --config replacements.json
  pdf-redactor input.pdf output.pdf --find "SSN" --replace "[REDACTED]" --no-compress
  pdf-redactor input.pdf --info`,
	Args:          cobra.MaximumNArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		settings = config.LoadSettings()
		level := settings.LogLevel
		if verbose {
			level = "debug"
		}
		// Progress goes to stdout, warnings and errors to stderr.
		logger = logging.New(logging.Options{Level: level, Output: cmd.OutOrStdout()})
		diagLogger = logging.New(logging.Options{Level: "warn", Output: cmd.ErrOrStderr()})
	},
	RunE: runRedact,
}

// Execute runs the CLI and exits with status 1 on any failure.
func Execute() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	if err := Run(); err != nil {
		os.Exit(1)
	}
}

// Run executes the command tree with the arguments set by SetArgs. Flags are
// reset first so repeated runs in one process do not leak state.
func Run() error {
	err := resetFlags(rootCmd)
	if err == nil {
		err = rootCmd.Execute()
	}
	if err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return err
}

func resetFlags(c *cobra.Command) error {
	var err error
	reset := func(f *pflag.Flag) {
		var serr error
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			// Set appends for slice flags and DefValue is rendered as "[a,b]".
			serr = sv.Replace(nil)
			if serr == nil && f.DefValue != "[]" {
				serr = sv.Replace(strings.Split(strings.Trim(f.DefValue, "[]"), ","))
			}
		} else {
			serr = f.Value.Set(f.DefValue)
		}
		if serr != nil && err == nil {
			err = fmt.Errorf("reset flag --%s: %w", f.Name, serr)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	if err != nil {
		return err
	}
	for _, sub := range c.Commands() {
		if err := resetFlags(sub); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "rules document (JSON, YAML or TOML)")
	rootCmd.PersistentFlags().StringVar(&findText, "find", "", "text or pattern to find")
	rootCmd.PersistentFlags().StringVar(&replaceText, "replace", "", "replacement text (may be empty)")
	rootCmd.PersistentFlags().BoolVar(&useRegex, "regex", false, "treat --find as a regular expression")
	rootCmd.PersistentFlags().BoolVar(&caseInsensitive, "case-insensitive", false, "match --find ignoring case")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.Flags().BoolVar(&noCompress, "no-compress", false, "do not compress the output PDF")
	rootCmd.Flags().IntVar(&compressionLevel, "compression-level", config.DefaultCompressionLevel, "compression level (0=none, 9=maximum)")
	rootCmd.Flags().BoolVar(&showInfo, "info", false, "show PDF information and exit")
	rootCmd.Flags().StringVar(&inputDir, "input-dir", "", "input directory for batch processing")
	rootCmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory for batch processing")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "files processed in parallel in batch mode (default: number of CPUs)")
	rootCmd.Flags().StringVar(&reportPath, "report", "", "write a JSON report of the batch run to this path")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report whether replacements are needed without writing output")
}

func SetArgs(args []string) {
	rootCmd.SetArgs(args)
}

func SetOut(w io.Writer) {
	rootCmd.SetOut(w)
}

func SetErr(w io.Writer) {
	rootCmd.SetErr(w)
}

// loadRuleSet combines the rules document and the command-line rule.
// Document rules come first.
func loadRuleSet(cmd *cobra.Command) (config.RuleSet, error) {
	rs := config.RuleSet{Compression: config.DefaultCompression()}

	path := configPath
	if path == "" {
		path = settings.ConfigPath
	}
	if path != "" {
		loaded, err := config.LoadRules(path)
		if err != nil {
			return rs, err
		}
		logger.Debug("Loaded rules document", "path", path, "rules", len(loaded.Rules))
		rs = loaded
	}

	findSet := cmd.Flags().Changed("find")
	replaceSet := cmd.Flags().Changed("replace")
	switch {
	case findSet && !replaceSet:
		return rs, errors.New("--find requires --replace")
	case replaceSet && !findSet:
		return rs, errors.New("--replace requires --find")
	case findSet:
		rs.Rules = append(rs.Rules, redaction.NewRule(findText, replaceText, useRegex, caseInsensitive))
	}
	return rs, nil
}

func newEngine(c config.Compression) *engine.PDFCPU {
	return engine.NewPDFCPU(engine.Options{Compress: c.Preserve, Level: c.Level})
}

func runRedact(cmd *cobra.Command, args []string) error {
	if showInfo {
		if len(args) == 0 {
			return errors.New("--info requires an input file")
		}
		return printInfo(cmd, args[0])
	}

	batch := inputDir != "" || outputDir != ""
	switch {
	case batch && (inputDir == "" || outputDir == ""):
		return errors.New("batch mode requires both --input-dir and --output-dir")
	case batch && len(args) > 0:
		return errors.New("positional files cannot be combined with --input-dir/--output-dir")
	case !batch && len(args) != 2:
		return errors.New("specify either input and output files or --input-dir/--output-dir")
	}
	if configPath == "" && settings.ConfigPath == "" && !cmd.Flags().Changed("find") {
		return errors.New("either --config or --find/--replace is required")
	}

	rs, err := loadRuleSet(cmd)
	if err != nil {
		return err
	}
	if noCompress {
		rs.Compression.Preserve = false
	}
	if cmd.Flags().Changed("compression-level") {
		if compressionLevel < 0 || compressionLevel > config.MaxCompressionLevel {
			return fmt.Errorf("--compression-level must be between 0 and %d", config.MaxCompressionLevel)
		}
		rs.Compression.Level = compressionLevel
	}

	redactor, err := redaction.Compile(rs.Rules)
	if err != nil {
		return err
	}
	logger.Debug("Rules compiled", "rules", redactor.Len(), "preserve_compression", rs.Compression.Preserve, "level", rs.Compression.Level)

	n := workers
	if n <= 0 {
		n = settings.Workers
	}
	p := pipeline.New(newEngine(rs.Compression), redactor, logger, pipeline.Options{
		DryRun:        dryRun,
		Workers:       n,
		CopyUnchanged: rs.Compression.Preserve,
		ReportPath:    reportPath,
		Diagnostics:   diagLogger,
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if batch {
		_, err := p.RedactDir(ctx, inputDir, outputDir)
		return err
	}
	_, err = p.RedactFile(ctx, args[0], args[1])
	return err
}

func printInfo(cmd *cobra.Command, path string) error {
	p := pipeline.New(newEngine(config.DefaultCompression()), nil, logger, pipeline.Options{})
	info, err := p.Inspect(path)
	if err != nil {
		return err
	}
	cmd.Printf("\nPDF Information for: %s\n", path)
	if info.Version != "" {
		cmd.Printf("Version: %s\n", info.Version)
	}
	cmd.Printf("Pages: %d\n", info.Pages)
	cmd.Printf("Encrypted: %t\n", info.Encrypted)
	cmd.Printf("Uses Compression: %t\n", info.UsesCompression)
	cmd.Printf("Compressed Objects: %d\n", info.CompressedStreams)
	cmd.Printf("File Size: %s bytes (%s)\n", humanize.Comma(info.FileSize), humanize.Bytes(uint64(info.FileSize)))
	if len(info.Metadata) > 0 {
		cmd.Println("\nMetadata:")
		for _, key := range engine.SortedMetadataKeys(info.Metadata) {
			cmd.Printf("  %s: %s\n", key, info.Metadata[key])
		}
	}
	return nil
}
