package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/feichai0017/docformat/config"
	"github.com/feichai0017/docformat/internal/models"
	"github.com/feichai0017/docformat/internal/service/format"
	"github.com/feichai0017/docformat/pkg/history"
	"github.com/feichai0017/docformat/pkg/logger"
)

type formatOptions struct {
	outDir           string
	preset           string
	font             string
	fontSize         int
	lineSpacing      float64
	paragraphSpacing float64
	indent           int
	indentMode       string
	imageLayout      string
	normalizeImages  bool
	exportPreview    bool
	noHistory        bool
}

func formatCmd() *cobra.Command {
	opts := &formatOptions{}
	cmd := &cobra.Command{
		Use:   "format [files...]",
		Short: "Reformat Word documents",
		Long: `Apply one formatting profile to every input document.

A single input is written as formatted_<name>; several inputs are bundled
into formatted_documents.zip. Files that fail are reported and skipped.

Examples:
  docfmt format report.docx
  docfmt format *.docx --preset official --out dist
  docfmt format a.docx b.docx --font 宋体 --size 32 --line-spacing 1.5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormat(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.outDir, "out", "o", ".", "output directory")
	f.StringVarP(&opts.preset, "preset", "p", "", "named preset (default, official, compact or from the presets file)")
	f.StringVar(&opts.font, "font", "", "font family")
	f.IntVar(&opts.fontSize, "size", 0, "font size in half-points (24 = 12pt)")
	f.Float64Var(&opts.lineSpacing, "line-spacing", 0, "line spacing multiplier")
	f.Float64Var(&opts.paragraphSpacing, "paragraph-spacing", 0, "space before and after each paragraph in points")
	f.IntVar(&opts.indent, "indent", 0, "first-line indent in characters")
	f.StringVar(&opts.indentMode, "indent-mode", "", "fixed or configurable")
	f.StringVar(&opts.imageLayout, "image-layout", "", "fixed or aspect")
	f.BoolVar(&opts.normalizeImages, "normalize-images", false, "re-encode BMP/TIFF and oversized images")
	f.BoolVar(&opts.exportPreview, "export-preview", false, "also write the last formatted file's text as "+models.PreviewExportName)
	f.BoolVar(&opts.noHistory, "no-history", false, "do not record the batch in the history database")
	return cmd
}

func runFormat(cmd *cobra.Command, args []string, opts *formatOptions) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if opts.indentMode != "" {
		cfg.Format.IndentMode = opts.indentMode
	}
	if opts.imageLayout != "" {
		cfg.Format.ImageLayout = opts.imageLayout
	}
	if opts.normalizeImages {
		cfg.Format.NormalizeImages = true
	}
	profile, err := resolveProfile(cmd, cfg, opts)
	if err != nil {
		return err
	}

	inputs := make([]models.InputFile, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		inputs = append(inputs, models.InputFile{Name: filepath.Base(path), Data: data})
	}

	var hist history.Store
	if !opts.noHistory && cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			log.Warn("History disabled", logger.Error(err))
		} else {
			defer store.Close()
			hist = store
		}
	}

	svc, err := format.NewSyncService(cfg.Format, hist, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	var lastPreview *models.PreviewSnapshot
	progress := format.ObserverFunc(func(_ context.Context, job *models.BatchJob, kind format.EventKind) {
		switch kind {
		case format.EventPreview:
			lastPreview = job.Preview
		case format.EventProgress:
			fmt.Fprintf(out, "[%5.1f%%] %s\n", job.Progress, job.Filenames[len(job.Outcomes)])
		case format.EventFile:
			o := job.Outcomes[len(job.Outcomes)-1]
			if !o.Succeeded {
				fmt.Fprintf(out, "         failed (%s): %s\n", o.FailureKind, o.Error)
			}
		}
	})

	result, err := svc.FormatNow(ctx, inputs, profile, progress)
	if err != nil {
		return err
	}

	s := result.Summary
	fmt.Fprintf(out, "\n%s: %d succeeded, %d failed of %d\n", s.Status, s.Succeeded, s.Failed, s.Total)
	if result.Output == nil {
		return fmt.Errorf("no document was formatted")
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	dest := filepath.Join(opts.outDir, result.Output.Name)
	if err := os.WriteFile(dest, result.Output.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	fmt.Fprintf(out, "Wrote %s\n", dest)

	if opts.exportPreview {
		artifact, err := svc.ExportSnapshot(ctx, lastPreview, profile)
		if err != nil {
			return err
		}
		dest := filepath.Join(opts.outDir, artifact.Name)
		if err := os.WriteFile(dest, artifact.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", dest, err)
		}
		fmt.Fprintf(out, "Wrote %s\n", dest)
	}
	return nil
}

// resolveProfile layers the config default, the preset and explicitly set flags.
func resolveProfile(cmd *cobra.Command, cfg *config.Config, opts *formatOptions) (models.FormatProfile, error) {
	profile := cfg.Format.Profile
	if opts.preset != "" {
		presets, err := config.LoadPresets(cfg.Format.PresetsPath)
		if err != nil {
			return profile, err
		}
		if profile, err = presets.Lookup(opts.preset); err != nil {
			return profile, fmt.Errorf("%w (available: %s)", err, strings.Join(presets.Names(), ", "))
		}
	}

	f := cmd.Flags()
	if f.Changed("font") {
		profile.Font = opts.font
	}
	if f.Changed("size") {
		profile.FontSizeHalfPoints = opts.fontSize
	}
	if f.Changed("line-spacing") {
		profile.LineSpacingMultiplier = opts.lineSpacing
	}
	if f.Changed("paragraph-spacing") {
		profile.ParagraphSpacingPoints = opts.paragraphSpacing
	}
	if f.Changed("indent") {
		profile.FirstLineIndentChars = opts.indent
	}
	return profile, profile.Validate()
}
