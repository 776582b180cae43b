package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"ragvault/internal/adapter/fs"
	"ragvault/internal/domain"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Ingest documents into the vector store",
	Long: `Ingest files and directories into the vector store. Directories are walked
using the ingest.includes and ingest.excludes patterns; files named on the
command line are always ingested. Documents are processed one at a time and
the store is checkpointed while each one is embedded.

Examples:
  ragvault ingest .                   # Ingest the current directory
  ragvault ingest notes.md docs/      # Ingest a file and a directory`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	log := Logger()

	roots := args
	if len(roots) == 0 {
		roots = []string{GetRootDir()}
	}

	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes)
	files, err := walker.Walk(roots...)
	if err != nil {
		return fmt.Errorf("failed to scan: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No matching files found.")
		return nil
	}

	a, err := openApp(cfg, log)
	if err != nil {
		return err
	}
	if !a.gateway.Available() {
		return fmt.Errorf("cannot ingest: %w", domain.ErrModelUnavailable)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Ingesting %d files...\n", len(files))
	start := time.Now()

	var (
		completed, partial, failed int
		chunks, skipped            int
	)
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		if !a.pipeline.Supports(f.Name) {
			log.Debug("skipping unsupported file", "path", f.Path)
			continue
		}

		status, err := a.pipeline.IngestFile(ctx, f.Path, f.Name, newProgress(f.Name))
		chunks += status.Indexed
		skipped += status.Skipped
		switch {
		case err != nil:
			failed++
			fmt.Printf("  failed: %s: %v\n", f.Path, err)
		case status.State == domain.IngestPartial:
			partial++
		default:
			completed++
		}
	}

	fmt.Printf("\nIngestion complete in %s:\n", formatDuration(time.Since(start)))
	fmt.Printf("  Documents completed: %d\n", completed)
	fmt.Printf("  Documents partial:   %d\n", partial)
	fmt.Printf("  Documents failed:    %d\n", failed)
	fmt.Printf("  Chunks indexed:      %d\n", chunks)
	if skipped > 0 {
		fmt.Printf("  Chunks skipped:      %d\n", skipped)
	}
	fmt.Printf("\nStore saved at: %s (%d vectors)\n", a.store.IndexPath(), a.store.Count())

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed > 0 {
		return fmt.Errorf("%d documents failed", failed)
	}
	return nil
}

// newProgress returns a progress callback drawing one bar per document.
func newProgress(name string) func(domain.IngestStatus) {
	var (
		bar       *progressbar.ProgressBar
		startTime time.Time
		label     = fmt.Sprintf("[cyan]%s[reset]", filepath.Base(name))
	)

	return func(s domain.IngestStatus) {
		if bar == nil {
			if s.TotalChunks == 0 {
				return
			}
			startTime = time.Now()
			bar = progressbar.NewOptions(s.TotalChunks,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription(label),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		processed := s.Indexed + s.Skipped
		bar.Set(processed)

		if processed > 0 && processed < s.TotalChunks {
			elapsed := time.Since(startTime)
			rate := float64(processed) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(s.TotalChunks-processed)/rate) * time.Second
				bar.Describe(fmt.Sprintf("%s ETA: %s", label, formatDuration(eta)))
			}
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
