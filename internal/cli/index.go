package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"resume-rag/internal/app"
	"resume-rag/internal/helper"
	"resume-rag/internal/parser"
)

var indexDryRun bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Extract, embed and index the résumé",
	Long: `Extract the résumé chunks and embed them into the configured index. With an
embedding cache configured this warms the cache so the next serve starts
without calling the embedding model.

Examples:
  resume-rag index --dry-run          # Print the extracted chunks only
  resume-rag index --document cv.docx`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexDryRun, "dry-run", false, "print chunks, do not embed or index")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	if indexDryRun {
		chunks, err := parser.ParseDocument(cfg.Document.Path, &cfg.RAG)
		if err != nil {
			return err
		}
		helper.PrettyPrint(chunks)
		return nil
	}

	var (
		bar   *progressbar.ProgressBar
		barMu sync.Mutex
	)
	progress := func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
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
		bar.Set(done)
	}

	start := time.Now()
	application, err := app.New(cmd.Context(), cfg, app.IndexOnly(), app.WithProgress(progress))
	if err != nil {
		return err
	}
	defer application.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks from %s into %s backend in %s\n",
		application.Index.Count(), cfg.Document.Path, cfg.RAG.Backend, time.Since(start).Round(time.Millisecond))
	return nil
}
