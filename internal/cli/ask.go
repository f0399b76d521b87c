package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"resume-rag/internal/app"
	"resume-rag/internal/helper"
)

var (
	askQuestion    string
	askShowSources bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a single question",
	Long: `Index the résumé and answer one question, printing the retrieved sources.

Examples:
  resume-rag ask -q "What is your GPA?"
  resume-rag ask -q "Which projects did you build?" --sources=false`,
	Args: cobra.NoArgs,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askQuestion, "question", "q", "", "question to answer (required)")
	askCmd.Flags().BoolVar(&askShowSources, "sources", true, "print the retrieved chunks")
	askCmd.MarkFlagRequired("question")
}

func runAsk(cmd *cobra.Command, args []string) error {
	application, err := app.New(cmd.Context(), GetConfig())
	if err != nil {
		return err
	}
	defer application.Close()

	response, err := application.RAG.Query(cmd.Context(), askQuestion)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Fprintf(out, "%s\n\n", response.Query)

	if askShowSources {
		log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		helper.PrettyPrint(response.Sources)
		fmt.Fprintln(out)
	}

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Fprintf(out, "%s\n", response.Content)
	return nil
}
