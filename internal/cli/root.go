package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"resume-rag/internal/config"
)

var (
	cfgFile      string
	documentPath string
	logLevel     string
	cfg          *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "resume-rag",
	Short: "Answer questions about a résumé with retrieval-augmented generation",
	Long: `resume-rag loads a résumé, embeds it into a vector index and answers questions
about it in the first person through a chat-completion model.

Example usage:
  resume-rag serve                         # Start the HTTP chat API
  resume-rag ask -q "What is your GPA?"    # Answer one question
  resume-rag index --dry-run               # Show the extracted chunks`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		var err error
		cfg, err = config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if documentPath != "" {
			cfg.Document.Path = documentPath
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		return setupLogging(cfg.Logging.Level)
	},
}

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultConfigPath, "config file")
	rootCmd.PersistentFlags().StringVar(&documentPath, "document", "", "résumé file (overrides document.path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "trace, debug, info, warn or error (overrides logging.level)")
}

func GetConfig() *config.Config {
	return cfg
}
