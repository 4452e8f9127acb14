package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/simp-lee/epubslice/internal/config"
)

// app carries state shared by every subcommand.
type app struct {
	cfgFile  string
	logLevel string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "epubslice",
		Short: "Cut ePub books into self-contained chapter fragments",
		Long: `epubslice extracts chapters from an ePub as standalone XHTML documents.

Each chapter runs from its table-of-contents entry to the start of the next
one, across as many spine documents as it takes. Images are downloaded (or
read from the book) and stored next to the chapters.

Examples:
  epubslice toc book.epub
  epubslice extract book.epub --start 3 --end -2
  epubslice extract book.epub --start-name "Chapter 1" --no-images`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipConfigLoad"] == "true" {
				return nil
			}
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(
		&a.cfgFile, "config", "", "config file (default: ./config.yaml or ~/.epubslice/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&a.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)",
	)

	rootCmd.AddCommand(newTocCommand(a))
	rootCmd.AddCommand(newExtractCommand(a))
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// load reads the configuration and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	lvl, err := cfg.Level()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: lvl,
	}))
	return nil
}
