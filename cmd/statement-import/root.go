package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
	"github.com/FACorreiaa/statement-import/internal/domain/import/dedup"
	"github.com/FACorreiaa/statement-import/internal/domain/import/parser"
	"github.com/FACorreiaa/statement-import/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/statement-import/internal/domain/import/service"
)

type globalOptions struct {
	verbose   bool
	configDir string
}

// newRootCommand creates the root CLI command with all subcommands registered.
func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "statement-import",
		Short: "Detect, parse and deduplicate bank statements",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	rootCmd.PersistentFlags().StringVar(&opts.configDir, "bank-configs", "", "directory of extra bank config YAML files")

	rootCmd.AddCommand(
		newServeCommand(),
		newDetectCommand(opts),
		newPreviewCommand(opts),
		newAnalyzeCommand(opts),
	)
	return rootCmd
}

func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// offlineService builds an import service for one-shot commands.
func (o *globalOptions) offlineService(cmd *cobra.Command, store repository.Store, engine *dedup.Engine) (*importservice.ImportService, error) {
	logger := o.logger(cmd.ErrOrStderr())
	configs, err := bankconfig.LoadSet(o.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load bank configs: %w", err)
	}
	if engine == nil {
		engine = dedup.NewEngine()
	}
	return importservice.NewImportService(parser.DefaultRegistry(logger), configs, engine.WithLogger(logger), store, logger), nil
}

// uploadFile reads path and opens a session for it.
func uploadFile(ctx context.Context, svc *importservice.ImportService, path, bank string) (*importservice.UploadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return svc.Upload(ctx, importservice.UploadRequest{
		Filename: filepath.Base(path),
		Data:     data,
		BankHint: bank,
	})
}
