package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-import/internal/domain/import/bankconfig"
	"github.com/FACorreiaa/statement-import/internal/domain/import/dedup"
	"github.com/FACorreiaa/statement-import/internal/domain/import/parser"
	"github.com/FACorreiaa/statement-import/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/statement-import/internal/domain/import/service"
	"github.com/FACorreiaa/statement-import/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
	"github.com/FACorreiaa/statement-import/pkg/db"
)

var (
	headerColor    = color.New(color.Bold)
	errorColor     = color.New(color.FgRed)
	warnColor      = color.New(color.FgYellow)
	duplicateColor = color.New(color.BgRed, color.FgWhite)
	okColor        = color.New(color.FgGreen)
)

func newDetectCommand(opts *globalOptions) *cobra.Command {
	var bank string
	cmd := &cobra.Command{
		Use:   "detect FILE",
		Short: "Report the detected statement format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			configs, err := bankconfig.LoadSet(opts.configDir)
			if err != nil {
				return fmt.Errorf("failed to load bank configs: %w", err)
			}
			registry := parser.DefaultRegistry(opts.logger(cmd.ErrOrStderr()))
			detector := sniffer.NewDetector(registry.Descriptors()).WithHintResolver(configs.PreferredFormats)

			det, err := detector.Detect(filepath.Base(args[0]), data, bank)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "format:  %s (%s)\n", det.Descriptor.Format, det.Descriptor.Name)
			fmt.Fprintf(w, "method:  %s\n", det.Method)
			fmt.Fprintf(w, "score:   %d\n", det.Score)
			fmt.Fprintf(w, "config:  %s\n", configs.Resolve(bank).Name())
			if det.ExtensionMismatch {
				warnColor.Fprintf(w, "warning: extension %s does not match the content\n", filepath.Ext(args[0]))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bank, "bank", "", "bank hint used to pick a config and break format ties")
	return cmd
}

func newPreviewCommand(opts *globalOptions) *cobra.Command {
	var (
		bank  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Parse a statement and print its candidate transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.offlineService(cmd, repository.NewMemoryStore(), nil)
			if err != nil {
				return err
			}
			defer svc.Close()
			svc.WithLimits(importservice.Limits{PreviewSample: limit})

			up, err := uploadFile(cmd.Context(), svc, args[0], bank)
			if err != nil {
				return err
			}
			p, err := svc.Preview(cmd.Context(), up.Token)
			if err != nil {
				return err
			}
			printPreview(cmd.OutOrStdout(), p)
			return nil
		},
	}
	cmd.Flags().StringVar(&bank, "bank", "", "bank hint used to pick a config")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to print")
	return cmd
}

func newAnalyzeCommand(opts *globalOptions) *cobra.Command {
	var (
		bank      string
		dsn       string
		window    int
		tolerance string
		strict    bool
	)
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Parse a statement and flag likely duplicates of stored transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tol, err := decimal.NewFromString(tolerance)
			if err != nil {
				return fmt.Errorf("invalid --tolerance %q: %w", tolerance, err)
			}
			engine := dedup.NewEngine().WithWindow(window).WithAmountTolerance(tol).WithStrict(strict)

			var store repository.Store = repository.NewMemoryStore()
			if dsn != "" {
				database, err := db.New(db.Config{DSN: dsn, MaxConns: 4}, opts.logger(cmd.ErrOrStderr()))
				if err != nil {
					return err
				}
				defer database.Close()
				store = repository.NewPostgresStore(database.Pool)
			}

			svc, err := opts.offlineService(cmd, store, engine)
			if err != nil {
				return err
			}
			defer svc.Close()

			up, err := uploadFile(cmd.Context(), svc, args[0], bank)
			if err != nil {
				return err
			}
			p, err := svc.Preview(cmd.Context(), up.Token)
			if err != nil {
				return err
			}
			a, err := svc.Analyze(cmd.Context(), up.Token)
			if err != nil {
				return err
			}
			printAnalysis(cmd.OutOrStdout(), p.Result.Candidates, a)
			return nil
		},
	}
	cmd.Flags().StringVar(&bank, "bank", "", "bank hint used to pick a config")
	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN of the transaction store (empty compares against nothing)")
	cmd.Flags().IntVar(&window, "window", dedup.DefaultWindowDays, "date window in days")
	cmd.Flags().StringVar(&tolerance, "tolerance", "0", "absolute amount tolerance")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on tied duplicate matches")
	return cmd
}

func printPreview(w io.Writer, p *importservice.Preview) {
	headerColor.Fprintf(w, "%s via %s: %d candidates, %d complete\n", p.Format, p.BankConfig, p.TransactionCount, p.CompleteCount)
	for _, c := range p.Sample {
		line := formatCandidate(c)
		if c.Complete() {
			fmt.Fprintln(w, line)
		} else {
			errorColor.Fprintln(w, line)
		}
	}
	if hidden := p.TransactionCount - len(p.Sample); hidden > 0 {
		fmt.Fprintf(w, "... %d more\n", hidden)
	}
	for _, e := range p.Errors {
		errorColor.Fprintf(w, "error: %s\n", e)
	}
	for _, warning := range p.Warnings {
		warnColor.Fprintf(w, "warning: %s\n", warning)
	}
}

func printAnalysis(w io.Writer, candidates []statement.Candidate, a *importservice.Analysis) {
	headerColor.Fprintf(w, "%d candidates, %d likely duplicates\n", len(a.Assessments), a.Duplicates)
	for _, as := range a.Assessments {
		if as.Candidate < 0 || as.Candidate >= len(candidates) {
			continue
		}
		line := formatCandidate(candidates[as.Candidate])
		switch {
		case as.IsLikelyDuplicate:
			duplicateColor.Fprintf(w, "%s  DUPLICATE %.2f %s\n", line, as.Confidence, matchIDs(as.Matches))
		case len(as.Matches) > 0:
			warnColor.Fprintf(w, "%s  possible %.2f %s\n", line, as.Confidence, matchIDs(as.Matches))
		case as.Note != "":
			errorColor.Fprintf(w, "%s  (%s)\n", line, as.Note)
		default:
			okColor.Fprintf(w, "%s  new\n", line)
		}
	}
}

func formatCandidate(c statement.Candidate) string {
	date := "----------"
	if c.HasDate() {
		date = c.Date.Format("2006-01-02")
	}
	amount := "?"
	if c.Amount.Valid {
		amount = c.Amount.Decimal.StringFixed(2)
	}
	return fmt.Sprintf("%4d  %s  %12s %-3s  %s", c.Index, date, amount, c.Currency, c.Description)
}

func matchIDs(ms []dedup.Match) string {
	out := ""
	for i, m := range ms {
		if i > 0 {
			out += ","
		}
		out += m.ExistingID
	}
	return out
}
