package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"gofactor/adapters/excel"
	"gofactor/adapters/postgres"
	"gofactor/app"
	"gofactor/domain/core"
	"gofactor/domain/factorial"
	"gofactor/domain/selection"
	"gofactor/internal"
	"gofactor/internal/config"
	"gofactor/internal/migration"
	"gofactor/ports"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "gofactor",
		Short:         "Factorial effect estimation and budgeted combination selection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")

	rootCmd.AddCommand(
		newAnalyzeCmd(&configPath),
		newConfigCmd(&configPath),
		newRunsCmd(&configPath),
		newMigrateCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy onto process exit codes
func exitCode(err error) int {
	switch {
	case core.IsConfigurationError(err):
		return 2
	case core.IsDataError(err):
		return 3
	case core.IsComplexityGuard(err):
		return 4
	default:
		return 1
	}
}

type analyzeFlags struct {
	data              string
	sheet             string
	factors           string
	outcome           string
	attributionPrefix string
	baseline          string
	costColumn        string
	costs             string
	xlsx              string
	jsonOut           string
	persist           bool

	path   string
	mode   string
	budget float64
	seed   int64
}

func newAnalyzeCmd(configPath *string) *cobra.Command {
	var f analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Estimate effects on a dataset and select combinations under a budget",
		Long: `Read a csv or xlsx dataset, fit pairwise factorial effects, bootstrap
confidence intervals, score every combination and pick a subset within the budget.

Example: gofactor analyze --data runs.csv --factors channel,offer --outcome revenue --budget 5 --mode exhaustive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			applyOverrides(cmd, cfg, f)
			return runAnalyze(cmd.Context(), cfg, f)
		},
	}

	cmd.Flags().StringVar(&f.data, "data", "", "Dataset file (.csv or .xlsx)")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "Worksheet name for xlsx input")
	cmd.Flags().StringVar(&f.factors, "factors", "", "Comma-separated factor columns")
	cmd.Flags().StringVar(&f.outcome, "outcome", "", "Outcome column")
	cmd.Flags().StringVar(&f.attributionPrefix, "attribution-prefix", "", "Prefix of attribution columns")
	cmd.Flags().StringVar(&f.baseline, "baseline", "", "Attribution baseline column")
	cmd.Flags().StringVar(&f.costColumn, "cost-column", "", "Per-record cost column")
	cmd.Flags().StringVar(&f.costs, "costs", "", "Separate cost file keyed by the factor columns")
	cmd.Flags().StringVar(&f.xlsx, "xlsx", "", "Write the report workbook to this path")
	cmd.Flags().StringVar(&f.jsonOut, "json", "", "Write the report as JSON to this path (- for stdout)")
	cmd.Flags().BoolVar(&f.persist, "persist", false, "Store the run in the configured database")
	cmd.Flags().StringVar(&f.path, "path", "", "Estimation path override (cm or sf)")
	cmd.Flags().StringVar(&f.mode, "mode", "", "Optimizer mode override (exhaustive, greedy or beam)")
	cmd.Flags().Float64Var(&f.budget, "budget", 0, "Budget override")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "Bootstrap seed override")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("factors")

	return cmd
}

// applyOverrides lets explicit flags win over file and environment settings
func applyOverrides(cmd *cobra.Command, cfg *config.Config, f analyzeFlags) {
	if f.path != "" {
		cfg.Estimation.Path = factorial.Path(f.path)
	}
	if f.mode != "" {
		cfg.Optimizer.Mode = selection.Mode(f.mode)
	}
	if cmd.Flags().Changed("budget") {
		cfg.Optimizer.Budget = f.budget
	}
	if cmd.Flags().Changed("seed") {
		cfg.Bootstrap.Seed = f.seed
	}
}

func runAnalyze(ctx context.Context, cfg *config.Config, f analyzeFlags) error {
	logger := cfg.Logger()

	schema := excel.Schema{
		FactorColumns:     splitList(f.factors),
		OutcomeColumn:     f.outcome,
		AttributionPrefix: f.attributionPrefix,
		BaselineColumn:    f.baseline,
		CostColumn:        f.costColumn,
		Sheet:             f.sheet,
	}
	ds, err := excel.NewReader(schema, logger).Read(ctx, f.data)
	if err != nil {
		return err
	}

	var costs factorial.CostTable
	if f.costs != "" {
		column := f.costColumn
		if column == "" {
			column = "cost"
		}
		costs, err = excel.ReadCostTable(f.costs, schema.FactorColumns, column, logger)
		if err != nil {
			return err
		}
	}

	var runs ports.RunRepository
	if f.persist {
		db, err := connect(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		runs = postgres.NewRunRepository(db)
	}

	svc, err := app.NewAnalysisService(cfg, runs, logger)
	if err != nil {
		return err
	}
	report, err := svc.Analyze(ctx, app.AnalysisRequest{Dataset: ds, Costs: costs, Persist: f.persist})
	if err != nil {
		return err
	}

	if f.xlsx != "" {
		if err := excel.NewReportWriter(logger).Write(f.xlsx, report); err != nil {
			return err
		}
	}
	if f.jsonOut != "" {
		if err := writeJSON(f.jsonOut, report); err != nil {
			return err
		}
	}
	if f.jsonOut != "-" {
		printSummary(report)
	}
	return nil
}

func newConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration after file and environment overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			fmt.Printf("# config hash: %s\n", cfg.Hash())
			return nil
		},
	}
}

func newRunsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect persisted runs",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd.Context(), *configPath, func(repo ports.RunRepository) error {
				manifests, err := repo.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "RUN\tCREATED\tPATH\tMODE\tRECORDS\tFACTORS")
				for _, m := range manifests {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
						m.RunID, m.CreatedAt.Time().Format("2006-01-02 15:04:05"), m.Path, m.Mode, m.Records, strings.Join(m.Factors, ","))
				}
				return w.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")

	show := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print the stored report of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := core.ParseRunID(args[0])
			if err != nil {
				return err
			}
			return withRepository(cmd.Context(), *configPath, func(repo ports.RunRepository) error {
				rec, err := repo.GetRun(cmd.Context(), runID)
				if err != nil {
					return err
				}
				return writeJSON("-", rec)
			})
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the run tables in the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			db, err := connect(cmd.Context(), cfg, cfg.Logger())
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}

// connect opens the database and applies the schema
func connect(ctx context.Context, cfg *config.Config, logger *internal.Logger) (*sqlx.DB, error) {
	if cfg.Database.URL == "" {
		return nil, core.NewConfigurationError("database.url", "DATABASE_URL is required for persistence")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migration.NewRunner(logger).Run(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func withRepository(ctx context.Context, configPath string, fn func(ports.RunRepository) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, err := connect(ctx, cfg, cfg.Logger())
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(postgres.NewRunRepository(db))
}

func writeJSON(path string, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = fmt.Println(string(out))
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func printSummary(report *app.Report) {
	m := report.Manifest
	fmt.Printf("run %s (%s, %d records, %d factors) in %dms\n", m.RunID, m.Path, m.Records, len(m.Factors), report.RuntimeMs)
	for i, p := range report.PCI {
		d := report.Model.Pairs[i]
		fmt.Printf("  %s×%s  PCI %.4f  MSE %.4g\n", d.A.Name, d.B.Name, p.Simple, d.MSE)
	}
	if report.Diagnostics != nil {
		fmt.Printf("  interaction share %.3f, residual share %.3f\n", report.Diagnostics.InteractionShare, report.Diagnostics.ResidualShare)
	}
	fmt.Printf("  %s\n", report.Selection)
	for _, it := range report.Selection.Items() {
		fmt.Printf("    %s  cost %.4g  score %.4g\n", it.Combination, it.Cost, it.Score)
	}
	for _, w := range report.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
