package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fintrack/internal/analysis/heuristic"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/reallocation"
	"fintrack/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:           "fintrackctl",
	Short:         "Budget reallocation tools for fintrack",
	Long:          "fintrackctl runs the reallocation engine on local files and inspects the prediction history database.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var reallocateCmd = &cobra.Command{
	Use:   "reallocate",
	Short: "Apply advice directives to an analysis report file",
	RunE:  runReallocate,
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Analyze a transactions file and print the adjusted prediction",
	RunE:  runPredict,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded predictions",
	RunE:  runHistory,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "Log engine decisions to stderr")

	reallocateCmd.Flags().String("report", "", "Analysis report JSON file (- for stdin)")
	reallocateCmd.Flags().Bool("explain", false, "Include parsed directives and intermediate totals")
	_ = reallocateCmd.MarkFlagRequired("report")

	predictCmd.Flags().String("transactions", "", "Transactions JSON file (- for stdin)")
	predictCmd.Flags().Bool("explain", false, "Include parsed directives and intermediate totals")
	predictCmd.Flags().Float64("share-threshold", heuristic.DefaultShareThreshold, "Category share (percent) that triggers a rebalance line")
	predictCmd.Flags().Int("savings-percent", heuristic.DefaultSavingsPercent, "Savings line percentage, 0 to disable")
	_ = predictCmd.MarkFlagRequired("transactions")

	historyCmd.Flags().Int("limit", 20, "Number of predictions to show")
	historyCmd.Flags().String("db", "", "SQLite database path (defaults to SQLITE_DB_PATH)")
	historyCmd.Flags().Bool("json", false, "Print records as JSON")

	migrateCmd.Flags().String("db", "", "SQLite database path (defaults to SQLITE_DB_PATH)")

	rootCmd.AddCommand(reallocateCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cli.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger writes to stderr so stdout stays machine readable.
func newLogger(cmd *cobra.Command) *log.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return log.Discard()
	}
	level := log.ParseLevel("debug")
	return log.New(log.Config{
		Level:     level,
		Component: log.ComponentApp,
		Handler:   log.NewHandler(cmd.ErrOrStderr(), "text", level),
	})
}

func resolveDBPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("db"); path != "" {
		return path, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.SQLiteDBPath, nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func runReallocate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("report")
	explain, _ := cmd.Flags().GetBool("explain")

	data, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	report, err := core.DecodeReport(data)
	if err != nil {
		return fmt.Errorf("decoding report: %w", err)
	}

	engine := reallocation.NewEngine(newLogger(cmd))
	return reallocate(cmd.Context(), cmd.OutOrStdout(), engine, report, explain)
}

func runPredict(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("transactions")
	explain, _ := cmd.Flags().GetBool("explain")
	threshold, _ := cmd.Flags().GetFloat64("share-threshold")
	savings, _ := cmd.Flags().GetInt("savings-percent")

	data, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	txs, err := decodeTransactions(data)
	if err != nil {
		return err
	}

	analyzer := heuristic.New(heuristic.Config{ShareThreshold: threshold, SavingsPercent: savings})
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	report, err := analyzer.Analyze(ctx, txs)
	if err != nil {
		return fmt.Errorf("analyzing transactions: %w", err)
	}

	engine := reallocation.NewEngine(newLogger(cmd))
	return reallocate(ctx, cmd.OutOrStdout(), engine, report, explain)
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")
	if limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", limit)
	}

	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return err
	}
	repo, err := storage.NewSQLiteRepository(dbPath, newLogger(cmd))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer repo.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	records, err := repo.ListRecent(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing predictions: %w", err)
	}
	return printHistory(cmd.OutOrStdout(), records, asJSON)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("creating db directory: %w", err)
	}

	version, dirty, err := storage.MigrateUp(dbPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Database %s at schema version %d (dirty=%t)\n", dbPath, version, dirty)
	return nil
}

type explainedOutput struct {
	Report  core.Report          `json:"report"`
	Outcome reallocation.Outcome `json:"outcome"`
}

func reallocate(ctx context.Context, w io.Writer, engine *reallocation.Engine, report core.Report, explain bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	adjusted, outcome, err := engine.Apply(ctx, report)
	if err != nil {
		return fmt.Errorf("reallocating: %w", err)
	}

	var out any = adjusted
	if explain {
		out = explainedOutput{Report: adjusted, Outcome: outcome}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// decodeTransactions accepts either a bare array or the HTTP request body
// shape {"transactions": [...]}.
func decodeTransactions(data []byte) ([]core.Transaction, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var txs []core.Transaction
		if err := json.Unmarshal(trimmed, &txs); err != nil {
			return nil, fmt.Errorf("decoding transactions: %w", err)
		}
		return txs, nil
	}

	var body struct {
		Transactions *[]core.Transaction `json:"transactions"`
	}
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return nil, fmt.Errorf("decoding transactions: %w", err)
	}
	if body.Transactions == nil {
		return nil, errors.New("decoding transactions: transactions is required")
	}
	return *body.Transactions, nil
}

func printHistory(w io.Writer, records []core.PredictionRecord, asJSON bool) error {
	if asJSON {
		if records == nil {
			records = []core.PredictionRecord{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(w, "No predictions recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tANALYZER\tBASELINE\tFINAL\tANOMALIES\tSYNC")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.Analyzer,
			core.FormatAmount(r.BaselineAmount),
			core.FormatAmount(r.FinalAmount),
			r.AnomalyCount,
			r.SyncStatus)
	}
	return tw.Flush()
}
