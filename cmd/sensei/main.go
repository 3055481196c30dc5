// Package main contains the cli implementation of the engine. It uses
// the cobra package for cli tool implementation, like the teacher's
// cmd/smf.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"sensei/internal/engineconfig"
	"sensei/internal/enginelog"
	"sensei/internal/metrics"
	"sensei/internal/model"
	"sensei/internal/modelio/filestore"
	"sensei/internal/modelio/sqlstore"
	"sensei/internal/reader"
	"sensei/internal/script"
	"sensei/internal/shard"
	"sensei/internal/world"
)

type runFlags struct {
	configFile string
	scriptFile string
	mysqlDSN   string
	modelID    string
}

type scoreFlags struct {
	modelFile    string
	inputFile    string
	rowIDFeature string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "sensei",
		Short: "Single-machine logistic-regression training engine",
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(scoreCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a command script against a fresh engine",
		Long: `Run reads an engine configuration and a command script (SPEC_FULL.md
§6's [[command]] array-of-tables) and executes it against a new World.

Examples:
  sensei run --config engine.toml --script train.toml
  sensei run --script train.toml --mysql-dsn "user:pass@tcp(localhost:3306)/models"`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runScript(flags)
		},
	}
	cmd.Flags().StringVar(&flags.configFile, "config", "", "Path to engine configuration TOML file")
	cmd.Flags().StringVarP(&flags.scriptFile, "script", "s", "", "Path to command script TOML file (required)")
	cmd.Flags().StringVar(&flags.mysqlDSN, "mysql-dsn", "", "MySQL DSN, required when storage_backend=mysql")
	cmd.Flags().StringVar(&flags.modelID, "model-id", "default", "Model identifier used by the mysql storage backend")
	return cmd
}

func scoreCmd() *cobra.Command {
	flags := &scoreFlags{}
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score LIBSVM-format rows against a saved model",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runScore(flags)
		},
	}
	cmd.Flags().StringVarP(&flags.modelFile, "model", "m", "", "Path to a gob-encoded model file (required)")
	cmd.Flags().StringVarP(&flags.inputFile, "input", "i", "", "Path to a LIBSVM-format input file (required)")
	cmd.Flags().StringVar(&flags.rowIDFeature, "row-id-feature", "", "Feature name carrying each row's id")
	return cmd
}

func runScript(flags *runFlags) error {
	if flags.scriptFile == "" {
		return errors.New("--script is required")
	}

	cfg, err := engineconfig.Load(flags.configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := enginelog.New(enginelog.Options{
		TextLogPath:   cfg.Logging.TextLogPath,
		RecordLogPath: cfg.Logging.RecordLogPath,
		LogTimestamp:  cfg.Logging.LogTimestamp,
		ClearOnOpen:   cfg.Logging.ClearLogFiles,
	})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg, flags)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	w := world.New(cfg.MaxShardSize, cfg.WorkerCount, cfg.Deterministic)
	w.Logger = logger
	w.Store = store
	if cfg.MetricsEnabled {
		w.Metrics = metrics.New(prometheus.DefaultRegisterer)
	}

	commands, err := script.Load(flags.scriptFile)
	if err != nil {
		return err
	}

	for _, pc := range commands {
		if pc.ReadData != nil {
			if err := loadReadDataRows(&pc, w, cfg.RowIDFeature); err != nil {
				return err
			}
		}
		if _, err := w.RunCommand(ctx, pc.Command); err != nil {
			return fmt.Errorf("running command %q: %w", pc.Command.Kind, err)
		}
	}
	return nil
}

func openStore(ctx context.Context, cfg engineconfig.Config, flags *runFlags) (model.Store, func(), error) {
	switch cfg.StorageBackend {
	case "mysql":
		if flags.mysqlDSN == "" {
			return nil, nil, errors.New("--mysql-dsn is required when storage_backend=mysql")
		}
		s, err := sqlstore.Open(ctx, flags.mysqlDSN, flags.modelID)
		if err != nil {
			return nil, nil, err
		}
		if err := s.CreateTableIfNotExists(ctx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, nil
	}
}

func loadReadDataRows(pc *script.ParsedCommand, w *world.World, defaultRowIDFeature string) error {
	rowIDFeature := pc.ReadData.RowIDFeature
	if rowIDFeature == "" {
		rowIDFeature = defaultRowIDFeature
	}

	if pc.ReadData.TrainFile != "" {
		rows, err := readAndIntern(pc.ReadData.TrainFile, rowIDFeature, w)
		if err != nil {
			return err
		}
		pc.Command.TrainRows = rows
	}
	if pc.ReadData.HoldoutFile != "" {
		rows, err := readAndIntern(pc.ReadData.HoldoutFile, rowIDFeature, w)
		if err != nil {
			return err
		}
		pc.Command.HoldoutRows = rows
	}
	return nil
}

func readAndIntern(path, rowIDFeature string, w *world.World) ([]shard.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	raw, report, err := reader.ReadLIBSVM(f, reader.Options{RowIDFeatureName: rowIDFeature})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if report != nil {
		for line, lineErr := range report.LineErrors {
			fmt.Fprintf(os.Stderr, "%s:%d: %v\n", path, line, lineErr)
		}
	}

	rows := make([]shard.Row, len(raw))
	for i, r := range raw {
		row, err := reader.Intern(w.Features, r)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

func runScore(flags *scoreFlags) error {
	if flags.modelFile == "" {
		return errors.New("--model is required")
	}
	if flags.inputFile == "" {
		return errors.New("--input is required")
	}

	ctx := context.Background()
	store := filestore.New(flags.modelFile)
	records, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}

	w := world.New(1<<20, 1, true)
	if err := w.LoadModelRecords(ctx, records); err != nil {
		return fmt.Errorf("loading model records: %w", err)
	}

	rows, err := readAndIntern(flags.inputFile, flags.rowIDFeature, w)
	if err != nil {
		return err
	}

	res, err := w.RunCommand(ctx, world.Command{Kind: world.CmdScoreRows, TrainRows: rows})
	if err != nil {
		return fmt.Errorf("scoring rows: %w", err)
	}
	for _, sr := range res.ScoredRows {
		fmt.Printf("%d\t%g\n", sr.RowID, sr.WX)
	}
	return nil
}
