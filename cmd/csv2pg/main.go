package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/johndauphine/csv2pg/internal/config"
	"github.com/johndauphine/csv2pg/internal/dbcheck"
	"github.com/johndauphine/csv2pg/internal/history"
	"github.com/johndauphine/csv2pg/internal/logging"
	"github.com/johndauphine/csv2pg/internal/pipeline"
	"github.com/johndauphine/csv2pg/internal/sampler"
	"github.com/johndauphine/csv2pg/internal/secrets"
	"github.com/johndauphine/csv2pg/internal/state"
	"github.com/johndauphine/csv2pg/internal/version"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    version.Name,
		Usage:   "Prepare CSV files for PostgreSQL bulk loading via pgloader",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "csv2pg.yaml",
				Usage:   "Path to configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (text, json)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "prepare",
				Usage:     "Analyze a CSV and generate the loader config and import script",
				ArgsUsage: "<file.csv>",
				Action:    runPrepare,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "table",
						Aliases: []string{"t"},
						Usage:   "Target table name (default: derived from the file name)",
					},
					&cli.StringFlag{
						Name:  "provider",
						Usage: "Inference provider (gemini, claude, openai, heuristic)",
					},
					&cli.StringFlag{
						Name:    "output-dir",
						Aliases: []string{"o"},
						Usage:   "Directory for generated artifacts",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Print the rendered config instead of writing artifacts",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite existing artifacts",
					},
					&cli.BoolFlag{
						Name:  "force-restart",
						Usage: "Discard any previous run state and start fresh",
					},
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "Suppress the progress bar",
					},
				},
			},
			{
				Name:      "resume",
				Usage:     "Resume an interrupted preparation run",
				ArgsUsage: "<file.csv>",
				Action:    runResume,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "table",
						Aliases: []string{"t"},
						Usage:   "Target table name (default: derived from the file name)",
					},
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "Suppress the progress bar",
					},
				},
			},
			{
				Name:      "status",
				Usage:     "Show the state of the run for a table",
				ArgsUsage: "<file.csv | table>",
				Action:    showStatus,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "table",
						Aliases: []string{"t"},
						Usage:   "Table name (default: derived from the argument)",
					},
				},
			},
			{
				Name:   "history",
				Usage:  "List recorded preparation runs",
				Action: showHistory,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "Maximum number of runs to list",
					},
				},
			},
			{
				Name:      "check",
				Usage:     "Verify database connectivity and inspect the target table",
				ArgsUsage: "<table>",
				Action:    runCheck,
			},
			{
				Name:   "init-secrets",
				Usage:  "Create a template secrets file for API keys",
				Action: initSecrets,
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.LogFormat = v
	}
	if lvl, err := logging.ParseLevel(cfg.LogLevel); err == nil {
		logging.SetLevel(lvl)
	}
	logging.SetFormat(cfg.LogFormat)
	return cfg, nil
}

// openHistory opens the run log under the output directory. History is an
// audit trail only, so failures degrade to a warning.
func openHistory(cfg *config.Config) *history.Store {
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		logging.Warn("run history unavailable: %v", err)
		return nil
	}
	hist, err := history.Open(filepath.Join(cfg.Output.Dir, "runs.db"))
	if err != nil {
		logging.Warn("run history unavailable: %v", err)
		return nil
	}
	return hist
}

// signalContext cancels on SIGINT/SIGTERM so an interrupted run leaves a
// resumable state file behind.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nInterrupted. State saved; rerun with the resume command to continue.")
		cancel()
	}()

	return ctx, cancel
}

func runPrepare(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: csv2pg prepare <file.csv>", 2)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("provider") {
		cfg.Inference.Provider = c.String("provider")
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if c.IsSet("output-dir") {
		cfg.Output.Dir = c.String("output-dir")
	}
	if c.Bool("dry-run") {
		cfg.Output.DryRun = true
	}
	if c.Bool("force") {
		cfg.Output.Force = true
	}

	hist := openHistory(cfg)
	if hist != nil {
		defer hist.Close()
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := pipeline.New(cfg, hist).Run(ctx, pipeline.Options{
		CSVPath:      c.Args().First(),
		TableName:    c.String("table"),
		ForceRestart: c.Bool("force-restart"),
		Quiet:        c.Bool("quiet"),
	})
	if err != nil {
		return err
	}

	if cfg.Output.DryRun {
		fmt.Println(res.Artifacts.ConfigContent)
		return nil
	}
	printResult(res)
	return nil
}

func runResume(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: csv2pg resume <file.csv>", 2)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	hist := openHistory(cfg)
	if hist != nil {
		defer hist.Close()
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := pipeline.New(cfg, hist).Run(ctx, pipeline.Options{
		CSVPath:   c.Args().First(),
		TableName: c.String("table"),
		Resume:    true,
		Quiet:     c.Bool("quiet"),
	})
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func printResult(res *pipeline.Result) {
	if res.Schema != nil {
		fmt.Printf("Table %s: %d columns", res.Schema.TableName, len(res.Schema.Columns))
		if res.Schema.PrimaryKey != "" {
			fmt.Printf(", primary key %s", res.Schema.PrimaryKey)
		}
		fmt.Println()
	}
	if res.Artifacts != nil && res.Artifacts.ScriptPath != "" {
		fmt.Printf("Config:  %s\n", res.Artifacts.ConfigPath)
		fmt.Printf("Script:  %s\n", res.Artifacts.ScriptPath)
		fmt.Printf("\nRun %s to load the data.\n", res.Artifacts.ScriptPath)
	}
}

// tableNameArg resolves the table from --table or from a positional argument
// that may be a CSV path or a bare table name.
func tableNameArg(c *cli.Context) string {
	if t := c.String("table"); t != "" {
		return t
	}
	arg := c.Args().First()
	if arg == "" {
		return ""
	}
	if strings.Contains(arg, ".") || strings.Contains(arg, "/") {
		return sampler.TableNameFromPath(arg)
	}
	return arg
}

func showStatus(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	table := tableNameArg(c)
	if table == "" {
		return cli.Exit("usage: csv2pg status <file.csv | table>", 2)
	}

	mgr := state.NewManager(pipeline.New(cfg, nil).StatePath(table))
	st, err := mgr.Load()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("no run found for table %q", table)
		}
		return err
	}

	fmt.Printf("Run:       %s\n", st.RunID)
	fmt.Printf("Table:     %s\n", st.TableName)
	fmt.Printf("Source:    %s\n", st.CSVPath)
	fmt.Printf("Status:    %s\n", st.Status)
	fmt.Printf("Phase:     %s\n", st.Phase)
	if st.Progress.RowsTotal > 0 {
		fmt.Printf("Progress:  %d/%d rows (%.1f%%)\n",
			st.Progress.RowsLoaded, st.Progress.RowsTotal, st.Progress.Percent)
	}
	if st.Error != "" {
		fmt.Printf("Error:     %s\n", st.Error)
	}
	return nil
}

func showHistory(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	hist, err := history.Open(filepath.Join(cfg.Output.Dir, "runs.db"))
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer hist.Close()

	runs, err := hist.List(c.Int("limit"))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tTABLE\tSTATUS\tPHASE\tSTARTED\tFINISHED")
	for _, r := range runs {
		finished := "-"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RunID, r.TableName, r.Status, r.Phase,
			r.StartedAt.Format("2006-01-02 15:04:05"), finished)
	}
	return w.Flush()
}

func runCheck(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: csv2pg check <table>", 2)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	ctx, cancel := signalContext()
	defer cancel()

	checker, err := dbcheck.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer checker.Close()

	report, err := checker.Preflight(ctx, c.Args().First())
	if err != nil {
		return err
	}

	fmt.Printf("Server:    PostgreSQL %s\n", report.ServerVersion)
	if report.TableExists {
		fmt.Printf("Table:     %s exists with %d rows (import will drop and recreate it)\n",
			c.Args().First(), report.RowCount)
	} else {
		fmt.Printf("Table:     %s does not exist yet\n", c.Args().First())
	}
	return nil
}

func initSecrets(c *cli.Context) error {
	path, err := secrets.Init()
	if err != nil {
		return err
	}
	fmt.Printf("Created %s\nAdd your API keys there; the file must stay chmod 600.\n", path)
	return nil
}
