// Command augmecon computes the Pareto frontier of a multi-objective linear
// model from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/augmecon/internal/config"
	"github.com/copyleftdev/augmecon/internal/export"
	"github.com/copyleftdev/augmecon/internal/logging"
	"github.com/copyleftdev/augmecon/internal/optimization"
	"github.com/copyleftdev/augmecon/internal/optimization/augmecon"
	"github.com/copyleftdev/augmecon/internal/optimization/linprog"
)

type runOptions struct {
	model        string
	name         string
	gridPoints   int
	nadir        []float64
	earlyExit    bool
	bypass       bool
	precision    int
	penalty      float64
	exportDir    string
	exportFormat string
	logDir       string
	logLevel     string
	jsonOutput   bool
	timeout      time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "augmecon",
		Short: "Pareto frontiers with the augmented epsilon-constraint method",
		Long: `augmecon generates the Pareto set of a multi-objective linear model.

The first objective is optimized while the others sweep a grid of bounds
between their best and worst payoff values.`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.AddCommand(newRunCmd())
	return rootCmd
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Compute the Pareto set of a model file",
		Long: `Compute the Pareto set of a model definition file (YAML or JSON).

Defaults are read from the AUGMECON_* environment variables.`,
		Example: `  augmecon run --model energy.yaml --grid-points 10
  augmecon run --model energy.yaml --nadir 45000,23000 --export-format csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFrontier(cmd, opts)
		},
	}

	f := runCmd.Flags()
	f.StringVarP(&opts.model, "model", "m", "", "Model definition file (required)")
	f.StringVar(&opts.name, "name", "", "Run name prefix (default: model name)")
	f.IntVarP(&opts.gridPoints, "grid-points", "g", config.GetEnvAsInt("AUGMECON_GRID_POINTS", 10), "Breakpoints per secondary objective")
	f.Float64SliceVar(&opts.nadir, "nadir", nil, "Worst value of each secondary objective, overriding the payoff table")
	f.BoolVar(&opts.earlyExit, "early-exit", config.GetEnvAsBool("AUGMECON_EARLY_EXIT", true), "Skip the rest of a row after an infeasible grid point")
	f.BoolVar(&opts.bypass, "bypass-coefficient", config.GetEnvAsBool("AUGMECON_BYPASS_COEFFICIENT", true), "Skip grid points already covered by slack")
	f.IntVar(&opts.precision, "precision", config.GetEnvAsInt("AUGMECON_PRECISION", augmecon.DefaultPrecision), "Decimals used to deduplicate solutions")
	f.Float64Var(&opts.penalty, "penalty-weight", envFloat("AUGMECON_PENALTY_WEIGHT", augmecon.DefaultPenaltyWeight), "Weight of the slack reward")
	f.StringVar(&opts.exportDir, "export-dir", config.GetEnv("AUGMECON_EXPORT_DIR", "logs"), "Directory receiving the Pareto set, empty to disable")
	f.StringVar(&opts.exportFormat, "export-format", config.GetEnv("AUGMECON_EXPORT_FORMAT", export.FormatXLSX), "Export format: xlsx or csv")
	f.StringVar(&opts.logDir, "log-dir", config.GetEnv("RUN_LOG_DIR", "logs"), "Directory receiving the run log, empty to disable")
	f.StringVar(&opts.logLevel, "log-level", config.GetEnv("LOG_LEVEL", "info"), "Log level")
	f.BoolVar(&opts.jsonOutput, "json", false, "Print the result as JSON")
	f.DurationVar(&opts.timeout, "timeout", 0, "Abort the run after this long, 0 for no limit")
	_ = runCmd.MarkFlagRequired("model")

	return runCmd
}

func envFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(config.GetEnv(key, ""), 64); err == nil {
		return v
	}
	return def
}

func runFrontier(cmd *cobra.Command, opts *runOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	console, err := logging.NewLogger(&logging.Config{Level: opts.logLevel, Format: "text", Output: "stderr"})
	if err != nil {
		return err
	}
	console = console.WithField("component", "cli")

	def, err := linprog.LoadFile(opts.model)
	if err != nil {
		return err
	}
	model, err := def.Build()
	if err != nil {
		return err
	}

	cfg := augmecon.DefaultConfig()
	switch {
	case opts.name != "":
		cfg.Name = opts.name
	case def.Name != "":
		cfg.Name = def.Name
	}
	cfg.GridPoints = opts.gridPoints
	cfg.NadirPoints = opts.nadir
	cfg.EarlyExit = opts.earlyExit
	cfg.BypassCoefficient = opts.bypass
	cfg.Precision = opts.precision
	cfg.PenaltyWeight = opts.penalty
	cfg.Solver = optimization.SolverOptions{Name: "simplex", IO: "direct"}
	cfg.Timestamp = time.Now()
	runName := augmecon.RunName(cfg.Name, cfg.Timestamp)

	var exporter *export.File
	if opts.exportDir != "" {
		if exporter, err = export.NewFile(opts.exportDir, opts.exportFormat, def.ObjectiveNames()); err != nil {
			return err
		}
		cfg.Exporter = exporter
	}

	if opts.logDir != "" {
		runLog, err := logging.NewRunLog(opts.logDir, runName, logging.ParseLevel(opts.logLevel))
		if err != nil {
			return optimization.WrapError(err, "opening run log")
		}
		defer runLog.Close()
		cfg.Logger = runLog.Zap(console)
	} else {
		cfg.Logger = logging.NewZapLogger(console)
	}

	runner, err := augmecon.New(model, cfg)
	if err != nil {
		return err
	}
	res, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		return writeJSON(out, def.ObjectiveNames(), res, exporter)
	}
	return writeSummary(out, def.ObjectiveNames(), res, exporter)
}

type jsonResult struct {
	Name         string      `json:"name"`
	Objectives   []string    `json:"objectives"`
	PayoffTable  [][]float64 `json:"payoff_table"`
	ParetoSet    [][]float64 `json:"pareto_set"`
	ModelsSolved int         `json:"models_solved"`
	PayoffSolves int         `json:"payoff_solves"`
	Skipped      int         `json:"skipped"`
	Infeasible   int         `json:"infeasible"`
	Seconds      float64     `json:"duration_seconds"`
	ExportPath   string      `json:"export_path,omitempty"`
}

func writeJSON(w io.Writer, names []string, res *augmecon.Result, exporter *export.File) error {
	out := jsonResult{
		Name:         res.Name,
		Objectives:   export.Header(names, res.Objectives),
		PayoffTable:  rows(res),
		ParetoSet:    res.ParetoSet,
		ModelsSolved: res.ModelsSolved,
		PayoffSolves: res.PayoffSolves,
		Skipped:      res.Skipped,
		Infeasible:   res.Infeasible,
		Seconds:      res.Duration().Seconds(),
	}
	if exporter != nil {
		out.ExportPath = exporter.Path
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func rows(res *augmecon.Result) [][]float64 {
	if res.PayoffTable == nil {
		return nil
	}
	p, _ := res.PayoffTable.Dims()
	out := make([][]float64, p)
	for i := range out {
		out[i] = res.PayoffTable.RawRowView(i)
	}
	return out
}

func writeSummary(w io.Writer, names []string, res *augmecon.Result, exporter *export.File) error {
	header := export.Header(names, res.Objectives)

	fmt.Fprintf(w, "Run %s\n", res.Name)
	fmt.Fprintf(w, "%d solutions, %d grid solves, %d skipped, %d infeasible, %d payoff solves in %s\n\n",
		len(res.ParetoSet), res.ModelsSolved, res.Skipped, res.Infeasible, res.PayoffSolves,
		res.Duration().Round(time.Millisecond))

	fmt.Fprintln(w, "Payoff table")
	if err := writeTable(w, header, rows(res)); err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Pareto set")
	if err := writeTable(w, header, res.ParetoSet); err != nil {
		return err
	}
	if exporter != nil {
		fmt.Fprintf(w, "\nExported to %s\n", exporter.Path)
	}
	return nil
}

func writeTable(w io.Writer, header []string, data [][]float64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for i, h := range header {
		fmt.Fprint(tw, h, "\t")
		if i == len(header)-1 {
			fmt.Fprintln(tw)
		}
	}
	for _, row := range data {
		for _, v := range row {
			fmt.Fprint(tw, strconv.FormatFloat(v, 'f', -1, 64), "\t")
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
