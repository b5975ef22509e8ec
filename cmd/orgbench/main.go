package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"orgbench/internal/config"
	"orgbench/internal/evaluator"
	"orgbench/internal/learning"
	"orgbench/internal/llm"
	"orgbench/internal/memory"
	"orgbench/internal/retrospective"
	"orgbench/internal/store"
	"orgbench/internal/suite"
	"orgbench/internal/task"
	"orgbench/internal/topology"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "orgbench",
	Short: "orgbench - organizational learning loop benchmark",
	Long: `orgbench measures whether a multi-agent LLM organization can learn to
beat a single model of the same capability on complex synthesis tasks.

Each condition runs one task through one organizational topology, scores
the result blind against a single-agent baseline, and feeds a
retrospective's lessons back into the organization's memory until the
score delta converges or the iteration budget runs out.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// runCmd executes a single (task, topology) condition
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one task through one topology's learning loop",
	Long: `Runs a single benchmark condition: the task's single-agent baseline,
then the chosen topology through the full learning loop.

Example:
  orgbench run --task ai_incident_response --topology hrm --max-iterations 5`,
	RunE: runCondition,
}

// suiteCmd executes the full benchmark matrix
var suiteCmd = &cobra.Command{
	Use:   "suite",
	Short: "Run the full tasks x topologies benchmark matrix",
	Long: `Runs every selected task through every selected topology. The
single-agent baseline is computed once per task and shared across that
task's conditions.

Examples:
  orgbench suite
  orgbench suite --tasks ai_incident_response,defi_strategy --topologies star,hrm
  orgbench suite --transfer
  orgbench suite --parallel 3`,
	RunE: runSuite,
}

// tasksCmd lists the task catalog
var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the benchmark task catalog",
	RunE:  listTasks,
}

// showCmd prints archived results from the database
var showCmd = &cobra.Command{
	Use:   "show [condition-id]",
	Short: "Show archived benchmark results",
	Long: `Without arguments, lists archived conditions. With a condition ID,
prints that condition's per-iteration trajectory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: showResults,
}

var (
	// run/suite flags
	flagTask       string
	flagTopology   string
	flagTasks      []string
	flagTopologies []string
	flagMaxIters   int
	flagThreshold  float64
	flagEvalRuns   int
	flagMaxLoops   int
	flagTransfer   bool
	flagParallel   int
	flagSeedMemory bool
	flagOut        string
	flagDB         string

	// show flags
	showTaskFilter string
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Minute, "Overall run timeout")

	for _, cmd := range []*cobra.Command{runCmd, suiteCmd} {
		cmd.Flags().IntVar(&flagMaxIters, "max-iterations", 0, "Learning loop iteration cap (default from config)")
		cmd.Flags().Float64Var(&flagThreshold, "threshold", 0, "Convergence threshold on the score delta (default from config)")
		cmd.Flags().IntVar(&flagEvalRuns, "eval-runs", 0, "Judge runs per evaluation (default from config)")
		cmd.Flags().IntVar(&flagMaxLoops, "max-loops", 0, "HRM coordinator loop cap (default from config)")
		cmd.Flags().BoolVar(&flagSeedMemory, "seed-memory", false, "Start with the default organizational lessons")
		cmd.Flags().StringVarP(&flagOut, "out", "o", "", "Output directory for snapshots and summaries")
		cmd.Flags().StringVar(&flagDB, "db", "", "SQLite results database path")
	}

	runCmd.Flags().StringVar(&flagTask, "task", "", "Task ID (required, see 'orgbench tasks')")
	runCmd.Flags().StringVar(&flagTopology, "topology", "", "Topology: star, pipeline, peer_review, hrm, self_decompose (required)")
	runCmd.MarkFlagRequired("task")
	runCmd.MarkFlagRequired("topology")

	suiteCmd.Flags().StringSliceVar(&flagTasks, "tasks", nil, "Task IDs to run (default: all)")
	suiteCmd.Flags().StringSliceVar(&flagTopologies, "topologies", nil, "Topologies to run (default: all)")
	suiteCmd.Flags().BoolVar(&flagTransfer, "transfer", false, "Share lesson memory across a task's topologies, in order")
	suiteCmd.Flags().IntVar(&flagParallel, "parallel", 0, "Concurrent conditions when transfer is off (default from config)")

	showCmd.Flags().StringVar(&showTaskFilter, "task", "", "Filter archived conditions by task ID")

	// Add commands to root
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(suiteCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(showCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig layers CLI flags over the YAML config over the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("max-iterations") {
		cfg.Run.MaxIterations = flagMaxIters
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Run.Threshold = flagThreshold
	}
	if cmd.Flags().Changed("eval-runs") {
		cfg.Run.EvalRuns = flagEvalRuns
	}
	if cmd.Flags().Changed("max-loops") {
		cfg.Run.MaxLoops = flagMaxLoops
	}
	if cmd.Flags().Changed("seed-memory") {
		cfg.Run.SeedMemory = flagSeedMemory
	}
	if cmd.Flags().Changed("transfer") {
		cfg.Run.Transfer = flagTransfer
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Run.Parallel = flagParallel
	}
	if flagOut != "" {
		cfg.Output.Dir = flagOut
	}
	if flagDB != "" {
		cfg.Output.Database = flagDB
	}
	if err := cfg.ResolveKeys(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildClient constructs the LLM client for one provider entry.
func buildClient(ctx context.Context, p config.ProviderConfig) (llm.Client, error) {
	switch p.Provider {
	case "cerebras":
		cfg := llm.DefaultOpenAIConfig(p.APIKey)
		if p.Model != "" {
			cfg.Model = p.Model
		}
		if p.BaseURL != "" {
			cfg.BaseURL = p.BaseURL
		}
		return llm.NewOpenAIClient(cfg)
	case "anthropic":
		cfg := llm.DefaultAnthropicConfig(p.APIKey)
		if p.Model != "" {
			cfg.Model = p.Model
		}
		if p.BaseURL != "" {
			cfg.BaseURL = p.BaseURL
		}
		return llm.NewAnthropicClient(cfg)
	case "gemini":
		cfg := llm.DefaultGeminiConfig(p.APIKey)
		if p.Model != "" {
			cfg.Model = p.Model
		}
		return llm.NewGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown provider %q (want cerebras, anthropic, or gemini)", p.Provider)
	}
}

// runContext wires signal handling into a deadline context.
func runContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// runCondition executes a single benchmark condition.
func runCondition(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := runContext()
	defer cancel()

	t, err := task.ByID(flagTask)
	if err != nil {
		return err
	}
	kind, err := topology.ParseKind(flagTopology)
	if err != nil {
		return err
	}

	gen, err := buildClient(ctx, cfg.Generator)
	if err != nil {
		return fmt.Errorf("generator client: %w", err)
	}
	judge, err := buildClient(ctx, cfg.Judge)
	if err != nil {
		return fmt.Errorf("judge client: %w", err)
	}

	runner, err := topology.New(kind, gen, topology.Options{MaxLoops: cfg.Run.MaxLoops, Logger: logger})
	if err != nil {
		return err
	}
	eval, err := evaluator.New(judge, evaluator.Options{
		Runs:   cfg.Run.EvalRuns,
		Rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		Logger: logger,
	})
	if err != nil {
		return err
	}
	retro, err := retrospective.NewEngine(gen, logger)
	if err != nil {
		return err
	}

	loop := &learning.Loop{
		Generator:     gen,
		Runner:        runner,
		Evaluator:     eval,
		Retro:         retro,
		MaxIterations: cfg.Run.MaxIterations,
		Threshold:     cfg.Run.Threshold,
		OutputDir:     cfg.Output.Dir,
		Logger:        logger,
	}

	mem := memory.New()
	if cfg.Run.SeedMemory {
		mem = memory.Seeded()
	}

	logger.Info("condition start",
		zap.String("task", t.ID),
		zap.String("topology", string(kind)),
		zap.String("generator", gen.Model()),
		zap.String("judge", judge.Model()))

	res, err := loop.Run(ctx, t, "", mem)
	if err != nil {
		return err
	}
	if err := archiveResults(cfg, []*learning.Result{res}); err != nil {
		return err
	}

	printCondition(res)
	return nil
}

// runSuite executes the benchmark matrix.
func runSuite(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := runContext()
	defer cancel()

	taskIDs := flagTasks
	if len(taskIDs) == 0 {
		taskIDs = task.IDs()
	}
	kinds := topology.Kinds()
	if len(flagTopologies) > 0 {
		kinds = kinds[:0]
		for _, name := range flagTopologies {
			k, err := topology.ParseKind(name)
			if err != nil {
				return err
			}
			kinds = append(kinds, k)
		}
	}

	gen, err := buildClient(ctx, cfg.Generator)
	if err != nil {
		return fmt.Errorf("generator client: %w", err)
	}
	judge, err := buildClient(ctx, cfg.Judge)
	if err != nil {
		return fmt.Errorf("judge client: %w", err)
	}

	var st *store.Store
	if path := databasePath(cfg); path != "" {
		if st, err = openStore(path); err != nil {
			return err
		}
		defer st.Close()
	}

	r := &suite.Runner{Generator: gen, Judge: judge, Store: st, Logger: logger}
	summary, err := r.Run(ctx, suite.Config{
		TaskIDs:       taskIDs,
		Topologies:    kinds,
		MaxIterations: cfg.Run.MaxIterations,
		Threshold:     cfg.Run.Threshold,
		EvalRuns:      cfg.Run.EvalRuns,
		MaxLoops:      cfg.Run.MaxLoops,
		Transfer:      cfg.Run.Transfer,
		Parallel:      cfg.Run.Parallel,
		SeedMemory:    cfg.Run.SeedMemory,
		OutputDir:     cfg.Output.Dir,
	})
	if err != nil {
		return err
	}

	fmt.Print(suite.FormatTable(summary))
	return nil
}

// listTasks prints the catalog.
func listTasks(cmd *cobra.Command, args []string) error {
	for _, t := range task.All() {
		fmt.Printf("%-25s %s\n", t.ID, t.Name)
		fmt.Printf("  roles: ")
		names := make([]string, len(t.Roles))
		for i, r := range t.Roles {
			names[i] = r.Name
		}
		fmt.Println(strings.Join(names, ", "))
	}
	return nil
}

// showResults lists or details archived conditions.
func showResults(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if flagDB != "" {
		cfg.Output.Database = flagDB
	}
	path := databasePath(cfg)
	if path == "" {
		return fmt.Errorf("no results database configured (use --db or output.database in config)")
	}
	st, err := openStore(path)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) == 1 {
		iters, err := st.LoadIterations(args[0])
		if err != nil {
			return err
		}
		if len(iters) == 0 {
			return fmt.Errorf("no iterations for condition %s", args[0])
		}
		for _, it := range iters {
			fmt.Printf("iter %d: SA=%.1f MA=%.1f delta=%+.1f d=%+.2f  %s\n",
				it.Iteration, it.BaselineScore, it.OrgScore, it.Delta, it.CohensD, it.FailureMode)
		}
		return nil
	}

	conds, err := st.ListConditions(showTaskFilter)
	if err != nil {
		return err
	}
	if len(conds) == 0 {
		fmt.Println("no archived conditions")
		return nil
	}
	for _, c := range conds {
		mark := " "
		if c.Converged {
			mark = "*"
		}
		fmt.Printf("%s %s  %-25s %-15s delta=%+6.1f iters=%d rate=%+.2f  %s\n",
			mark, c.ID, c.TaskID, c.Topology, c.FinalDelta, c.ConvergenceIter, c.LearningRate, c.CreatedAt)
	}
	return nil
}

func databasePath(cfg *config.Config) string {
	if cfg.Output.Database != "" {
		return cfg.Output.Database
	}
	if cfg.Output.Dir != "" {
		return filepath.Join(cfg.Output.Dir, "results.db")
	}
	return ""
}

func openStore(path string) (*store.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}
	return store.Open(path)
}

func archiveResults(cfg *config.Config, results []*learning.Result) error {
	path := databasePath(cfg)
	if path == "" {
		return nil
	}
	st, err := openStore(path)
	if err != nil {
		return err
	}
	defer st.Close()
	for _, res := range results {
		if _, err := st.SaveResult(res); err != nil {
			return err
		}
	}
	return nil
}

func printCondition(res *learning.Result) {
	rule := strings.Repeat("=", 70)
	fmt.Println(rule)
	fmt.Printf("  %s / %s\n", res.TaskID, res.Topology)
	fmt.Println(rule)
	for _, it := range res.Iterations {
		fmt.Printf("  iter %d: SA=%.1f MA=%.1f delta=%+.1f d=%+.2f\n",
			it.Iteration, it.BaselineScore, it.OrgScore, it.Delta, it.CohensD)
		if it.FailureMode != "" && it.FailureMode != "converged" {
			fmt.Printf("          failure: %s\n", it.FailureMode)
		}
	}
	state := "stopped at iteration budget"
	if res.Converged {
		state = "converged"
	}
	fmt.Printf("  %s after %d iteration(s), learning rate %+.2f, total %s\n",
		state, res.ConvergenceIter, res.LearningRate, res.TotalTime.Round(time.Second))
}
