package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"kvbench/internal/banner"
	"kvbench/internal/cluster"
	"kvbench/internal/config"
	"kvbench/internal/dummy"
	"kvbench/internal/experiment"
	"kvbench/internal/report"
	"kvbench/internal/stats"
	"kvbench/internal/storage"
	"kvbench/internal/tui/live"

	tea "github.com/charmbracelet/bubbletea"
)

var experimentNames = []string{
	"sanity", "functional", "perf", "sac", "chaos",
	"staleness", "anti-entropy", "plot", "all",
}

var (
	cfgFile  string
	watch    bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "kvbench [experiment]",
	Short: "kvbench - benchmark and correctness probes for a distributed KV store",
	Long: `
kvbench drives an already-running distributed key-value cluster with
benchmark workloads and correctness probes, writing raw per-request
logs and CSV artifacts under results/.

Experiments: ` + fmt.Sprint(experimentNames),
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: experimentNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "all"
		if len(args) == 1 {
			name = args[0]
		}
		if !validExperiment(name) {
			return fmt.Errorf("unknown experiment %q (choose one of %v)", name, experimentNames)
		}
		return run(name)
	},
}

func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(dummyCmd)
	rootCmd.AddCommand(historyCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kvbench.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVarP(&watch, "watch", "w", false, "show a live dashboard while the workload runs")
}

func validExperiment(name string) bool {
	for _, n := range experimentNames {
		if n == name {
			return true
		}
	}
	return false
}

func newLogger() *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func run(name string) error {
	log := newLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	if name == "plot" {
		if err := report.Rebuild(cfg, log); err != nil {
			return err
		}
		fmt.Println("summary written to", cfg.Paths.SummaryPath)
		return nil
	}

	cl, err := cluster.New(cfg.Cluster, cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("build cluster: %w", err)
	}

	env := &experiment.Env{Cfg: cfg, Cluster: cl, Log: log}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watch && (name == "perf" || name == "all") {
		return runWatched(ctx, env, name)
	}

	names := []string{name}
	if name == "all" {
		names = []string{"sanity", "functional", "perf", "sac", "staleness", "anti-entropy", "chaos"}
	}
	for _, n := range names {
		if err := runOne(ctx, env, n); err != nil {
			return fmt.Errorf("%s: %w", n, err)
		}
	}
	if name == "all" {
		if err := report.Rebuild(cfg, log); err != nil {
			return fmt.Errorf("plot: %w", err)
		}
		fmt.Println("summary written to", cfg.Paths.SummaryPath)
	}
	return nil
}

// runWatched wraps the run in a live dashboard fed by driver snapshots.
// Quitting the dashboard cancels the runs behind it.
func runWatched(ctx context.Context, env *experiment.Env, name string) error {
	updates := make(stats.UpdateChan, 100)
	env.Updates = updates

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := env.Cfg.Workload
	perRun := time.Duration(w.RunSeconds) * time.Second
	total := perRun * time.Duration(len(w.Mixes)*len(w.ConcurrencyLevels))
	if total <= 0 {
		total = perRun
	}

	p := tea.NewProgram(live.NewModel(total), tea.WithAltScreen())

	errCh := make(chan error, 1)
	go func() {
		defer p.Send(live.DoneMsg{})
		if name == "all" {
			for _, n := range []string{"sanity", "functional", "perf", "sac", "staleness", "anti-entropy", "chaos"} {
				if err := runOne(ctx, env, n); err != nil {
					errCh <- fmt.Errorf("%s: %w", n, err)
					return
				}
			}
			errCh <- report.Rebuild(env.Cfg, env.Log)
			return
		}
		errCh <- runOne(ctx, env, name)
	}()

	go func() {
		for s := range updates {
			p.Send(s)
		}
	}()

	if _, err := p.Run(); err != nil {
		return err
	}
	cancel()
	return <-errCh
}

func runOne(ctx context.Context, env *experiment.Env, name string) error {
	log := env.Log
	log.Info("starting experiment", "experiment", name)
	start := time.Now()

	var (
		artifacts []string
		runStats  = map[string]string{}
		err       error
	)

	switch name {
	case "sanity":
		var res *experiment.SanityResult
		res, err = experiment.RunSanity(ctx, env)
		if res != nil {
			artifacts = append(artifacts, res.TxtPath)
			runStats["consistent"] = strconv.FormatBool(res.Consistent)
		}
	case "functional":
		var res *experiment.FunctionalResult
		res, err = experiment.RunFunctional(ctx, env)
		if res != nil {
			artifacts = append(artifacts, res.TxtPath)
			runStats["pass"] = strconv.FormatBool(res.Pass())
		}
	case "perf":
		var res *experiment.PerfResult
		res, err = experiment.RunPerf(ctx, env)
		if res != nil {
			artifacts = append(artifacts, res.TxtPath, res.CSVPath)
			runStats["records"] = strconv.Itoa(len(res.Records))
		}
	case "sac":
		var res *experiment.SLOResult
		res, err = experiment.RunSLO(ctx, env)
		if res != nil {
			artifacts = append(artifacts, res.TxtPath, res.CSVPath)
			runStats["records"] = strconv.Itoa(len(res.Records))
		}
	case "staleness":
		var res *experiment.StalenessResult
		res, err = experiment.RunStaleness(ctx, env)
		if res != nil {
			artifacts = append(artifacts, res.TxtPath, res.CSVPath)
		}
	case "anti-entropy":
		var res *experiment.AntiEntropyResult
		res, err = experiment.RunAntiEntropy(ctx, env)
		if res != nil {
			artifacts = append(artifacts, res.TxtPath, res.CSVPath)
			runStats["flip_backs"] = strconv.Itoa(res.FlipBack)
		}
	case "chaos":
		var res *experiment.ChaosResult
		res, err = experiment.RunChaos(ctx, env)
		if res != nil {
			artifacts = append(artifacts, res.TxtPath, res.CSVPath)
			runStats["records"] = strconv.Itoa(len(res.Records))
		}
	default:
		return fmt.Errorf("unknown experiment %q", name)
	}
	if err != nil {
		return err
	}
	runStats["duration"] = time.Since(start).String()

	saveHistory(env, name, artifacts, runStats)

	log.Info("experiment finished", "experiment", name, "took", time.Since(start), "artifacts", artifacts)
	return nil
}

// saveHistory records the run in the local history database. A failure
// here is reported but never fails the experiment itself.
func saveHistory(env *experiment.Env, name string, artifacts []string, runStats map[string]string) {
	store, err := storage.Open(env.Cfg.Paths.HistoryPath)
	if err != nil {
		env.Log.Warn("history store unavailable", "error", err)
		return
	}
	defer store.Close()

	entry := storage.RunEntry{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Experiment: name,
		Artifacts:  artifacts,
		Stats:      runStats,
	}
	if err := store.Save(entry); err != nil {
		env.Log.Warn("history save failed", "error", err)
	}
}

// --- History Subcommand ---
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded experiment runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Paths.HistoryPath)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.List(limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no recorded runs")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %-12s  %s\n", e.Timestamp.Format(time.RFC3339), e.Experiment, e.ID)
			for _, a := range e.Artifacts {
				fmt.Printf("    %s\n", a)
			}
		}
		return nil
	},
}

// --- Dummy Subcommand ---
var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run a fake in-process KV cluster for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodes, _ := cmd.Flags().GetInt("nodes")
		basePort, _ := cmd.Flags().GetInt("base-port")
		lagMs, _ := cmd.Flags().GetInt("lag-ms")

		return dummy.Start(dummy.ServerConfig{
			NumNodes:       nodes,
			BasePort:       basePort,
			ReplicationLag: time.Duration(lagMs) * time.Millisecond,
		})
	},
}

func init() {
	dummyCmd.Flags().IntP("nodes", "n", 3, "number of fake nodes")
	dummyCmd.Flags().IntP("base-port", "p", 8080, "first port; nodes take consecutive ports")
	dummyCmd.Flags().Int("lag-ms", 0, "simulated replication lag in milliseconds")

	historyCmd.Flags().Int("limit", 20, "max entries to show")
}
