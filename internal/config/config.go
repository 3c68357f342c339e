package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Node identifies one remote store replica.
type Node struct {
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
}

// ClusterConfig is the client-side view of the store cluster. The first
// node acts as the primary (write coordinator) for probes that need one.
type ClusterConfig struct {
	Nodes []Node `mapstructure:"nodes"`
}

// Primary returns the coordinator node used by sequential probes.
func (c ClusterConfig) Primary() (Node, error) {
	if len(c.Nodes) == 0 {
		return Node{}, fmt.Errorf("cluster has no nodes")
	}
	return c.Nodes[0], nil
}

// Mix is a named read/write probability split. ReadProb and WriteProb
// must sum to 1.
type Mix struct {
	Name      string  `mapstructure:"name"`
	ReadProb  float64 `mapstructure:"read_prob"`
	WriteProb float64 `mapstructure:"write_prob"`
}

// WorkloadConfig holds the knobs for the mixed-workload grid.
type WorkloadConfig struct {
	NumKeys           int   `mapstructure:"num_keys"`
	ValueSizeBytes    int   `mapstructure:"value_size_bytes"`
	WarmupWrites      int   `mapstructure:"warmup_writes"`
	RunSeconds        int   `mapstructure:"run_seconds"`
	Mixes             []Mix `mapstructure:"mixes"`
	ConcurrencyLevels []int `mapstructure:"concurrency_levels"`
}

// SLOConfig labels reads with a latency budget carried as a request header.
// The store may or may not honor the budget; we only record it.
type SLOConfig struct {
	TightDeadlineMs   int    `mapstructure:"tight_deadline_ms"`
	RelaxedDeadlineMs int    `mapstructure:"relaxed_deadline_ms"`
	DeadlineHeader    string `mapstructure:"deadline_header"`
	DurationSeconds   int    `mapstructure:"duration_seconds"`
	NumKeys           int    `mapstructure:"num_keys"`
	PreloadKeys       int    `mapstructure:"preload_keys"`
}

// StalenessConfig holds the knobs for the read-after-write probe.
type StalenessConfig struct {
	DelaysMs       []int `mapstructure:"delays_ms"`
	TrialsPerDelay int   `mapstructure:"trials_per_delay"`
}

// AntiEntropyConfig holds the knobs for the convergence probe.
type AntiEntropyConfig struct {
	ObservationSeconds    int   `mapstructure:"observation_seconds"`
	SampleIntervalSeconds int   `mapstructure:"sample_interval_seconds"`
	LeafCount             int   `mapstructure:"leaf_count"`
	WriteBurstKeys        int   `mapstructure:"write_burst_keys"`
	StartToken            int64 `mapstructure:"start_token"`
	EndToken              int64 `mapstructure:"end_token"`
}

// ChaosConfig holds the knobs for the chaos workload. ReadProb is the
// probability of issuing a read on any given iteration.
type ChaosConfig struct {
	DurationSeconds int     `mapstructure:"duration_seconds"`
	NumKeys         int     `mapstructure:"num_keys"`
	ReadProb        float64 `mapstructure:"read_prob"`
}

// PathsConfig names the output locations for experiment artifacts.
type PathsConfig struct {
	BaseDir     string `mapstructure:"base_dir"`
	RawLogsDir  string `mapstructure:"raw_logs_dir"`
	SummaryPath string `mapstructure:"summary_path"`
	HistoryPath string `mapstructure:"history_path"`
}

// EnsureDirs creates the output directories if they do not exist.
func (p PathsConfig) EnsureDirs() error {
	for _, dir := range []string{p.BaseDir, p.RawLogsDir, filepath.Dir(p.HistoryPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return nil
}

// Config is the top-level bundle passed into every experiment entry point.
// There is no package-level state: experiments only see what they are handed.
type Config struct {
	Cluster        ClusterConfig     `mapstructure:"cluster"`
	Workload       WorkloadConfig    `mapstructure:"workload"`
	SLO            SLOConfig         `mapstructure:"slo"`
	Staleness      StalenessConfig   `mapstructure:"staleness"`
	AntiEntropy    AntiEntropyConfig `mapstructure:"anti_entropy"`
	Chaos          ChaosConfig       `mapstructure:"chaos"`
	Paths          PathsConfig       `mapstructure:"paths"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
}

// Default returns the same conservative defaults the harness has always
// shipped with: a 3-node localhost cluster and moderate workload sizes.
func Default() Config {
	return Config{
		Cluster: ClusterConfig{
			Nodes: []Node{
				{Name: "node-a", BaseURL: "http://localhost:8080"},
				{Name: "node-b", BaseURL: "http://localhost:8081"},
				{Name: "node-c", BaseURL: "http://localhost:8082"},
			},
		},
		Workload: WorkloadConfig{
			NumKeys:        1_000_000,
			ValueSizeBytes: 256,
			WarmupWrites:   1000,
			RunSeconds:     20,
			Mixes: []Mix{
				{Name: "A", ReadProb: 0.5, WriteProb: 0.5},
				{Name: "B", ReadProb: 0.95, WriteProb: 0.05},
				{Name: "C", ReadProb: 1.0, WriteProb: 0.0},
			},
			ConcurrencyLevels: []int{4, 8, 32, 64, 128, 256},
		},
		SLO: SLOConfig{
			TightDeadlineMs:   20,
			RelaxedDeadlineMs: 100,
			DeadlineHeader:    "X-Deadline-Ms",
			DurationSeconds:   15,
			NumKeys:           10_000,
			PreloadKeys:       2000,
		},
		Staleness: StalenessConfig{
			DelaysMs:       []int{0, 10, 20, 50, 100, 200, 500, 1000},
			TrialsPerDelay: 50,
		},
		AntiEntropy: AntiEntropyConfig{
			ObservationSeconds:    30,
			SampleIntervalSeconds: 1,
			LeafCount:             1024,
			WriteBurstKeys:        200,
			StartToken:            math.MinInt64,
			EndToken:              math.MaxInt64,
		},
		Chaos: ChaosConfig{
			DurationSeconds: 20,
			NumKeys:         20_000,
			ReadProb:        0.7,
		},
		Paths: PathsConfig{
			BaseDir:     "results",
			RawLogsDir:  filepath.Join("results", "raw_logs"),
			SummaryPath: filepath.Join("results", "summary.txt"),
			HistoryPath: filepath.Join("results", "history.db"),
		},
		RequestTimeout: 5 * time.Second,
	}
}

// Load reads the config file (if any) on top of the defaults. An empty
// path falls back to $HOME/.kvbench.yaml when present.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
			v.SetConfigType("yaml")
			v.SetConfigName(".kvbench")
			// Missing home config is fine; the defaults stand.
			_ = v.ReadInConfig()
		}
	}
	v.AutomaticEnv()

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("workload.num_keys", def.Workload.NumKeys)
	v.SetDefault("workload.value_size_bytes", def.Workload.ValueSizeBytes)
	v.SetDefault("workload.warmup_writes", def.Workload.WarmupWrites)
	v.SetDefault("workload.run_seconds", def.Workload.RunSeconds)
	v.SetDefault("slo.tight_deadline_ms", def.SLO.TightDeadlineMs)
	v.SetDefault("slo.relaxed_deadline_ms", def.SLO.RelaxedDeadlineMs)
	v.SetDefault("slo.deadline_header", def.SLO.DeadlineHeader)
	v.SetDefault("slo.duration_seconds", def.SLO.DurationSeconds)
	v.SetDefault("staleness.trials_per_delay", def.Staleness.TrialsPerDelay)
	v.SetDefault("anti_entropy.observation_seconds", def.AntiEntropy.ObservationSeconds)
	v.SetDefault("anti_entropy.sample_interval_seconds", def.AntiEntropy.SampleIntervalSeconds)
	v.SetDefault("anti_entropy.leaf_count", def.AntiEntropy.LeafCount)
	v.SetDefault("anti_entropy.write_burst_keys", def.AntiEntropy.WriteBurstKeys)
	v.SetDefault("chaos.duration_seconds", def.Chaos.DurationSeconds)
	v.SetDefault("chaos.num_keys", def.Chaos.NumKeys)
	v.SetDefault("chaos.read_prob", def.Chaos.ReadProb)
	v.SetDefault("paths.base_dir", def.Paths.BaseDir)
	v.SetDefault("paths.raw_logs_dir", def.Paths.RawLogsDir)
	v.SetDefault("paths.summary_path", def.Paths.SummaryPath)
	v.SetDefault("paths.history_path", def.Paths.HistoryPath)
	v.SetDefault("request_timeout", def.RequestTimeout)
}

// Validate rejects structurally broken configuration before any probe runs.
func (c Config) Validate() error {
	if len(c.Cluster.Nodes) == 0 {
		return fmt.Errorf("cluster.nodes must not be empty")
	}
	seen := make(map[string]bool, len(c.Cluster.Nodes))
	for _, n := range c.Cluster.Nodes {
		if n.Name == "" {
			return fmt.Errorf("cluster node with empty name")
		}
		if n.BaseURL == "" {
			return fmt.Errorf("cluster node %s has empty base_url", n.Name)
		}
		if seen[n.Name] {
			return fmt.Errorf("duplicate cluster node name %s", n.Name)
		}
		seen[n.Name] = true
	}

	if c.Workload.NumKeys <= 0 {
		return fmt.Errorf("workload.num_keys must be positive")
	}
	if c.Workload.ValueSizeBytes <= 0 {
		return fmt.Errorf("workload.value_size_bytes must be positive")
	}
	if c.Workload.RunSeconds <= 0 {
		return fmt.Errorf("workload.run_seconds must be positive")
	}
	if len(c.Workload.Mixes) == 0 {
		return fmt.Errorf("workload.mixes must not be empty")
	}
	for _, m := range c.Workload.Mixes {
		if m.ReadProb < 0 || m.ReadProb > 1 || m.WriteProb < 0 || m.WriteProb > 1 {
			return fmt.Errorf("workload mix %s: probabilities must be in [0,1]", m.Name)
		}
		if math.Abs(m.ReadProb+m.WriteProb-1.0) > 1e-9 {
			return fmt.Errorf("workload mix %s: read_prob+write_prob must sum to 1", m.Name)
		}
	}
	for _, lvl := range c.Workload.ConcurrencyLevels {
		if lvl <= 0 {
			return fmt.Errorf("workload concurrency level %d must be positive", lvl)
		}
	}

	if c.SLO.TightDeadlineMs <= 0 || c.SLO.RelaxedDeadlineMs <= 0 {
		return fmt.Errorf("slo deadlines must be positive")
	}
	if c.SLO.DeadlineHeader == "" {
		return fmt.Errorf("slo.deadline_header must not be empty")
	}

	if c.Staleness.TrialsPerDelay <= 0 {
		return fmt.Errorf("staleness.trials_per_delay must be positive")
	}
	for _, d := range c.Staleness.DelaysMs {
		if d < 0 {
			return fmt.Errorf("staleness delay %d must be non-negative", d)
		}
	}

	if c.AntiEntropy.ObservationSeconds <= 0 {
		return fmt.Errorf("anti_entropy.observation_seconds must be positive")
	}
	if c.AntiEntropy.SampleIntervalSeconds <= 0 {
		return fmt.Errorf("anti_entropy.sample_interval_seconds must be positive")
	}
	if c.AntiEntropy.LeafCount <= 0 {
		return fmt.Errorf("anti_entropy.leaf_count must be positive")
	}

	if c.Chaos.ReadProb < 0 || c.Chaos.ReadProb > 1 {
		return fmt.Errorf("chaos.read_prob must be in [0,1]")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	return nil
}
