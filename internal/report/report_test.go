package report

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kvbench/internal/config"
	"kvbench/internal/record"
)

func TestLatestArtifactPicksNewest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"perf-20260101-000000.csv",
		"perf-20260301-120000.csv",
		"perf-20260201-000000.csv",
		"perf-20260401-000000.txt",
		"staleness-20261231-000000.csv",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	path, ok := LatestArtifact(dir, "perf-", ".csv")
	if !ok {
		t.Fatal("no artifact found")
	}
	if filepath.Base(path) != "perf-20260301-120000.csv" {
		t.Errorf("picked %s, want perf-20260301-120000.csv", filepath.Base(path))
	}

	if _, ok := LatestArtifact(dir, "chaos-", ".csv"); ok {
		t.Error("reported an artifact for a prefix with no files")
	}
	if _, ok := LatestArtifact(filepath.Join(dir, "missing"), "perf-", ".csv"); ok {
		t.Error("reported an artifact for a missing directory")
	}
}

func TestRebuildFromArtifacts(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw_logs")
	if err := os.MkdirAll(raw, 0o755); err != nil {
		t.Fatal(err)
	}

	perfRecs := []record.RequestRecord{
		{Workload: "A", Concurrency: 4, Node: "node-a", Op: record.OpRead, OK: true, LatencyMs: 10, TStartMs: 0, TEndMs: 10},
		{Workload: "A", Concurrency: 4, Node: "node-a", Op: record.OpWrite, OK: true, LatencyMs: 20, TStartMs: 10, TEndMs: 1000},
		{Workload: "B", Concurrency: 8, Node: "node-b", Op: record.OpRead, OK: false, LatencyMs: 0, TStartMs: 20, TEndMs: 2000},
	}
	if err := record.WriteRequestCSV(filepath.Join(raw, "perf-20260101-000000.csv"), perfRecs); err != nil {
		t.Fatal(err)
	}

	trials := []record.StalenessTrial{
		{DelayMs: 0, ReadNode: "node-a", IsStale: true},
		{DelayMs: 0, ReadNode: "node-b", IsStale: false},
		{DelayMs: 100, ReadNode: "node-a", IsStale: false},
	}
	if err := record.WriteStalenessCSV(filepath.Join(raw, "staleness-20260101-000000.csv"), trials); err != nil {
		t.Fatal(err)
	}

	sloRecs := []record.SLORecord{
		{Node: "node-a", Class: record.ClassTight, DeadlineMs: 20, LatencyMs: 5, OK: true, TStartMs: 0, TEndMs: 5},
		{Node: "node-a", Class: record.ClassRelaxed, DeadlineMs: 100, LatencyMs: 50, OK: true, TStartMs: 0, TEndMs: 50},
	}
	if err := record.WriteSLOCSV(filepath.Join(raw, "sac-20260101-000000.csv"), sloRecs); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Paths = config.PathsConfig{
		BaseDir:     dir,
		RawLogsDir:  raw,
		SummaryPath: filepath.Join(dir, "summary.txt"),
		HistoryPath: filepath.Join(dir, "history.db"),
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := Rebuild(cfg, log); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	raw2, err := os.ReadFile(cfg.Paths.SummaryPath)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	summary := string(raw2)

	for _, want := range []string{
		"A c=4",
		"B c=8: no successful requests",
		"delay=0 ms: stale=1/2 (50.0%)",
		"delay=100 ms: stale=0/1 (0.0%)",
		"tight: n=1",
		"relaxed: n=1",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
	// No chaos or anti-entropy artifacts were present; their sections must
	// simply be absent.
	if strings.Contains(summary, "Chaos (") || strings.Contains(summary, "Anti-entropy (") {
		t.Errorf("summary mentions experiments with no artifacts:\n%s", summary)
	}
}

func TestRebuildEmptyDirStillWritesSummary(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.PathsConfig{
		BaseDir:     dir,
		RawLogsDir:  filepath.Join(dir, "raw_logs"),
		SummaryPath: filepath.Join(dir, "summary.txt"),
		HistoryPath: filepath.Join(dir, "history.db"),
	}

	if err := Rebuild(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if _, err := os.Stat(cfg.Paths.SummaryPath); err != nil {
		t.Errorf("summary not written: %v", err)
	}
}
