package record

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func tmpCSV(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "out.csv")
}

func TestRequestCSVRoundTrip(t *testing.T) {
	path := tmpCSV(t)
	in := []RequestRecord{
		{Workload: "A", Concurrency: 4, Node: "node-a", Op: OpRead, OK: true, LatencyMs: 1.234, TStartMs: 1000, TEndMs: 1001},
		{Workload: "B", Concurrency: 256, Node: "node-c", Op: OpWrite, OK: false, LatencyMs: 0.001, TStartMs: 2000, TEndMs: 2500},
	}
	if err := WriteRequestCSV(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := ReadRequestCSV(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip changed records:\n in=%+v\nout=%+v", in, out)
	}
}

func TestStalenessCSVRoundTrip(t *testing.T) {
	path := tmpCSV(t)
	in := []StalenessTrial{
		{DelayMs: 0, ReadNode: "node-a", IsStale: true},
		{DelayMs: 1000, ReadNode: "node-b", IsStale: false},
	}
	if err := WriteStalenessCSV(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := ReadStalenessCSV(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip changed trials:\n in=%+v\nout=%+v", in, out)
	}
}

func TestConvergenceCSVRoundTrip(t *testing.T) {
	path := tmpCSV(t)
	in := []ConvergenceSample{
		{TOffsetS: 0.5, NodeA: "node-a", NodeB: "node-b", RootA: "abc=", RootB: "abc=", InSync: true},
		{TOffsetS: 1.5, NodeA: "node-a", NodeB: "node-c", RootA: "abc=", RootB: "xyz=", InSync: false},
	}
	if err := WriteConvergenceCSV(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := ReadConvergenceCSV(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip changed samples:\n in=%+v\nout=%+v", in, out)
	}
}

func TestSLOCSVRoundTrip(t *testing.T) {
	path := tmpCSV(t)
	in := []SLORecord{
		{Node: "node-a", Class: ClassTight, DeadlineMs: 20, LatencyMs: 3.5, OK: true, TStartMs: 10, TEndMs: 14},
		{Node: "node-b", Class: ClassRelaxed, DeadlineMs: 100, LatencyMs: 90.25, OK: false, TStartMs: 20, TEndMs: 110},
	}
	if err := WriteSLOCSV(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := ReadSLOCSV(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip changed records:\n in=%+v\nout=%+v", in, out)
	}
}

func TestChaosCSVRoundTrip(t *testing.T) {
	path := tmpCSV(t)
	in := []ChaosRecord{
		{Node: "node-a", Op: OpWrite, OK: true, LatencyMs: 2.125, TStartMs: 1, TEndMs: 3},
		{Node: "node-b", Op: OpRead, OK: false, LatencyMs: 5000, TStartMs: 4, TEndMs: 5004},
	}
	if err := WriteChaosCSV(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := ReadChaosCSV(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip changed records:\n in=%+v\nout=%+v", in, out)
	}
}

func TestBoolCellsAreZeroOne(t *testing.T) {
	path := tmpCSV(t)
	in := []StalenessTrial{{DelayMs: 10, ReadNode: "node-a", IsStale: true}}
	if err := WriteStalenessCSV(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	want := "delay_ms,read_node,is_stale\n10,node-a,1\n"
	if string(raw) != want {
		t.Errorf("csv bytes = %q, want %q", raw, want)
	}
}

func TestReadRejectsWrongHeader(t *testing.T) {
	path := tmpCSV(t)
	if err := os.WriteFile(path, []byte("foo,bar,baz\n1,2,3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadStalenessCSV(path); err == nil {
		t.Fatal("expected header validation error")
	}
}
