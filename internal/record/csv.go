package record

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// Column sets are fixed: the plotting side consumes them by name.
var (
	requestHeader     = []string{"workload", "concurrency", "node", "op", "ok", "latency_ms", "t_start_ms", "t_end_ms"}
	chaosHeader       = []string{"node", "op", "ok", "latency_ms", "t_start_ms", "t_end_ms"}
	stalenessHeader   = []string{"delay_ms", "read_node", "is_stale"}
	convergenceHeader = []string{"t_offset_s", "node_a", "node_b", "root_a", "root_b", "in_sync"}
	sloHeader         = []string{"node", "class", "deadline_ms", "latency_ms", "ok", "t_start_ms", "t_end_ms"}
)

func boolCell(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseBoolCell(s string) (bool, error) {
	switch s {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool cell %q", s)
	}
}

// floatCell formats with the shortest representation that survives a
// round-trip through ParseFloat unchanged.
func floatCell(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func readCSV(path string, wantHeader []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: missing header", path)
	}
	if len(rows[0]) != len(wantHeader) {
		return nil, fmt.Errorf("%s: unexpected column count %d", path, len(rows[0]))
	}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			return nil, fmt.Errorf("%s: unexpected column %q, want %q", path, rows[0][i], col)
		}
	}
	return rows[1:], nil
}

// WriteRequestCSV serializes workload records, one row per request.
func WriteRequestCSV(path string, recs []RequestRecord) error {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.Workload,
			strconv.Itoa(r.Concurrency),
			r.Node,
			r.Op,
			boolCell(r.OK),
			floatCell(r.LatencyMs),
			strconv.FormatInt(r.TStartMs, 10),
			strconv.FormatInt(r.TEndMs, 10),
		})
	}
	return writeCSV(path, requestHeader, rows)
}

// ReadRequestCSV is the inverse of WriteRequestCSV.
func ReadRequestCSV(path string) ([]RequestRecord, error) {
	rows, err := readCSV(path, requestHeader)
	if err != nil {
		return nil, err
	}
	recs := make([]RequestRecord, 0, len(rows))
	for _, row := range rows {
		conc, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, fmt.Errorf("parse concurrency: %w", err)
		}
		ok, err := parseBoolCell(row[4])
		if err != nil {
			return nil, err
		}
		lat, err := strconv.ParseFloat(row[5], 64)
		if err != nil {
			return nil, fmt.Errorf("parse latency: %w", err)
		}
		start, err := strconv.ParseInt(row[6], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse t_start_ms: %w", err)
		}
		end, err := strconv.ParseInt(row[7], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse t_end_ms: %w", err)
		}
		recs = append(recs, RequestRecord{
			Workload:    row[0],
			Concurrency: conc,
			Node:        row[2],
			Op:          row[3],
			OK:          ok,
			LatencyMs:   lat,
			TStartMs:    start,
			TEndMs:      end,
		})
	}
	return recs, nil
}

// WriteChaosCSV serializes chaos records.
func WriteChaosCSV(path string, recs []ChaosRecord) error {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.Node,
			r.Op,
			boolCell(r.OK),
			floatCell(r.LatencyMs),
			strconv.FormatInt(r.TStartMs, 10),
			strconv.FormatInt(r.TEndMs, 10),
		})
	}
	return writeCSV(path, chaosHeader, rows)
}

// ReadChaosCSV is the inverse of WriteChaosCSV.
func ReadChaosCSV(path string) ([]ChaosRecord, error) {
	rows, err := readCSV(path, chaosHeader)
	if err != nil {
		return nil, err
	}
	recs := make([]ChaosRecord, 0, len(rows))
	for _, row := range rows {
		ok, err := parseBoolCell(row[2])
		if err != nil {
			return nil, err
		}
		lat, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, fmt.Errorf("parse latency: %w", err)
		}
		start, err := strconv.ParseInt(row[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse t_start_ms: %w", err)
		}
		end, err := strconv.ParseInt(row[5], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse t_end_ms: %w", err)
		}
		recs = append(recs, ChaosRecord{
			Node:      row[0],
			Op:        row[1],
			OK:        ok,
			LatencyMs: lat,
			TStartMs:  start,
			TEndMs:    end,
		})
	}
	return recs, nil
}

// WriteStalenessCSV serializes staleness trials.
func WriteStalenessCSV(path string, trials []StalenessTrial) error {
	rows := make([][]string, 0, len(trials))
	for _, t := range trials {
		rows = append(rows, []string{
			strconv.Itoa(t.DelayMs),
			t.ReadNode,
			boolCell(t.IsStale),
		})
	}
	return writeCSV(path, stalenessHeader, rows)
}

// ReadStalenessCSV is the inverse of WriteStalenessCSV.
func ReadStalenessCSV(path string) ([]StalenessTrial, error) {
	rows, err := readCSV(path, stalenessHeader)
	if err != nil {
		return nil, err
	}
	trials := make([]StalenessTrial, 0, len(rows))
	for _, row := range rows {
		delay, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("parse delay_ms: %w", err)
		}
		stale, err := parseBoolCell(row[2])
		if err != nil {
			return nil, err
		}
		trials = append(trials, StalenessTrial{DelayMs: delay, ReadNode: row[1], IsStale: stale})
	}
	return trials, nil
}

// WriteConvergenceCSV serializes convergence samples.
func WriteConvergenceCSV(path string, samples []ConvergenceSample) error {
	rows := make([][]string, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, []string{
			floatCell(s.TOffsetS),
			s.NodeA,
			s.NodeB,
			s.RootA,
			s.RootB,
			boolCell(s.InSync),
		})
	}
	return writeCSV(path, convergenceHeader, rows)
}

// ReadConvergenceCSV is the inverse of WriteConvergenceCSV.
func ReadConvergenceCSV(path string) ([]ConvergenceSample, error) {
	rows, err := readCSV(path, convergenceHeader)
	if err != nil {
		return nil, err
	}
	samples := make([]ConvergenceSample, 0, len(rows))
	for _, row := range rows {
		off, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parse t_offset_s: %w", err)
		}
		inSync, err := parseBoolCell(row[5])
		if err != nil {
			return nil, err
		}
		samples = append(samples, ConvergenceSample{
			TOffsetS: off,
			NodeA:    row[1],
			NodeB:    row[2],
			RootA:    row[3],
			RootB:    row[4],
			InSync:   inSync,
		})
	}
	return samples, nil
}

// WriteSLOCSV serializes deadline-tagged read records.
func WriteSLOCSV(path string, recs []SLORecord) error {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.Node,
			r.Class,
			strconv.Itoa(r.DeadlineMs),
			floatCell(r.LatencyMs),
			boolCell(r.OK),
			strconv.FormatInt(r.TStartMs, 10),
			strconv.FormatInt(r.TEndMs, 10),
		})
	}
	return writeCSV(path, sloHeader, rows)
}

// ReadSLOCSV is the inverse of WriteSLOCSV.
func ReadSLOCSV(path string) ([]SLORecord, error) {
	rows, err := readCSV(path, sloHeader)
	if err != nil {
		return nil, err
	}
	recs := make([]SLORecord, 0, len(rows))
	for _, row := range rows {
		deadline, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, fmt.Errorf("parse deadline_ms: %w", err)
		}
		lat, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, fmt.Errorf("parse latency: %w", err)
		}
		ok, err := parseBoolCell(row[4])
		if err != nil {
			return nil, err
		}
		start, err := strconv.ParseInt(row[5], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse t_start_ms: %w", err)
		}
		end, err := strconv.ParseInt(row[6], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse t_end_ms: %w", err)
		}
		recs = append(recs, SLORecord{
			Node:       row[0],
			Class:      row[1],
			DeadlineMs: deadline,
			LatencyMs:  lat,
			OK:         ok,
			TStartMs:   start,
			TEndMs:     end,
		})
	}
	return recs, nil
}
