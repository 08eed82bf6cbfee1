// Package csvsnapshot implements ports.SnapshotLoader by reading flat CSV
// files for local/dev use and tests, standing in for the real watchlist
// ingestion pipeline (HTTP download + parquet materialization), which is out
// of scope for this engine.
package csvsnapshot

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"screenguard/internal/domain"
	"screenguard/internal/fingerprint"
	"screenguard/internal/matching"
)

// Loader reads the sanctions CSV and the PEP CSV named by SanctionsPath and
// PEPPath. Expected columns (header required):
//
//	sanctions: id,name,entity_type,dob,regime,uk_scoped
//	pep:       id,name,entity_type,dob,position,topics
//
// topics is a "|"-separated list.
type Loader struct {
	SanctionsPath string
	PEPPath       string
}

func New(sanctionsPath, pepPath string) *Loader {
	return &Loader{SanctionsPath: sanctionsPath, PEPPath: pepPath}
}

func (l *Loader) Load(ctx context.Context) (matching.Snapshot, error) {
	var snap matching.Snapshot

	if l.SanctionsPath != "" {
		rows, err := loadSanctionsCSV(l.SanctionsPath)
		if err != nil {
			return snap, fmt.Errorf("load sanctions csv: %w", err)
		}
		snap.Sanctions = rows
	}
	if l.PEPPath != "" {
		rows, err := loadPEPCSV(l.PEPPath)
		if err != nil {
			return snap, fmt.Errorf("load pep csv: %w", err)
		}
		snap.PEP = rows
	}
	return snap, nil
}

func loadSanctionsCSV(path string) ([]matching.WatchlistRow, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	idx, err := headerIndex(records[0], "id", "name", "entity_type", "dob", "regime", "uk_scoped")
	if err != nil {
		return nil, err
	}
	out := make([]matching.WatchlistRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		out = append(out, matching.WatchlistRow{
			ID:         rec[idx["id"]],
			Name:       rec[idx["name"]],
			EntityType: domain.EntityType(rec[idx["entity_type"]]),
			DOB:        fingerprint.NormalizeDOB(rec[idx["dob"]]),
			Regime:     rec[idx["regime"]],
			UKScoped:   strings.EqualFold(rec[idx["uk_scoped"]], "true"),
		})
	}
	return out, nil
}

func loadPEPCSV(path string) ([]matching.WatchlistRow, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	idx, err := headerIndex(records[0], "id", "name", "entity_type", "dob", "position", "topics")
	if err != nil {
		return nil, err
	}
	out := make([]matching.WatchlistRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		var topics []string
		if raw := rec[idx["topics"]]; raw != "" {
			topics = strings.Split(raw, "|")
		}
		out = append(out, matching.WatchlistRow{
			ID:         rec[idx["id"]],
			Name:       rec[idx["name"]],
			EntityType: domain.EntityType(rec[idx["entity_type"]]),
			DOB:        fingerprint.NormalizeDOB(rec[idx["dob"]]),
			Position:   rec[idx["position"]],
			Topics:     topics,
		})
	}
	return out, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}
	return records, nil
}

func headerIndex(header []string, want ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}
	for _, w := range want {
		if _, ok := idx[w]; !ok {
			return nil, fmt.Errorf("missing required column %q", w)
		}
	}
	return idx, nil
}
