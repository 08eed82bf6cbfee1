package matching

import "screenguard/internal/domain"

// WatchlistRow is one row of a sanctions or PEP dataset, as materialized by
// a SnapshotLoader.
type WatchlistRow struct {
	ID         string
	Name       string
	EntityType domain.EntityType
	DOB        string // normalized YYYY-MM-DD, year-only "YYYY", or ""
	Regime     string // sanctions rows only, the regime label as loaded
	Position   string // PEP rows only
	Topics     []string
	UKScoped   bool
}

// Snapshot is the read handle the matcher consults: two independent row
// sets, sanctions and PEP, optionally entity-type partitioned by the
// SnapshotLoader that fills it (the engine also filters defensively).
type Snapshot struct {
	Sanctions []WatchlistRow
	PEP       []WatchlistRow
}

// PEPDatasetLabel is the source label attributed to PEP-pass matches.
const PEPDatasetLabel = "Consolidated PEP Dataset"

// AllowedRegimes lists the recognized sanctions-regime labels. The engine
// reports a matched row's Regime exactly as loaded and does not check it
// against this list.
var AllowedRegimes = map[string]bool{
	"UN":                     true,
	"OFAC":                   true,
	"HM Treasury":            true,
	"HMT":                    true,
	"OFSI":                   true,
	"EU Council":             true,
	"EU Financial Sanctions": true,
}

var ukRegimeLabels = map[string]bool{
	"HM Treasury": true,
	"HMT":         true,
	"OFSI":        true,
}

func isUKRegime(regime string) bool { return ukRegimeLabels[regime] }
