// Package matching implements the Matcher collaborator (M): given a
// screening input and a watchlist snapshot, it returns a decision record.
// It is free of I/O side effects and deterministic given a fixed snapshot,
// grounded on the parallel sanctions/PEP pass structure of
// HarshaReddyVardhan-banking-aml-service's Engine.Screen.
package matching

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"screenguard/internal/apperr"
	"screenguard/internal/domain"
	"screenguard/internal/matching/fuzzy"
)

const (
	DefaultMatchThreshold      = 75
	DefaultSuggestionThreshold = 60
	maxTopMatches              = 5
)

// MatchInput is the screening input handed to the Matcher.
type MatchInput struct {
	Name       string
	DOB        string // normalized YYYY-MM-DD, "YYYY", or ""
	EntityType domain.EntityType
}

// SnapshotLoader materializes the current watchlist snapshot.
type SnapshotLoader interface {
	Load(ctx context.Context) (Snapshot, error)
}

// Engine implements the Matcher contract over an in-memory Snapshot held by
// reference; callers refresh it by calling SetSnapshot (typically on a timer
// or before each use in tests).
type Engine struct {
	mu   sync.RWMutex
	snap Snapshot
	ok   bool

	matchThreshold      int
	suggestionThreshold int
}

type EngineOption func(*Engine)

// WithThresholds overrides the decision and suggestion thresholds; values
// outside (0,100] keep the defaults.
func WithThresholds(match, suggestion int) EngineOption {
	return func(e *Engine) {
		if match > 0 && match <= 100 {
			e.matchThreshold = match
		}
		if suggestion > 0 && suggestion <= 100 {
			e.suggestionThreshold = suggestion
		}
	}
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		matchThreshold:      DefaultMatchThreshold,
		suggestionThreshold: DefaultSuggestionThreshold,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SetSnapshot installs the current watchlist snapshot, making the engine
// available. Safe for concurrent use with Screen.
func (e *Engine) SetSnapshot(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snap = s
	e.ok = true
}

func (e *Engine) currentSnapshot() (Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap, e.ok
}

// UKScopedSanctionsRows returns the UK-regime subset of the currently loaded
// sanctions dataset, consulted by the Refresh Coordinator to compute its
// added/removed delta. Returns nil, false if no snapshot has been loaded.
func (e *Engine) UKScopedSanctionsRows() ([]WatchlistRow, bool) {
	snap, ok := e.currentSnapshot()
	if !ok {
		return nil, false
	}
	var out []WatchlistRow
	for _, row := range snap.Sanctions {
		if row.UKScoped || isUKRegime(row.Regime) {
			out = append(out, row)
		}
	}
	return out, true
}

type passResult struct {
	decisionName   string
	decisionDOB    string
	decisionPos    string
	decisionTopics []string
	decisionSrc    string
	decisionUK     bool
	decisionOK     bool
	decisionScr    int
	topMatches     []domain.TopMatch
}

// Screen runs the sanctions pass and PEP pass concurrently and applies the
// spec's decision precedence: sanctions fail overrides PEP fail overrides
// cleared.
func (e *Engine) Screen(ctx context.Context, in MatchInput) (domain.ResultBlob, error) {
	snap, ok := e.currentSnapshot()
	if !ok {
		return domain.ResultBlob{}, apperr.New(apperr.MatcherUnavailable, "watchlist snapshot not loaded")
	}

	var sanctionsRes, pepRes passResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		default:
		}
		sanctionsRes = e.runPass(in, snap.Sanctions, true)
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		default:
		}
		pepRes = e.runPass(in, snap.PEP, false)
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.ResultBlob{}, apperr.Wrap(apperr.MatcherUnavailable, "matcher pass failed", err)
	}

	now := time.Now().UTC()
	result := domain.ResultBlob{
		CheckDate:   now,
		CheckSource: "screenguard-matcher",
	}

	switch {
	case sanctionsRes.decisionOK:
		result.CheckStatus = domain.StatusFailSanction
		result.RiskLevel = domain.RiskHigh
		result.IsSanctioned = true
		result.SanctionsName = sanctionsRes.decisionName
		result.BirthDate = sanctionsRes.decisionDOB
		result.Topics = sanctionsRes.decisionTopics
		result.Regime = sanctionsRes.decisionSrc
		result.UKSanctionsFlag = sanctionsRes.decisionUK
		result.Score = decimal.NewFromInt(int64(sanctionsRes.decisionScr))
		result.Confidence = confidenceBand(sanctionsRes.decisionScr)
		result.IsPEP = pepRes.decisionOK
		if pepRes.decisionOK {
			result.Position = pepRes.decisionPos
		}
		result.MatchFound = true
	case pepRes.decisionOK:
		result.CheckStatus = domain.StatusFailPEP
		result.RiskLevel = domain.RiskMedium
		result.IsPEP = true
		result.SanctionsName = pepRes.decisionName
		result.BirthDate = pepRes.decisionDOB
		result.Position = pepRes.decisionPos
		result.Topics = pepRes.decisionTopics
		result.Regime = PEPDatasetLabel
		result.Score = decimal.NewFromInt(int64(pepRes.decisionScr))
		result.Confidence = confidenceBand(pepRes.decisionScr)
		result.MatchFound = true
	default:
		result.CheckStatus = domain.StatusCleared
		result.RiskLevel = domain.RiskCleared
		result.Confidence = domain.ConfidenceVeryHigh
		result.Score = decimal.Zero
		result.MatchFound = false
	}

	result.TopMatches = mergeTopMatches(sanctionsRes.topMatches, pepRes.topMatches)
	return result, nil
}

// runPass scans rows of a single dataset (sanctions or PEP) for the best
// decision candidate and collects advisory top matches.
func (e *Engine) runPass(in MatchInput, rows []WatchlistRow, isSanctions bool) passResult {
	var res passResult
	var top []scored

	for _, row := range rows {
		if row.EntityType != "" && row.EntityType != in.EntityType {
			continue
		}
		score := fuzzy.TokenSetRatio(in.Name, row.Name)
		if score >= e.suggestionThreshold {
			top = append(top, scored{name: row.Name, score: score})
		}
		if score < e.matchThreshold {
			continue
		}
		if !dobCompatible(in.DOB, row.DOB) {
			continue
		}
		if score > res.decisionScr || !res.decisionOK {
			res.decisionOK = true
			res.decisionScr = score
			res.decisionName = row.Name
			res.decisionDOB = row.DOB
			res.decisionPos = row.Position
			res.decisionTopics = row.Topics
			res.decisionUK = isSanctions && (row.UKScoped || isUKRegime(row.Regime))
			if isSanctions {
				res.decisionSrc = row.Regime
			}
		}
	}

	res.topMatches = topN(top, maxTopMatches)
	return res
}

type scored struct {
	name  string
	score int
}

func topN(in []scored, n int) []domain.TopMatch {
	// simple selection sort over a small bounded slice; no need for sort.Slice's
	// overhead given the advisory list is capped at n entries.
	out := make([]domain.TopMatch, 0, n)
	used := make([]bool, len(in))
	for len(out) < n {
		bestIdx := -1
		for i, s := range in {
			if used[i] {
				continue
			}
			if bestIdx == -1 || s.score > in[bestIdx].score {
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		used[bestIdx] = true
		out = append(out, domain.TopMatch{Name: in[bestIdx].name, Score: in[bestIdx].score})
	}
	return out
}

func mergeTopMatches(a, b []domain.TopMatch) []domain.TopMatch {
	combined := append(append([]domain.TopMatch{}, a...), b...)
	scoredList := make([]scored, len(combined))
	for i, m := range combined {
		scoredList[i] = scored{name: m.Name, score: m.Score}
	}
	return topN(scoredList, maxTopMatches)
}

// dobCompatible applies the DOB constraint for decision candidates only:
// exact match when both are full dates, or year match when the query is
// year-only. An absent query DOB imposes no constraint.
func dobCompatible(queryDOB, rowDOB string) bool {
	if queryDOB == "" {
		return true
	}
	if rowDOB == "" {
		return false
	}
	if len(queryDOB) == 4 {
		return strings.HasPrefix(rowDOB, queryDOB)
	}
	return queryDOB == rowDOB
}

func confidenceBand(score int) domain.Confidence {
	switch {
	case score >= 90:
		return domain.ConfidenceHigh
	case score >= 80:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}
