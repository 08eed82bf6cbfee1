package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenguard/internal/apperr"
	"screenguard/internal/domain"
)

func TestScreen_UnavailableWithoutSnapshot(t *testing.T) {
	e := NewEngine()
	_, err := e.Screen(context.Background(), MatchInput{Name: "Jane Doe", EntityType: domain.EntityPerson})
	require.Error(t, err)
	assert.Equal(t, apperr.MatcherUnavailable, apperr.Of(err))
}

func TestScreen_SanctionsOverridesPEP(t *testing.T) {
	e := NewEngine()
	e.SetSnapshot(Snapshot{
		Sanctions: []WatchlistRow{
			{Name: "Vladimir Putin", EntityType: domain.EntityPerson, Regime: "OFAC"},
		},
		PEP: []WatchlistRow{
			{Name: "Vladimir Putin", EntityType: domain.EntityPerson, Position: "Head of State"},
		},
	})
	res, err := e.Screen(context.Background(), MatchInput{Name: "Vladimir Putin", EntityType: domain.EntityPerson})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailSanction, res.CheckStatus)
	assert.Equal(t, domain.RiskHigh, res.RiskLevel)
	assert.True(t, res.IsSanctioned)
	assert.True(t, res.IsPEP)
}

func TestScreen_PEPOnly(t *testing.T) {
	e := NewEngine()
	e.SetSnapshot(Snapshot{
		PEP: []WatchlistRow{
			{Name: "Jane Politician", EntityType: domain.EntityPerson, Position: "Senator"},
		},
	})
	res, err := e.Screen(context.Background(), MatchInput{Name: "Jane Politician", EntityType: domain.EntityPerson})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailPEP, res.CheckStatus)
	assert.Equal(t, domain.RiskMedium, res.RiskLevel)
	assert.True(t, res.IsPEP)
	assert.False(t, res.IsSanctioned)
}

func TestScreen_ClearedWhenNoMatch(t *testing.T) {
	e := NewEngine()
	e.SetSnapshot(Snapshot{
		Sanctions: []WatchlistRow{{Name: "Someone Else", EntityType: domain.EntityPerson, Regime: "OFAC"}},
	})
	res, err := e.Screen(context.Background(), MatchInput{Name: "John Smith", EntityType: domain.EntityPerson})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCleared, res.CheckStatus)
	assert.Equal(t, domain.ConfidenceVeryHigh, res.Confidence)
	assert.True(t, res.Score.IsZero())
}

func TestScreen_DOBFilterExcludesDecisionButKeepsTopMatch(t *testing.T) {
	e := NewEngine()
	e.SetSnapshot(Snapshot{
		Sanctions: []WatchlistRow{
			{Name: "John Smith", EntityType: domain.EntityPerson, Regime: "OFAC", DOB: "1985-03-15"},
		},
	})
	res, err := e.Screen(context.Background(), MatchInput{Name: "John Smith", DOB: "1970-01-01", EntityType: domain.EntityPerson})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCleared, res.CheckStatus)
	require.Len(t, res.TopMatches, 1)
	assert.Equal(t, "John Smith", res.TopMatches[0].Name)
}

func TestScreen_DecisionCarriesMatchedRowDetails(t *testing.T) {
	e := NewEngine()
	e.SetSnapshot(Snapshot{
		Sanctions: []WatchlistRow{
			{Name: "Viktor Orban", EntityType: domain.EntityPerson, Regime: "OFAC", DOB: "1963-05-31", Topics: []string{"sanction"}},
		},
		PEP: []WatchlistRow{
			{Name: "Viktor Orban", EntityType: domain.EntityPerson, Position: "Prime Minister"},
		},
	})
	res, err := e.Screen(context.Background(), MatchInput{Name: "Viktor Orban", EntityType: domain.EntityPerson})
	require.NoError(t, err)
	assert.Equal(t, "1963-05-31", res.BirthDate)
	assert.Equal(t, []string{"sanction"}, res.Topics)
	assert.Equal(t, "Prime Minister", res.Position)
}

func TestScreen_ThresholdOverride(t *testing.T) {
	e := NewEngine(WithThresholds(99, 99))
	e.SetSnapshot(Snapshot{
		Sanctions: []WatchlistRow{{Name: "Jon Smith", EntityType: domain.EntityPerson, Regime: "UN"}},
	})
	res, err := e.Screen(context.Background(), MatchInput{Name: "John Smith", EntityType: domain.EntityPerson})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCleared, res.CheckStatus)
	assert.Empty(t, res.TopMatches)
}

func TestScreen_UKRegimeFlag(t *testing.T) {
	e := NewEngine()
	e.SetSnapshot(Snapshot{
		Sanctions: []WatchlistRow{
			{Name: "Someone Sanctioned", EntityType: domain.EntityPerson, Regime: "OFSI"},
		},
	})
	res, err := e.Screen(context.Background(), MatchInput{Name: "Someone Sanctioned", EntityType: domain.EntityPerson})
	require.NoError(t, err)
	assert.True(t, res.UKSanctionsFlag)
}
