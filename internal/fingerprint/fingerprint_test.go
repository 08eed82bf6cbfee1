package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenguard/internal/domain"
)

func TestDerive_StableUnderNormalization(t *testing.T) {
	base, err := Derive("Jane Doe", domain.EntityPerson, "1980-05-01")
	require.NoError(t, err)

	variants := []struct {
		name string
		dob  string
	}{
		{"  Jane Doe  ", "1980-05-01"},
		{"JANE DOE", "1980-05-01"},
		{"Jane   Doe", "1980-05-01"},
		{"Jáné Dóé", "1980-05-01"},
	}
	for _, v := range variants {
		fp, err := Derive(v.name, domain.EntityPerson, v.dob)
		require.NoError(t, err)
		assert.Equal(t, base, fp, "name=%q dob=%q", v.name, v.dob)
	}
}

func TestDerive_DifferentEntityTypeDiffers(t *testing.T) {
	a, err := Derive("Acme Corp", domain.EntityPerson, "")
	require.NoError(t, err)
	b, err := Derive("Acme Corp", domain.EntityOrganization, "")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDerive_EmptyNameAfterNormalization(t *testing.T) {
	_, err := Derive("   ...  ", domain.EntityPerson, "")
	require.Error(t, err)
}

func TestNormalizeDOB_Forms(t *testing.T) {
	cases := map[string]string{
		"1980-05-01": "1980-05-01",
		"01-05-1980": "1980-05-01",
		"1980":       "1980",
		"garbage":    "",
		"":           "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeDOB(in), "input=%q", in)
	}
}
