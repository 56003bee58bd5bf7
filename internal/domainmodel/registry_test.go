package domainmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistered_BothDomainsPresent(t *testing.T) {
	_, ok := Registered["banking_aml"]
	require.True(t, ok, "expected banking_aml to be registered")
	_, ok = Registered["insurance_claims"]
	require.True(t, ok, "expected insurance_claims to be registered")
}

func TestRegistered_EveryFieldValidates(t *testing.T) {
	for domainID, reg := range Registered {
		for name, fd := range reg.Fields {
			assert.NoErrorf(t, fd.Validate(), "domain %s field %s", domainID, name)
		}
	}
}

func TestBankingAML_SimilarityFloorOverrides(t *testing.T) {
	reg := Registered["banking_aml"]
	assert.Equal(t, 0.75, reg.SimilarityFloorForTypology("sanctions"))
	assert.Equal(t, 0.50, reg.SimilarityFloorForTypology("adverse_media"))
	assert.Equal(t, reg.SimilarityFloor, reg.SimilarityFloorForTypology("unknown_typology"))
}

func TestInsuranceClaims_DocumentationCompleteIsCritical(t *testing.T) {
	reg := Registered["insurance_claims"]
	assert.True(t, reg.HasCriticalField("claim.documentation_complete"))
	assert.False(t, reg.HasCriticalField("claim.peril_type"))
}

func TestDomainRegistry_GateFieldsMatchComparabilityGates(t *testing.T) {
	for _, reg := range Registered {
		gateFields := reg.GateFields()
		assert.Equal(t, len(reg.ComparabilityGates), len(gateFields))
		for i, g := range reg.ComparabilityGates {
			assert.Equal(t, g.Field, gateFields[i])
		}
	}
}

func TestDomainRegistry_ScoringFieldsExcludeStructuralTier(t *testing.T) {
	for domainID, reg := range Registered {
		for _, fd := range reg.ScoringFields() {
			assert.NotEqualf(t, TierStructural, fd.Tier, "domain %s field %s", domainID, fd.Name)
		}
	}
}
