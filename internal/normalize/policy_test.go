package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/parque/internal/policy"
)

func TestPolicyFor_ScopedOverrides(t *testing.T) {
	off := false
	rs := policy.MustRuleSet(DefaultRules()...)
	require.NoError(t, rs.Add(&policy.Rule{
		ID: RuleRAMMinimum, Kind: policy.KindThreshold, Operator: policy.OpGreaterEq,
		Min: policy.Float(8), Providers: []string{"ACME"},
	}))
	require.NoError(t, rs.Add(&policy.Rule{
		ID: RuleStorageType, Kind: policy.KindEnum, Values: []string{"SSD"},
		Active: &off, Sites: []string{"Cali"},
	}))

	def := DefaultPolicy()

	acme := PolicyFor(rs, "Acme", "Bogotá")
	assert.Equal(t, 8.0, acme.MinRAMGB)
	assert.True(t, acme.RequireSSD)

	cali := PolicyFor(rs, "Konecta", "Cali")
	assert.Equal(t, def.MinRAMGB, cali.MinRAMGB)
	assert.False(t, cali.RequireSSD)

	unscoped := PolicyFromRules(rs)
	assert.Equal(t, def.MinRAMGB, unscoped.MinRAMGB)
	assert.True(t, unscoped.RequireSSD)

	assert.True(t, NormalizeMemory("8 GB", acme).MeetsRequirements)
	assert.False(t, NormalizeMemory("8 GB", cali).MeetsRequirements)
}
