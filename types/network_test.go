package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveChain(t *testing.T) {
	base, known := ResolveChain("base")
	require.True(t, known)
	info, ok := base.Info()
	require.True(t, ok)
	assert.Equal(t, "https://mainnet.base.org", info.RPCURL)
	assert.False(t, base.IsTestnet())

	amoy, known := ResolveChain("polygon-amoy")
	require.True(t, known)
	info, ok = amoy.Info()
	require.True(t, ok)
	assert.Equal(t, "https://rpc-amoy.polygon.technology", info.RPCURL)
	assert.True(t, amoy.IsTestnet())
}

func TestResolveChainUnknownFallsBackToTestnet(t *testing.T) {
	chain, known := ResolveChain("xyz")
	assert.False(t, known)
	assert.Equal(t, DefaultChain, chain)
	assert.True(t, chain.IsTestnet(), "the fallback must never point at a mainnet")
}

func TestChainIDs(t *testing.T) {
	tests := map[Chain]int64{
		ChainPolygon:     137,
		ChainPolygonAmoy: 80002,
		ChainBase:        8453,
		ChainBaseSepolia: 84532,
	}
	for chain, id := range tests {
		info, ok := chain.Info()
		require.True(t, ok, chain)
		assert.Equal(t, id, info.ChainID.Int64(), chain)
	}
}

func TestAPIKeyClassification(t *testing.T) {
	assert.True(t, IsProductionKey("sk_production_abc123"))
	assert.False(t, IsProductionKey("sk_staging_abc123"))
	assert.False(t, IsProductionKey(""))

	assert.Equal(t, ChainPolygon, ChainForEnvironment(true))
	assert.Equal(t, DefaultChain, ChainForEnvironment(false))
}
