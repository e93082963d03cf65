package types

import (
	"math/big"
	"strings"
)

// Chain identifies a settlement network and environment.
type Chain string

const (
	ChainPolygon     Chain = "polygon"
	ChainPolygonAmoy Chain = "polygon-amoy" // testnet
	ChainBase        Chain = "base"
	ChainBaseSepolia Chain = "base-sepolia" // testnet
)

// DefaultChain is the chain used when an order's payment method names a
// network this library does not know. Defaulting to a testnet is a safe
// fallback: a transfer submitted to the wrong mainnet would burn real funds,
// a transfer submitted to the wrong testnet fails harmlessly.
const DefaultChain = ChainPolygonAmoy

// ChainInfo is the static configuration for one chain.
type ChainInfo struct {
	RPCURL  string
	ChainID *big.Int
	Testnet bool
}

var chainRegistry = map[Chain]ChainInfo{
	ChainPolygon: {
		RPCURL:  "https://polygon-rpc.com",
		ChainID: big.NewInt(137),
	},
	ChainPolygonAmoy: {
		RPCURL:  "https://rpc-amoy.polygon.technology",
		ChainID: big.NewInt(80002),
		Testnet: true,
	},
	ChainBase: {
		RPCURL:  "https://mainnet.base.org",
		ChainID: big.NewInt(8453),
	},
	ChainBaseSepolia: {
		RPCURL:  "https://sepolia.base.org",
		ChainID: big.NewInt(84532),
		Testnet: true,
	},
}

// Info returns the static configuration for the chain.
func (c Chain) Info() (ChainInfo, bool) {
	info, ok := chainRegistry[c]
	return info, ok
}

// IsTestnet reports whether the chain settles on a test network.
func (c Chain) IsTestnet() bool {
	return chainRegistry[c].Testnet
}

func (c Chain) String() string {
	return string(c)
}

// Chains lists every supported chain.
func Chains() []Chain {
	out := make([]Chain, 0, len(chainRegistry))
	for c := range chainRegistry {
		out = append(out, c)
	}
	return out
}

// ResolveChain maps an order's payment method to a chain. Unknown methods
// resolve to DefaultChain rather than erroring; see DefaultChain for why.
// The second return value reports whether the method was recognized.
func ResolveChain(method string) (Chain, bool) {
	c := Chain(method)
	if _, ok := chainRegistry[c]; ok {
		return c, true
	}
	return DefaultChain, false
}

// productionKeyPrefix is the checkout-service API key prefix that marks a
// production key. Everything else is treated as staging.
const productionKeyPrefix = "sk_production"

// IsProductionKey classifies a checkout-service API key.
func IsProductionKey(apiKey string) bool {
	return strings.HasPrefix(apiKey, productionKeyPrefix)
}

// ChainForEnvironment picks the default settlement chain for an environment:
// polygon for production keys, the default testnet otherwise.
func ChainForEnvironment(production bool) Chain {
	if production {
		return ChainPolygon
	}
	return DefaultChain
}
