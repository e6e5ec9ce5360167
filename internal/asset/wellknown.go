package asset

import "github.com/ethereum/go-ethereum/common"

const ChainIDEthereum = 1

// Token contracts on Ethereum mainnet
var (
	AddrUSDCEthereum = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	AddrWBTCEthereum = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	AddrEURSEthereum = common.HexToAddress("0xdB25f211AB05b1c97D595516F45794528a807ad8")
)

// Well-known assets
var (
	// Issued stablecoins
	USDS = NewAsset("USDS", "Stable USD", 18, KindStablecoin)
	EURS = NewAsset("EURS", "Stable EUR", 18, KindStablecoin).OnChain(ChainIDEthereum, AddrEURSEthereum)

	// Collateral
	ETH  = NewAsset("ETH", "Ethereum", 18, KindVolatileCrypto).OnChain(ChainIDEthereum, common.Address{})
	WBTC = NewAsset("WBTC", "Wrapped Bitcoin", 8, KindCrypto).OnChain(ChainIDEthereum, AddrWBTCEthereum)
	USDC = NewAsset("USDC", "USD Coin", 6, KindStablecoin).OnChain(ChainIDEthereum, AddrUSDCEthereum)

	// Fiat
	USD = NewAsset("USD", "US Dollar", 2, KindFiat)
	EUR = NewAsset("EUR", "Euro", 2, KindFiat)
)

// DefaultRegistry returns a registry pre-populated with well-known assets.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, a := range []*Asset{USDS, EURS, ETH, WBTC, USDC, USD, EUR} {
		r.Register(a)
	}
	return r
}
