// Package asset provides the money model: asset metadata, amounts held at
// asset precision, prices between assets and fixed-scale ratios.
// All arithmetic is decimal; float64 never appears in a computation.
package asset

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Code identifies an asset across the system (e.g. "USDS", "ETH").
// Positions, events and ledger entries refer to assets by Code.
type Code string

// Normalize upper-cases and trims a code.
func (c Code) Normalize() Code {
	return Code(strings.ToUpper(strings.TrimSpace(string(c))))
}

func (c Code) String() string { return string(c) }

// Kind classifies an asset for collateral and issuance rules.
type Kind uint8

const (
	KindFiat Kind = iota
	KindStablecoin
	KindCrypto
	KindVolatileCrypto
)

func (k Kind) String() string {
	switch k {
	case KindFiat:
		return "fiat"
	case KindStablecoin:
		return "stablecoin"
	case KindCrypto:
		return "crypto"
	case KindVolatileCrypto:
		return "volatile_crypto"
	default:
		return "unknown"
	}
}

// Asset is the metadata of a fiat currency, token or native coin.
type Asset struct {
	code     Code
	name     string
	decimals uint8
	kind     Kind
	chainID  uint64
	contract common.Address
}

// NewAsset creates a new Asset.
func NewAsset(code Code, name string, decimals uint8, kind Kind) *Asset {
	code = code.Normalize()
	if code == "" {
		panic("asset: empty code")
	}
	if decimals > 30 {
		panic("asset: suspicious decimals (>30)")
	}
	return &Asset{
		code:     code,
		name:     name,
		decimals: decimals,
		kind:     kind,
	}
}

// OnChain returns a copy bound to a token contract (zero address for a native coin).
func (a *Asset) OnChain(chainID uint64, contract common.Address) *Asset {
	cp := *a
	cp.chainID = chainID
	cp.contract = contract
	return &cp
}

func (a *Asset) Code() Code { return a.code }

// Name returns the human-readable name, falling back to the code.
func (a *Asset) Name() string {
	if a.name == "" {
		return string(a.code)
	}
	return a.name
}

func (a *Asset) Decimals() uint8 { return a.decimals }

func (a *Asset) Kind() Kind { return a.kind }

// ChainID returns the chain id, 0 for off-chain assets.
func (a *Asset) ChainID() uint64 { return a.chainID }

func (a *Asset) Contract() common.Address { return a.contract }

// IsOnChain reports whether the asset lives on a blockchain.
func (a *Asset) IsOnChain() bool { return a.chainID != 0 }

func (a *Asset) String() string { return string(a.code) }

// Equals compares two assets by code.
func (a *Asset) Equals(other *Asset) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.code == other.code
}
