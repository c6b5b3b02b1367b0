package domain

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// NativeTicker is the ledger's native currency code. Asset codes must not
// embed it, and all marketplace prices are denominated in it.
const NativeTicker = "XLM"

// AssetType classifies a ledger asset by code length.
type AssetType string

const (
	AssetTypeNative           AssetType = "native"
	AssetTypeCreditAlphanum4  AssetType = "credit_alphanum4"
	AssetTypeCreditAlphanum12 AssetType = "credit_alphanum12"
)

// Asset identifies a tradable asset on the ledger.
// The zero-value Issuer marks the native asset.
type Asset struct {
	Code   string `json:"code"`
	Issuer string `json:"issuer,omitempty"`
}

// NativeAsset is the ledger's native currency.
var NativeAsset = Asset{Code: NativeTicker}

// IsNative reports whether the asset is the native currency.
func (a Asset) IsNative() bool {
	return a.Issuer == "" && (a.Code == NativeTicker || a.Code == "native")
}

// Type returns the ledger classification of the asset.
func (a Asset) Type() AssetType {
	if a.IsNative() {
		return AssetTypeNative
	}
	if len(a.Code) <= 4 {
		return AssetTypeCreditAlphanum4
	}
	return AssetTypeCreditAlphanum12
}

// Canonical returns "native" for the native asset, "CODE:ISSUER" otherwise.
func (a Asset) Canonical() string {
	if a.IsNative() {
		return "native"
	}
	return fmt.Sprintf("%s:%s", a.Code, a.Issuer)
}

// Token is a uniquely-coded, single-unit asset representing one collectible.
// Supply is fixed at exactly one unit once issued.
type Token struct {
	AssetCode string `json:"assetCode"`
	Issuer    string `json:"issuer"`
}

// Asset returns the ledger asset identifying this token.
func (t Token) Asset() Asset {
	return Asset{Code: t.AssetCode, Issuer: t.Issuer}
}

// Canonical returns the "CODE:ISSUER" form used as a storage key.
func (t Token) Canonical() string {
	return fmt.Sprintf("%s:%s", t.AssetCode, t.Issuer)
}

// TokenUnit is the fixed sell/buy quantity for every marketplace operation.
const TokenUnit = "1"

// ValidAddress reports whether addr is a base58-encoded 32-byte ed25519
// public key that decodes to a point on the curve.
func ValidAddress(addr string) bool {
	decoded, err := base58.Decode(addr)
	if err != nil || len(decoded) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}
