/*
CryptoCompare identifies coins by its own symbols. Most match the asset symbol; this table
covers the ones that do not. Symbols missing here are passed through unchanged.
*/

package config

import "strings"

var CoinToCCId = map[string]string{
	"WETH":   "ETH",
	"WBTC":   "BTC",
	"STATOM": "ATOM",
	"STOSMO": "OSMO",

	"WRAPPED BITCOIN":  "BTC",
	"WRAPPED ETHEREUM": "ETH",
}

// CCID maps an asset symbol onto its CryptoCompare symbol.
func CCID(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if id, ok := CoinToCCId[s]; ok {
		return id
	}
	return s
}
