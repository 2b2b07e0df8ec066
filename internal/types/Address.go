/*
This file contains the address type used for pools, pool managers and privileged callers.

Addresses are bech32 strings. The human readable prefix is not fixed so that pools of
any chain family can be registered.
*/

package types

import (
	"fmt"
	"strings"

	"github.com/cosmos/cosmos-sdk/types/bech32"
)

var ErrInvalidAddress = NewClassError(ErrConfiguration, "invalid bech32 address")

// Address is a validated bech32 account address.
type Address string

// ParseAddress validates a bech32 string and returns it in canonical lower case form.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	hrp, bz, err := bech32.DecodeAndConvert(s)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidAddress, s, err)
	}
	if len(bz) == 0 {
		return "", fmt.Errorf("%w: %s has an empty payload", ErrInvalidAddress, s)
	}
	canonical, err := bech32.ConvertAndEncode(hrp, bz)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidAddress, s, err)
	}
	return Address(canonical), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// NewAddress encodes raw bytes under the given prefix.
func NewAddress(hrp string, bz []byte) (Address, error) {
	s, err := bech32.ConvertAndEncode(hrp, bz)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return Address(s), nil
}

func (a Address) String() string { return string(a) }

// IsEmpty reports whether the address is unset.
func (a Address) IsEmpty() bool { return a == "" }
