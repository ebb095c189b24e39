package util

import (
	"errors"
	"fmt"
	"math/big"

	tbtypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"
)

var ErrOutOfRange = errors.New("value does not fit in uint128")

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// BigToUint128 converts v, rejecting negatives and anything wider than 128 bits.
func BigToUint128(v *big.Int) (tbtypes.Uint128, error) {
	if v == nil || v.Sign() < 0 || v.Cmp(maxUint128) > 0 {
		return tbtypes.Uint128{}, fmt.Errorf("%w: %v", ErrOutOfRange, v)
	}
	return tbtypes.BigIntToUint128(*v), nil
}

func StringToUint128(s string) (tbtypes.Uint128, error) {
	bi, ok := new(big.Int).SetString(s, 10) // parse decimal string
	if !ok {
		return tbtypes.Uint128{}, fmt.Errorf("invalid uint128 string: %s", s)
	}
	return BigToUint128(bi)
}
