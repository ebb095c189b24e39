package util

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBigToUint128(t *testing.T) {
	v, err := StringToUint128("1000000000000000000")
	require.NoError(t, err)
	got := v.BigInt()
	assert.Equal(t, "1000000000000000000", got.String())

	limit := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	v, err = BigToUint128(limit)
	require.NoError(t, err)
	got = v.BigInt()
	assert.Equal(t, 0, got.Cmp(limit))

	_, err = BigToUint128(new(big.Int).Add(limit, big.NewInt(1)))
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = BigToUint128(big.NewInt(-1))
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = StringToUint128("12ab")
	assert.Error(t, err)
}
