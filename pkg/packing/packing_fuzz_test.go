package packing

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// Each packed uint256 must match the standard ABI encoding of the same value,
// since for static 32-byte types abi.encode and abi.encodePacked coincide.
func FuzzPackUint256MatchesABI(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x27, 0x10})
	f.Add([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})

	uintType, _ := abi.NewType("uint256", "", nil)
	args := abi.Arguments{{Type: uintType}}

	f.Fuzz(func(t *testing.T, raw []byte) {
		if len(raw) > 32 {
			raw = raw[:32]
		}
		value := new(big.Int).SetBytes(raw)

		packed, err := PackData(Uint256(value))
		require.NoError(t, err)

		encoded, err := args.Pack(value)
		require.NoError(t, err)
		require.Equal(t, encoded, packed)
	})
}

func FuzzPackAddressLength(f *testing.F) {
	f.Add([]byte{0x01})
	f.Add(make([]byte, 20))

	f.Fuzz(func(t *testing.T, raw []byte) {
		packed, err := PackData(Address(raw))
		if len(raw) > common.AddressLength {
			require.ErrorIs(t, err, ErrEncoding)
			return
		}
		require.NoError(t, err)
		require.Len(t, packed, common.AddressLength)
		require.Equal(t, common.BytesToAddress(raw).Bytes(), packed)
	})
}
