package packing

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackData_FeeInfoLayout(t *testing.T) {
	addr := common.HexToAddress("0x" + strings.Repeat("11", 20))

	packed, err := PackData(
		Address(addr),
		Uint256(big.NewInt(5)),
		Uint256(big.NewInt(1)),
		Uint256(big.NewInt(0)),
		Uint256(big.NewInt(10000)),
	)
	require.NoError(t, err)
	require.Len(t, packed, 148)

	expected := "0x" + strings.Repeat("11", 20) +
		strings.Repeat("0", 62) + "05" +
		strings.Repeat("0", 62) + "01" +
		strings.Repeat("0", 64) +
		strings.Repeat("0", 60) + "2710"
	assert.Equal(t, expected, hexutil.Encode(packed))
}

func TestPackData_AddressInputs(t *testing.T) {
	full := common.HexToAddress("0x00000000000000000000000000000000000000ab")

	tests := []struct {
		name      string
		value     interface{}
		expectErr bool
	}{
		{"common.Address", full, false},
		{"pointer", &full, false},
		{"short bytes are left padded", []byte{0xab}, false},
		{"full bytes", full.Bytes(), false},
		{"hex string", "0x00000000000000000000000000000000000000ab", false},
		{"short hex string", "0xab", false},
		{"too long bytes", make([]byte, 21), true},
		{"invalid hex", "0xzz", true},
		{"nil pointer", (*common.Address)(nil), true},
		{"unsupported type", 12, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed, err := PackData(Address(tt.value))
			if tt.expectErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrEncoding)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, full.Bytes(), packed)
		})
	}

	packed, err := PackData(Address("0xb"))
	require.NoError(t, err)
	assert.Equal(t, common.LeftPadBytes([]byte{0x0b}, 20), packed)
}

func TestPackData_Uint256Bounds(t *testing.T) {
	maxUint := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	overflow := new(big.Int).Lsh(big.NewInt(1), 256)

	tests := []struct {
		name      string
		value     interface{}
		expectErr bool
	}{
		{"zero", big.NewInt(0), false},
		{"max uint256", maxUint, false},
		{"overflow", overflow, true},
		{"negative big", big.NewInt(-1), true},
		{"negative int", -5, true},
		{"int", 7, false},
		{"int64", int64(7), false},
		{"uint64", uint64(7), false},
		{"uint256.Int", uint256.NewInt(7), false},
		{"decimal string", "7", false},
		{"non decimal string", "0x07", true},
		{"nil big", (*big.Int)(nil), true},
		{"float", 1.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed, err := PackData(Uint256(tt.value))
			if tt.expectErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrEncoding)
				return
			}
			require.NoError(t, err)
			assert.Len(t, packed, Uint256Width)
		})
	}

	packed, err := PackData(Uint256(maxUint))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xff}, 32), packed)
}

func TestPackData_UnsupportedType(t *testing.T) {
	_, err := PackData(Field{Type: "bytes32", Value: []byte{1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestPackedLength(t *testing.T) {
	n, err := PackedLength(Address(common.Address{}), Uint256(1), Uint256(2))
	require.NoError(t, err)
	assert.Equal(t, 20+32+32, n)

	n, err = PackedLength()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPackData_Deterministic(t *testing.T) {
	fields := []Field{Address("0x1234"), Uint256(big.NewInt(42))}

	a, err := PackData(fields...)
	require.NoError(t, err)
	b, err := PackData(fields...)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
