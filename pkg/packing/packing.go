package packing

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrEncoding is returned when a value cannot be represented in the binary
// width of its field type.
var ErrEncoding = errors.New("encoding error")

type FieldType string

const (
	FieldTypeAddress FieldType = "address"
	FieldTypeUint256 FieldType = "uint256"
)

const (
	AddressWidth = common.AddressLength
	Uint256Width = 32
)

// Width returns the number of bytes a field of this type occupies in packed form.
func (t FieldType) Width() (int, error) {
	switch t {
	case FieldTypeAddress:
		return AddressWidth, nil
	case FieldTypeUint256:
		return Uint256Width, nil
	default:
		return 0, fmt.Errorf("%w: unsupported field type %q", ErrEncoding, string(t))
	}
}

// Field is a single typed value in a packed sequence.
type Field struct {
	Type  FieldType
	Value interface{}
}

func Address(v interface{}) Field {
	return Field{Type: FieldTypeAddress, Value: v}
}

func Uint256(v interface{}) Field {
	return Field{Type: FieldTypeUint256, Value: v}
}

// PackedLength returns the total packed size of fields.
func PackedLength(fields ...Field) (int, error) {
	total := 0
	for _, f := range fields {
		w, err := f.Type.Width()
		if err != nil {
			return 0, err
		}
		total += w
	}
	return total, nil
}

// PackData concatenates the fixed width encoding of every field, in order,
// with no delimiters or length prefixes. This is the abi.encodePacked layout
// for address and uint256 arguments.
func PackData(fields ...Field) ([]byte, error) {
	size, err := PackedLength(fields...)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, size)
	for i, f := range fields {
		var encoded []byte
		switch f.Type {
		case FieldTypeAddress:
			encoded, err = encodeAddress(f.Value)
		case FieldTypeUint256:
			encoded, err = encodeUint256(f.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("field %d (%s): %w", i, f.Type, err)
		}
		out = append(out, encoded...)
	}
	return out, nil
}

func encodeAddress(v interface{}) ([]byte, error) {
	var raw []byte
	switch a := v.(type) {
	case common.Address:
		return a.Bytes(), nil
	case *common.Address:
		if a == nil {
			return nil, fmt.Errorf("%w: nil address", ErrEncoding)
		}
		return a.Bytes(), nil
	case []byte:
		raw = a
	case string:
		decoded, err := decodeHexString(a)
		if err != nil {
			return nil, err
		}
		raw = decoded
	default:
		return nil, fmt.Errorf("%w: cannot encode %T as address", ErrEncoding, v)
	}

	if len(raw) > AddressWidth {
		return nil, fmt.Errorf("%w: address is %d bytes, max %d", ErrEncoding, len(raw), AddressWidth)
	}
	return common.LeftPadBytes(raw, AddressWidth), nil
}

func decodeHexString(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	if !isHex(s) {
		return nil, fmt.Errorf("%w: invalid hex string", ErrEncoding)
	}
	return common.Hex2Bytes(s), nil
}

func isHex(s string) bool {
	for _, c := range s {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

func encodeUint256(v interface{}) ([]byte, error) {
	n, err := ToUint256(v)
	if err != nil {
		return nil, err
	}
	b := n.Bytes32()
	return b[:], nil
}

// ToUint256 converts an integer value to a 256-bit unsigned integer, failing
// with ErrEncoding for negative or oversized values.
func ToUint256(v interface{}) (*uint256.Int, error) {
	switch n := v.(type) {
	case *uint256.Int:
		if n == nil {
			return nil, fmt.Errorf("%w: nil integer", ErrEncoding)
		}
		return n.Clone(), nil
	case *big.Int:
		return fromBig(n)
	case uint64:
		return uint256.NewInt(n), nil
	case uint32:
		return uint256.NewInt(uint64(n)), nil
	case uint:
		return uint256.NewInt(uint64(n)), nil
	case int:
		return fromInt64(int64(n))
	case int64:
		return fromInt64(n)
	case int32:
		return fromInt64(int64(n))
	case string:
		b, ok := new(big.Int).SetString(n, 10)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a decimal integer", ErrEncoding, n)
		}
		return fromBig(b)
	default:
		return nil, fmt.Errorf("%w: cannot encode %T as uint256", ErrEncoding, v)
	}
}

func fromInt64(n int64) (*uint256.Int, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative value %d", ErrEncoding, n)
	}
	return uint256.NewInt(uint64(n)), nil
}

func fromBig(b *big.Int) (*uint256.Int, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil integer", ErrEncoding)
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value %s", ErrEncoding, b.String())
	}
	n, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: value exceeds 2^256-1", ErrEncoding)
	}
	return n, nil
}
