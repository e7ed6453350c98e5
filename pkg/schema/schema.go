package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Keys of the structured fee update record.
const (
	KeyTokenNetworkAddress = "token_network_address"
	KeyChannelIdentifier   = "channel_identifier"
	KeyChainID             = "chain_id"
	KeyNonce               = "nonce"
	KeyPercentageFee       = "percentage_fee"
	KeySignature           = "signature"
)

// FeeInfoKeys lists every key of the record in wire order.
var FeeInfoKeys = []string{
	KeyTokenNetworkAddress,
	KeyChannelIdentifier,
	KeyChainID,
	KeyNonce,
	KeyPercentageFee,
	KeySignature,
}

// FeeInfoJSONSchema is the JSON schema equivalent of ValidateFeeInfo, served
// to peers so they can check records before sending them.
const FeeInfoJSONSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "FeeInfo",
  "type": "object",
  "required": ["token_network_address", "channel_identifier", "chain_id", "nonce", "percentage_fee", "signature"],
  "additionalProperties": false,
  "properties": {
    "token_network_address": {"type": "string", "pattern": "^(0x)?[0-9a-fA-F]{40}$"},
    "channel_identifier": {"type": "integer", "minimum": 0},
    "chain_id": {"type": "integer", "minimum": 1},
    "nonce": {"type": "integer", "minimum": 0},
    "percentage_fee": {"type": "integer", "minimum": 0},
    "signature": {"type": ["string", "null"], "pattern": "^0x[0-9a-fA-F]{130}$"}
  }
}`

const signatureHexLength = 130

var (
	addressPattern   = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{40}$`)
	signaturePattern = regexp.MustCompile(`^0x[0-9a-fA-F]{130}$`)

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation error")
)

// ValidationError carries every rule a record violated.
type ValidationError struct {
	Errors field.ErrorList
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Errors.ToAggregate().Error())
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Fields returns the offending field names, sorted and deduplicated.
func (e *ValidationError) Fields() []string {
	seen := make(map[string]struct{}, len(e.Errors))
	out := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		if _, ok := seen[fe.Field]; ok {
			continue
		}
		seen[fe.Field] = struct{}{}
		out = append(out, fe.Field)
	}
	sort.Strings(out)
	return out
}

// FeeInfoFields is a record that passed validation, with every value
// converted to its typed form.
type FeeInfoFields struct {
	TokenNetworkAddress string
	ChannelIdentifier   *big.Int
	ChainID             *big.Int
	Nonce               *big.Int
	PercentageFee       *big.Int
	Signature           []byte
}

// ValidateFeeInfo checks record against the fee update schema. Either every
// rule holds and the typed fields are returned, or a *ValidationError lists
// all violations.
func ValidateFeeInfo(record map[string]interface{}) (*FeeInfoFields, error) {
	var allErrors field.ErrorList
	if record == nil {
		allErrors = append(allErrors, field.Required(field.NewPath("record"), "record is required"))
		return nil, &ValidationError{Errors: allErrors}
	}

	out := &FeeInfoFields{}

	if raw, ok := record[KeyTokenNetworkAddress]; !ok {
		allErrors = append(allErrors, field.Required(field.NewPath(KeyTokenNetworkAddress), "token_network_address is required"))
	} else if s, isString := raw.(string); !isString {
		allErrors = append(allErrors, field.Invalid(field.NewPath(KeyTokenNetworkAddress), raw, "must be a string"))
	} else if !addressPattern.MatchString(s) {
		allErrors = append(allErrors, field.Invalid(field.NewPath(KeyTokenNetworkAddress), s, "must match "+addressPattern.String()))
	} else {
		out.TokenNetworkAddress = s
	}

	integerFields := []struct {
		key     string
		minimum int64
		target  **big.Int
	}{
		{KeyChannelIdentifier, 0, &out.ChannelIdentifier},
		{KeyChainID, 1, &out.ChainID},
		{KeyNonce, 0, &out.Nonce},
		{KeyPercentageFee, 0, &out.PercentageFee},
	}
	for _, f := range integerFields {
		path := field.NewPath(f.key)
		raw, ok := record[f.key]
		if !ok {
			allErrors = append(allErrors, field.Required(path, f.key+" is required"))
			continue
		}
		n, err := toInteger(raw)
		if err != nil {
			allErrors = append(allErrors, field.Invalid(path, raw, err.Error()))
			continue
		}
		if n.Cmp(big.NewInt(f.minimum)) < 0 {
			allErrors = append(allErrors, field.Invalid(path, n.String(), fmt.Sprintf("must be greater than or equal to %d", f.minimum)))
			continue
		}
		*f.target = n
	}

	if raw, ok := record[KeySignature]; !ok {
		allErrors = append(allErrors, field.Required(field.NewPath(KeySignature), "signature is required (may be null)"))
	} else if raw != nil {
		s, isString := raw.(string)
		switch {
		case !isString:
			allErrors = append(allErrors, field.Invalid(field.NewPath(KeySignature), raw, "must be a hex string or null"))
		case !signaturePattern.MatchString(s):
			allErrors = append(allErrors, field.Invalid(field.NewPath(KeySignature), s,
				fmt.Sprintf("must be 0x followed by %d hex characters", signatureHexLength)))
		default:
			sig, err := hexutil.Decode(s)
			if err != nil {
				allErrors = append(allErrors, field.Invalid(field.NewPath(KeySignature), s, err.Error()))
			} else {
				out.Signature = sig
			}
		}
	}

	extra := make([]string, 0)
	for key := range record {
		if !isKnownKey(key) {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		allErrors = append(allErrors, field.Forbidden(field.NewPath(key), "additional properties are not allowed"))
	}

	if len(allErrors) > 0 {
		return nil, &ValidationError{Errors: allErrors}
	}
	return out, nil
}

func isKnownKey(key string) bool {
	for _, k := range FeeInfoKeys {
		if k == key {
			return true
		}
	}
	return false
}

// toInteger accepts the integer representations a decoded record can carry:
// JSON numbers, Go integers, big integers and decimal strings.
func toInteger(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, fmt.Errorf("must be an integer")
		}
		return new(big.Int).Set(n), nil
	case json.Number:
		return parseDecimal(n.String())
	case string:
		return parseDecimal(n)
	case int:
		return big.NewInt(int64(n)), nil
	case int8:
		return big.NewInt(int64(n)), nil
	case int16:
		return big.NewInt(int64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return nil, fmt.Errorf("must be an integer")
		}
		i, _ := new(big.Float).SetFloat64(n).Int(nil)
		return i, nil
	default:
		return nil, fmt.Errorf("must be an integer")
	}
}

func parseDecimal(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("must be an integer")
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("must be an integer")
	}
	return n, nil
}
