package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalFeeInfoRecord serializes a FeeInfoRecord to JSON bytes.
// The fee update itself uses its wire form.
func MarshalFeeInfoRecord(record *FeeInfoRecord) ([]byte, error) {
	if record == nil || record.FeeInfo == nil {
		return nil, fmt.Errorf("cannot marshal nil FeeInfoRecord")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal FeeInfoRecord to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalFeeInfoRecord deserializes a FeeInfoRecord from JSON bytes.
// The embedded fee update is validated like any received message.
func UnmarshalFeeInfoRecord(data []byte) (*FeeInfoRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var record FeeInfoRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to FeeInfoRecord: %w", err)
	}
	if record.FeeInfo == nil {
		return nil, fmt.Errorf("FeeInfoRecord has no fee_info")
	}

	return &record, nil
}
