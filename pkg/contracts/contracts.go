package contracts

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

var (
	ErrMethodNotFound = errors.New("no method matches call data")
	ErrEventMismatch  = errors.New("log does not belong to event")
)

// ILogFilterer is the part of an Ethereum client needed to query logs.
// *ethclient.Client satisfies it.
type ILogFilterer interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// FilterOptions restricts where logs are searched.
type FilterOptions struct {
	Addresses []common.Address
	FromBlock *big.Int
	ToBlock   *big.Int
	BlockHash *common.Hash
}

// EventFilter holds the node side query for an event and the argument
// filters that can only be applied after decoding (non indexed arguments).
type EventFilter struct {
	Event       abi.Event
	Query       ethereum.FilterQuery
	DataFilters map[string][]interface{}
}

// DecodedEvent is a log parsed against its event ABI.
type DecodedEvent struct {
	Event       string
	Args        map[string]interface{}
	Address     common.Address
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// DecodedCall is a contract call identified by its method selector.
type DecodedCall struct {
	Method    string
	Signature string
	Args      []interface{}
	NamedArgs map[string]interface{}
}

// MakeFilter builds the filter parameters for event. Filters on indexed
// arguments become topics; filters on other arguments are kept as data
// filters and applied by Matches. A value list means "any of these values".
func MakeFilter(event abi.Event, argumentFilters map[string][]interface{}, opts FilterOptions) (*EventFilter, error) {
	if event.Name == "" && event.RawName == "" {
		return nil, fmt.Errorf("event ABI is empty")
	}
	if argumentFilters == nil {
		argumentFilters = make(map[string][]interface{})
	}

	known := make(map[string]abi.Argument, len(event.Inputs))
	for _, input := range event.Inputs {
		known[input.Name] = input
	}

	dataFilters := make(map[string][]interface{})
	for name, values := range argumentFilters {
		input, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("event %s has no argument %q", event.Name, name)
		}
		if !input.Indexed && len(values) > 0 {
			dataFilters[name] = values
		}
	}

	var queries [][]interface{}
	if !event.Anonymous {
		queries = append(queries, []interface{}{event.ID})
	}
	for _, input := range event.Inputs {
		if !input.Indexed {
			continue
		}
		queries = append(queries, argumentFilters[input.Name])
	}

	topics, err := abi.MakeTopics(queries...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build topics for event %s", event.Name)
	}
	topics = trimWildcardTopics(topics)

	query := ethereum.FilterQuery{
		BlockHash: opts.BlockHash,
		Addresses: opts.Addresses,
		Topics:    topics,
	}
	if opts.BlockHash == nil {
		query.FromBlock = opts.FromBlock
		query.ToBlock = opts.ToBlock
	}

	return &EventFilter{
		Event:       event,
		Query:       query,
		DataFilters: dataFilters,
	}, nil
}

func trimWildcardTopics(topics [][]common.Hash) [][]common.Hash {
	end := len(topics)
	for end > 0 && len(topics[end-1]) == 0 {
		end--
	}
	return topics[:end]
}

// Matches reports whether a decoded event satisfies every data filter.
func (f *EventFilter) Matches(decoded *DecodedEvent) bool {
	for name, values := range f.DataFilters {
		actual, ok := decoded.Args[name]
		if !ok {
			return false
		}
		matched := false
		for _, v := range values {
			if argEqual(actual, v) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func argEqual(actual, expected interface{}) bool {
	if a, ok := actual.(*big.Int); ok {
		switch e := expected.(type) {
		case *big.Int:
			return a.Cmp(e) == 0
		case int:
			return a.Cmp(big.NewInt(int64(e))) == 0
		case int64:
			return a.Cmp(big.NewInt(e)) == 0
		case uint64:
			return a.Cmp(new(big.Int).SetUint64(e)) == 0
		}
	}
	return reflect.DeepEqual(actual, expected)
}

// Apply runs the query and returns the decoded events passing the data filters.
func (f *EventFilter) Apply(ctx context.Context, filterer ILogFilterer) ([]*DecodedEvent, error) {
	logs, err := filterer.FilterLogs(ctx, f.Query)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to filter logs for event %s", f.Event.Name)
	}

	events := make([]*DecodedEvent, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		decoded, err := ParseLog(f.Event, l)
		if err != nil {
			return nil, err
		}
		if f.Matches(decoded) {
			events = append(events, decoded)
		}
	}
	return events, nil
}

// FilterEvents builds a filter for event and applies it in one step.
func FilterEvents(
	ctx context.Context,
	filterer ILogFilterer,
	event abi.Event,
	argumentFilters map[string][]interface{},
	opts FilterOptions,
) ([]*DecodedEvent, error) {
	filter, err := MakeFilter(event, argumentFilters, opts)
	if err != nil {
		return nil, err
	}
	return filter.Apply(ctx, filterer)
}

// ParseLog decodes the indexed and non indexed arguments of log.
func ParseLog(event abi.Event, log types.Log) (*DecodedEvent, error) {
	topics := log.Topics
	if !event.Anonymous {
		if len(topics) == 0 || topics[0] != event.ID {
			return nil, errors.Wrapf(ErrEventMismatch, "event %s", event.Name)
		}
		topics = topics[1:]
	}

	args := make(map[string]interface{})
	if len(log.Data) > 0 {
		if err := event.Inputs.UnpackIntoMap(args, log.Data); err != nil {
			return nil, errors.Wrapf(err, "failed to unpack data of event %s", event.Name)
		}
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(indexed) != len(topics) {
		return nil, errors.Wrapf(ErrEventMismatch, "event %s expects %d indexed topics, log has %d", event.Name, len(indexed), len(topics))
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, topics); err != nil {
		return nil, errors.Wrapf(err, "failed to parse topics of event %s", event.Name)
	}

	return &DecodedEvent{
		Event:       event.Name,
		Args:        args,
		Address:     log.Address,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
	}, nil
}

// DecodeContractCall identifies the method invoked by callData from its 4
// byte selector and decodes the remaining bytes as the method arguments.
func DecodeContractCall(contractABI abi.ABI, callData string) (*DecodedCall, error) {
	if !strings.HasPrefix(callData, "0x") && !strings.HasPrefix(callData, "0X") {
		callData = "0x" + callData
	}
	data, err := hexutil.Decode(callData)
	if err != nil {
		return nil, errors.Wrap(err, "invalid call data")
	}
	if len(data) < 4 {
		return nil, errors.Wrapf(ErrMethodNotFound, "call data is %d bytes, selector needs 4", len(data))
	}

	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		return nil, errors.Wrapf(ErrMethodNotFound, "selector %s", hexutil.Encode(data[:4]))
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode arguments of %s", method.Sig)
	}

	named := make(map[string]interface{}, len(args))
	if err := method.Inputs.UnpackIntoMap(named, data[4:]); err != nil {
		return nil, errors.Wrapf(err, "failed to decode arguments of %s", method.Sig)
	}

	return &DecodedCall{
		Method:    method.RawName,
		Signature: method.Sig,
		Args:      args,
		NamedArgs: named,
	}, nil
}

// LoadABI parses a contract ABI JSON description.
func LoadABI(abiJSON string) (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return abi.ABI{}, errors.Wrap(err, "failed to parse contract ABI")
	}
	return parsed, nil
}
