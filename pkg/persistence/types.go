package persistence

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/Layr-Labs/feeinfo-go/pkg/messages"
	"github.com/ethereum/go-ethereum/common"
)

var ErrClosed = errors.New("persistence layer is closed")

// FeeInfoKey identifies the fee update stream of one channel participant.
type FeeInfoKey struct {
	TokenNetworkAddress common.Address
	ChannelIdentifier   *big.Int
	Signer              common.Address
}

// NewFeeInfoKey returns the key a signed fee update is stored under.
func NewFeeInfoKey(fi *messages.FeeInfo, signer common.Address) FeeInfoKey {
	return FeeInfoKey{
		TokenNetworkAddress: fi.TokenNetworkAddress(),
		ChannelIdentifier:   fi.ChannelIdentifier(),
		Signer:              signer,
	}
}

// TokenNetworkPrefix is the storage key prefix shared by every record of a token network.
func TokenNetworkPrefix(tokenNetworkAddress common.Address) string {
	return strings.ToLower(tokenNetworkAddress.Hex()) + ":"
}

// String returns the storage key: <token network>:<channel>:<signer>.
func (k FeeInfoKey) String() string {
	channel := "0"
	if k.ChannelIdentifier != nil {
		channel = k.ChannelIdentifier.String()
	}
	return fmt.Sprintf("%s%s:%s", TokenNetworkPrefix(k.TokenNetworkAddress), channel, strings.ToLower(k.Signer.Hex()))
}

// FeeInfoRecord is a verified fee update as accepted by the registry.
type FeeInfoRecord struct {
	FeeInfo    *messages.FeeInfo `json:"fee_info"`
	Signer     common.Address    `json:"signer"`
	ReceivedAt int64             `json:"received_at"`
}

func (r *FeeInfoRecord) Key() FeeInfoKey {
	return NewFeeInfoKey(r.FeeInfo, r.Signer)
}

// SortRecords orders records by channel identifier, then signer.
func SortRecords(records []*FeeInfoRecord) {
	sort.Slice(records, func(i, j int) bool {
		ci := records[i].FeeInfo.ChannelIdentifier()
		cj := records[j].FeeInfo.ChannelIdentifier()
		if c := ci.Cmp(cj); c != 0 {
			return c < 0
		}
		return bytes.Compare(records[i].Signer.Bytes(), records[j].Signer.Bytes()) < 0
	})
}
