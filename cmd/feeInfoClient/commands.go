package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	awsConfig "github.com/Layr-Labs/feeinfo-go/internal/aws"
	"github.com/Layr-Labs/feeinfo-go/pkg/config"
	"github.com/Layr-Labs/feeinfo-go/pkg/contracts"
	"github.com/Layr-Labs/feeinfo-go/pkg/logger"
	"github.com/Layr-Labs/feeinfo-go/pkg/messages"
	"github.com/Layr-Labs/feeinfo-go/pkg/persistence"
	"github.com/Layr-Labs/feeinfo-go/pkg/signing"
	"github.com/Layr-Labs/feeinfo-go/pkg/transport"
	"github.com/Layr-Labs/feeinfo-go/pkg/transportSigner"
	"github.com/Layr-Labs/feeinfo-go/pkg/transportSigner/awsKmsTransportSigner"
	"github.com/Layr-Labs/feeinfo-go/pkg/transportSigner/inMemoryTransportSigner"
)

// VerifyResult is printed by the verify command
type VerifyResult struct {
	Signed bool            `json:"signed"`
	Signer *common.Address `json:"signer,omitempty"`
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}

func parseBigInt(name, value string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("--%s must be a decimal integer, got %q", name, value)
	}
	return n, nil
}

// feeInfoFromFlags builds an unsigned fee update from the envelope flags
func feeInfoFromFlags(c *cli.Context) (*messages.FeeInfo, error) {
	values := make(map[string]*big.Int, 4)
	for _, name := range []string{"channel", "chain-id", "nonce", "fee"} {
		n, err := parseBigInt(name, c.String(name))
		if err != nil {
			return nil, err
		}
		values[name] = n
	}

	return messages.NewFeeInfo(
		c.String("token-network"),
		values["channel"],
		values["chain-id"],
		values["nonce"],
		values["fee"],
		nil,
	)
}

// newSigner selects the KMS signer when a key id is configured, the local key otherwise
func newSigner(c *cli.Context, l *zap.Logger) (transportSigner.IMessageSigner, error) {
	if c.String("kms-key-id") != "" {
		remote := &config.RemoteSignerConfig{
			KeyId:     c.String("kms-key-id"),
			AWSRegion: c.String("aws-region"),
		}
		if err := remote.Validate(); err != nil {
			return nil, fmt.Errorf("invalid kms signer configuration: %w", err)
		}

		awsCfg, err := awsConfig.LoadAWSConfig(c.Context, remote.AWSRegion)
		if err != nil {
			return nil, err
		}
		if identity, err := awsConfig.GetCallerIdentity(c.Context, awsCfg); err == nil {
			l.Sugar().Debugw("Using AWS identity", "arn", valueOrEmpty(identity.Arn))
		}
		return awsKmsTransportSigner.NewAWSKMSTransportSignerFromConfig(c.Context, awsCfg, remote.KeyId, l)
	}

	local := &config.LocalSignerConfig{PrivateKey: c.String("private-key")}
	if err := local.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signer configuration: %w", err)
	}
	return inMemoryTransportSigner.NewECDSAInMemoryTransportSigner(local.PrivateKey, l)
}

func valueOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func signedFeeInfoFromFlags(c *cli.Context, l *zap.Logger) (*messages.FeeInfo, error) {
	fi, err := feeInfoFromFlags(c)
	if err != nil {
		return nil, err
	}

	signer, err := newSigner(c, l)
	if err != nil {
		return nil, err
	}

	if err := fi.Sign(signer); err != nil {
		return nil, err
	}
	return fi, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func signCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}

	fi, err := signedFeeInfoFromFlags(c, l)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, fi)
}

func verifyCommand(c *cli.Context) error {
	data, err := readInput(c.String("input"), c.App.Reader)
	if err != nil {
		return err
	}

	fi, err := messages.UnmarshalFeeInfo(data)
	if err != nil {
		return fmt.Errorf("invalid fee update: %w", err)
	}

	signer, err := fi.Signer()
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}

	if expected := c.String("expected-signer"); expected != "" {
		if !common.IsHexAddress(expected) {
			return fmt.Errorf("--expected-signer must be a hex address")
		}
		if signer == nil {
			return fmt.Errorf("fee update is not signed")
		}
		payload, err := fi.CanonicalBytes()
		if err != nil {
			return err
		}
		if err := signing.VerifySigner(fi.Signature(), payload, common.HexToAddress(expected)); err != nil {
			return err
		}
	}

	return printJSON(c.App.Writer, VerifyResult{Signed: signer != nil, Signer: signer})
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		if stdin == nil {
			stdin = os.Stdin
		}
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func submitCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}

	fi, err := signedFeeInfoFromFlags(c, l)
	if err != nil {
		return err
	}

	result, err := transport.NewClient(l).SubmitFeeInfo(c.Context, c.String("pfs-url"), fi)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, result)
}

func getCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}

	if !common.IsHexAddress(c.String("token-network")) {
		return fmt.Errorf("--token-network must be a hex address")
	}
	if !common.IsHexAddress(c.String("signer")) {
		return fmt.Errorf("--signer must be a hex address")
	}
	channel, err := parseBigInt("channel", c.String("channel"))
	if err != nil {
		return err
	}

	record, err := transport.NewClient(l).GetFeeInfo(c.Context, c.String("pfs-url"), persistence.FeeInfoKey{
		TokenNetworkAddress: common.HexToAddress(c.String("token-network")),
		ChannelIdentifier:   channel,
		Signer:              common.HexToAddress(c.String("signer")),
	})
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("no fee update stored for channel %s", channel)
	}
	return printJSON(c.App.Writer, record)
}

func canonicalCommand(c *cli.Context) error {
	fi, err := feeInfoFromFlags(c)
	if err != nil {
		return err
	}

	packed, err := fi.CanonicalBytes()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, hexutil.Encode(packed))
	return err
}

func loadABIFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read ABI %s: %w", path, err)
	}
	return string(data), nil
}

func decodeCallCommand(c *cli.Context) error {
	abiJSON, err := loadABIFile(c.String("abi"))
	if err != nil {
		return err
	}
	parsed, err := contracts.LoadABI(abiJSON)
	if err != nil {
		return err
	}

	decoded, err := contracts.DecodeContractCall(parsed, c.String("data"))
	if err != nil {
		return err
	}

	return printJSON(c.App.Writer, map[string]interface{}{
		"method":    decoded.Method,
		"signature": decoded.Signature,
		"args":      decoded.NamedArgs,
	})
}

func eventsCommand(c *cli.Context) error {
	abiJSON, err := loadABIFile(c.String("abi"))
	if err != nil {
		return err
	}
	parsed, err := contracts.LoadABI(abiJSON)
	if err != nil {
		return err
	}

	event, ok := parsed.Events[c.String("event")]
	if !ok {
		return fmt.Errorf("ABI has no event %q", c.String("event"))
	}

	opts := contracts.FilterOptions{}
	if addr := c.String("address"); addr != "" {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("--address must be a hex address")
		}
		opts.Addresses = []common.Address{common.HexToAddress(addr)}
	}
	if from := c.Int64("from-block"); from >= 0 {
		opts.FromBlock = big.NewInt(from)
	}
	if to := c.Int64("to-block"); to >= 0 {
		opts.ToBlock = big.NewInt(to)
	}

	filters, err := parseArgumentFilters(c.StringSlice("filter"))
	if err != nil {
		return err
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	client, err := ethclient.DialContext(ctx, c.String("rpc-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.String("rpc-url"), err)
	}
	defer client.Close()

	events, err := contracts.FilterEvents(ctx, client, event, filters, opts)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, events)
}

// parseArgumentFilters turns name=value pairs into event argument filters.
// Values that look like addresses or decimal integers are converted so they
// compare equal to decoded arguments.
func parseArgumentFilters(pairs []string) (map[string][]interface{}, error) {
	filters := make(map[string][]interface{})
	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("filter %q must be name=value", pair)
		}

		var parsed interface{} = value
		if common.IsHexAddress(value) {
			parsed = common.HexToAddress(value)
		} else if n, ok := new(big.Int).SetString(value, 10); ok {
			parsed = n
		}
		filters[name] = append(filters[name], parsed)
	}
	return filters, nil
}
