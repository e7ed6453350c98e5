package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/feeinfo-go/pkg/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	envelopeFlags := []cli.Flag{
		&cli.StringFlag{
			Name:     "token-network",
			Usage:    "Token network contract address",
			EnvVars:  []string{config.EnvFeeInfoTokenNetwork},
			Required: true,
		},
		&cli.StringFlag{
			Name:     "channel",
			Usage:    "Channel identifier (decimal)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "chain-id",
			Usage: "Chain ID the fee update is valid on",
			Value: "1",
		},
		&cli.StringFlag{
			Name:  "nonce",
			Usage: "Fee update nonce, must increase with every update of the channel",
			Value: "0",
		},
		&cli.StringFlag{
			Name:  "fee",
			Usage: "Mediation fee in parts per million (10000 = 1%)",
			Value: "0",
		},
	}

	signerFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "private-key",
			Usage:   "Hex encoded secp256k1 private key",
			EnvVars: []string{config.EnvFeeInfoPrivateKey},
		},
		&cli.StringFlag{
			Name:    "kms-key-id",
			Usage:   "AWS KMS key id or alias; used instead of --private-key when set",
			EnvVars: []string{config.EnvFeeInfoKMSKeyID},
		},
		&cli.StringFlag{
			Name:    "aws-region",
			Usage:   "AWS region of the KMS key",
			EnvVars: []string{config.EnvFeeInfoAWSRegion},
		},
	}

	return &cli.App{
		Name:  "fee-info-client",
		Usage: "Build, sign, verify and submit FeeInfo messages",
		Description: `A client for channel participants publishing mediation fees to a
path-finding service. Fee updates are signed with a local key or an AWS KMS key.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "sign",
				Usage:  "Build and sign a fee update, print it as JSON",
				Flags:  concatFlags(envelopeFlags, signerFlags),
				Action: signCommand,
			},
			{
				Name:  "verify",
				Usage: "Recover the signer of a JSON fee update",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "input",
						Usage: "File containing the fee update, - for stdin",
						Value: "-",
					},
					&cli.StringFlag{
						Name:  "expected-signer",
						Usage: "Fail unless the fee update was signed by this address",
					},
				},
				Action: verifyCommand,
			},
			{
				Name:  "submit",
				Usage: "Sign a fee update and post it to a PFS",
				Flags: concatFlags(envelopeFlags, signerFlags, []cli.Flag{
					&cli.StringFlag{
						Name:     "pfs-url",
						Usage:    "Base URL of the path-finding service",
						EnvVars:  []string{config.EnvFeeInfoPFSURL},
						Required: true,
					},
				}),
				Action: submitCommand,
			},
			{
				Name:  "get",
				Usage: "Query the fee update a PFS stores for a channel and signer",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "pfs-url",
						Usage:    "Base URL of the path-finding service",
						EnvVars:  []string{config.EnvFeeInfoPFSURL},
						Required: true,
					},
					&cli.StringFlag{
						Name:     "token-network",
						Usage:    "Token network contract address",
						EnvVars:  []string{config.EnvFeeInfoTokenNetwork},
						Required: true,
					},
					&cli.StringFlag{
						Name:     "channel",
						Usage:    "Channel identifier (decimal)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "signer",
						Usage:    "Address that signed the fee update",
						Required: true,
					},
				},
				Action: getCommand,
			},
			{
				Name:   "canonical",
				Usage:  "Print the hex encoded bytes that are signed for a fee update",
				Flags:  envelopeFlags,
				Action: canonicalCommand,
			},
			{
				Name:  "decode-call",
				Usage: "Decode contract call data against an ABI",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "abi",
						Usage:    "Path to the contract ABI JSON",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "data",
						Usage:    "Hex encoded call data",
						Required: true,
					},
				},
				Action: decodeCallCommand,
			},
			{
				Name:  "events",
				Usage: "Query and decode contract events",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "rpc-url",
						Usage:   "Ethereum RPC URL",
						Value:   "http://localhost:8545",
						EnvVars: []string{config.EnvFeeInfoRPCURL},
					},
					&cli.StringFlag{
						Name:     "abi",
						Usage:    "Path to the contract ABI JSON",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "event",
						Usage:    "Event name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "address",
						Usage: "Contract address to restrict the search to",
					},
					&cli.Int64Flag{
						Name:  "from-block",
						Usage: "First block to search (default: genesis)",
						Value: -1,
					},
					&cli.Int64Flag{
						Name:  "to-block",
						Usage: "Last block to search (default: latest)",
						Value: -1,
					},
					&cli.StringSliceFlag{
						Name:  "filter",
						Usage: "Argument filter name=value, repeatable",
					},
				},
				Action: eventsCommand,
			},
		},
	}
}

func concatFlags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
