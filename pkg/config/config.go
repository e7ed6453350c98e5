package config

import (
	"fmt"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for PFS server configuration
const (
	EnvPFSPort             = "PFS_PORT"
	EnvPFSChainID          = "PFS_CHAIN_ID"
	EnvPFSPersistenceType  = "PFS_PERSISTENCE_TYPE"
	EnvPFSDataPath         = "PFS_DATA_PATH"
	EnvPFSRedisAddress     = "PFS_REDIS_ADDRESS"
	EnvPFSRedisPassword    = "PFS_REDIS_PASSWORD"
	EnvPFSRedisDB          = "PFS_REDIS_DB"
	EnvPFSRedisKeyPrefix   = "PFS_REDIS_KEY_PREFIX"
	EnvPFSRateLimit        = "PFS_RATE_LIMIT"
	EnvPFSRateBurst        = "PFS_RATE_BURST"
	EnvPFSVerbose          = "PFS_VERBOSE"
	EnvFeeInfoPrivateKey   = "FEE_INFO_PRIVATE_KEY"
	EnvFeeInfoKMSKeyID     = "FEE_INFO_KMS_KEY_ID"
	EnvFeeInfoAWSRegion    = "FEE_INFO_AWS_REGION"
	EnvFeeInfoPFSURL       = "FEE_INFO_PFS_URL"
	EnvFeeInfoRPCURL       = "FEE_INFO_RPC_URL"
	EnvFeeInfoTokenNetwork = "FEE_INFO_TOKEN_NETWORK"
)

type ChainId uint

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_EthereumAnvil   ChainId = 31337
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_EthereumSepolia ChainName = "sepolia"
	ChainName_EthereumAnvil   ChainName = "devnet"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_EthereumSepolia: ChainName_EthereumSepolia,
	ChainId_EthereumAnvil:   ChainName_EthereumAnvil,
}
var ChainNameToId = map[ChainName]ChainId{
	ChainName_EthereumMainnet: ChainId_EthereumMainnet,
	ChainName_EthereumSepolia: ChainId_EthereumSepolia,
	ChainName_EthereumAnvil:   ChainId_EthereumAnvil,
}

// GetSupportedChainIDs returns all supported chain IDs
func GetSupportedChainIDs() []ChainId {
	return []ChainId{
		ChainId_EthereumMainnet,
		ChainId_EthereumSepolia,
		ChainId_EthereumAnvil,
	}
}

// GetSupportedChainIDsString returns supported chain IDs as strings for CLI help
func GetSupportedChainIDsString() string {
	return fmt.Sprintf("%d (mainnet), %d (sepolia), %d (anvil)",
		ChainId_EthereumMainnet, ChainId_EthereumSepolia, ChainId_EthereumAnvil)
}

type PersistenceType string

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

func (p PersistenceType) String() string {
	return string(p)
}

// Rate limiting defaults for fee updates received per remote peer
const (
	DefaultRateLimit = 10.0 // fee updates per second
	DefaultRateBurst = 20
)

// DefaultShutdownTimeout bounds graceful HTTP shutdown
const DefaultShutdownTimeout = 10 * time.Second

type RedisConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

type PersistenceConfig struct {
	Type     PersistenceType `json:"type" yaml:"type"`
	DataPath string          `json:"dataPath" yaml:"dataPath"`
	Redis    *RedisConfig    `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// PFSServerConfig represents the complete configuration for a PFS fee update server
type PFSServerConfig struct {
	Port int `json:"port"`

	// Chain configuration
	ChainID   ChainId   `json:"chain_id"`
	ChainName ChainName `json:"chain_name"`

	Persistence PersistenceConfig `json:"persistence"`

	// Per-remote rate limiting of fee updates
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`

	Debug   bool `json:"debug"`
	Verbose bool `json:"verbose"`
}

// Validate validates the PFS server configuration and fills in derived fields
func (c *PFSServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "port must be between 1-65535"))
	}

	chainName, exists := ChainIdToName[c.ChainID]
	if !exists {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("chain_id"), c.ChainID,
			[]string{GetSupportedChainIDsString()}))
	} else {
		c.ChainName = chainName
	}

	persistencePath := field.NewPath("persistence")
	switch c.Persistence.Type {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if c.Persistence.DataPath == "" {
			allErrors = append(allErrors, field.Required(persistencePath.Child("dataPath"), "dataPath is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		if c.Persistence.Redis == nil || c.Persistence.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(persistencePath.Child("redis", "address"), "redis address is required for redis persistence"))
		} else if c.Persistence.Redis.DB < 0 || c.Persistence.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(persistencePath.Child("redis", "db"), c.Persistence.Redis.DB, "redis db must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(persistencePath.Child("type"), c.Persistence.Type, []string{
			PersistenceTypeMemory.String(),
			PersistenceTypeBadger.String(),
			PersistenceTypeRedis.String(),
		}))
	}

	if c.RateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rate_limit"), c.RateLimit, "rate limit cannot be negative"))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rate_burst"), c.RateBurst, "rate burst must be at least 1 when rate limiting is enabled"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// RemoteSignerConfig selects the AWS KMS key used to sign fee updates
type RemoteSignerConfig struct {
	KeyId     string `json:"keyId" yaml:"keyId"`
	AWSRegion string `json:"awsRegion" yaml:"awsRegion"`
}

func (rsc *RemoteSignerConfig) Validate() error {
	var allErrors field.ErrorList
	if rsc.KeyId == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("keyId"), "keyId is required"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// LocalSignerConfig holds a hex encoded secp256k1 private key
type LocalSignerConfig struct {
	PrivateKey string `json:"privateKey" yaml:"privateKey"`
}

func (lsc *LocalSignerConfig) Validate() error {
	var allErrors field.ErrorList
	key := strings.TrimPrefix(lsc.PrivateKey, "0x")
	if key == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("privateKey"), "privateKey is required"))
	} else if len(key) != 64 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("privateKey"), "<redacted>",
			fmt.Sprintf("private key must be 32 bytes (64 hex chars), got %d chars", len(key))))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
