package config

import (
	"fmt"
	"os"

	ouroboros "github.com/blinklabs-io/gouroboros"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Logging      LoggingConfig        `yaml:"logging"`
	Debug        DebugConfig          `yaml:"debug"`
	Storage      StorageConfig        `yaml:"storage"`
	Indexer      IndexerConfig        `yaml:"indexer"`
	Submit       SubmitConfig         `yaml:"submit"`
	Assembler    AssemblerConfig      `yaml:"assembler"`
	Wallet       WalletConfig         `yaml:"wallet"`
	Machine      VendingMachineConfig `yaml:"machine"`
	MintPolicy   MintPolicyConfig     `yaml:"mintPolicy"`
	Whitelist    WhitelistConfig      `yaml:"whitelist"`
	Network      string               `yaml:"network" envconfig:"NETWORK"`
	NetworkMagic uint32
}

type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LOGGING_LEVEL"`
}

type DebugConfig struct {
	ListenAddress string `yaml:"address" envconfig:"DEBUG_ADDRESS"`
	ListenPort    uint   `yaml:"port" envconfig:"DEBUG_PORT"`
}

// IndexerConfig configures the Blockfrost-compatible HTTP indexer
// (spec §6 "Indexer protocol").
type IndexerConfig struct {
	BaseUrl        string `yaml:"baseUrl"        envconfig:"INDEXER_BASE_URL"`
	ProjectToken   string `yaml:"projectToken"   envconfig:"BLOCKFROST_PROJECT_ID"`
	RequestTimeout int    `yaml:"requestTimeoutSeconds" envconfig:"INDEXER_REQUEST_TIMEOUT_SECONDS"`
}

// SubmitConfig configures how cmd/tx-assembler submits a signed
// transaction: either a Blockfrost-compatible submit URL, or a direct
// NtN connection to a set of topology hosts.
type SubmitConfig struct {
	Url   string            `yaml:"url"  envconfig:"SUBMIT_URL"`
	Hosts []SubmitConfigHost `yaml:"hosts"`
}

type SubmitConfigHost struct {
	Address string `yaml:"address"`
	Port    uint   `yaml:"port"`
}

// AssemblerConfig configures the cmd/tx-assembler subprocess
// internal/assembler.SubprocessClient invokes per vend attempt.
type AssemblerConfig struct {
	BinaryPath string `yaml:"binaryPath" envconfig:"ASSEMBLER_BINARY_PATH"`
}

type StorageConfig struct {
	Directory string `yaml:"dir" envconfig:"STORAGE_DIR"`
}

type WalletConfig struct {
	Mnemonic       string `yaml:"mnemonic"       envconfig:"MNEMONIC"`
	PaymentKeyPath string `yaml:"paymentKeyPath" envconfig:"PAYMENT_KEY_PATH"`
}

// VendingMachineConfig mirrors spec §3 "Vending Machine" immutable fields.
type VendingMachineConfig struct {
	PaymentAddress string `yaml:"paymentAddress" envconfig:"PAYMENT_ADDRESS"`
	ProfitAddress  string `yaml:"profitAddress"  envconfig:"PROFIT_ADDRESS"`
	VendRandomly   bool   `yaml:"vendRandomly"   envconfig:"VEND_RANDOMLY"`
	SingleVendCap  int    `yaml:"singleVendCap"  envconfig:"SINGLE_VEND_CAP"`
	PollInterval   int    `yaml:"pollIntervalSeconds" envconfig:"POLL_INTERVAL_SECONDS"`
	Mainnet        bool   `yaml:"mainnet" envconfig:"MAINNET"`
}

// MintPolicyConfig mirrors spec §3 "Mint Policy".
type MintPolicyConfig struct {
	PolicyId        string `yaml:"policyId"        envconfig:"POLICY_ID"`
	MinimumPrice    uint64 `yaml:"minimumPrice"    envconfig:"MINIMUM_PRICE"`
	Donation        uint64 `yaml:"donation"        envconfig:"DONATION"`
	MetadataDir     string `yaml:"metadataDir"     envconfig:"METADATA_DIR"`
	LockedDir       string `yaml:"lockedDir"       envconfig:"LOCKED_DIR"`
	ScriptFile      string `yaml:"scriptFile"      envconfig:"SCRIPT_FILE"`
	SigningKeyPath  string `yaml:"signingKeyPath"  envconfig:"SIGNING_KEY_PATH"`
	DonationAddress string `yaml:"donationAddress" envconfig:"DONATION_ADDRESS"`
}

// WhitelistConfig mirrors spec §3/§4.C whitelist directories and variant.
type WhitelistConfig struct {
	// Variant is one of "single-use", "unlimited", "none".
	Variant      string `yaml:"variant"      envconfig:"WHITELIST_VARIANT"`
	PolicyId     string `yaml:"policyId"     envconfig:"WHITELIST_POLICY_ID"`
	WhitelistDir string `yaml:"whitelistDir" envconfig:"WHITELIST_DIR"`
	ConsumedDir  string `yaml:"consumedDir"  envconfig:"CONSUMED_DIR"`
}

// Singleton config instance with default values
var globalConfig = &Config{
	Network: "mainnet",
	Logging: LoggingConfig{
		Level: "info",
	},
	Debug: DebugConfig{
		ListenAddress: "localhost",
		ListenPort:    0,
	},
	Storage: StorageConfig{
		Directory: "./.cnftvend",
	},
	Indexer: IndexerConfig{
		RequestTimeout: 15,
	},
	Machine: VendingMachineConfig{
		SingleVendCap: 10,
		PollInterval:  30,
	},
	Whitelist: WhitelistConfig{
		Variant: "none",
	},
	Assembler: AssemblerConfig{
		BinaryPath: "./tx-assembler",
	},
}

func Load(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %s", err)
		}
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %s", err)
		}
	}
	// Load config values from environment variables
	// We use "dummy" as the app name here to (mostly) prevent picking up env
	// vars that we hadn't explicitly specified in annotations above
	err := envconfig.Process("dummy", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %s", err)
	}
	// Populate network magic from network name
	network := ouroboros.NetworkByName(globalConfig.Network)
	if network == ouroboros.NetworkInvalid {
		return nil, fmt.Errorf("unknown network name: %s", globalConfig.Network)
	}
	globalConfig.NetworkMagic = network.NetworkMagic
	return globalConfig, nil
}

// Return global config instance
func GetConfig() *Config {
	return globalConfig
}
