// Package msconfig parses the monitoring service's configuration, the way
// lnd's loadConfig combines command-line flags with an INI file via
// jessevdk/go-flags.
package msconfig

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultRequiredConfirmations = 1
	defaultPollIntervalSeconds   = 5
	defaultMonitorWindowRatio    = 0.8
	defaultRiskFactor            = 2
	defaultConfigFilename        = "msd.conf"
)

// ContractAddresses is the recognized contracts.* option group.
type ContractAddresses struct {
	TokenNetworkRegistry string `long:"token_network_registry" description:"address of the TokenNetworkRegistry contract"`
	MonitoringService    string `long:"monitoring_service" description:"address of the MonitoringService contract"`
	UserDeposit          string `long:"user_deposit" description:"address of the UserDeposit contract"`
}

// Config is the full set of options msd accepts on the command line or
// in an INI-style config file.
type Config struct {
	ChainRPCURL string `long:"chain_rpc_url" description:"websocket or http JSON-RPC endpoint of the EVM node to monitor" required:"true"`
	PrivateKey  string `long:"private_key" description:"hex-encoded secp256k1 private key this service signs transactions with" required:"true"`
	DBPath      string `long:"db_path" description:"path to the bbolt database file" required:"true"`

	RequiredConfirmations uint64  `long:"required_confirmations" description:"number of confirmations a block must have before its events are processed" default:"1"`
	PollIntervalSeconds   uint64  `long:"poll_interval_seconds" description:"seconds between chain polling cycles" default:"5"`
	SyncStartBlock        uint64  `long:"sync_start_block" description:"block number to start syncing from on a fresh database"`
	MinReward             string  `long:"min_reward" description:"minimum reward_amount (wei-equivalent integer) this service will act on"`
	MonitorWindowRatio    float64 `long:"monitor_window_ratio" description:"fraction of settle_timeout after close at which MONITOR fires" default:"0.8"`
	RiskFactor            uint64  `long:"risk_factor" description:"multiplier applied to reward_amount to size the required user deposit" default:"2"`

	Contracts ContractAddresses `group:"contracts" namespace:"contracts"`

	ConfigFile string `long:"configfile" description:"path to a config file"`
}

// Loaded is the parsed, validated, and type-converted form of Config, ready
// to hand to the rest of the service.
type Loaded struct {
	ChainRPCURL string
	PrivateKey  *ecdsa.PrivateKey
	DBPath      string

	RequiredConfirmations uint64
	PollInterval          time.Duration
	SyncStartBlock        uint64
	MinReward             *big.Int
	MonitorWindowRatio    float64
	RiskFactor            uint64

	TokenNetworkRegistryAddress common.Address
	MonitoringServiceAddress    common.Address
	UserDepositAddress          common.Address
}

// LoadConfig parses os.Args (and, if present, the config file named by
// -configfile, or msd.conf in the working directory) into a Loaded
// configuration, mirroring lnd's loadConfig
// two-pass parse: flags first (to find -configfile), then the ini file,
// then flags again so command-line values win.
func LoadConfig() (*Loaded, error) {
	cfg := &Config{
		RequiredConfirmations: defaultRequiredConfirmations,
		PollIntervalSeconds:   defaultPollIntervalSeconds,
		MonitorWindowRatio:    defaultMonitorWindowRatio,
		RiskFactor:            defaultRiskFactor,
	}

	preParser := flags.NewParser(cfg, flags.Default&^flags.PrintErrors&^flags.HelpFlag)
	if _, err := preParser.ParseArgs(os.Args[1:]); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return nil, err
		}
	}

	configFile := cfg.ConfigFile
	if configFile == "" {
		configFile = defaultConfigFilename
	}
	if _, err := os.Stat(configFile); err == nil {
		parser := flags.NewParser(cfg, flags.Default)
		if err := flags.NewIniParser(parser).ParseFile(configFile); err != nil {
			return nil, fmt.Errorf("unable to parse config file %s: %w", configFile, err)
		}
	}

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		return nil, err
	}

	return validate(cfg)
}

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func validate(cfg *Config) (*Loaded, error) {
	privKeyBytes, err := hexDecode(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private_key: %w", err)
	}
	privKey, err := crypto.ToECDSA(privKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid private_key: %w", err)
	}

	minReward := new(big.Int)
	if cfg.MinReward != "" {
		if _, ok := minReward.SetString(cfg.MinReward, 10); !ok {
			return nil, fmt.Errorf("invalid min_reward %q: not a base-10 integer", cfg.MinReward)
		}
	}

	if cfg.MonitorWindowRatio <= 0 || cfg.MonitorWindowRatio >= 1 {
		return nil, fmt.Errorf("monitor_window_ratio must be strictly between 0 and 1, got %f", cfg.MonitorWindowRatio)
	}

	dbPath, err := filepath.Abs(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("invalid db_path: %w", err)
	}

	return &Loaded{
		ChainRPCURL:           cfg.ChainRPCURL,
		PrivateKey:            privKey,
		DBPath:                dbPath,
		RequiredConfirmations: cfg.RequiredConfirmations,
		PollInterval:          time.Duration(cfg.PollIntervalSeconds) * time.Second,
		SyncStartBlock:        cfg.SyncStartBlock,
		MinReward:             minReward,
		MonitorWindowRatio:    cfg.MonitorWindowRatio,
		RiskFactor:            cfg.RiskFactor,

		TokenNetworkRegistryAddress: common.HexToAddress(cfg.Contracts.TokenNetworkRegistry),
		MonitoringServiceAddress:    common.HexToAddress(cfg.Contracts.MonitoringService),
		UserDepositAddress:          common.HexToAddress(cfg.Contracts.UserDeposit),
	}, nil
}
