package config

import (
	"fmt"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jessevdk/go-flags"
	"go.uber.org/zap/zapcore"

	"github.com/fortuna-labs/keeper/metrics"
	"github.com/fortuna-labs/keeper/util"
)

const (
	defaultLogLevel                = zapcore.InfoLevel
	defaultLogFormat               = "console"
	defaultLogDirname              = "logs"
	defaultLogFilename             = "keeperd.log"
	defaultConfigFileName          = "keeperd.conf"
	defaultDataDirname             = "data"
	defaultSecretFilename          = "secret.hex"
	defaultChainID                 = "ethereum"
	defaultGasLimit                = 500_000
	defaultMaxConcurrentDeliveries = 10
	defaultLogMaxSizeMB            = 100
	defaultLogMaxBackups           = 10
	defaultLogMaxAgeDays           = 30
)

var (
	//   C:\Users\<username>\AppData\Local\Keeperd on Windows
	//   ~/.keeperd on Linux
	//   ~/Library/Application Support/Keeperd on MacOS
	DefaultKeeperdDir = btcutil.AppDataDir("keeperd", false)

	DefaultDataDir = DataDir(DefaultKeeperdDir)
)

// Config is the main config for the keeperd daemon
type Config struct {
	LogLevel  string `long:"loglevel" description:"Logging level for all subsystems" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"panic" choice:"fatal"`
	LogFormat string `long:"logformat" description:"Format of the log output" choice:"console" choice:"json" choice:"logfmt"`

	LogMaxSizeMB  int `long:"logmaxsizemb" description:"Maximum size in megabytes of the log file before it gets rotated"`
	LogMaxBackups int `long:"logmaxbackups" description:"Maximum number of rotated log files to retain"`
	LogMaxAgeDays int `long:"logmaxagedays" description:"Maximum number of days to retain rotated log files"`

	// ChainID names the chain in seed derivation and storage keys; it is
	// not the EVM chain id
	ChainID                 string `long:"chainid" description:"The name of the chain the keeper serves, used to derive hash chain seeds"`
	ProviderAddress         string `long:"provideraddress" description:"The hex address of the randomness provider"`
	SecretFile              string `long:"secretfile" description:"Path to the file holding the hex encoded long-term provider secret"`
	DefaultGasLimit         uint32 `long:"defaultgaslimit" description:"The callback gas limit used when a request does not specify one"`
	MaxConcurrentDeliveries uint32 `long:"maxconcurrentdeliveries" description:"The maximum number of reveals delivered at the same time"`

	ChainConfig *ChainConfig `group:"chain" namespace:"chain"`

	EscalationConfig *EscalationConfig `group:"escalation" namespace:"escalation"`

	DeliveryConfig *DeliveryConfig `group:"delivery" namespace:"delivery"`

	PollerConfig *RequestPollerConfig `group:"poller" namespace:"poller"`

	DatabaseConfig *DBConfig `group:"dbconfig" namespace:"dbconfig"`

	Metrics *metrics.Config `group:"metrics" namespace:"metrics"`
}

func DefaultConfigWithHome(homePath string) Config {
	chainCfg := DefaultChainConfig()
	chainCfg.SignerKeyFile = filepath.Join(homePath, defaultSignerKeyFilename)
	escalationCfg := DefaultEscalationConfig()
	deliveryCfg := DefaultDeliveryConfig()
	pollerCfg := DefaultRequestPollerConfig()
	cfg := Config{
		LogLevel:                defaultLogLevel.String(),
		LogFormat:               defaultLogFormat,
		LogMaxSizeMB:            defaultLogMaxSizeMB,
		LogMaxBackups:           defaultLogMaxBackups,
		LogMaxAgeDays:           defaultLogMaxAgeDays,
		ChainID:                 defaultChainID,
		ProviderAddress:         common.Address{}.Hex(),
		SecretFile:              filepath.Join(homePath, defaultSecretFilename),
		DefaultGasLimit:         defaultGasLimit,
		MaxConcurrentDeliveries: defaultMaxConcurrentDeliveries,
		ChainConfig:             &chainCfg,
		EscalationConfig:        &escalationCfg,
		DeliveryConfig:          &deliveryCfg,
		PollerConfig:            &pollerCfg,
		DatabaseConfig:          DefaultDBConfigWithHomePath(homePath),
		Metrics:                 metrics.DefaultKeeperConfig(),
	}

	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	return cfg
}

func DefaultConfig() Config {
	return DefaultConfigWithHome(DefaultKeeperdDir)
}

func CfgFile(homePath string) string {
	return filepath.Join(homePath, defaultConfigFileName)
}

func LogDir(homePath string) string {
	return filepath.Join(homePath, defaultLogDirname)
}

func LogFile(homePath string) string {
	return filepath.Join(LogDir(homePath), defaultLogFilename)
}

func DataDir(homePath string) string {
	return filepath.Join(homePath, defaultDataDirname)
}

// LoadConfig parses keeperd.conf under homePath on top of the zero config
// and validates the result.
func LoadConfig(homePath string) (*Config, error) {
	cfgFile := CfgFile(homePath)
	if !util.FileExists(cfgFile) {
		return nil, fmt.Errorf("specified config file does "+
			"not exist in %s", cfgFile)
	}

	var cfg Config
	fileParser := flags.NewParser(&cfg, flags.Default)
	if err := flags.NewIniParser(fileParser).ParseFile(cfgFile); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// WriteConfig stores cfg as an ini file including defaults and comments.
func WriteConfig(cfg *Config, homePath string) error {
	fileParser := flags.NewParser(cfg, flags.Default)

	return flags.NewIniParser(fileParser).WriteFile(CfgFile(homePath), flags.IniIncludeComments|flags.IniIncludeDefaults)
}

// Provider returns the provider address. Validate guarantees it parses.
func (cfg *Config) Provider() common.Address {
	return common.HexToAddress(cfg.ProviderAddress)
}

// Validate checks the given configuration to be sane.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if cfg.ChainID == "" {
		return fmt.Errorf("chain id cannot be empty")
	}

	if !common.IsHexAddress(cfg.ProviderAddress) {
		return fmt.Errorf("invalid provider address: %q", cfg.ProviderAddress)
	}

	if cfg.DefaultGasLimit == 0 {
		return fmt.Errorf("default gas limit must be positive")
	}

	if cfg.MaxConcurrentDeliveries == 0 {
		return fmt.Errorf("max concurrent deliveries must be positive")
	}

	if cfg.LogMaxSizeMB <= 0 {
		return fmt.Errorf("log max size must be positive, got %d", cfg.LogMaxSizeMB)
	}

	if cfg.ChainConfig == nil {
		return fmt.Errorf("chain config cannot be empty")
	}
	if err := cfg.ChainConfig.Validate(); err != nil {
		return fmt.Errorf("chain configuration validation failed: %w", err)
	}

	if cfg.EscalationConfig == nil {
		return fmt.Errorf("escalation config cannot be empty")
	}
	if err := cfg.EscalationConfig.Validate(); err != nil {
		return fmt.Errorf("escalation configuration validation failed: %w", err)
	}

	if cfg.DeliveryConfig == nil {
		return fmt.Errorf("delivery config cannot be empty")
	}
	if err := cfg.DeliveryConfig.Validate(); err != nil {
		return fmt.Errorf("delivery configuration validation failed: %w", err)
	}

	if cfg.PollerConfig == nil {
		return fmt.Errorf("poller config cannot be empty")
	}
	if err := cfg.PollerConfig.Validate(); err != nil {
		return fmt.Errorf("poller configuration validation failed: %w", err)
	}

	if cfg.DatabaseConfig == nil {
		return fmt.Errorf("database config cannot be empty")
	}
	if err := cfg.DatabaseConfig.Validate(); err != nil {
		return fmt.Errorf("database configuration validation failed: %w", err)
	}

	if cfg.Metrics == nil {
		return fmt.Errorf("metrics configuration cannot be empty")
	}
	if err := cfg.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics configuration validation failed: %w", err)
	}

	return nil
}
