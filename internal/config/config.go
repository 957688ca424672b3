package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrMissingPrivateKey = errors.New("OWNER_PRIVATE_KEY is required")
	ErrMissingContract   = errors.New("CONTRACT_ADDRESS is required")
)

// DeploymentConfig represents an optional deployments.json written by the contract deploy scripts.
type DeploymentConfig struct {
	ChainID   int64  `json:"chainId"`
	Deployer  string `json:"deployer"`
	Contracts struct {
		Trustify string `json:"Trustify"`
	} `json:"contracts"`
}

// AppConfig is everything the gateway reads at startup.
type AppConfig struct {
	Service ServiceConfig
	Chain   ChainConfig
	Log     LogConfig
	Journal JournalConfig
	Auth    AuthConfig
}

type ServiceConfig struct {
	HTTPPort           int
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
}

type ChainConfig struct {
	RPCURL              string
	PrivateKey          string
	ContractAddress     string
	ReceiptPollInterval time.Duration
}

type LogConfig struct {
	Level          string
	Format         string
	File           string
	FileMaxSizeMB  int
	FileMaxBackups int
}

// JournalConfig selects the audit journal backend. Postgres wins when both are set.
type JournalConfig struct {
	Path        string
	PostgresDSN string
}

type AuthConfig struct {
	MintHMACSecret string
	HMACClockSkew  time.Duration
}

const (
	defaultRPCURL   = "http://127.0.0.1:7545"
	defaultHTTPPort = 4000
)

// Load aggregates configuration from the environment and validates the startup contract.
func Load() (*AppConfig, error) {
	contract := envOr("CONTRACT_ADDRESS", "")
	if contract == "" {
		if path := envOr("DEPLOYMENTS_PATH", ""); path != "" {
			deployCfg, err := loadDeployments(path)
			if err != nil {
				return nil, fmt.Errorf("load deployments: %w", err)
			}
			contract = deployCfg.Contracts.Trustify
		}
	}

	cfg := &AppConfig{
		Service: ServiceConfig{
			HTTPPort:           envOrInt("PORT", defaultHTTPPort),
			CORSAllowedOrigins: envOrList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			ShutdownTimeout:    time.Duration(envOrInt("SHUTDOWN_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Chain: ChainConfig{
			RPCURL:              envOr("RPC_URL", defaultRPCURL),
			PrivateKey:          envOr("OWNER_PRIVATE_KEY", ""),
			ContractAddress:     contract,
			ReceiptPollInterval: time.Duration(envOrInt("RECEIPT_POLL_INTERVAL_MS", 1000)) * time.Millisecond,
		},
		Log: LogConfig{
			Level:          envOr("LOG_LEVEL", "info"),
			Format:         envOr("LOG_FORMAT", "simple"),
			File:           envOr("LOG_FILE", ""),
			FileMaxSizeMB:  envOrInt("LOG_FILE_MAX_SIZE_MB", 100),
			FileMaxBackups: envOrInt("LOG_FILE_MAX_BACKUPS", 2),
		},
		Journal: JournalConfig{
			Path:        envOr("JOURNAL_PATH", ""),
			PostgresDSN: envOr("JOURNAL_POSTGRES_DSN", ""),
		},
		Auth: AuthConfig{
			MintHMACSecret: envOr("MINT_HMAC_SECRET", ""),
			HMACClockSkew:  time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces that every handler has a signer and a target before the server starts.
func (c *AppConfig) Validate() error {
	if c.Chain.PrivateKey == "" {
		return ErrMissingPrivateKey
	}
	if c.Chain.ContractAddress == "" {
		return ErrMissingContract
	}
	if !common.IsHexAddress(c.Chain.ContractAddress) {
		return fmt.Errorf("CONTRACT_ADDRESS is not a hex address: %q", c.Chain.ContractAddress)
	}
	if c.Chain.ReceiptPollInterval <= 0 {
		return fmt.Errorf("RECEIPT_POLL_INTERVAL_MS must be positive")
	}
	return nil
}

func loadDeployments(path string) (*DeploymentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg DeploymentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrList(key string, fallback []string) []string {
	val := envOr(key, "")
	if val == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
