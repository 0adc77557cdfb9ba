package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashgraph-online/poetry-registry-go/pkg/command"
	"github.com/hashgraph-online/poetry-registry-go/pkg/shared"
)

// config is read from the environment (and a .env file when present).
type config struct {
	DBPath        string        `env:"POETRY_DB_PATH" envDefault:"poetry.db"`
	Account       string        `env:"POETRY_ACCOUNT"`
	PrivateKey    string        `env:"POETRY_PRIVATE_KEY"`
	Deployer      string        `env:"POETRY_DEPLOYER"`
	Name          string        `env:"POETRY_NAME" envDefault:"PoetryNFT"`
	Symbol        string        `env:"POETRY_SYMBOL" envDefault:"POEM"`
	LogLevel      string        `env:"POETRY_LOG_LEVEL" envDefault:"info"`
	LogFormat     string        `env:"POETRY_LOG_FORMAT" envDefault:"text"`
	AnchorTopicID string        `env:"POETRY_ANCHOR_TOPIC_ID"`
	AnchorTimeout time.Duration `env:"POETRY_ANCHOR_TIMEOUT" envDefault:"30s"`
	MirrorBaseURL string        `env:"MIRROR_BASE_URL"`
	MirrorAPIKey  string        `env:"MIRROR_API_KEY"`
	Network       string        `env:"HEDERA_NETWORK" envDefault:"testnet"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := shared.ParseEnv(&cfg); err != nil {
		return config{}, err
	}
	network, err := shared.NormalizeNetwork(cfg.Network)
	if err != nil {
		return config{}, err
	}
	cfg.Network = network
	return cfg, nil
}

// caller resolves the identity commands run as. A signing key wins over a
// plain account so that local and signed commands agree on the caller.
func (cfg config) caller() (string, error) {
	if strings.TrimSpace(cfg.PrivateKey) != "" {
		return command.AddressFromPrivateKey(cfg.PrivateKey)
	}
	if account := strings.TrimSpace(cfg.Account); account != "" {
		return account, nil
	}
	return "", fmt.Errorf("POETRY_ACCOUNT or POETRY_PRIVATE_KEY is required")
}

// deployer is the admin used when the store is created.
func (cfg config) deployer() (string, error) {
	if deployer := strings.TrimSpace(cfg.Deployer); deployer != "" {
		return deployer, nil
	}
	caller, err := cfg.caller()
	if err != nil {
		return "", fmt.Errorf("POETRY_DEPLOYER is required to initialize a new registry: %w", err)
	}
	return caller, nil
}

func (cfg config) anchoring() bool {
	return strings.TrimSpace(cfg.AnchorTopicID) != ""
}
