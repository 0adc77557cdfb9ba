package shared

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
)

// OperatorConfig identifies the account that pays for ledger transactions.
type OperatorConfig struct {
	Network    string `env:"HEDERA_NETWORK" envDefault:"testnet"`
	AccountID  string `env:"HEDERA_ACCOUNT_ID"`
	PrivateKey string `env:"HEDERA_PRIVATE_KEY"`
}

// Validate checks that the operator is fully configured.
func (config OperatorConfig) Validate() error {
	if _, err := NormalizeNetwork(config.Network); err != nil {
		return err
	}
	if strings.TrimSpace(config.AccountID) == "" {
		return fmt.Errorf("HEDERA_ACCOUNT_ID is required")
	}
	if strings.TrimSpace(config.PrivateKey) == "" {
		return fmt.Errorf("HEDERA_PRIVATE_KEY is required")
	}
	return nil
}

// Configured reports whether both operator credentials are present.
func (config OperatorConfig) Configured() bool {
	return strings.TrimSpace(config.AccountID) != "" && strings.TrimSpace(config.PrivateKey) != ""
}

// ParseEnv loads a .env file when present and then fills target from the environment.
func ParseEnv(target any) error {
	LoadDotEnv()
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// OperatorConfigFromEnv reads the operator from HEDERA_* variables. Variables
// prefixed with the upper-cased network name (for example TESTNET_HEDERA_ACCOUNT_ID)
// override the unscoped ones.
func OperatorConfigFromEnv() (OperatorConfig, error) {
	var config OperatorConfig
	if err := ParseEnv(&config); err != nil {
		return OperatorConfig{}, err
	}
	network, err := NormalizeNetwork(config.Network)
	if err != nil {
		return OperatorConfig{}, err
	}
	config.Network = network

	var scoped OperatorConfig
	if err := env.ParseWithOptions(&scoped, env.Options{Prefix: strings.ToUpper(network) + "_"}); err != nil {
		return OperatorConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if strings.TrimSpace(scoped.AccountID) != "" {
		config.AccountID = scoped.AccountID
	}
	if strings.TrimSpace(scoped.PrivateKey) != "" {
		config.PrivateKey = scoped.PrivateKey
	}

	if err := config.Validate(); err != nil {
		return OperatorConfig{}, err
	}
	return config, nil
}

var dotenvLoadOnce sync.Once

// LoadDotEnv loads the nearest .env file found walking up from the working
// directory. Variables already set in the environment are never overwritten.
func LoadDotEnv() {
	dotenvLoadOnce.Do(func() {
		cwd, err := os.Getwd()
		if err != nil {
			return
		}
		if path, found := findDotEnv(cwd); found {
			loadDotEnvFile(path)
		}
	})
}

func findDotEnv(start string) (string, bool) {
	current := start
	for {
		candidate := filepath.Join(current, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

func loadDotEnvFile(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	loadedAny := false
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := parseDotEnvLine(scanner.Text())
		if !ok {
			continue
		}
		if _, alreadySet := os.LookupEnv(key); alreadySet {
			continue
		}
		if setErr := os.Setenv(key, value); setErr == nil {
			loadedAny = true
		}
	}
	return loadedAny
}

func parseDotEnvLine(raw string) (string, string, bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

	key, value, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || !isValidEnvKey(key) {
		return "", "", false
	}

	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return key, value, true
}

func isValidEnvKey(key string) bool {
	if key == "" {
		return false
	}
	for index, character := range key {
		if (character >= 'A' && character <= 'Z') ||
			(character >= 'a' && character <= 'z') ||
			(index > 0 && character >= '0' && character <= '9') ||
			character == '_' {
			continue
		}
		return false
	}
	return true
}
