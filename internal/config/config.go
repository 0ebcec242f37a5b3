package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	defaultLedgerName = "holdings.json"
	defaultDBName     = "cryptofolio.db"
	defaultCurrency   = "usd"
)

// UserConfig is the optional on-disk configuration. Every field has a
// working default; the file only needs to exist when overriding one.
type UserConfig struct {
	LedgerName    string `json:"ledger_name"`
	DBName        string `json:"db_name"`
	DataDir       string `json:"data_dir"`
	Currency      string `json:"currency"`
	PriceBaseURL  string `json:"price_base_url"`
	SymbolBaseURL string `json:"symbol_base_url"`
}

var runtimeDataDir string
var runtimePort = 8600

// SetRuntimeDataDir overrides the data directory for this process, taking
// precedence over config file and environment.
func SetRuntimeDataDir(dir string) {
	runtimeDataDir = dir
}

// SetRuntimePort overrides the HTTP listen port for this process.
func SetRuntimePort(port int) {
	if port > 0 {
		runtimePort = port
	}
}

// GetRuntimePort returns the configured HTTP listen port.
func GetRuntimePort() int {
	return runtimePort
}

func appConfigDir() (string, error) {
	if runtime.GOOS == "darwin" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "Cryptofolio"), nil
	}
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "Cryptofolio"), nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "cryptofolio"), nil
	}
	return filepath.Join(configDir, "cryptofolio"), nil
}

func appConfigPath() (string, error) {
	dir, err := appConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadUserConfig reads the config file, returning defaults when it is
// absent or unreadable.
func LoadUserConfig() UserConfig {
	defaults := UserConfig{
		LedgerName: defaultLedgerName,
		DBName:     defaultDBName,
		Currency:   defaultCurrency,
	}
	configPath, err := appConfigPath()
	if err != nil {
		return defaults
	}
	file, err := os.Open(configPath)
	if err != nil {
		return defaults
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&defaults); err != nil {
		return defaults
	}
	if defaults.LedgerName == "" {
		defaults.LedgerName = defaultLedgerName
	}
	if defaults.DBName == "" {
		defaults.DBName = defaultDBName
	}
	if defaults.Currency == "" {
		defaults.Currency = defaultCurrency
	}
	return defaults
}

// SaveUserConfig writes the config file to the platform config directory.
func SaveUserConfig(cfg UserConfig) error {
	path, err := appConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// GetDataDir resolves the directory holding the ledger, database and
// logs. Precedence: runtime flag, CRYPTOFOLIO_DATA_DIR, config file,
// platform config directory.
func GetDataDir() (string, error) {
	if runtimeDataDir != "" {
		if err := os.MkdirAll(runtimeDataDir, 0o755); err != nil {
			return "", err
		}
		return runtimeDataDir, nil
	}
	if envDir := os.Getenv("CRYPTOFOLIO_DATA_DIR"); envDir != "" {
		if err := os.MkdirAll(envDir, 0o755); err != nil {
			return "", err
		}
		return envDir, nil
	}
	cfg := LoadUserConfig()
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return "", err
		}
		return cfg.DataDir, nil
	}
	defaultDir, err := appConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(defaultDir, 0o755); err != nil {
		return "", err
	}
	return defaultDir, nil
}

// GetLedgerPath resolves the ledger snapshot path.
func GetLedgerPath() (string, error) {
	if envPath := os.Getenv("CRYPTOFOLIO_LEDGER_PATH"); envPath != "" {
		return envPath, nil
	}
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, LoadUserConfig().LedgerName), nil
}

// GetDBPath resolves the SQLite database path.
func GetDBPath() (string, error) {
	if envPath := os.Getenv("CRYPTOFOLIO_DB_PATH"); envPath != "" {
		return envPath, nil
	}
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, LoadUserConfig().DBName), nil
}

// GetCurrency resolves the quote currency, preferring the environment.
func GetCurrency() string {
	if env := strings.TrimSpace(os.Getenv("CRYPTOFOLIO_CURRENCY")); env != "" {
		return strings.ToLower(env)
	}
	return LoadUserConfig().Currency
}
