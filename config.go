package tellergo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string `yaml:"log_level"`
	Admin    struct {
		PIN int `yaml:"pin"`
	} `yaml:"admin"`
	Storage struct {
		Driver           string        `yaml:"driver"`
		Path             string        `yaml:"path"`
		ConnectionString string        `yaml:"conn_str"`
		Timeout          time.Duration `yaml:"timeout"`
		MaxFailures      uint32        `yaml:"max_failures"`
		OpenFor          time.Duration `yaml:"open_for"`
	} `yaml:"storage"`
	Accounts struct {
		SavingsRate    float64 `yaml:"savings_rate"`
		CheckingRate   float64 `yaml:"checking_rate"`
		NumberAttempts int     `yaml:"number_attempts"`
		Node           int64   `yaml:"node"`
	} `yaml:"accounts"`
	Security struct {
		PINCost     int           `yaml:"pin_cost"`
		TokenSecret string        `yaml:"token_secret"`
		TokenTTL    time.Duration `yaml:"token_ttl"`
	} `yaml:"security"`
	Server struct {
		Addr           string        `yaml:"addr"`
		MaxInFlight    int64         `yaml:"max_in_flight"`
		AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	} `yaml:"server"`
	Seed []SeedAccount `yaml:"seed"`
}

type SeedAccount struct {
	Holder         string  `yaml:"holder"`
	Type           string  `yaml:"type"`
	PIN            int     `yaml:"pin"`
	InitialDeposit float64 `yaml:"initial_deposit"`
}

const (
	StorageFile     = "file"
	StoragePostgres = "postgres"

	envAdminPIN    = "TELLER_ADMIN_PIN"
	envConnStr     = "TELLER_DB_CONN_STR"
	envTokenSecret = "TELLER_TOKEN_SECRET"
	envDataPath    = "TELLER_DATA_PATH"
)

func DefaultConfig() Config {
	var cfg Config
	cfg.LogLevel = "info"
	cfg.Admin.PIN = 9999
	cfg.Storage.Driver = StorageFile
	cfg.Storage.Path = "bank_data.json"
	cfg.Storage.Timeout = 5 * time.Second
	cfg.Storage.MaxFailures = 3
	cfg.Storage.OpenFor = 30 * time.Second
	cfg.Accounts.SavingsRate = 2.5
	cfg.Accounts.CheckingRate = 1.5
	cfg.Accounts.NumberAttempts = defaultNumberAttempts
	cfg.Accounts.Node = 1
	cfg.Security.PINCost = bcrypt.DefaultCost
	cfg.Security.TokenTTL = 15 * time.Minute
	cfg.Server.Addr = ":3000"
	cfg.Server.MaxInFlight = 64
	cfg.Server.AcquireTimeout = 2 * time.Second
	return cfg
}

// LoadConfig reads the yaml file at path over the defaults. A missing file is
// not an error. Secrets may be overridden from the environment or a .env file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			defer f.Close()
			if err = yaml.NewDecoder(f).Decode(&cfg); err != nil {
				return cfg, fmt.Errorf("decode config: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if v := os.Getenv(envAdminPIN); v != "" {
		pin, err := strconv.Atoi(v)
		if err != nil {
			return cfg, ErrBadRequest{Fields: map[string]string{envAdminPIN: "must be numeric"}}
		}
		cfg.Admin.PIN = pin
	}
	if v := os.Getenv(envConnStr); v != "" {
		cfg.Storage.ConnectionString = v
	}
	if v := os.Getenv(envTokenSecret); v != "" {
		cfg.Security.TokenSecret = v
	}
	if v := os.Getenv(envDataPath); v != "" {
		cfg.Storage.Path = v
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	fields := map[string]string{}
	if c.Admin.PIN < MinPIN || c.Admin.PIN > MaxPIN {
		fields["admin.pin"] = "must be a 4-digit number"
	}
	switch c.Storage.Driver {
	case StorageFile:
		if c.Storage.Path == "" {
			fields["storage.path"] = "required for file storage"
		}
	case StoragePostgres:
		if c.Storage.ConnectionString == "" {
			fields["storage.conn_str"] = "required for postgres storage"
		}
	default:
		fields["storage.driver"] = "must be file or postgres"
	}
	if c.Security.PINCost < bcrypt.MinCost || c.Security.PINCost > bcrypt.MaxCost {
		fields["security.pin_cost"] = "out of bcrypt cost range"
	}
	if c.Accounts.SavingsRate < 0 || c.Accounts.CheckingRate < 0 {
		fields["accounts"] = "interest rates cannot be negative"
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		fields["log_level"] = err.Error()
	}
	if len(fields) > 0 {
		return ErrBadRequest{Fields: fields}
	}
	return nil
}

func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
