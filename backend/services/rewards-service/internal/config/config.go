package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	libconfig "evrewards/backend/libs/config"
	"evrewards/backend/services/rewards-service/internal/address"
	"evrewards/backend/services/rewards-service/internal/authority"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	// DefaultProgramSeed names the program when no explicit id is configured.
	DefaultProgramSeed = "evrewards/rewards-program"
)

type HTTPConfig struct {
	Port string `yaml:"port" env:"REWARDS_HTTP_PORT"`
}

type DatabaseConfig struct {
	DSN         string `yaml:"dsn" env:"REWARDS_POSTGRES_DSN"`
	AutoMigrate bool   `yaml:"autoMigrate" env:"REWARDS_POSTGRES_AUTO_MIGRATE"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"REWARDS_STORAGE_DRIVER"`
	// Fund seeds native balances of memory storage at startup, as "address=amount"
	// entries. Postgres balances are funded with rewardsctl fund.
	Fund []string `yaml:"fund" env:"REWARDS_STORAGE_FUND"`
}

type RedisConfig struct {
	Addr          string        `yaml:"addr" env:"REWARDS_REDIS_ADDR"`
	Password      string        `yaml:"password" env:"REWARDS_REDIS_PASSWORD"`
	DB            int           `yaml:"db" env:"REWARDS_REDIS_DB"`
	ChallengeTTL  time.Duration `yaml:"challengeTTL" env:"REWARDS_REDIS_CHALLENGE_TTL"`
	EventsChannel string        `yaml:"eventsChannel" env:"REWARDS_REDIS_EVENTS_CHANNEL"`
}

type JWTConfig struct {
	Secret string        `yaml:"secret" env:"REWARDS_JWT_SECRET"`
	Expiry time.Duration `yaml:"expiry" env:"REWARDS_JWT_EXPIRY"`
}

type ProgramConfig struct {
	// ID is the base58 program id; empty derives it from DefaultProgramSeed.
	ID string `yaml:"id" env:"REWARDS_PROGRAM_ID"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"REWARDS_RATE_LIMIT_RPS"`
	Burst int     `yaml:"burst" env:"REWARDS_RATE_LIMIT_BURST"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `yaml:"pingInterval" env:"REWARDS_WS_PING_INTERVAL"`
	WriteTimeout time.Duration `yaml:"writeTimeout" env:"REWARDS_WS_WRITE_TIMEOUT"`
}

// Config defines rewards service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	Program   ProgramConfig   `yaml:"program"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// Default returns the configuration used before file and env overrides.
func Default() *Config {
	return &Config{
		HTTP:    HTTPConfig{Port: "8085"},
		Storage: StorageConfig{Driver: StoragePostgres},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			ChallengeTTL:  5 * time.Minute,
			EventsChannel: "rewards:events",
		},
		JWT:       JWTConfig{Expiry: time.Hour},
		RateLimit: RateLimitConfig{RPS: 5, Burst: 10},
		WebSocket: WebSocketConfig{
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads the YAML file at path, then env overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfigFrom(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate implements libconfig.Validator.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory:
		if _, err := c.FundSeeds(); err != nil {
			return err
		}
	case StoragePostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("config: database dsn required")
		}
		if len(c.Storage.Fund) > 0 {
			return errors.New("config: storage fund applies to memory storage only")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("config: redis addr required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("config: jwt secret required")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("config: rate limit must be positive")
	}
	if _, err := c.ProgramID(); err != nil {
		return err
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8085"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// ProgramID resolves the configured program id.
func (c *Config) ProgramID() (address.Address, error) {
	if id := strings.TrimSpace(c.Program.ID); id != "" {
		parsed, err := address.Parse(id)
		if err != nil {
			return address.Zero, fmt.Errorf("config: program id: %w", err)
		}
		return parsed, nil
	}
	return address.Hash([]byte(DefaultProgramSeed)), nil
}

// Deriver returns the authority deriver for the configured program.
func (c *Config) Deriver() (authority.Deriver, error) {
	program, err := c.ProgramID()
	if err != nil {
		return authority.Deriver{}, err
	}
	return authority.NewDeriver(program), nil
}

// FundSeeds parses Storage.Fund. A repeated address keeps its last amount.
func (c *Config) FundSeeds() (map[address.Address]uint64, error) {
	seeds := make(map[address.Address]uint64, len(c.Storage.Fund))
	for _, entry := range c.Storage.Fund {
		rawOwner, rawAmount, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			return nil, fmt.Errorf("config: storage fund %q: want address=amount", entry)
		}
		owner, err := address.Parse(strings.TrimSpace(rawOwner))
		if err != nil {
			return nil, fmt.Errorf("config: storage fund %q: %w", entry, err)
		}
		amount, err := strconv.ParseUint(strings.TrimSpace(rawAmount), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: storage fund %q: %w", entry, err)
		}
		seeds[owner] = amount
	}
	return seeds, nil
}
