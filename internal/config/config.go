package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jaam8/polls/pkg/redis"
	"github.com/jaam8/polls/pkg/sqldb"
	"github.com/jaam8/polls/pkg/tarantool"
	"github.com/joho/godotenv"
)

const (
	StoreMemory    = "memory"
	StoreTarantool = "tarantool"
	StoreRedis     = "redis"
	StoreSQL       = "sql"
)

type Config struct {
	HTTPPort        string           `yaml:"HTTP_PORT"        env:"HTTP_PORT" env-default:"8080"`
	LogLevel        string           `yaml:"LOG_LEVEL"        env:"LOG_LEVEL" env-default:"info"`
	StoreDriver     string           `yaml:"STORE_DRIVER"     env:"STORE_DRIVER" env-default:"memory"`
	SeedPath        string           `yaml:"SEED_PATH"        env:"SEED_PATH"`
	RequestTimeout  time.Duration    `yaml:"REQUEST_TIMEOUT"  env:"REQUEST_TIMEOUT" env-default:"5s"`
	ShutdownTimeout time.Duration    `yaml:"SHUTDOWN_TIMEOUT" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	Tarantool       tarantool.Config `yaml:"TARANTOOL"`
	Redis           redis.Config     `yaml:"REDIS"`
	SQL             sqldb.Config     `yaml:"SQL"`
}

// New loads an optional .env file and then reads the environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreTarantool, StoreRedis, StoreSQL:
	default:
		return errors.New("config: STORE_DRIVER must be one of memory, tarantool, redis, sql")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("config: REQUEST_TIMEOUT must be positive")
	}
	return nil
}
