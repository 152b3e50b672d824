package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Config struct {
	Addr     string        `yaml:"REDIS_ADDR" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string        `yaml:"REDIS_PASSWORD" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"REDIS_DB" env:"REDIS_DB" env-default:"0"`
	PoolSize int           `yaml:"REDIS_POOL_SIZE" env:"REDIS_POOL_SIZE" env-default:"10"`
	Timeout  time.Duration `yaml:"REDIS_TIMEOUT" env:"REDIS_TIMEOUT" env-default:"3s"`
}

// New connects and pings. MaxRetries is pinned to -1: a retried HINCRBY
// after a lost reply would count one vote twice.
func New(ctx context.Context, config Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MaxRetries:   -1,
		DialTimeout:  config.Timeout,
		ReadTimeout:  config.Timeout,
		WriteTimeout: config.Timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: failed to ping %s: %w", config.Addr, err)
	}
	return client, nil
}
