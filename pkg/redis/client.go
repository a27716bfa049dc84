package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
	goredis "github.com/redis/go-redis/v9"
)

type Config struct {
	Network  string `env:"REDIS_NETWORK" env-default:"tcp" env-description:"Network type for the redis connection, tcp or unix"`
	Address  string `env:"REDIS_ADDRESS" env-default:"localhost:6379" env-description:"Redis server address or socket path"`
	Password string `env:"REDIS_PASSWORD" env-description:"Redis password"`
}

var databases = map[string]int{
	"APPL_DB":   0,
	"CONFIG_DB": 4,
	"STATE_DB":  6,
}

// Client keeps one connection pool per logical database. The zero value is
// not usable; create clients with NewClient.
type Client struct {
	config Config

	mu      *sync.Mutex
	clients map[string]*goredis.Client
}

func NewClient() (Client, error) {
	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		return Client{}, fmt.Errorf("reading redis config: %w", err)
	}

	return NewClientWithConfig(config), nil
}

func NewClientWithConfig(config Config) Client {
	return Client{
		config:  config,
		mu:      &sync.Mutex{},
		clients: map[string]*goredis.Client{},
	}
}

func (c Client) db(dbName string) (*goredis.Client, error) {
	index, ok := databases[dbName]
	if !ok {
		return nil, fmt.Errorf("unknown redis database %s", dbName)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[dbName]; ok {
		return client, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Network:  c.config.Network,
		Addr:     c.config.Address,
		Password: c.config.Password,
		DB:       index,
	})
	c.clients[dbName] = client

	return client, nil
}

func (c Client) HgetAllFromDb(ctx context.Context, dbName, key string) (map[string]string, error) {
	client, err := c.db(dbName)
	if err != nil {
		return nil, err
	}

	values, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("HGETALL %s in %s: %w", key, dbName, err)
	}
	return values, nil
}

func (c Client) HsetToDb(ctx context.Context, dbName, key string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	client, err := c.db(dbName)
	if err != nil {
		return err
	}

	if err := client.HSet(ctx, key, toArgs(values)).Err(); err != nil {
		return fmt.Errorf("HSET %s in %s: %w", key, dbName, err)
	}
	return nil
}

// ReplaceHashInDb swaps the whole hash atomically, so fields that are no
// longer present do not linger.
func (c Client) ReplaceHashInDb(ctx context.Context, dbName, key string, values map[string]string) error {
	client, err := c.db(dbName)
	if err != nil {
		return err
	}

	_, err = client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.HSet(ctx, key, toArgs(values))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replacing %s in %s: %w", key, dbName, err)
	}
	return nil
}

func (c Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for name, client := range c.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.clients, name)
	}
	return firstErr
}

func toArgs(values map[string]string) map[string]interface{} {
	args := make(map[string]interface{}, len(values))
	for field, value := range values {
		args[field] = value
	}
	return args
}
