// Package config loads the server configuration from defaults, an optional
// config file, an optional .env file, the environment and command line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. SCHOLARSHIPS_SERVER_PORT
const EnvPrefix = "SCHOLARSHIPS"

// Config keys
const (
	VServerPort            = "server.port"
	VServerShutdownTimeout = "server.shutdown_timeout"
	VServerNodeID          = "server.node_id"

	VLogLevel       = "log.level"
	VLogDevelopment = "log.development"

	VStoreBackend = "store.backend"

	VMongoURI            = "mongo.uri"
	VMongoDatabase       = "mongo.database"
	VMongoCollection     = "mongo.collection"
	VMongoConnectTimeout = "mongo.connect_timeout"

	VCacheBackend  = "cache.backend"
	VCacheTTL      = "cache.ttl"
	VCacheMaxItems = "cache.max_items"

	VRedisAddr     = "redis.addr"
	VRedisPassword = "redis.password"
	VRedisDB       = "redis.db"

	VBadgerPath = "badger.path"

	VListDefaultLimit = "list.default_limit"
	VListMaxLimit     = "list.max_limit"
)

// Store backends
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheBadger = "badger"
	CacheNone   = "none"
)

// Config is the complete server configuration
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Store  StoreConfig  `mapstructure:"store"`
	Mongo  MongoConfig  `mapstructure:"mongo"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Badger BadgerConfig `mapstructure:"badger"`
	List   ListConfig   `mapstructure:"list"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// NodeID seeds request id generation and must be unique per instance (0-1023)
	NodeID int64 `mapstructure:"node_id"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	Collection     string        `mapstructure:"collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type CacheConfig struct {
	Backend  string        `mapstructure:"backend"`
	TTL      time.Duration `mapstructure:"ttl"`
	MaxItems int           `mapstructure:"max_items"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type BadgerConfig struct {
	// Path of the cache directory; empty keeps the cache in memory
	Path string `mapstructure:"path"`
}

type ListConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

// SetDefaults registers the default value of every key. Keys without a
// default are invisible to Unmarshal, so every key is listed here.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(VServerPort, 8080)
	v.SetDefault(VServerShutdownTimeout, 10*time.Second)
	v.SetDefault(VServerNodeID, 0)

	v.SetDefault(VLogLevel, "info")
	v.SetDefault(VLogDevelopment, false)

	v.SetDefault(VStoreBackend, StoreMongo)

	v.SetDefault(VMongoURI, "")
	v.SetDefault(VMongoDatabase, "UndocuGuide")
	v.SetDefault(VMongoCollection, "Scholarships")
	v.SetDefault(VMongoConnectTimeout, 10*time.Second)

	v.SetDefault(VCacheBackend, CacheMemory)
	v.SetDefault(VCacheTTL, 10*time.Minute)
	v.SetDefault(VCacheMaxItems, 10000)

	v.SetDefault(VRedisAddr, "localhost:6379")
	v.SetDefault(VRedisPassword, "")
	v.SetDefault(VRedisDB, 0)

	v.SetDefault(VBadgerPath, "")

	v.SetDefault(VListDefaultLimit, 10)
	v.SetDefault(VListMaxLimit, 100)
}

// NewViper returns a viper instance with defaults and environment binding
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. An empty configFile searches for
// scholarships.{yaml,json,toml} in the working directory and
// $HOME/.scholarships; a missing file is not an error unless configFile names it.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("scholarships")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.scholarships")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	dotenv, err := readDotEnv(".env")
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Mongo.URI == "" {
		cfg.Mongo.URI = atlasURI(lookup(dotenv, "DB_USER"), lookup(dotenv, "DB_PASS"), lookup(dotenv, "URI_PATH"))
	}

	return &cfg, nil
}

// readDotEnv loads KEY=value pairs from path. A missing file yields an
// empty set.
func readDotEnv(path string) (*viper.Viper, error) {
	dotenv := viper.New()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return dotenv, nil
	}

	dotenv.SetConfigFile(path)
	dotenv.SetConfigType("env")
	if err := dotenv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return dotenv, nil
}

// lookup prefers the process environment over the .env file
func lookup(dotenv *viper.Viper, name string) string {
	if value, ok := os.LookupEnv(name); ok {
		return value
	}
	return dotenv.GetString(strings.ToLower(name))
}

// atlasURI builds a MongoDB Atlas connection string from the legacy
// DB_USER, DB_PASS and URI_PATH variables. All three must be set.
func atlasURI(user, pass, path string) string {
	if user == "" || pass == "" || path == "" {
		return ""
	}
	return fmt.Sprintf("mongodb+srv://%s@%s", url.UserPassword(user, pass).String(), path)
}

// Validate checks the values that cannot be defaulted
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s must be between 1 and 65535, got %d", VServerPort, c.Server.Port))
	}
	if c.Server.NodeID < 0 || c.Server.NodeID > 1023 {
		errs = append(errs, fmt.Errorf("%s must be between 0 and 1023, got %d", VServerNodeID, c.Server.NodeID))
	}

	switch c.Store.Backend {
	case StoreMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, fmt.Errorf("%s is required for the mongo store (or set DB_USER, DB_PASS and URI_PATH)", VMongoURI))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("%s must be %q or %q, got %q", VStoreBackend, StoreMongo, StoreMemory, c.Store.Backend))
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheRedis, CacheBadger, CacheNone:
	default:
		errs = append(errs, fmt.Errorf("%s must be one of %q, %q, %q, %q, got %q",
			VCacheBackend, CacheMemory, CacheRedis, CacheBadger, CacheNone, c.Cache.Backend))
	}

	if c.List.DefaultLimit < 1 || c.List.MaxLimit < c.List.DefaultLimit {
		errs = append(errs, fmt.Errorf("%s must be positive and not above %s", VListDefaultLimit, VListMaxLimit))
	}

	return errors.Join(errs...)
}
