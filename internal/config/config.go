package config

import (
	"errors"
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env                  string         `yaml:"env" env:"ENV" env-default:"local"`
	StoragePath          string         `yaml:"storage_path" env:"STORAGE_PATH"`
	UseCache             bool           `yaml:"use_cache" env:"USE_CACHE"`
	SecretKey            string         `yaml:"secret_key" env:"SECRET_KEY"`
	Issuer               string         `yaml:"issuer" env:"ISSUER" env-default:"oauthsrv"`
	SessionTTL           time.Duration  `yaml:"session_ttl" env:"SESSION_TTL" env-default:"168h"`
	AccessTokenTTL       time.Duration  `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"5m"`
	RefreshTokenTTL      time.Duration  `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"720h"`
	AuthorizationCodeTTL time.Duration  `yaml:"authorization_code_ttl" env:"AUTHORIZATION_CODE_TTL" env-default:"60s"`
	SweepInterval        time.Duration  `yaml:"sweep_interval" env:"SWEEP_INTERVAL" env-default:"1m"`
	HTTP                 HTTPConfig     `yaml:"http"`
	Redis                RedisConfig    `yaml:"redis"`
	Vault                VaultConfig    `yaml:"vault"`
	Clients              []ClientConfig `yaml:"clients"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port" env:"HTTP_PORT" env-default:"8000"`
	Timeout        time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"10s"`
	CookieSecure   bool          `yaml:"cookie_secure" env:"HTTP_COOKIE_SECURE"`
	DefaultLanding string        `yaml:"default_landing" env:"HTTP_DEFAULT_LANDING" env-default:"/dashboard"`
}

type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type VaultConfig struct {
	Enabled    bool   `yaml:"enabled" env:"VAULT_ENABLED"`
	Address    string `yaml:"address" env:"VAULT_ADDR" env-default:"http://vault:8200"`
	Token      string `yaml:"token" env:"VAULT_TOKEN"`
	MountPath  string `yaml:"mount_path" env:"VAULT_MOUNT_PATH" env-default:"secret"`
	SecretPath string `yaml:"secret_path" env:"VAULT_SECRET_PATH" env-default:"oauthsrv"`
	KeyField   string `yaml:"key_field" env:"VAULT_KEY_FIELD" env-default:"signing_key"`
}

// ClientConfig describes a third-party client registered at startup.
type ClientConfig struct {
	ClientID    string `yaml:"client_id"`
	RedirectURI string `yaml:"redirect_uri"`
	Secret      string `yaml:"secret"`
}

var ErrNoSecret = errors.New("secret_key is empty and vault is disabled")

func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}
	return MustLoadPath(path)
}

func MustLoadPath(path string) *Config {
	cfg, err := LoadPath(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadPath reads the yaml file at path, applying env overrides and defaults.
func LoadPath(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.New("config path does not exist: " + path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that defaults cannot fix.
func (c *Config) Validate() error {
	if c.SecretKey == "" && !c.Vault.Enabled {
		return ErrNoSecret
	}
	for _, ttl := range []time.Duration{c.SessionTTL, c.AccessTokenTTL, c.RefreshTokenTTL, c.AuthorizationCodeTTL} {
		if ttl <= 0 {
			return errors.New("token ttls must be positive")
		}
	}
	for _, cl := range c.Clients {
		if cl.ClientID == "" || cl.RedirectURI == "" {
			return errors.New("clients need client_id and redirect_uri")
		}
	}
	return nil
}

// Priority: flag > env > default
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}
