package n14

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"

	"github.com/spf13/viper"
)

type Mode string

const (
	DevMode  Mode = "dev"
	ProdMode Mode = "prod"
)

const (
	SQLiteDriver = "sqlite"
	MemoryDriver = "memory"
	RedisDriver  = "redis"
)

type Config struct {
	// Port is the Port number to listen on. The default is 8080.
	Port int `validate:"required,port"`
	// Hostname is the Hostname to listen on. The default is 0.0.0.0.
	Hostname string `validate:"required"`
	// Mode is dev or prod. prod serves with the hardened TLS config.
	Mode Mode `validate:"required,oneof=dev prod"`
	Auth struct {
		// Secret is the Secret key used to sign session tokens.
		// The secret must be a base64 encoded string. The default is a random 32 byte string.
		Secret Base64Encoded `validate:"required"`
		// TokenTTL is how long a session token stays valid. The default is 24h.
		TokenTTL time.Duration `validate:"required"`
	}
	Storage struct {
		// Driver selects the shared store: sqlite, memory or redis.
		Driver string `validate:"required,oneof=sqlite memory redis"`
	}
	SQLite struct {
		// File is the path to the SQLite database file.
		File string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int `validate:"min=0"`
		// Prefix is prepended to every key. The default is "n14:".
		Prefix string
	}
	NATS struct {
		// URL of the NATS server relaying store changes between processes.
		// Changes are not relayed when empty.
		URL     string
		Subject string
	}
	// AllowedOrigins is a list of origins that are allowed to connect to the server.
	// The default is ["*"].
	AllowedOrigins []string
	TLS            struct {
		Crt string
		Key string
	}
	valid bool
}

type Base64Encoded []byte

func (b *Base64Encoded) UnmarshalText(text []byte) error {
	dec, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("base64 decode: %w", err)
	}
	*b = dec
	return nil
}

// LoadConfig loads the configuration from .env, config.yaml in the working
// directory and N14_ prefixed environment variables, in increasing order of
// precedence. Both files are optional.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return loadConfig(viper.New(), ".")
}

// loadConfig reads the configuration with v. Any invalid configuration will
// not be loaded, and the error will be caught in the validation step.
func loadConfig(v *viper.Viper, paths ...string) (*Config, error) {
	config := &Config{}
	v.SetConfigName("config")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigType("yaml")
	v.SetEnvPrefix("n14")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// generate a random secret key
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	v.SetDefault("port", 8080)
	v.SetDefault("hostname", "0.0.0.0")
	v.SetDefault("mode", string(DevMode))
	v.SetDefault("auth.secret", base64.StdEncoding.EncodeToString(secret))
	v.SetDefault("auth.tokenttl", "24h")
	v.SetDefault("storage.driver", SQLiteDriver)
	v.SetDefault("sqlite.file", "./n14.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "n14:")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "n14.changes")
	v.SetDefault("allowedorigins", []string{"*"})
	v.SetDefault("tls.crt", "")
	v.SetDefault("tls.key", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		),
	); err != nil {
		// defer error to validation step
		return config, nil
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.valid {
		return nil
	}
	err := validate.Struct(c)
	if err != nil {
		return err
	}
	c.valid = true
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Port)
}

// FormatValidationErrors renders validation errors as one sorted message per
// line.
func FormatValidationErrors(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	trans, _ := uniTrans.GetTranslator("en")
	translated := errs.Translate(trans)

	var sb strings.Builder
	for _, v := range slices.Sorted(maps.Values(translated)) {
		sb.WriteString(v)
		sb.WriteString("\n")
	}
	return sb.String()
}
