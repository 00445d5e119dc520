package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// DevSecret signs tokens when no secret is configured. Fine offline, never online.
const DevSecret = "supersecret-dev-key"

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	BlobBasePath string

	AuthHMACSecret  string
	TokenTTL        time.Duration
	EnableLocalAuth bool

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SlotTTL       time.Duration
	SweepInterval time.Duration

	LogLevel  string
	LogFormat string
}

// SetDefaults registers every key with its default so env lookups work even
// when no flag or config file mentions the key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeOffline))
	v.SetDefault("http-addr", ":8080")
	v.SetDefault("db-driver", "sqlite")
	v.SetDefault("db-dsn", "")
	v.SetDefault("blob-base-path", "./data")
	v.SetDefault("auth-hmac-secret", DevSecret)
	v.SetDefault("token-ttl", 8*time.Hour)
	v.SetDefault("enable-local-auth", true)
	v.SetDefault("cors-origins-online", "https://training.mindengage.ai")
	v.SetDefault("cors-origins-offline", "http://localhost:3000,http://localhost:3010")
	v.SetDefault("redis-addr", "localhost:6379")
	v.SetDefault("redis-password", "")
	v.SetDefault("redis-db", 0)
	v.SetDefault("slot-ttl", 60*time.Second)
	v.SetDefault("sweep-interval", 5*time.Minute)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
}

// Load reads the configuration out of v. Precedence is the usual viper one:
// flag, env (TRAINING_*), config file, default.
func Load(v *viper.Viper) Config {
	SetDefaults(v)
	mode := Mode(strings.ToLower(v.GetString("mode")))
	if mode != ModeOnline {
		mode = ModeOffline
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           v.GetString("http-addr"),
		DBDriver:           v.GetString("db-driver"),
		DBDSN:              v.GetString("db-dsn"),
		BlobBasePath:       v.GetString("blob-base-path"),
		AuthHMACSecret:     v.GetString("auth-hmac-secret"),
		TokenTTL:           v.GetDuration("token-ttl"),
		EnableLocalAuth:    v.GetBool("enable-local-auth"),
		CORSOriginsOnline:  csv(v.GetString("cors-origins-online")),
		CORSOriginsOffline: csv(v.GetString("cors-origins-offline")),
		RedisAddr:          v.GetString("redis-addr"),
		RedisPassword:      v.GetString("redis-password"),
		RedisDB:            v.GetInt("redis-db"),
		SlotTTL:            v.GetDuration("slot-ttl"),
		SweepInterval:      v.GetDuration("sweep-interval"),
		LogLevel:           v.GetString("log-level"),
		LogFormat:          v.GetString("log-format"),
	}
}

// CORSOrigins returns the origin list for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
