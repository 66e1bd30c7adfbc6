package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the runtime configuration of the server process.
type Config struct {
	Port           int
	DatabaseURL    string
	RedisURL       string
	RedisPassword  string
	RedisDB        int
	FrontendOrigin string

	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	WSRateLimit float64
	WSRateBurst int
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}

// Load reads .env (if present), then environment variables, then any flags
// bound from the command line. Flags win over env, env wins over defaults.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found, using environment variables")
	} else {
		log.Println("✅ Loaded environment variables from .env")
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_PORT", 3000)
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("FRONTEND_ORIGIN", "http://localhost:5173")
	v.SetDefault("LOG_MAX_SIZE_MB", 50)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("WS_RATE_LIMIT", DefaultRateLimit)
	v.SetDefault("WS_RATE_BURST", DefaultRateBurst)

	if flags != nil {
		for key, name := range map[string]string{
			"APP_PORT":     "port",
			"DATABASE_URL": "database-url",
			"REDIS_URL":    "redis-url",
			"LOG_FILE":     "log-file",
		} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		Port:           v.GetInt("APP_PORT"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		RedisURL:       v.GetString("REDIS_URL"),
		RedisPassword:  v.GetString("REDIS_PASSWORD"),
		RedisDB:        v.GetInt("REDIS_DB"),
		FrontendOrigin: v.GetString("FRONTEND_ORIGIN"),
		LogFile:        v.GetString("LOG_FILE"),
		LogMaxSizeMB:   v.GetInt("LOG_MAX_SIZE_MB"),
		LogMaxBackups:  v.GetInt("LOG_MAX_BACKUPS"),
		WSRateLimit:    v.GetFloat64("WS_RATE_LIMIT"),
		WSRateBurst:    v.GetInt("WS_RATE_BURST"),
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid APP_PORT: %d", cfg.Port)
	}
	if cfg.WSRateLimit <= 0 || cfg.WSRateBurst <= 0 {
		return nil, fmt.Errorf("WS_RATE_LIMIT and WS_RATE_BURST must be positive")
	}

	return cfg, nil
}

// SetupLogging points the standard logger at stdout and, when LOG_FILE is set,
// a size-rotated file as well. The returned closer flushes the file.
func SetupLogging(cfg *Config) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if cfg.LogFile == "" {
		log.SetOutput(os.Stdout)
		return io.NopCloser(nil)
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	log.Printf("📝 Logging to %s (max %dMB, %d backups)", cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	return rotator
}
