package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	APIURL        string        `env:"MIRAI_API_URL" envDefault:"http://127.0.0.1:8080"`
	VerifyKey     string        `env:"MIRAI_VERIFY_KEY"`
	QQ            int64         `env:"MIRAI_QQ"`
	GroupQQ       int64         `env:"MIRAI_GROUP"`
	AdminQQ       int64         `env:"MIRAI_ADMIN_QQ"`
	JournalPath   string        `env:"MIRAI_JOURNAL_DB"`
	LogLevel      string        `env:"MIRAI_LOG_LEVEL" envDefault:"info"`
	DrainInterval time.Duration `env:"MIRAI_DRAIN_INTERVAL" envDefault:"100ms"`
	ClearSession  bool          `env:"MIRAI_CLEAR_SESSION"`
	Fake          bool          `env:"MIRAI_FAKE_GATEWAY"`
}

// LoadConfig reads .env (if present), then the environment, then flags.
// Flags win over the environment.
func LoadConfig(args []string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("miraibot", flag.ContinueOnError)
	fs.StringVar(&cfg.APIURL, "api", cfg.APIURL, "Gateway HTTP API URL")
	fs.StringVar(&cfg.VerifyKey, "verify-key", cfg.VerifyKey, "Gateway verifyKey")
	fs.Int64Var(&cfg.QQ, "qq", cfg.QQ, "Bot account number")
	fs.Int64Var(&cfg.GroupQQ, "group", cfg.GroupQQ, "Group to answer in")
	fs.Int64Var(&cfg.AdminQQ, "admin", cfg.AdminQQ, "Admin account greeted on startup")
	fs.StringVar(&cfg.JournalPath, "journal", cfg.JournalPath, "SQLite journal path (empty disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.DurationVar(&cfg.DrainInterval, "drain-interval", cfg.DrainInterval, "Minimum spacing between sends")
	fs.BoolVar(&cfg.ClearSession, "clear-session", cfg.ClearSession, "Forget the session token on disconnect")
	fs.BoolVar(&cfg.Fake, "fake", cfg.Fake, "Run against an in-process fake gateway")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
