// Package config reads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"lottery-server-go/db"
	"lottery-server-go/lottery"
	"lottery-server-go/stage"
)

// Config holds every LOTTERY_* setting.
type Config struct {
	HTTPAddr   string `env:"LOTTERY_HTTP_ADDR" envDefault:":8080"`
	StatePath  string `env:"LOTTERY_STATE_PATH" envDefault:"lottery.db"`
	RosterFile string `env:"LOTTERY_ROSTER_FILE" envDefault:"學生名稱.xlsx"`
	StageSet   string `env:"LOTTERY_STAGE_SET" envDefault:"classic"`

	RedisAddr     string `env:"LOTTERY_REDIS_ADDR"`
	RedisPassword string `env:"LOTTERY_REDIS_PASSWORD"`
	RedisDB       int    `env:"LOTTERY_REDIS_DB" envDefault:"0"`
	RedisKey      string `env:"LOTTERY_REDIS_KEY" envDefault:"lottery:winners"`

	RevealDuration            time.Duration `env:"LOTTERY_REVEAL_DURATION" envDefault:"2s"`
	RevealInterval            time.Duration `env:"LOTTERY_REVEAL_INTERVAL" envDefault:"50ms"`
	ReplacementRevealDuration time.Duration `env:"LOTTERY_REPLACEMENT_REVEAL_DURATION" envDefault:"1s"`
	BackupRevealDuration      time.Duration `env:"LOTTERY_BACKUP_REVEAL_DURATION" envDefault:"2s"`
	BackupRecord              bool          `env:"LOTTERY_BACKUP_RECORD" envDefault:"false"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the given .env files (or ./.env) when present, then parses the
// environment. Variables already set in the environment win over the files.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
		log.Println("No .env file found, using system environment")
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Policy(); err != nil {
		return Config{}, err
	}
	if cfg.RevealInterval <= 0 {
		return Config{}, fmt.Errorf("LOTTERY_REVEAL_INTERVAL must be positive, got %s", cfg.RevealInterval)
	}
	return cfg, nil
}

func (c Config) Policy() (stage.Policy, error) {
	return stage.ByName(c.StageSet)
}

func (c Config) Redis() db.RedisOptions {
	return db.RedisOptions{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// LotteryOptions fills the timing and policy fields of lottery.Options.
func (c Config) LotteryOptions() (lottery.Options, error) {
	p, err := c.Policy()
	if err != nil {
		return lottery.Options{}, err
	}
	return lottery.Options{
		Policy:                    p,
		RevealInterval:            c.RevealInterval,
		RevealDuration:            c.RevealDuration,
		ReplacementRevealDuration: c.ReplacementRevealDuration,
		BackupRevealDuration:      c.BackupRevealDuration,
		RecordBackups:             c.BackupRecord,
	}, nil
}
