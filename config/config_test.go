package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.StatePath != "lottery.db" || cfg.RedisAddr != "" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.RevealDuration != 2*time.Second || cfg.ReplacementRevealDuration != time.Second {
		t.Fatalf("unexpected reveal timing %+v", cfg)
	}
	opts, err := cfg.LotteryOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Policy.Name() != "classic" || opts.RecordBackups {
		t.Fatalf("options %+v", opts)
	}
}

func TestLoadFromEnvAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "LOTTERY_STAGE_SET=extended\nLOTTERY_REDIS_ADDR=localhost:6379\nLOTTERY_REVEAL_DURATION=500ms\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOTTERY_REVEAL_DURATION", "3s")
	t.Setenv("LOTTERY_BACKUP_RECORD", "true")
	// godotenv sets variables for the rest of the process
	t.Cleanup(func() {
		os.Unsetenv("LOTTERY_STAGE_SET")
		os.Unsetenv("LOTTERY_REDIS_ADDR")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StageSet != "extended" || cfg.Redis().Addr != "localhost:6379" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.RevealDuration != 3*time.Second {
		t.Fatalf("environment should win over the file, got %s", cfg.RevealDuration)
	}
	opts, _ := cfg.LotteryOptions()
	if opts.Policy.Default() != 3 || !opts.RecordBackups {
		t.Fatalf("options %+v", opts)
	}
}

func TestLoadErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("LOTTERY_REVEAL_INTERVAL", "soon")
		_, err := Load(missing)
		if err == nil || !strings.Contains(err.Error(), "parse env:") {
			t.Fatalf("expected parse env error, got %v", err)
		}
	})
	t.Run("unknown stage set", func(t *testing.T) {
		t.Setenv("LOTTERY_STAGE_SET", "weekly")
		if _, err := Load(missing); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("zero interval", func(t *testing.T) {
		t.Setenv("LOTTERY_REVEAL_INTERVAL", "0s")
		if _, err := Load(missing); err == nil {
			t.Fatal("expected error")
		}
	})
}
