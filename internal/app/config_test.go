package app_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"cipherline/internal/app"
	"cipherline/internal/domain"
)

func TestLoadConfig_FileEnvAndDefaults(t *testing.T) {
	home := t.TempDir()
	yaml := "server: http://relay.local:8080\nuser_id: 7\ngroup_key:\n  fan_out: 3\n"
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CIPHERLINE_TOKEN", "env-token")
	t.Setenv("CIPHERLINE_CHANNEL_ACK_TIMEOUT", "1s")

	v := viper.New()
	v.Set("home", home)
	cfg, err := app.LoadConfig(v)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Home != home || cfg.Server != "http://relay.local:8080" || cfg.UserID != 7 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Token != "env-token" {
		t.Fatalf("token = %q, want env value", cfg.Token)
	}
	if cfg.Channel.AckTimeout != time.Second {
		t.Fatalf("ack timeout = %v", cfg.Channel.AckTimeout)
	}
	if cfg.GroupKey.FanOut != 3 || cfg.GroupKey.Retries != 2 || cfg.GroupKey.RetryDelay != 1200*time.Millisecond {
		t.Fatalf("group key config = %+v", cfg.GroupKey)
	}
	if p := cfg.RetryPolicy(); p.Attempts() != 3 {
		t.Fatalf("attempts = %d", p.Attempts())
	}
	if cfg.RequireServer() != nil {
		t.Fatalf("server and user are configured")
	}
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	v := viper.New()
	v.Set("home", t.TempDir())
	cfg, err := app.LoadConfig(v)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p, err := cfg.KDFParams()
	if err != nil || p.Name != domain.KDFArgon2id {
		t.Fatalf("kdf = %+v, %v", p, err)
	}
	if cfg.Channel.ResyncInterval != 30*time.Second {
		t.Fatalf("resync = %v", cfg.Channel.ResyncInterval)
	}
	if cfg.RequireServer() == nil {
		t.Fatalf("expected missing server error")
	}
}

func TestLoadConfig_RejectsUnknownKDF(t *testing.T) {
	v := viper.New()
	v.Set("home", t.TempDir())
	v.Set("kdf", "md5")
	if _, err := app.LoadConfig(v); err == nil {
		t.Fatalf("expected error for unknown kdf")
	}
}

func TestNewLogger_Levels(t *testing.T) {
	if _, err := app.NewLogger("debug"); err != nil {
		t.Fatalf("debug: %v", err)
	}
	if _, err := app.NewLogger("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
