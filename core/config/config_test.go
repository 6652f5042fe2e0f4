package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
		check   func(t *testing.T, cfg Config)
	}{
		{
			name:    "missing token",
			cfg:     Config{},
			wantErr: "token is required",
		},
		{
			name: "polling alias becomes longpoll",
			cfg:  Config{Telegram: TelegramConfig{Token: "t", RunMode: " Polling "}},
			check: func(t *testing.T, cfg Config) {
				if cfg.Telegram.RunMode != RunModeLongpoll {
					t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
				}
			},
		},
		{
			name: "empty run mode defaults to longpoll",
			cfg:  Config{Telegram: TelegramConfig{Token: "t"}},
			check: func(t *testing.T, cfg Config) {
				if cfg.Telegram.RunMode != RunModeLongpoll {
					t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
				}
			},
		},
		{
			name:    "webhook requires url",
			cfg:     Config{Telegram: TelegramConfig{Token: "t", RunMode: "webhook"}},
			wantErr: "webhook.url",
		},
		{
			name: "webhook requires port",
			cfg: Config{
				Telegram: TelegramConfig{Token: "t", RunMode: "webhook"},
				Webhook:  WebhookConfig{URL: "https://example.org/hook", Listen: "0.0.0.0"},
			},
			wantErr: "webhook.port",
		},
		{
			name:    "unknown run mode",
			cfg:     Config{Telegram: TelegramConfig{Token: "t", RunMode: "carrier-pigeon"}},
			wantErr: "invalid telegram.run_mode",
		},
		{
			name: "exclude updates are lower-cased and blanks dropped",
			cfg: Config{
				Telegram:  TelegramConfig{Token: "t"},
				RateLimit: RateLimitConfig{ExcludeUpdates: []string{" Callback", "", "MESSAGE"}},
			},
			check: func(t *testing.T, cfg Config) {
				got := strings.Join(cfg.RateLimit.ExcludeUpdates, ",")
				if got != "callback,message" {
					t.Fatalf("excludes = %q", got)
				}
			},
		},
		{
			name: "bad exclude update",
			cfg: Config{
				Telegram:  TelegramConfig{Token: "t"},
				RateLimit: RateLimitConfig{ExcludeUpdates: []string{"edited"}},
			},
			wantErr: "rate_limit.exclude_updates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := Normalize(&cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "telegram:\n  token: from-yaml\n  run_mode: longpoll\nstatus:\n  listen: \":8081\"\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q, want env override", cfg.Telegram.Token)
	}
	if cfg.Status.Listen != ":8081" {
		t.Fatalf("status listen = %q", cfg.Status.Listen)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
