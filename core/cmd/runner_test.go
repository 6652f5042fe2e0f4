package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"

	coreconfig "github.com/m3rciful/afkbot/core/config"
	coretelegram "github.com/m3rciful/afkbot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type app struct{ opts coretelegram.RunOptions }

func (a app) TelegramRunOptions() (coretelegram.RunOptions, error) { return a.opts, nil }

func TestConfigPath(t *testing.T) {
	t.Setenv("AFK_CONFIG", "")
	if _, err := ConfigPath("AFK_CONFIG", ""); err == nil {
		t.Fatal("expected error without env or default")
	}
	if p, _ := ConfigPath("AFK_CONFIG", "config.yaml"); p != "config.yaml" {
		t.Fatalf("default path = %q", p)
	}
	t.Setenv("AFK_CONFIG", "/etc/afk.yaml")
	if p, _ := ConfigPath("AFK_CONFIG", "config.yaml"); p != "/etc/afk.yaml" {
		t.Fatalf("env path = %q", p)
	}
}

func TestRunWrapsLifecycleHooks(t *testing.T) {
	var order []string
	err := Run(Options{
		DefaultConfigPath: "config.yaml",
		ConfigEnvVar:      "AFK_TEST_CONFIG",
		LoadConfig: func(string) (ConfigCarrier, error) {
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap: func(context.Context, ConfigCarrier) (TelegramApp, error) {
			return app{opts: coretelegram.RunOptions{
				OnStart: func(context.Context, coretelegram.Runtime) error { order = append(order, "start"); return nil },
				OnStop:  func(context.Context, coretelegram.Runtime) error { order = append(order, "stop"); return nil },
			}}, nil
		},
		ShutdownLogger: func() error { order = append(order, "logger"); return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Join(order, ","); got != "start,stop,logger" {
		t.Fatalf("order = %s", got)
	}
}

func TestRunPropagatesBootstrapError(t *testing.T) {
	err := Run(Options{
		DefaultConfigPath: "config.yaml",
		ConfigEnvVar:      "AFK_TEST_CONFIG",
		LoadConfig: func(string) (ConfigCarrier, error) {
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap: func(context.Context, ConfigCarrier) (TelegramApp, error) {
			return nil, errors.New("db down")
		},
		ShutdownLogger: func() error { return nil },
	})
	if err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("err = %v", err)
	}
}
