package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xmm7360.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
device = "tcp://127.0.0.1:7100"
apn = "internet"
table = "commands.json"
log_level = "debug"
workers = 2
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Device != "tcp://127.0.0.1:7100" || cfg.APN != "internet" || cfg.Workers != 2 {
		t.Fatalf("got %+v", cfg)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level %q", cfg.LogLevel)
	}
	if cfg.QueueSize != 0 || cfg.MaxFrameSize != 0 {
		t.Fatalf("expected library defaults, got %+v", cfg)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `apn = "internet"`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Device != "/dev/xmm0/rpc" || cfg.LogLevel != "info" {
		t.Fatalf("got %+v", cfg)
	}
}

func TestLogLevelEnvOverride(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")

	if cfg := Default(); cfg.LogLevel != "debug" {
		t.Fatalf("default level %q", cfg.LogLevel)
	}
	cfg, err := Load(writeConfig(t, `log_level = "error"`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("level %q, env should win over the file", cfg.LogLevel)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected read error")
	}
	if _, err := Load(writeConfig(t, `device = [`)); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Load(writeConfig(t, `device = ""`)); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"defaults", Default(), true},
		{"no device", Config{}, false},
		{"negative workers", Config{Device: "d", Workers: -1}, false},
		{"negative queue", Config{Device: "d", QueueSize: -4}, false},
		{"tiny frame cap", Config{Device: "d", MaxFrameSize: 8}, false},
		{"frame cap unset", Config{Device: "d"}, true},
	}
	for _, tc := range cases {
		if err := Validate(tc.cfg); (err == nil) != tc.ok {
			t.Errorf("%s: got %v", tc.name, err)
		}
	}
}
