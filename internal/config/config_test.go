package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8900 {
		t.Errorf("expected default port 8900, got %d", cfg.Port)
	}
	if cfg.Gateway.Secret == "" {
		t.Error("expected a default gateway secret")
	}
	if len(cfg.LevelThresholds) == 0 {
		t.Error("expected default level thresholds")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
port: 9100
auth_secret: file_secret
gateway:
  base_url: https://api.example.com
  key_id: key_live
  secret: secret_live
push:
  url: https://push.example.com/send
  secret: push_secret
level_thresholds: [0, 50, 150]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9100 || cfg.AuthSecret != "file_secret" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Gateway.BaseURL != "https://api.example.com" || cfg.Gateway.Secret != "secret_live" {
		t.Errorf("unexpected gateway config: %+v", cfg.Gateway)
	}
	if len(cfg.LevelThresholds) != 3 || cfg.LevelThresholds[2] != 150 {
		t.Errorf("unexpected thresholds: %v", cfg.LevelThresholds)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad port", "port: -1\n"},
		{"missing gateway secret", "gateway:\n  secret: \"\"\n"},
		{"empty thresholds", "level_thresholds: []\n"},
		{"unordered thresholds", "level_thresholds: [0, 200, 100]\n"},
		{"invalid yaml", "port: [not a number\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.content)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
