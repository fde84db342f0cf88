package config

import (
	"path/filepath"
	"testing"
)

func TestLoadOrCreateCreatesAndReloadsConfig(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("LANCHAT_DATA_DIR", tempDir)

	firstCfg, firstPath, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("first LoadOrCreate failed: %v", err)
	}
	if firstCfg.DeviceID == "" {
		t.Fatalf("expected non-empty device ID")
	}
	if firstCfg.Nickname == "" {
		t.Fatalf("expected non-empty nickname default")
	}
	if firstCfg.ChatPort != DefaultChatPort {
		t.Fatalf("expected default chat port %d, got %d", DefaultChatPort, firstCfg.ChatPort)
	}

	expectedConfigPath := filepath.Join(tempDir, "config.json")
	if firstPath != expectedConfigPath {
		t.Fatalf("expected config path %q, got %q", expectedConfigPath, firstPath)
	}

	secondCfg, secondPath, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}

	if secondPath != firstPath {
		t.Fatalf("expected config path to be stable, got %q then %q", firstPath, secondPath)
	}
	if secondCfg.DeviceID != firstCfg.DeviceID {
		t.Fatalf("expected stable device ID, got %q then %q", firstCfg.DeviceID, secondCfg.DeviceID)
	}
	if secondCfg.Nickname != firstCfg.Nickname {
		t.Fatalf("expected stable nickname, got %q then %q", firstCfg.Nickname, secondCfg.Nickname)
	}
}

func TestLoadOrCreateNormalizesPartialConfig(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("LANCHAT_DATA_DIR", tempDir)

	partial := &DeviceConfig{Nickname: "Ann"}
	if err := Save(filepath.Join(tempDir, "config.json"), partial); err != nil {
		t.Fatalf("Save partial config failed: %v", err)
	}

	cfg, _, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if cfg.Nickname != "Ann" {
		t.Fatalf("expected explicit nickname retained, got %q", cfg.Nickname)
	}
	if cfg.DeviceID == "" {
		t.Fatalf("expected generated device ID for partial config")
	}
	if cfg.ChatPort != DefaultChatPort {
		t.Fatalf("expected chat port normalized to %d, got %d", DefaultChatPort, cfg.ChatPort)
	}
	if cfg.HistoryPage <= 0 {
		t.Fatalf("expected history page normalized, got %d", cfg.HistoryPage)
	}
}
