package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || !cfg.DryRun {
		t.Fatalf("defaults: %+v", cfg)
	}
	if len(cfg.Symbols) != 1 || cfg.Symbols[0] != "BTCUSDT" {
		t.Fatalf("symbols: %v", cfg.Symbols)
	}
	if cfg.Defaults.GridLevels != 10 || !cfg.Defaults.GridSpacing.Equal(dec("0.01")) {
		t.Fatalf("grid defaults: %+v", cfg.Defaults)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SYMBOLS", "BTCUSDT, ETHUSDT ,")
	t.Setenv("GRID_LEVELS", "20")
	t.Setenv("QUANTITY", "0.5")
	t.Setenv("DRY_RUN", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[1] != "ETHUSDT" {
		t.Fatalf("symbols: %v", cfg.Symbols)
	}
	if cfg.Defaults.GridLevels != 20 || !cfg.Defaults.Quantity.Equal(dec("0.5")) {
		t.Fatalf("env overrides: %+v", cfg.Defaults)
	}
	if cfg.DryRun {
		t.Fatal("dry run should be off")
	}
}

func TestStrategyFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategies.yaml")
	yamlBody := `
symbols:
  BTCUSDT:
    grid_spacing: 0.005
    grid_levels: 20
    quantity: 0.25
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("STRATEGY_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	overrides, err := cfg.LoadOverrides()
	if err != nil {
		t.Fatalf("overrides: %v", err)
	}

	btc := cfg.Settings("BTCUSDT", overrides)
	if btc.GridLevels != 20 || !btc.GridSpacing.Equal(dec("0.005")) || !btc.Quantity.Equal(dec("0.25")) {
		t.Fatalf("btc settings: %+v", btc)
	}
	// Fields absent from the file keep environment defaults.
	if !btc.RiskPercentage.Equal(cfg.Defaults.RiskPercentage) {
		t.Fatalf("risk default lost: %s", btc.RiskPercentage)
	}

	eth := cfg.Settings("ETHUSDT", overrides)
	if eth.GridLevels != cfg.Defaults.GridLevels {
		t.Fatalf("eth should use defaults: %+v", eth)
	}
}

func TestMissingStrategyFileErrors(t *testing.T) {
	t.Setenv("STRATEGY_FILE", "/does/not/exist.yaml")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := cfg.LoadOverrides(); err == nil {
		t.Fatal("want error for missing file")
	}
}
