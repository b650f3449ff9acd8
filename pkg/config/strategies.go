package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// strategyFile is the YAML layout of per-symbol overrides:
//
//	symbols:
//	  BTCUSDT:
//	    grid_spacing: 0.005
//	    grid_levels: 20
type strategyFile struct {
	Symbols map[string]SymbolSettings `yaml:"symbols"`
}

// LoadOverrides parses the strategy file named in the config. A missing
// StrategyFile setting yields an empty map, not an error.
func (c *Config) LoadOverrides() (map[string]SymbolSettings, error) {
	if c.StrategyFile == "" {
		return map[string]SymbolSettings{}, nil
	}
	raw, err := os.ReadFile(c.StrategyFile)
	if err != nil {
		return nil, fmt.Errorf("read strategy file: %w", err)
	}
	var f strategyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse strategy file %s: %w", c.StrategyFile, err)
	}
	if f.Symbols == nil {
		f.Symbols = map[string]SymbolSettings{}
	}
	return f.Symbols, nil
}

// Settings resolves the effective parameters for a symbol: the override from
// the strategy file where one is set, the environment default otherwise.
func (c *Config) Settings(symbol string, overrides map[string]SymbolSettings) SymbolSettings {
	out := c.Defaults
	ov, ok := overrides[symbol]
	if !ok {
		return out
	}
	if !ov.Quantity.IsZero() {
		out.Quantity = ov.Quantity
	}
	if !ov.GridSpacing.IsZero() {
		out.GridSpacing = ov.GridSpacing
	}
	if ov.GridLevels > 0 {
		out.GridLevels = ov.GridLevels
	}
	if ov.SlopeThreshold > 0 {
		out.SlopeThreshold = ov.SlopeThreshold
	}
	if !ov.MaxPosition.IsZero() {
		out.MaxPosition = ov.MaxPosition
	}
	if !ov.MaxDailyLoss.IsZero() {
		out.MaxDailyLoss = ov.MaxDailyLoss
	}
	if !ov.RiskPercentage.IsZero() {
		out.RiskPercentage = ov.RiskPercentage
	}
	if !ov.StopDistance.IsZero() {
		out.StopDistance = ov.StopDistance
	}
	if !ov.TakeProfitRatio.IsZero() {
		out.TakeProfitRatio = ov.TakeProfitRatio
	}
	if !ov.InitialEquity.IsZero() {
		out.InitialEquity = ov.InitialEquity
	}
	return out
}
