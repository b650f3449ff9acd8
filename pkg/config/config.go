package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds environment-driven settings for the grid core.
type Config struct {
	Port      string
	DBPath    string
	JWTSecret string

	// Feed
	Symbols     []string
	Interval    string
	UseMockFeed bool
	Testnet     bool

	// Execution
	DryRun           bool
	PaperFeeRate     float64 // decimal (e.g. 0.001 = 10 bps)
	PaperSlippageBps float64
	GatewayRPS       float64
	GatewayBurst     int

	// Decision loop
	WarmupCandles int

	// Default per-symbol parameters; a strategy file may override them.
	Defaults SymbolSettings
	// StrategyFile is an optional YAML file with per-symbol overrides.
	StrategyFile string
}

// SymbolSettings are the tunable strategy and risk parameters for one symbol.
type SymbolSettings struct {
	Quantity        decimal.Decimal `yaml:"quantity"`
	GridSpacing     decimal.Decimal `yaml:"grid_spacing"`
	GridLevels      int             `yaml:"grid_levels"`
	SlopeThreshold  float64         `yaml:"slope_threshold"`
	MaxPosition     decimal.Decimal `yaml:"max_position"`
	MaxDailyLoss    decimal.Decimal `yaml:"max_daily_loss"`
	RiskPercentage  decimal.Decimal `yaml:"risk_percentage"`
	StopDistance    decimal.Decimal `yaml:"stop_distance"`
	TakeProfitRatio decimal.Decimal `yaml:"take_profit_ratio"`
	InitialEquity   decimal.Decimal `yaml:"initial_equity"`
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:             getEnv("PORT", "8080"),
		DBPath:           getEnv("DB_PATH", "./data/grid.db"),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret"),
		Symbols:          splitAndTrim(getEnv("SYMBOLS", "BTCUSDT")),
		Interval:         getEnv("INTERVAL", "1m"),
		UseMockFeed:      getEnv("USE_MOCK_FEED", "true") == "true",
		Testnet:          getEnv("TESTNET", "false") == "true",
		DryRun:           getEnv("DRY_RUN", "true") == "true",
		PaperFeeRate:     getEnvFloat("PAPER_FEE_RATE", 0.001),
		PaperSlippageBps: getEnvFloat("PAPER_SLIPPAGE_BPS", 2),
		GatewayRPS:       getEnvFloat("GATEWAY_RPS", 10),
		GatewayBurst:     getEnvInt("GATEWAY_BURST", 20),
		WarmupCandles:    getEnvInt("WARMUP_CANDLES", 200),
		Defaults: SymbolSettings{
			Quantity:        getEnvDecimal("QUANTITY", "0.01"),
			GridSpacing:     getEnvDecimal("GRID_SPACING", "0.01"),
			GridLevels:      getEnvInt("GRID_LEVELS", 10),
			SlopeThreshold:  getEnvFloat("SLOPE_THRESHOLD", 0.1),
			MaxPosition:     getEnvDecimal("MAX_POSITION", "5000"),
			MaxDailyLoss:    getEnvDecimal("MAX_DAILY_LOSS", "100"),
			RiskPercentage:  getEnvDecimal("RISK_PERCENTAGE", "0.02"),
			StopDistance:    getEnvDecimal("STOP_DISTANCE", "0.05"),
			TakeProfitRatio: getEnvDecimal("TAKE_PROFIT_RATIO", "0.10"),
			InitialEquity:   getEnvDecimal("INITIAL_EQUITY", "10000"),
		},
		StrategyFile: getEnv("STRATEGY_FILE", ""),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDecimal(key, def string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(def)
}
