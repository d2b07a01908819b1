// Package config reads the process configuration from the environment, with
// an optional .env file filling in whatever the environment leaves unset.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/entities/manager"
	"github.com/jonathanbbiles/BorB4/entities/signaler"
	"github.com/jonathanbbiles/BorB4/entities/trader"
	"github.com/jonathanbbiles/BorB4/enum"
	"github.com/jonathanbbiles/BorB4/exchange/alpaca"
	"github.com/jonathanbbiles/BorB4/exchange/coinbase"
)

var DefaultSymbols = []string{"BTC/USD", "ETH/USD", "SOL/USD", "LINK/USD", "AVAX/USD", "DOGE/USD"}

type Config struct {
	Broker      enum.Broker
	Symbols     []string
	LogLevel    slog.Level
	LogDir      string
	MetricsAddr string

	AlpacaBaseURL   string
	AlpacaKeyID     string
	AlpacaSecretKey string

	CoinbaseBaseURL   string
	CoinbaseFeedURL   string
	CoinbaseAPIKey    string
	CoinbaseAPISecret string

	PaperStartingCash decimal.Decimal
	PricePollInterval time.Duration
	PriceHistory      int

	RedisAddr     string
	RedisPassword string
	LockTTL       time.Duration

	DatabaseURL string

	SlackWebhook string
	SNSTopicARN  string

	Evaluator signaler.EvaluatorConfig
	Scheduler manager.ManagerCfg

	policy trader.Policy
}

// Load hydrates the environment from the given .env files (missing files are
// ignored, set variables are never overridden) and reads every knob. Unknown
// enum values are reported; everything else falls back to its default.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	var errs []error
	cfg := Config{
		Symbols:     getEnvList("SYMBOLS", DefaultSymbols),
		LogDir:      getEnv("LOG_DIR", "logs"),
		MetricsAddr: getEnv("METRICS_ADDR", ":8080"),

		AlpacaBaseURL:   getEnv("ALPACA_BASE_URL", alpaca.PaperURL),
		AlpacaKeyID:     getEnv("ALPACA_API_KEY", ""),
		AlpacaSecretKey: getEnv("ALPACA_SECRET_KEY", ""),

		CoinbaseBaseURL:   getEnv("COINBASE_URL", coinbase.DefaultBaseURL),
		CoinbaseFeedURL:   getEnv("COINBASE_WS_URL", coinbase.DefaultFeedURL),
		CoinbaseAPIKey:    getEnv("COINBASE_API_KEY", ""),
		CoinbaseAPISecret: getEnv("COINBASE_API_SECRET", ""),

		PaperStartingCash: getEnvDecimal("PAPER_STARTING_CASH", decimal.NewFromInt(10000)),
		PricePollInterval: getEnvDuration("PRICE_POLL_INTERVAL", 5*time.Second),
		PriceHistory:      getEnvInt("PRICE_HISTORY", 500),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		LockTTL:       getEnvDuration("LOCK_TTL", 5*time.Minute),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		SlackWebhook: getEnv("SLACK_WEBHOOK_URL", ""),
		SNSTopicARN:  getEnv("SNS_TOPIC_ARN", ""),
	}

	broker, err := enum.GetBrokerFromString(getEnv("BROKER", "paper"))
	errs = append(errs, err)
	cfg.Broker = broker

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	cfg.Evaluator = signaler.DefaultEvaluatorConfig()
	cfg.Evaluator.EntryMode, err = enum.GetEntryMode(getEnv("ENTRY_MODE", "macd_cross"))
	errs = append(errs, err)
	cfg.Evaluator.ZScoreMode, err = enum.GetZScoreMode(getEnv("ZSCORE_MODE", "reversion"))
	errs = append(errs, err)
	cfg.Evaluator.RSIPeriod = getEnvInt("RSI_PERIOD", cfg.Evaluator.RSIPeriod)
	cfg.Evaluator.RSIOverbought = getEnvFloat("RSI_OVERBOUGHT", cfg.Evaluator.RSIOverbought)
	cfg.Evaluator.RSIOversold = getEnvFloat("RSI_OVERSOLD", cfg.Evaluator.RSIOversold)
	cfg.Evaluator.SlopePeriod = getEnvInt("SLOPE_PERIOD", cfg.Evaluator.SlopePeriod)
	cfg.Evaluator.ZScorePeriod = getEnvInt("ZSCORE_PERIOD", cfg.Evaluator.ZScorePeriod)
	cfg.Evaluator.ZScoreThreshold = getEnvFloat("ZSCORE_THRESHOLD", cfg.Evaluator.ZScoreThreshold)

	sched := manager.DefaultManagerCfg()
	sched.Interval = getEnvDuration("CYCLE_INTERVAL", sched.Interval)
	sched.MaxConcurrency = getEnvInt("MAX_CONCURRENCY", sched.MaxConcurrency)
	sched.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", sched.ShutdownTimeout)
	sched.MinHistory = signaler.NewTalibEvaluator(cfg.Evaluator).MinHistory()
	cfg.Scheduler = sched

	cfg.policy = policyFromEnv(trader.DefaultPolicy())

	return cfg, errors.Join(errs...)
}

func policyFromEnv(p trader.Policy) trader.Policy {
	p.BaseFraction = getEnvDecimal("BASE_FRACTION", p.BaseFraction)
	p.StrengthThreshold = getEnvFloat("STRENGTH_THRESHOLD", p.StrengthThreshold)
	p.StrongSignalScale = getEnvDecimal("STRONG_SIGNAL_SCALE", p.StrongSignalScale)
	p.SafetyMargin = getEnvDecimal("SAFETY_MARGIN", p.SafetyMargin)
	p.PriceCollar = getEnvDecimal("PRICE_COLLAR", p.PriceCollar)
	p.ExtraBuffer = getEnvDecimal("EXTRA_BUFFER", p.ExtraBuffer)
	p.MinOrderNotional = getEnvDecimal("MIN_ORDER_NOTIONAL", p.MinOrderNotional)
	p.MinPositionNotional = getEnvDecimal("MIN_POSITION_NOTIONAL", p.MinPositionNotional)
	p.NotionalPrecision = int32(getEnvInt("NOTIONAL_PRECISION", int(p.NotionalPrecision)))
	p.PricePrecision = int32(getEnvInt("PRICE_PRECISION", int(p.PricePrecision)))
	p.QuantityPrecision = int32(getEnvInt("QUANTITY_PRECISION", int(p.QuantityPrecision)))
	p.BuyBuffer = getEnvDecimal("BUY_BUFFER", p.BuyBuffer)

	p.Exit.ProfitMarkup = getEnvDecimal("PROFIT_MARKUP", p.Exit.ProfitMarkup)
	p.Exit.FeeBuffer = getEnvDecimal("FEE_BUFFER", p.Exit.FeeBuffer)
	p.Exit.TargetProfit = getEnvDecimal("TARGET_PROFIT", p.Exit.TargetProfit)
	p.Exit.StopLossEnabled = getEnvBool("STOP_LOSS_ENABLED", p.Exit.StopLossEnabled)
	p.Exit.StopLossPercent = getEnvDecimal("STOP_LOSS_PERCENT", p.Exit.StopLossPercent)
	p.Exit.StopLimitOffset = getEnvDecimal("STOP_LIMIT_OFFSET", p.Exit.StopLimitOffset)

	p.FillPollInterval = getEnvDuration("FILL_POLL_INTERVAL", p.FillPollInterval)
	p.FillMaxAttempts = getEnvInt("FILL_MAX_ATTEMPTS", p.FillMaxAttempts)
	p.Cooldown = getEnvDuration("COOLDOWN", p.Cooldown)
	p.MaxHoldDuration = getEnvDuration("MAX_HOLD_DURATION", p.MaxHoldDuration)
	p.StagnationBand = getEnvDecimal("STAGNATION_BAND", p.StagnationBand)
	p.AbortRecoveryDelay = getEnvDuration("ABORT_RECOVERY_DELAY", p.AbortRecoveryDelay)

	p.Retry.MaxRetries = getEnvInt("ORDER_MAX_RETRIES", p.Retry.MaxRetries)
	p.Retry.Backoff = getEnvDuration("ORDER_RETRY_BACKOFF", p.Retry.Backoff)
	return p
}

// Policy is the trade policy every symbol's controller runs with.
func (c Config) Policy() trader.Policy {
	return c.policy
}

// Validate reports every knob that cannot work, including missing
// credentials for the selected broker.
func (c Config) Validate() error {
	var errs []error
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("SYMBOLS must name at least one symbol"))
	}
	switch c.Broker {
	case enum.BrokerAlpaca:
		if c.AlpacaKeyID == "" || c.AlpacaSecretKey == "" {
			errs = append(errs, errors.New("ALPACA_API_KEY and ALPACA_SECRET_KEY are required for the alpaca broker"))
		}
	case enum.BrokerCoinbase:
		if c.CoinbaseAPIKey == "" || c.CoinbaseAPISecret == "" {
			errs = append(errs, errors.New("COINBASE_API_KEY and COINBASE_API_SECRET are required for the coinbase broker"))
		}
	case enum.BrokerPaper:
		if !c.PaperStartingCash.IsPositive() {
			errs = append(errs, errors.New("PAPER_STARTING_CASH must be positive"))
		}
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("CYCLE_INTERVAL must be positive"))
	}
	if c.Scheduler.MaxConcurrency < 1 {
		errs = append(errs, errors.New("MAX_CONCURRENCY must be at least 1"))
	}
	if c.PriceHistory < c.Scheduler.MinHistory {
		errs = append(errs, fmt.Errorf("PRICE_HISTORY must hold at least %d closes", c.Scheduler.MinHistory))
	}
	if err := c.policy.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
