package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	okxAPIKeyENV      = "OKX_API_KEY"
	okxAPISecretENV   = "OKX_API_SECRET"
	okxPassphraseENV  = "OKX_PASSPHRASE"
)

// DecoderConfig — параметры декодера сигнала. Веса и трансформация риска —
// политика, а не истина: держим настраиваемыми.
type DecoderConfig struct {
	// Веса таймфреймов, ближний горизонт первым. Должно быть 4 значения.
	TimeframeWeights []float64 `yaml:"timeframe_weights"`
	// Пороги на [0,2]-шкале weighted-direction score.
	LongThreshold  float64 `yaml:"long_threshold"`
	ShortThreshold float64 `yaml:"short_threshold"`
	// Сигнал ниже этой combined confidence отбрасывается (NEUTRAL, 0).
	MinConfidence float64 `yaml:"min_confidence"`
	// Веса трёх слагаемых combined confidence.
	AgreementWeight float64 `yaml:"agreement_weight"`
	ModelWeight     float64 `yaml:"model_weight"`
	RiskWeight      float64 `yaml:"risk_weight"`
	// Крутизна логистической risk→confidence трансформации.
	TransformSteepness float64 `yaml:"transform_steepness"`
}

type RiskConfig struct {
	MinStopPct     float64 `yaml:"min_stop_pct"` // границы SL, напр. 0.2..3.0 (%)
	MaxStopPct     float64 `yaml:"max_stop_pct"`
	MinTakePct     float64 `yaml:"min_take_pct"`
	MaxTakePct     float64 `yaml:"max_take_pct"`
	DefaultStopPct float64 `yaml:"default_stop_pct"` // fail-closed дефолты
	DefaultTakePct float64 `yaml:"default_take_pct"`
	StopBuffer     float64 `yaml:"stop_buffer"`     // множитель к предсказанной просадке
	TakeProfitRR   float64 `yaml:"take_profit_rr"`  // TP = RR * дистанция до SL, минимум
	RiskPct        float64 `yaml:"risk_pct"`        // % депозита на сделку, напр. 1.0
	Leverage       int     `yaml:"leverage"`
	MaxOpenPositions int   `yaml:"max_open_positions"`
}

type ProtectiveConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	TriggerBy   string `yaml:"trigger_by"` // last | mark | index

	// только через env (SLTP_RETRY_INITIAL / SLTP_RETRY_MAX)
	RetryInitial time.Duration
	RetryMax     time.Duration

	TrailingEnabled bool    `yaml:"trailing_enabled"`
	ActivationPct   float64 `yaml:"activation_pct"` // активация трейла: % от entry
	CallbackPct     float64 `yaml:"callback_pct"`   // отступ трейла, % от цены

	BreakevenTriggerPct float64 `yaml:"breakeven_trigger_pct"` // ROI %, после которого SL в entry

	PartialCloseRatio      float64 `yaml:"partial_close_ratio"`       // 0 = выключено
	PartialCloseTriggerPct float64 `yaml:"partial_close_trigger_pct"` // % хода от entry
}

type HealthConfig struct {
	StopWeight  float64 `yaml:"stop_weight"`
	TrendWeight float64 `yaml:"trend_weight"`
	TimeWeight  float64 `yaml:"time_weight"`
	VolWeight   float64 `yaml:"vol_weight"`

	WarnBelow     float64 `yaml:"warn_below"`     // score < → WARNING
	CriticalBelow float64 `yaml:"critical_below"` // score < → CRITICAL

	StopRefPct    float64 `yaml:"stop_ref_pct"`   // "комфортная" дистанция до стопа, %
	RefVolatility float64 `yaml:"ref_volatility"` // нормировка волатильности
	Lookback      int     `yaml:"lookback"`       // сколько снапшотов брать в тренд

	ExpectedHold time.Duration // env EXPECTED_HOLD
}

type SupervisorConfig struct {
	Workers int `yaml:"workers"` // bounded worker pool

	// интервалы задаются через env: SUPERVISOR_INTERVAL,
	// SUPERVISOR_TICK_TIMEOUT, PRICE_STALENESS
	Interval       time.Duration
	TickTimeout    time.Duration // дедлайн на одну позицию
	PriceStaleness time.Duration
}

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		Host       string `yaml:"host"`
		AdminPort  int    `yaml:"admin_port"`
		JaegerHost string `yaml:"jaeger_host"`
		JaegerPort int    `yaml:"jaeger_port"`
	} `yaml:"service"`

	Exchange struct {
		Name       string `yaml:"name"` // пока только okx
		BaseURL    string `yaml:"base_url"`
		WSURL      string `yaml:"ws_url"`
		APIKey     string `yaml:"api_key"`
		APISecret  string `yaml:"api_secret"`
		Passphrase string `yaml:"passphrase"`
	} `yaml:"exchange"`

	Decoder    DecoderConfig    `yaml:"decoder"`
	Risk       RiskConfig       `yaml:"risk"`
	Protective ProtectiveConfig `yaml:"protective"`
	Health     HealthConfig     `yaml:"health"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
}

func NewConfig() (*Config, error) {
	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		Decoder: DecoderConfig{
			TimeframeWeights:   []float64{0.4, 0.3, 0.2, 0.1},
			LongThreshold:      1.5,
			ShortThreshold:     0.5,
			MinConfidence:      floatFromEnv("MIN_CONFIDENCE", 0.35),
			AgreementWeight:    0.5,
			ModelWeight:        0.3,
			RiskWeight:         0.2,
			TransformSteepness: 4.0,
		},
		Risk: RiskConfig{
			MinStopPct:       0.2,
			MaxStopPct:       3.0,
			MinTakePct:       0.4,
			MaxTakePct:       9.0,
			DefaultStopPct:   0.5,
			DefaultTakePct:   1.5,
			StopBuffer:       1.2,
			TakeProfitRR:     floatFromEnv("TAKE_PROFIT_RR", 2.0),
			RiskPct:          floatFromEnv("RISK_PCT", 1.0),
			Leverage:         intFromEnv("LEVERAGE", 10),
			MaxOpenPositions: intFromEnv("MAX_OPEN_POSITIONS", 10),
		},
		Protective: ProtectiveConfig{
			MaxAttempts:            intFromEnv("SLTP_MAX_ATTEMPTS", 3),
			RetryInitial:           durationFromEnv("SLTP_RETRY_INITIAL", "500ms"),
			RetryMax:               durationFromEnv("SLTP_RETRY_MAX", "5s"),
			TriggerBy:              getenvDefault("SLTP_TRIGGER_BY", "last"),
			TrailingEnabled:        boolFromEnv("TRAILING_ENABLED", true),
			ActivationPct:          2.0,
			CallbackPct:            1.0,
			BreakevenTriggerPct:    0.6,
			PartialCloseRatio:      0.5,
			PartialCloseTriggerPct: 1.5,
		},
		Health: HealthConfig{
			StopWeight:    0.35,
			TrendWeight:   0.25,
			TimeWeight:    0.15,
			VolWeight:     0.25,
			WarnBelow:     0.6,
			CriticalBelow: 0.3,
			StopRefPct:    1.0,
			RefVolatility: 0.02,
			ExpectedHold:  durationFromEnv("EXPECTED_HOLD", "8h"),
			Lookback:      intFromEnv("HEALTH_LOOKBACK", 30),
		},
		Supervisor: SupervisorConfig{
			Interval:       durationFromEnv("SUPERVISOR_INTERVAL", "15s"),
			TickTimeout:    durationFromEnv("SUPERVISOR_TICK_TIMEOUT", "10s"),
			Workers:        intFromEnv("SUPERVISOR_WORKERS", 8),
			PriceStaleness: durationFromEnv("PRICE_STALENESS", "15s"),
		},
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	if config.Service.JaegerHost == "" {
		config.Service.JaegerHost = getenvDefault("JAEGER_HOST", "localhost")
	}
	if config.Service.JaegerPort == 0 {
		config.Service.JaegerPort = intFromEnv("JAEGER_PORT", 6831)
	}
	if config.Exchange.BaseURL == "" {
		config.Exchange.BaseURL = "https://www.okx.com"
	}
	if config.Exchange.WSURL == "" {
		config.Exchange.WSURL = "wss://ws.okx.com:8443/ws/v5/public"
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if v := os.Getenv(okxAPIKeyENV); v != "" {
		config.Exchange.APIKey = v
	}
	if v := os.Getenv(okxAPISecretENV); v != "" {
		config.Exchange.APISecret = v
	}
	if v := os.Getenv(okxPassphraseENV); v != "" {
		config.Exchange.Passphrase = v
	}

	return &config, nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
