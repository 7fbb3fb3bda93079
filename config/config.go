package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/pairbot/internal/domain"
)

// CurrentVersion es la versión del esquema de configuración. Archivos sin
// campo version se tratan como la versión actual con defaults.
const CurrentVersion = 1

// Config es la configuración completa del bot.
type Config struct {
	Version  int            `yaml:"version"`
	Strategy StrategyConfig `yaml:"strategy"`
	Risk     RiskConfig     `yaml:"risk"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// StrategyConfig controla la detección y dimensionado de pares.
type StrategyConfig struct {
	Mode string `yaml:"mode"` // off | paper | live

	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	LookbackSeconds     int `yaml:"lookback_seconds"` // ventana de frescura del tape
	MaxSignalsPerRun    int `yaml:"max_signals_per_run"`

	// Presupuesto por run
	WalletUsagePercent float64 `yaml:"wallet_usage_percent"` // % del balance usable por run
	PairChunkUSD       float64 `yaml:"pair_chunk_usd"`       // notional objetivo por par
	PaperBalanceUSD    float64 `yaml:"paper_balance_usd"`    // bankroll simulado en modo paper
	MinLegUSD          float64 `yaml:"min_leg_usd"`
	FloorToExchangeMin bool    `yaml:"floor_to_exchange_min"` // sube piernas pequeñas al mínimo del exchange

	// Umbrales de edge en centavos. Los per-cadence sobreescriben el global;
	// una cadencia sin entrada usa el global.
	MinEdgeCents          float64            `yaml:"min_edge_cents"`
	MinEdgeCentsByCadence map[string]float64 `yaml:"min_edge_cents_by_cadence"`

	// Filtros de universo
	Coins    map[string]bool `yaml:"coins"`    // "BTC": true, "ETH": true
	Cadences map[string]bool `yaml:"cadences"` // "5m": true, "15m": true, "hourly": false
}

// RiskConfig controla los límites del governor y el unwind.
// Los tres caps diarios en cero quedan deshabilitados.
type RiskConfig struct {
	MaxDailyLiveNotionalUSD float64 `yaml:"max_daily_live_notional_usd"`
	MaxDailyLiveRuns        int     `yaml:"max_daily_live_runs"`
	MaxDailyDrawdownUSD     float64 `yaml:"max_daily_drawdown_usd"` // stop-loss diario

	MaxUnresolvedImbalancesPerRun int     `yaml:"max_unresolved_imbalances_per_run"`
	UnwindSlippageCents           float64 `yaml:"unwind_slippage_cents"`
	UnwindShareBufferPercent      float64 `yaml:"unwind_share_buffer_percent"`

	AlertWebhookURL string `yaml:"alert_webhook_url"`
}

// APIConfig contiene los base URLs de las APIs de Polymarket.
type APIConfig struct {
	CLOBBase string `yaml:"clob_base"`
	DataBase string `yaml:"data_base"`
	RPCURL   string `yaml:"rpc_url"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	KVPath string `yaml:"kv_path"` // directorio Badger para estado y lock
	DSN    string `yaml:"dsn"`     // ruta al archivo SQLite del historial, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	if cfg.Version > CurrentVersion {
		return nil, fmt.Errorf("config.Load: unsupported config version %d (max %d)", cfg.Version, CurrentVersion)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return &cfg, nil
}

// PollInterval devuelve el intervalo entre runs como time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Strategy.PollIntervalSeconds) * time.Second
}

// Lookback devuelve la ventana de frescura del tape como time.Duration.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.Strategy.LookbackSeconds) * time.Second
}

// MinEdgeFor devuelve el umbral de edge (en centavos) para una cadencia:
// el valor per-cadence si existe, el global si no.
func (c *Config) MinEdgeFor(cad domain.Cadence) float64 {
	if v, ok := c.Strategy.MinEdgeCentsByCadence[string(cad)]; ok {
		return v
	}
	return c.Strategy.MinEdgeCents
}

// CoinEnabled devuelve true si la coin está habilitada. Un mapa vacío
// habilita todas las coins conocidas.
func (c *Config) CoinEnabled(coin domain.Coin) bool {
	if len(c.Strategy.Coins) == 0 {
		return true
	}
	return c.Strategy.Coins[string(coin)]
}

// CadenceEnabled devuelve true si la cadencia está habilitada. Un mapa vacío
// habilita 5m, 15m y hourly pero nunca "other".
func (c *Config) CadenceEnabled(cad domain.Cadence) bool {
	if len(c.Strategy.Cadences) == 0 {
		return cad != domain.CadenceOther
	}
	return c.Strategy.Cadences[string(cad)]
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PAIRBOT_MODE"); v != "" {
		cfg.Strategy.Mode = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		cfg.Risk.AlertWebhookURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Strategy.Mode == "" {
		cfg.Strategy.Mode = "paper"
	}
	if cfg.Strategy.PollIntervalSeconds <= 0 {
		cfg.Strategy.PollIntervalSeconds = 15
	}
	if cfg.Strategy.LookbackSeconds <= 0 {
		cfg.Strategy.LookbackSeconds = 90
	}
	if cfg.Strategy.MaxSignalsPerRun <= 0 {
		cfg.Strategy.MaxSignalsPerRun = 5
	}
	if cfg.Strategy.WalletUsagePercent <= 0 {
		cfg.Strategy.WalletUsagePercent = 50
	}
	if cfg.Strategy.PairChunkUSD <= 0 {
		cfg.Strategy.PairChunkUSD = 10
	}
	if cfg.Strategy.PaperBalanceUSD <= 0 {
		cfg.Strategy.PaperBalanceUSD = 1000
	}
	if cfg.Strategy.MinLegUSD <= 0 {
		cfg.Strategy.MinLegUSD = 1
	}
	if cfg.Strategy.MinEdgeCents <= 0 {
		cfg.Strategy.MinEdgeCents = 2
	}
	// Los caps diarios NO llevan default: cero o ausente = cap deshabilitado.
	if cfg.Risk.MaxUnresolvedImbalancesPerRun <= 0 {
		cfg.Risk.MaxUnresolvedImbalancesPerRun = 2
	}
	if cfg.Risk.UnwindSlippageCents <= 0 {
		cfg.Risk.UnwindSlippageCents = 3
	}
	if cfg.Risk.UnwindShareBufferPercent <= 0 {
		cfg.Risk.UnwindShareBufferPercent = 2
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.RPCURL == "" {
		cfg.API.RPCURL = "https://polygon-rpc.com"
	}
	if cfg.Storage.KVPath == "" {
		cfg.Storage.KVPath = "pairbot-state"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "pairbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// validate rechaza combinaciones que no tienen interpretación segura.
func (c *Config) validate() error {
	switch c.Strategy.Mode {
	case "off", "paper", "live":
	default:
		return fmt.Errorf("invalid mode %q (want off, paper or live)", c.Strategy.Mode)
	}
	if c.Strategy.WalletUsagePercent > 100 {
		return fmt.Errorf("wallet_usage_percent %.1f exceeds 100", c.Strategy.WalletUsagePercent)
	}
	return nil
}
