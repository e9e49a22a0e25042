package config

// Config is the engine's main configuration carrier.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Market     MarketConfig     `mapstructure:"market"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Trade      TradeConfig      `mapstructure:"trade"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
	Backtest   BacktestConfig   `mapstructure:"backtest"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

type AppConfig struct {
	Env       string `mapstructure:"env"`
	LogLevel  string `mapstructure:"log_level"`
	HTTPAddr  string `mapstructure:"http_addr"`
	LogPath   string `mapstructure:"log_path"`
	DBPath    string `mapstructure:"db_path"`
	PauseFile string `mapstructure:"pause_file"`
}

type MarketConfig struct {
	RESTBaseURL        string `mapstructure:"rest_base_url"`
	APIKey             string `mapstructure:"api_key"`
	APISecret          string `mapstructure:"api_secret"`
	HTTPTimeoutSeconds int    `mapstructure:"http_timeout_seconds"`
	Symbol             string `mapstructure:"symbol"`
	HistoryCapacity    int    `mapstructure:"history_capacity"`
	FearGreedEnabled   bool   `mapstructure:"fear_greed_enabled"`
}

type BreakerConfig struct {
	IntervalSeconds      int     `mapstructure:"interval_seconds"`
	BTCDrop1h            float64 `mapstructure:"btc_drop_1h"`
	BTCDrop4h            float64 `mapstructure:"btc_drop_4h"`
	ETHDrop1h            float64 `mapstructure:"eth_drop_1h"`
	ETHDrop4h            float64 `mapstructure:"eth_drop_4h"`
	MarketCapDrop4h      float64 `mapstructure:"market_cap_drop_4h"`
	Liquidations1h       float64 `mapstructure:"liquidations_1h"`
	StabilizationMinutes int     `mapstructure:"stabilization_minutes"`
	VolatileMove1h       float64 `mapstructure:"volatile_move_1h"`
	StillDroppingMin     float64 `mapstructure:"still_dropping_min"`
	WarningRatio         float64 `mapstructure:"warning_ratio"`
}

type AggregatorConfig struct {
	IntervalSeconds   int                `mapstructure:"interval_seconds"`
	Weights           map[string]float64 `mapstructure:"weights"`
	BuyThreshold      float64            `mapstructure:"buy_threshold"`
	SellThreshold     float64            `mapstructure:"sell_threshold"`
	MinConfidence     float64            `mapstructure:"min_confidence"`
	StaleConfidence   float64            `mapstructure:"stale_confidence"`
	DefaultTTLMinutes int                `mapstructure:"default_ttl_minutes"`
}

// SourcesConfig locates the external signal producers.
type SourcesConfig struct {
	TechnicalInterval string `mapstructure:"technical_interval"`
	PolicyPath        string `mapstructure:"policy_path"`
	VisionPath        string `mapstructure:"vision_path"`
	AgentsPath        string `mapstructure:"agents_path"`
	NewsPath          string `mapstructure:"news_path"`
}

// TradeConfig sizes ledger entries produced from accepted decisions.
type TradeConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	NotionalUSD      float64 `mapstructure:"notional_usd"`
	MaxOpenPositions int     `mapstructure:"max_open_positions"`
}

type ReconcileConfig struct {
	Epsilon         float64 `mapstructure:"epsilon"`
	IntervalSeconds int     `mapstructure:"interval_seconds"`
	RunAtStartup    bool    `mapstructure:"run_at_startup"`
}

type BacktestConfig struct {
	ResultDir      string  `mapstructure:"result_dir"`
	InitialBalance float64 `mapstructure:"initial_balance"`
	PositionPct    float64 `mapstructure:"position_pct"`
	FeeRate        float64 `mapstructure:"fee_rate"`
	StopLossPct    float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct  float64 `mapstructure:"take_profit_pct"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}
