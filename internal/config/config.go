package config

type Config struct {
	Binance  BinanceConf  `json:"binance"`
	Trading  TradingConf  `json:"trading"`
	Residue  ResidueConf  `json:"residue"`
	Audit    AuditConf    `json:"audit"`
	Telegram TelegramConf `json:"telegram"`
}

type BinanceConf struct {
	APIKey   string `json:"api_key"`
	Secret   string `json:"secret"`
	ProxyURL string `json:"proxy_url"` // e.g. http://127.0.0.1:7890
	Testnet  bool   `json:"testnet"`
}

type TradingConf struct {
	Live                    bool `json:"live"`                      // false runs against the paper exchange
	SnapshotIntervalMinutes int  `json:"snapshot_interval_minutes"` // balance history cadence, default 60
}

type ResidueConf struct {
	ThresholdPercent float64 `json:"threshold_percent"`     // dust when qty_remaining below this % of original, default 1
	ThresholdUSD     float64 `json:"threshold_usd"`         // and below this USD value, default 1
	MinCloseUSD      float64 `json:"min_close_usd"`         // group close floor, default 5
	PriceMaxAgeMin   int     `json:"price_max_age_minutes"` // mark price freshness bound, default 5
}

type AuditConf struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes"` // sweep cadence, default 60
	LookbackHours   int  `json:"lookback_hours"`   // default 24
	DryRun          bool `json:"dry_run"`          // classify only, never repair
}

type TelegramConf struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  string `json:"chat_id"`
}
