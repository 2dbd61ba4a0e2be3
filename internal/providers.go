package internal

import (
	"go.uber.org/zap"

	"github.com/mayconvmartins/mvcashnode-sub004/internal/alert"
	"github.com/mayconvmartins/mvcashnode-sub004/internal/config"
	"github.com/mayconvmartins/mvcashnode-sub004/pkg/exchange"
)

// provideExchange picks the execution venue: Binance when live trading is
// enabled, the deterministic paper exchange otherwise.
func provideExchange(conf *config.Config, logger *zap.Logger) exchange.Exchange {
	if conf.Trading.Live {
		client := exchange.NewBinanceClient(
			conf.Binance.APIKey,
			conf.Binance.Secret,
			conf.Binance.ProxyURL,
			conf.Binance.Testnet,
		)
		if conf.Binance.APIKey == "" || conf.Binance.Secret == "" {
			logger.Warn("Binance API credentials not configured; private endpoints will fail")
		}
		logger.Info("Binance client initialized",
			zap.Bool("testnet", conf.Binance.Testnet),
			zap.Bool("has_credentials", conf.Binance.APIKey != "" && conf.Binance.Secret != ""),
		)
		return client
	}

	logger.Info("live trading disabled, using paper exchange")
	return exchange.NewPaperExchange()
}

// provideAlerter wires telegram delivery; a disabled config yields a nil
// alerter, which every call site tolerates.
func provideAlerter(logger *zap.Logger, conf *config.Config) *alert.Alerter {
	if !conf.Telegram.Enabled {
		return nil
	}
	alerter, err := alert.NewAlerter(logger, alert.Settings{
		Token:  conf.Telegram.Token,
		ChatID: conf.Telegram.ChatID,
	})
	if err != nil {
		logger.Error("failed to init telegram alerter", zap.Error(err))
		return nil
	}
	return alerter
}

func provideResidueConf(conf *config.Config) config.ResidueConf {
	return conf.Residue
}

func provideAuditConf(conf *config.Config) config.AuditConf {
	return conf.Audit
}

func provideConfigValue(conf *config.Config) config.Config {
	return *conf
}
