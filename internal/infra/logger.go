package infra

import "go.uber.org/zap"

// NewLogger собирает корневой zap-логгер по настройкам из конфига.
// Компоненты получают именованных потомков через logger.Named.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = level
	return zapCfg.Build()
}
