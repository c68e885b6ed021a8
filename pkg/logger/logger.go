// Package logger, zap logger kurulumunu tek yerde toplar.
//
// Her bileşen kendi adıyla türetilmiş bir logger alır:
//
//	log := logger.Named("connection")
//	log.Info("connected", zap.Stringer("scope", scope))
//
// Çıktıdaki "logger" alanı eski "[tag]" prefix'lerinin yerini tutar.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New, seviye ve moda göre logger oluşturur.
// development=true → renkli console encoder, aksi halde JSON.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	// CLI stdout'u kullanıcıya ait, loglar stderr'e gider.
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return log, nil
}

// Token, token'ı loglanabilir hale getirir: sadece uzunluk ve son 4 karakter.
func Token(token string) zap.Field {
	if len(token) <= 4 {
		return zap.String("token", "<redacted>")
	}
	return zap.String("token", fmt.Sprintf("<redacted len=%d …%s>", len(token), token[len(token)-4:]))
}
