package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type defaultLogger struct {
	opts Options
	once sync.Once
}

func NewLogger(opts ...Option) Logger {
	options := Options{
		Name:    "gvoip",
		Level:   "error",
		EnvMode: "prod",
		Skip:    2,
	}

	for _, o := range opts {
		o(&options)
	}

	return &defaultLogger{
		opts: options,
	}
}

func (d *defaultLogger) Init(opts ...Option) {
	for _, o := range opts {
		o(&d.opts)
	}

	d.once.Do(func() {
		var cfg zap.Config
		if d.opts.EnvMode == "dev" {
			cfg = zap.NewDevelopmentConfig()
		} else {
			cfg = zap.NewProductionConfig()
		}

		var level zapcore.Level
		if err := level.Set(d.opts.Level); err != nil {
			level = zapcore.ErrorLevel
		}
		cfg.Level = zap.NewAtomicLevelAt(level)

		zl, err := cfg.Build(zap.AddCallerSkip(d.opts.Skip))
		if err != nil {
			zl = zap.NewNop()
		}

		logger = zl.Named(d.opts.Name).Sugar()
	})
}

func (d *defaultLogger) Options() *Options {
	return &d.opts
}

func (d *defaultLogger) String() string {
	return d.opts.Name + "-" + d.opts.EnvMode
}
