package logger

import "go.uber.org/zap"

var (
	logger *zap.SugaredLogger
)

type Logger interface {
	// 初始化 logger
	Init(opts ...Option)
	// logger 的配置选项
	Options() *Options

	String() string
}
