package gvoip

import (
	"github.com/zenghr0820/gvoip/callback"
	"github.com/zenghr0820/gvoip/dialog"
	"github.com/zenghr0820/gvoip/logger"
	"github.com/zenghr0820/gvoip/media"
	"github.com/zenghr0820/gvoip/registry"
	"github.com/zenghr0820/gvoip/sip"
	"github.com/zenghr0820/gvoip/transaction"
	"github.com/zenghr0820/gvoip/transport"
)

// Options for voip service
type Options struct {
	// 事务层
	tx transaction.Layer
	// 传输层
	tp transport.Layer
	// 呼叫管理器
	dialogs *dialog.Manager
	// 会话注册表
	registry *registry.Registry
	// 编解码器注册表
	codecs *media.Registry
	// 回调处理函数
	Callback callback.Callback
	// 日志
	Logger logger.Logger

	userAgent  string
	timing     transaction.Timing
	dialogOpts []dialog.ManagerOption
}

type Option func(*Options)
type LoggerOption func(*logger.Options)

func newOptions(opts ...Option) Options {
	opt := Options{
		Callback:  callback.DefaultCallback,
		tp:        transport.CreateLayer(),
		Logger:    logger.NewLogger(),
		registry:  registry.NewRegistry(),
		codecs:    media.NewRegistry(),
		userAgent: "GVOIP",
	}

	for _, o := range opts {
		o(&opt)
	}

	opt.tx = transaction.CreateLayer(opt.tp, opt.timing)
	opt.dialogs = dialog.NewManager(opt.tx, opt.registry, opt.codecs, opt.dialogOpts...)

	return opt
}

// Dialogs 返回呼叫管理器
func (o Options) Dialogs() *dialog.Manager {
	return o.dialogs
}

// Registry 返回会话注册表
func (o Options) Registry() *registry.Registry {
	return o.registry
}

// Codecs 返回编解码器注册表
func (o Options) Codecs() *media.Registry {
	return o.codecs
}

// 配置请求回调函数
func RequestCallback(callback map[sip.RequestMethod]sip.RequestHandler) Option {
	return func(o *Options) {
		err := o.Callback.SetRequestHandle(callback)
		logger.Error(err)
	}
}

// 配置响应回调函数
func ResponseCallback(callback sip.ResponseHandler) Option {
	return func(o *Options) {
		err := o.Callback.SetResponseHandle(callback)
		logger.Error(err)
	}
}

// 配置请求回调函数
func AddRequestCallback(method sip.RequestMethod, handler sip.RequestHandler) Option {
	return func(o *Options) {
		o.Callback.AddRequestHandle(method, handler)
	}
}

// 配置传输层IP地址
func Transport(localhost string) Option {
	return func(o *Options) {
		o.tp.Init(transport.LocalAddr(localhost))
	}
}

// 配置传输层 DNS
func DnsConfig(dns string) Option {
	return func(o *Options) {
		o.tp.Init(transport.DnsResolverConfig(dns))
	}
}

// 配置事务层重传/超时基准
func Timing(timing transaction.Timing) Option {
	return func(o *Options) {
		o.timing = timing
	}
}

// 配置编解码器注册表
func Codecs(codecs *media.Registry) Option {
	return func(o *Options) {
		if codecs != nil {
			o.codecs = codecs
		}
	}
}

// 配置 User-Agent
func UserAgent(name string) Option {
	return func(o *Options) {
		o.userAgent = name
	}
}

// 配置本端媒体地址
func MediaHost(host string) Option {
	return func(o *Options) {
		o.dialogOpts = append(o.dialogOpts, dialog.WithMediaHost(host))
	}
}

// 配置 RTP 端口区间
func MediaPortRange(min, max int) Option {
	return func(o *Options) {
		o.dialogOpts = append(o.dialogOpts, dialog.WithPortRange(min, max))
	}
}

// 配置抖动缓冲窗口
func JitterWindow(window int) Option {
	return func(o *Options) {
		o.dialogOpts = append(o.dialogOpts, dialog.WithJitterWindow(window))
	}
}

// 配置 REGISTER 缺省有效期(秒)
func RegisterExpiry(seconds uint32) Option {
	return func(o *Options) {
		o.dialogOpts = append(o.dialogOpts, dialog.WithRegisterExpiry(seconds))
	}
}

// 配置日志
func LoggerConfig(opts ...LoggerOption) Option {
	return func(o *Options) {
		for _, opt := range opts {
			opt(o.Logger.Options())
		}
		o.Logger.Init()
	}
}

func LoggerName(name string) LoggerOption {
	return func(o *logger.Options) {
		option := logger.Name(name)
		option(o)
	}
}

func LoggerLevel(level string) LoggerOption {
	return func(o *logger.Options) {
		option := logger.Level(level)
		option(o)
	}
}

func LoggerEnv(env string) LoggerOption {
	return func(o *logger.Options) {
		option := logger.EnvMode(env)
		option(o)
	}
}

func LoggerSkip(skip int) LoggerOption {
	return func(o *logger.Options) {
		option := logger.Skip(skip)
		option(o)
	}
}
