package callback

import (
	"github.com/zenghr0820/gvoip/sip"
)

// callback 配置
type Options struct {
	Name            string
	RequestHandlers map[sip.RequestMethod]sip.RequestHandler
	ResponseHandler sip.ResponseHandler
}

type Option func(o *Options)

func Name(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

// RequestHandle 预置指定方法的请求回调
func RequestHandle(method sip.RequestMethod, handler sip.RequestHandler) Option {
	return func(o *Options) {
		if o.RequestHandlers == nil {
			o.RequestHandlers = make(map[sip.RequestMethod]sip.RequestHandler)
		}
		o.RequestHandlers[method] = handler
	}
}

// ResponseHandle 预置响应回调
func ResponseHandle(handler sip.ResponseHandler) Option {
	return func(o *Options) {
		o.ResponseHandler = handler
	}
}
