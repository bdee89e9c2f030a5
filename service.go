package gvoip

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/zenghr0820/gvoip/callback"
	"github.com/zenghr0820/gvoip/dialog"
	"github.com/zenghr0820/gvoip/logger"
	"github.com/zenghr0820/gvoip/registry"
	"github.com/zenghr0820/gvoip/sip"
	"github.com/zenghr0820/gvoip/utils"
)

type service struct {
	opts Options

	close chan bool
	hwg   sync.WaitGroup
	once  sync.Once
}

func newService(opts ...Option) Service {
	service := new(service)
	service.opts = newOptions(opts...)
	service.close = make(chan bool)
	// 开启 goroutine 监听信令
	go service.start()
	return service
}

func (s *service) Listen(network string, listenAddr string) error {
	return s.opts.tp.Listen(network, listenAddr)
}

// 发送请求或者响应
func (s *service) Send(message sip.Message) (sip.Transaction, error) {
	select {
	case <-s.close:
		return nil, fmt.Errorf("[GVOIP] -> service closed")
	default:
	}

	s.autoFillMessageHeader(message)
	return s.opts.tx.Send(message)
}

// Place 发起呼叫
func (s *service) Place(from, to sip.Uri, remoteAddr string) (*dialog.Dialog, error) {
	select {
	case <-s.close:
		return nil, fmt.Errorf("[GVOIP] -> service closed")
	default:
	}

	return s.opts.dialogs.Place(from, to, remoteAddr)
}

func (s *service) Dialogs() *dialog.Manager {
	return s.opts.dialogs
}

func (s *service) Registry() *registry.Registry {
	return s.opts.registry
}

func (s *service) Events() <-chan registry.Event {
	return s.opts.registry.Subscribe()
}

func (s *service) autoFillMessageHeader(message sip.Message) {
	autoAppendMethods := map[sip.RequestMethod]bool{
		sip.INVITE:   true,
		sip.REGISTER: true,
		sip.OPTIONS:  true,
		sip.REFER:    true,
		sip.NOTIFY:   true,
	}

	var msgMethod sip.RequestMethod
	var statusCode sip.StatusCode
	switch m := message.(type) {
	case sip.Request:
		msgMethod = m.Method()
	case sip.Response:
		statusCode = m.StatusCode()
		if cseq, ok := m.CSeq(); ok && !m.IsProvisional() {
			msgMethod = cseq.MethodName
		}
	}

	if statusCode == sip.StatusMethodNotAllowed || len(msgMethod) > 0 {
		if _, ok := autoAppendMethods[msgMethod]; ok {
			hdrs := message.GetHeaders("Allow")
			if len(hdrs) == 0 {
				// 引擎内建的呼叫类方法 + 用户注册的回调方法
				allow := sip.AllowHeader{sip.INVITE, sip.ACK, sip.CANCEL, sip.BYE, sip.REGISTER}
				for _, method := range s.opts.Callback.GetAllowedMethods() {
					allow = append(allow, method)
				}

				message.AddHeader(allow)
			}
		}
	}

	if hdrs := message.GetHeaders("User-Agent"); len(hdrs) == 0 {
		userAgent := sip.UserAgentHeader(s.opts.userAgent)
		message.AddHeader(&userAgent)
	}

	// from tag
	if from, ok := message.From(); ok && !from.Params.Has("tag") {
		from.Params.Add("tag", &sip.String{Str: utils.RandString(10, true)})
	}
}

func (s *service) Run() error {
	select {
	case <-s.close:
		return fmt.Errorf("[GVOIP] -> service closed")
	}
}

func (s *service) Close() error {
	// 确保关闭方法只执行一次
	s.once.Do(func() {
		s.stop()
	})

	return nil
}

func (s *service) Options() Options {
	return s.opts
}

func (s *service) String() string {
	return "gvoip"
}

// 信令主循环: 事务层事件分发
func (s *service) start() {
	defer func() {
		err := s.Close()
		if err != nil {
			logger.Error("[GVOIP] close error: ", err)
		}
	}()

	for {
		select {
		case tx, ok := <-s.opts.tx.Requests():
			if !ok {
				return
			}
			s.hwg.Add(1)
			go s.handleRequest(tx)
		case ack, ok := <-s.opts.tx.AckRequest():
			if !ok {
				return
			}
			// 2xx 的 ACK 不匹配任何事务, 按 Call-ID 路由到呼叫
			s.opts.dialogs.HandleAck(ack)
		case res, ok := <-s.opts.tx.Responses():
			if !ok {
				return
			}
			s.hwg.Add(1)
			go s.handleResponse(res)
		case err, ok := <-s.opts.tx.Errors():
			if !ok {
				return
			}
			logger.Errorf("[GVOIP] -> received transaction error: %s", err)
		case err, ok := <-s.opts.tp.Errors():
			if !ok {
				return
			}
			logger.Errorf("[GVOIP] -> received transport error: %s", err)
		}
	}
}

// 停止服务
func (s *service) stop() {
	select {
	case <-s.close:
		return
	default:
	}

	// 先终结所有呼叫, 媒体随之拆除
	s.opts.dialogs.Close()
	s.opts.registry.Close()
	// stop transaction layer
	s.opts.tx.Close()
	<-s.opts.tx.Done()
	// stop transport layer
	s.opts.tp.Close()
	<-s.opts.tp.Done()
	// wait for handlers
	s.hwg.Wait()
	// stop service
	close(s.close)
}

// 处理请求: 呼叫类交给呼叫管理器, 其余走用户回调链
func (s *service) handleRequest(tx sip.ServerTransaction) {
	defer s.hwg.Done()

	request := tx.Origin()

	switch request.Method() {
	case sip.INVITE, sip.BYE, sip.REGISTER:
		s.opts.dialogs.HandleRequest(request, tx)
		return
	}

	err := s.opts.Callback.DoRequest(request, tx)
	// NotExitCallbackError
	var notExitCallbackError *callback.NotExitCallbackError
	if err != nil && errors.As(err, &notExitCallbackError) {
		logger.Warnf("[GVOIP] -> %s request handler not found", request.Method())

		response := request.CreateResponseReason(sip.StatusMethodNotAllowed, "Method Not Allowed")
		s.autoFillMessageHeader(response)
		if err := tx.SendResponse(response); err != nil {
			logger.Errorf("[GVOIP] -> send '405 Method Not Allowed' failed: %s", err)
		}

		return
	}
}

// 处理事务外响应
func (s *service) handleResponse(response sip.Response) {
	defer s.hwg.Done()

	err := s.opts.Callback.DoResponse(response, nil)
	// NotExitCallbackError
	var notExitCallbackError *callback.NotExitCallbackError
	if err != nil && errors.As(err, &notExitCallbackError) {
		logger.Debugf("[GVOIP] -> %d response without handler dropped", response.StatusCode())
	}
}

/**
 * 生成请求
 *
 * @param method RequestMethod 请求类型
 * @param remoteAddr string remoteAddr 发送地址
 * @param from string from 头部参数
 * @param to string to 头部参数
 * @return Request 返回请求
 */
func (s *service) CreateRequest(method sip.RequestMethod, remoteAddr string, from, to sip.Uri) sip.Request {
	return sip.CreateRequest(method, remoteAddr, from, to)
}

func (s *service) CreateSimpleRequest(method sip.RequestMethod, remoteAddr string) sip.Request {
	return sip.CreateSimpleRequest(method, remoteAddr)
}

/**
 * 生成 Sip 地址
 *
 * @param user string 用户(账号:密码)：abc:123456
 * @param domain string SIP 域: ("127.0.0.1:5060")
 * @return sip.Uri 返回 Uri
 */
func (s *service) CreateSipUri(user string, domain string) sip.Uri {

	sipUri := &sip.SipUri{
		FIsEncrypted: false,
		FUser:        nil,
		FPassword:    nil,
		FDomain:      sip.Addr{},
		FUriParams:   sip.NewParams(),
		FHeaders:     sip.NewParams(),
	}

	userIdx := strings.Index(user, ":")
	if userIdx == -1 {
		sipUri.FUser = sip.String{Str: user}
	} else {
		sipUri.FUser = sip.String{Str: user[:userIdx]}
		sipUri.FPassword = sip.String{Str: user[userIdx+1:]}
	}

	domainIdx := strings.Index(domain, ":")
	if domainIdx == -1 {
		sipUri.FDomain.Host = domain
	} else {
		sipUri.FDomain.Host = domain[:domainIdx]
		if p, err := strconv.Atoi(domain[domainIdx+1:]); err == nil {
			port := sip.Port(p)
			sipUri.FDomain.Port = &port
		}

	}

	return sipUri
}
