package dialog

import (
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/zenghr0820/gvoip/logger"
	"github.com/zenghr0820/gvoip/media"
	"github.com/zenghr0820/gvoip/registry"
	"github.com/zenghr0820/gvoip/sip"
	"github.com/zenghr0820/gvoip/transaction"
	"github.com/zenghr0820/gvoip/utils"
)

// 默认注册绑定有效期(秒)
const DefaultRegisterExpiry uint32 = 3600

// ManagerOption 配置呼叫管理器
type ManagerOption func(m *Manager)

// WithMediaHost 指定 SDP 与 RTP 使用的本端媒体地址
func WithMediaHost(host string) ManagerOption {
	return func(m *Manager) {
		m.mediaHost = host
	}
}

// WithPortRange 指定 RTP 端口区间
func WithPortRange(min, max int) ManagerOption {
	return func(m *Manager) {
		m.ports = media.NewPortAllocator(min, max)
	}
}

// WithJitterWindow 指定抖动缓冲窗口(包数)
func WithJitterWindow(window int) ManagerOption {
	return func(m *Manager) {
		m.jitterWindow = window
	}
}

// WithRegisterExpiry 指定 REGISTER 缺省有效期(秒)
func WithRegisterExpiry(seconds uint32) ManagerOption {
	return func(m *Manager) {
		m.registerExpiry = seconds
	}
}

// Manager 呼叫管理器
// 负责创建会话, 并把事务层送上来的呼叫类请求按 Call-ID 路由到对应会话
type Manager struct {
	txl    transaction.Layer
	reg    *registry.Registry
	codecs *media.Registry
	ports  *media.PortAllocator

	mediaHost      string
	jitterWindow   int
	registerExpiry uint32
}

func NewManager(txl transaction.Layer, reg *registry.Registry, codecs *media.Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		txl:            txl,
		reg:            reg,
		codecs:         codecs,
		registerExpiry: DefaultRegisterExpiry,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.codecs == nil {
		m.codecs = media.NewRegistry()
	}
	if m.ports == nil {
		m.ports = media.NewPortAllocator(media.DefaultPortMin, media.DefaultPortMax)
	}
	if m.mediaHost == "" {
		if ip, err := utils.GetLocalRealIp(); err == nil {
			m.mediaHost = ip.String()
		} else {
			m.mediaHost = "127.0.0.1"
		}
	}

	return m
}

// Place 向 remoteAddr 发起呼叫
func (m *Manager) Place(from, to sip.Uri, remoteAddr string) (*Dialog, error) {
	d := newDialog(m, true)

	if err := d.Place(from, to, remoteAddr); err != nil {
		return nil, err
	}

	m.reg.PutDialog(d)

	// 终响应在注册完成前就到达的话, onDialogState 的摘除会空转
	if d.State() == StateTerminated {
		m.reg.RemoveDialog(d.CallID())
	}

	return d, nil
}

// Find 按 Call-ID 查找会话
func (m *Manager) Find(callID string) (*Dialog, bool) {
	rd, ok := m.reg.FindDialog(callID)
	if !ok {
		return nil, false
	}

	d, ok := rd.(*Dialog)
	return d, ok
}

// Active 返回当前所有会话
func (m *Manager) Active() []*Dialog {
	var dialogs []*Dialog
	for _, rd := range m.reg.ListActive() {
		if d, ok := rd.(*Dialog); ok {
			dialogs = append(dialogs, d)
		}
	}
	return dialogs
}

// HandleRequest 处理事务层送上来的呼叫类请求
func (m *Manager) HandleRequest(req sip.Request, tx sip.ServerTransaction) {
	switch req.Method() {
	case sip.INVITE:
		m.handleInvite(req, tx)
	case sip.BYE:
		m.handleBye(req, tx)
	case sip.REGISTER:
		m.handleRegister(req, tx)
	default:
		res := req.CreateResponseReason(sip.StatusMethodNotAllowed, "Method Not Allowed")
		if err := tx.SendResponse(res); err != nil {
			logger.Warnf("[dialog_manager] -> answer %s failed: %s", req.Method(), err)
		}
	}
}

// HandleAck 处理 2xx 的独立 ACK, 按 Call-ID 路由
func (m *Manager) HandleAck(req sip.Request) {
	callID, ok := req.CallID()
	if !ok {
		return
	}

	if d, ok := m.Find(string(*callID)); ok {
		d.onAck(req)
	}
}

// Close 终结所有会话
func (m *Manager) Close() {
	for _, d := range m.Active() {
		d.Terminate("shutdown")
	}
}

func (m *Manager) handleInvite(req sip.Request, tx sip.ServerTransaction) {
	callID, ok := req.CallID()
	if !ok {
		res := req.CreateResponseReason(sip.StatusBadRequest, "Bad Request")
		_ = tx.SendResponse(res)
		return
	}

	// re-INVITE 暂不支持
	if _, exists := m.reg.FindDialog(string(*callID)); exists {
		res := req.CreateResponseReason(sip.StatusRequestPending, "Request Pending")
		if err := tx.SendResponse(res); err != nil {
			logger.Warnf("[dialog_manager] -> answer re-INVITE failed: %s", err)
		}
		return
	}

	d, err := newUASDialog(m, req, tx)
	if err != nil {
		logger.Warnf("[dialog_manager] -> reject malformed INVITE: %s", err)
		res := req.CreateResponseReason(sip.StatusBadRequest, "Bad Request")
		if sendErr := tx.SendResponse(res); sendErr != nil {
			logger.Warnf("[dialog_manager] -> answer malformed INVITE failed: %s", sendErr)
		}
		return
	}

	m.reg.PutDialog(d)
	go d.runUAS()

	// 自动振铃, 等待用户 Answer/Reject
	if err := d.Ring(); err != nil {
		logger.Warnf("[dialog_manager] -> %s auto ring failed: %s", d.CallID(), err)
	}
}

func (m *Manager) handleBye(req sip.Request, tx sip.ServerTransaction) {
	callID, ok := req.CallID()
	if !ok {
		res := req.CreateResponseReason(sip.StatusBadRequest, "Bad Request")
		_ = tx.SendResponse(res)
		return
	}

	d, ok := m.Find(string(*callID))
	if !ok {
		res := req.CreateResponseReason(sip.StatusCallTransactionDoesNotExist, "Call/Transaction Does Not Exist")
		if err := tx.SendResponse(res); err != nil {
			logger.Warnf("[dialog_manager] -> answer stray BYE failed: %s", err)
		}
		return
	}

	d.onBye(req, tx)
}

// handleRegister 维护账号联系地址绑定
// 有效期优先级: Contact 的 expires 参数 > Expires 头 > 缺省值, 0 表示注销
func (m *Manager) handleRegister(req sip.Request, tx sip.ServerTransaction) {
	from, ok := req.From()
	if !ok {
		res := req.CreateResponseReason(sip.StatusBadRequest, "Bad Request")
		_ = tx.SendResponse(res)
		return
	}

	contact, ok := req.Contact()
	if !ok || contact.Address == nil {
		res := req.CreateResponseReason(sip.StatusBadRequest, "Bad Request")
		if err := tx.SendResponse(res); err != nil {
			logger.Warnf("[dialog_manager] -> answer REGISTER failed: %s", err)
		}
		return
	}

	seconds := m.registerExpiry
	if expires, ok := req.Expires(); ok {
		seconds = uint32(*expires)
	}
	if param, ok := contact.Params.Get("expires"); ok && param != nil {
		if parsed, err := strconv.ParseUint(param.String(), 10, 32); err == nil {
			seconds = uint32(parsed)
		}
	}

	account := from.Address.String()
	address := contact.Address.String()
	m.reg.RegisterContact(account, address, time.Duration(seconds)*time.Second)

	logger.Infof("[dialog_manager] -> register %s at %s for %ds", account, address, seconds)

	res := req.CreateResponseReason(sip.StatusOK, "OK")
	sip.CopyHeaders("Contact", req, res)
	expiresHeader := sip.Expires(seconds)
	res.AddHeader(&expiresHeader)

	if err := tx.SendResponse(res); err != nil {
		logger.Warnf("[dialog_manager] -> answer REGISTER failed: %s", err)
	}
}

// onDialogState 广播状态事件, 终结时从注册表摘除
func (m *Manager) onDialogState(d *Dialog, state State, reason string) {
	var from, to string
	if d.uac {
		from, to = d.localURI.String(), d.remoteURI.String()
	} else {
		from, to = d.remoteURI.String(), d.localURI.String()
	}

	m.reg.Publish(registry.Event{
		Handle: d.callID,
		From:   from,
		To:     to,
		State:  state.String(),
		Reason: reason,
	})

	if state == StateTerminated {
		m.reg.RemoveDialog(d.callID)
	}
}

// newUASDialog 由呼入 INVITE 构建被叫侧会话
func newUASDialog(m *Manager, invite sip.Request, tx sip.ServerTransaction) (*Dialog, error) {
	from, ok := invite.From()
	if !ok {
		return nil, errors.New("dialog: invite missing From")
	}
	to, ok := invite.To()
	if !ok {
		return nil, errors.New("dialog: invite missing To")
	}
	callID, ok := invite.CallID()
	if !ok {
		return nil, errors.New("dialog: invite missing Call-ID")
	}
	cseq, ok := invite.CSeq()
	if !ok {
		return nil, errors.New("dialog: invite missing CSeq")
	}

	offer, err := media.ParseDescription([]byte(invite.Body()))
	if err != nil {
		return nil, errors.Wrap(err, "dialog: parse invite offer")
	}

	d := newDialog(m, false)
	d.callID = string(*callID)
	d.localURI = to.Address
	d.remoteURI = from.Address
	if tag, ok := from.Params.Get("tag"); ok && tag != nil {
		d.remoteTag = tag.String()
	}
	d.remoteAddr = invite.Source()
	d.cseq = cseq.SeqNo
	d.invite = invite
	d.serverTx = tx
	d.offer = offer

	// 本端 tag 固定到 INVITE 的 To 上, 所有响应携带同一 tag
	if !to.Params.Has("tag") {
		to.Params.Add("tag", sip.String{Str: d.localTag})
	}

	d.mu.Lock()
	d.spin(dialogInputInvite)
	d.mu.Unlock()

	return d, nil
}
