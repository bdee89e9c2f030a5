package dialog

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/discoviking/fsm"

	"github.com/zenghr0820/gvoip/logger"
	"github.com/zenghr0820/gvoip/media"
	"github.com/zenghr0820/gvoip/sip"
	"github.com/zenghr0820/gvoip/transaction"
	"github.com/zenghr0820/gvoip/utils"
)

// Status 呼叫状态快照
type Status struct {
	CallID string
	State  State
	// 协商结果, 接通前为空
	Codec          string
	PayloadType    uint8
	LocalMediaPort int

	CreatedAt    time.Time
	ConnectedAt  time.Time
	TerminatedAt time.Time

	// 终结原因描述
	Reason string
	// 失败终结时的具体错误
	Err error
}

// Dialog 一通呼叫
// 所有操作经内部互斥锁串行化, 状态迁移由 FSM 把关
type Dialog struct {
	mu  sync.Mutex
	fsm *fsm.FSM
	// State 的原子镜像, Status/State 无锁读取
	state int32

	callID     string
	uac        bool
	localURI   sip.Uri
	remoteURI  sip.Uri
	localTag   string
	remoteTag  string
	remoteAddr string
	cseq       uint32

	txl          transaction.Layer
	codecs       *media.Registry
	ports        *media.PortAllocator
	mediaHost    string
	jitterWindow int

	// 原始 INVITE
	invite sip.Request
	// 被叫侧 INVITE 服务端事务
	serverTx sip.ServerTransaction
	// 主叫侧 INVITE 客户端事务
	inviteTx sip.ClientTransaction
	// 被叫侧收到的媒体 offer
	offer *media.Description

	session *media.Session
	codec   media.Codec

	placed          bool
	cancelRequested bool

	createdAt    time.Time
	connectedAt  time.Time
	terminatedAt time.Time
	reason       string
	termErr      error

	notify   func(d *Dialog, state State, reason string)
	done     chan struct{}
	termOnce sync.Once
}

func newDialog(m *Manager, uac bool) *Dialog {
	d := &Dialog{
		uac:          uac,
		localTag:     utils.RandString(10, true),
		txl:          m.txl,
		codecs:       m.codecs,
		ports:        m.ports,
		mediaHost:    m.mediaHost,
		jitterWindow: m.jitterWindow,
		createdAt:    time.Now(),
		notify:       m.onDialogState,
		done:         make(chan struct{}),
	}
	d.initFSM()

	return d
}

// CallID 返回呼叫的会话句柄
func (d *Dialog) CallID() string {
	return d.callID
}

// State 返回当前呼叫状态
func (d *Dialog) State() State {
	return State(atomic.LoadInt32(&d.state))
}

// Done 呼叫终结后关闭
func (d *Dialog) Done() <-chan struct{} {
	return d.done
}

// Media 返回媒体会话, 接通前或终结后为 nil
func (d *Dialog) Media() *media.Session {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.session
}

// Status 返回呼叫状态快照
func (d *Dialog) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := Status{
		CallID:       d.callID,
		State:        d.State(),
		CreatedAt:    d.createdAt,
		ConnectedAt:  d.connectedAt,
		TerminatedAt: d.terminatedAt,
		Reason:       d.reason,
		Err:          d.termErr,
	}
	if d.codec != nil {
		status.Codec = d.codec.Name()
		status.PayloadType = d.codec.PayloadType()
	}
	if d.session != nil {
		status.LocalMediaPort = d.session.LocalPort()
	}

	return status
}

func (d *Dialog) String() string {
	return fmt.Sprintf("dialog.Dialog<%s|%s>", d.callID, d.State())
}

// -------------------------------------------
// 主叫(UAC)操作
// -------------------------------------------

// Place 发起呼叫: 构造携带 SDP offer 的 INVITE 并创建客户端事务
// 每个会话只允许一个未决的 INVITE, 重复调用返回 ErrInvalidStateForOperation
func (d *Dialog) Place(from, to sip.Uri, remoteAddr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State() == StateTerminated {
		return ErrAlreadyTerminated
	}
	if d.placed || d.State() != StateIdle || !d.uac {
		return ErrInvalidStateForOperation
	}

	payloadTypes := d.codecs.PayloadTypes()
	if len(payloadTypes) == 0 {
		return errors.New("dialog: no codecs registered")
	}
	preferred, _ := d.codecs.Get(payloadTypes[0])

	// offer 中要携带媒体端口, 先绑定, 协商失败时再释放
	session, err := media.NewSession(d.mediaHost, preferred, d.ports, d.jitterWindow)
	if err != nil {
		return err
	}

	invite := sip.CreateRequest(sip.INVITE, remoteAddr, from, to)
	if fromHeader, ok := invite.From(); ok {
		fromHeader.Params.Add("tag", sip.String{Str: d.localTag})
	}
	callID, ok := invite.CallID()
	if !ok {
		_ = session.Close()
		return errors.New("dialog: invite missing Call-ID")
	}
	if cseq, ok := invite.CSeq(); ok {
		d.cseq = cseq.SeqNo
	}

	d.callID = string(*callID)
	d.localURI = from
	d.remoteURI = to
	d.remoteAddr = remoteAddr

	offer, err := media.BuildDescription(d.callID, d.mediaHost, session.LocalPort(), payloadTypes, d.codecs)
	if err != nil {
		_ = session.Close()
		return err
	}

	contentType := sip.ContentType("application/sdp")
	invite.AddHeader(&contentType)
	invite.SetBody(string(offer), true)

	tx, err := d.txl.Send(invite)
	if err != nil {
		_ = session.Close()
		return err
	}
	clientTx, ok := tx.(sip.ClientTransaction)
	if !ok {
		_ = session.Close()
		return errors.New("dialog: unexpected transaction type for INVITE")
	}

	d.invite = invite
	d.inviteTx = clientTx
	d.session = session
	d.placed = true

	d.spin(dialogInputInvite)
	go d.consumeInvite(clientTx)

	return nil
}

// Cancel 放弃未接通的呼出
// 2xx 与 CANCEL 交错时做礼貌终结: 先 ACK 确认再立即 BYE
func (d *Dialog) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State() == StateTerminated {
		return ErrAlreadyTerminated
	}
	if !d.uac {
		return ErrInvalidStateForOperation
	}
	switch d.State() {
	case StateTrying, StateRinging:
	default:
		return ErrInvalidStateForOperation
	}

	d.cancelRequested = true
	if err := d.inviteTx.Cancel(); err != nil {
		return err
	}

	d.spin(dialogInputCancel)

	return nil
}

// -------------------------------------------
// 被叫(UAS)操作
// -------------------------------------------

// Ring 发送 180 振铃
func (d *Dialog) Ring() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.uac {
		return ErrInvalidStateForOperation
	}
	if d.State() != StateTrying {
		return ErrInvalidStateForOperation
	}

	res := d.invite.CreateResponseReason(sip.StatusRinging, "Ringing")
	if err := d.serverTx.SendResponse(res); err != nil {
		return err
	}

	d.spin(dialogInputProvisional)

	return nil
}

// Answer 接听呼入: 协商媒体, 分配 RTP 会话, 回 200 携带 SDP answer
// 协商无交集时回 488 并终结, 不占用任何媒体资源
func (d *Dialog) Answer() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State() == StateTerminated {
		return ErrAlreadyTerminated
	}
	if d.uac || d.session != nil {
		return ErrInvalidStateForOperation
	}
	switch d.State() {
	case StateTrying, StateRinging:
	default:
		return ErrInvalidStateForOperation
	}

	codec, err := d.codecs.Negotiate(d.offer.PayloadTypes, d.codecs.PayloadTypes())
	if err != nil {
		res := d.invite.CreateResponseReason(sip.StatusNotAcceptableHere, "Not Acceptable Here")
		if sendErr := d.serverTx.SendResponse(res); sendErr != nil {
			logger.Warnf("[dialog] -> %s send 488 failed: %s", d.callID, sendErr)
		}
		d.termErr = err
		d.reason = "no common media"
		d.spin(dialogInputReject)
		return err
	}

	session, err := media.NewSession(d.mediaHost, codec, d.ports, d.jitterWindow)
	if err != nil {
		res := d.invite.CreateResponseReason(sip.StatusServiceUnavailable, "Service Unavailable")
		if sendErr := d.serverTx.SendResponse(res); sendErr != nil {
			logger.Warnf("[dialog] -> %s send 503 failed: %s", d.callID, sendErr)
		}
		d.termErr = err
		d.reason = "media resources exhausted"
		d.spin(dialogInputReject)
		return err
	}
	if err := session.SetRemote(d.offer.Host, d.offer.Port); err != nil {
		_ = session.Close()
		return err
	}

	answer, err := media.BuildDescription(d.callID, d.mediaHost, session.LocalPort(),
		[]uint8{codec.PayloadType()}, d.codecs)
	if err != nil {
		_ = session.Close()
		return err
	}

	res := d.invite.CreateResponseReason(sip.StatusOK, "OK")
	contentType := sip.ContentType("application/sdp")
	res.AddHeader(&contentType)
	res.SetBody(string(answer), true)

	if err := d.serverTx.SendResponse(res); err != nil {
		_ = session.Close()
		return err
	}

	// 接通要等对端 ACK, 此前保持振铃状态
	d.codec = codec
	d.session = session

	return nil
}

// Reject 拒接呼入
func (d *Dialog) Reject(code sip.StatusCode, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State() == StateTerminated {
		return ErrAlreadyTerminated
	}
	if d.uac {
		return ErrInvalidStateForOperation
	}
	switch d.State() {
	case StateTrying, StateRinging:
	default:
		return ErrInvalidStateForOperation
	}

	res := d.invite.CreateResponseReason(code, reason)
	if err := d.serverTx.SendResponse(res); err != nil {
		return err
	}

	d.reason = fmt.Sprintf("rejected: %d %s", code, reason)
	d.spin(dialogInputReject)

	return nil
}

// -------------------------------------------
// 双向操作
// -------------------------------------------

// Hangup 挂断已接通的呼叫: 发 BYE 并在收到最终应答后终结
func (d *Dialog) Hangup() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.State() {
	case StateTerminated:
		return ErrAlreadyTerminated
	case StateConnected:
	default:
		return ErrInvalidStateForOperation
	}

	d.reason = "hangup"
	if err := d.sendBye(); err != nil {
		d.termErr = err
		d.spin(dialogInputTerminate)
		return err
	}

	d.spin(dialogInputHangup)

	return nil
}

// Terminate 无条件终结呼叫(引擎关闭等场景)
func (d *Dialog) Terminate(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State() == StateTerminated {
		return
	}

	d.reason = reason
	d.spin(dialogInputTerminate)
}

// -------------------------------------------
// 信令事件入口
// -------------------------------------------

// 主叫: 消费 INVITE 客户端事务的响应与错误
func (d *Dialog) consumeInvite(tx sip.ClientTransaction) {
	for {
		select {
		case res, ok := <-tx.Responses():
			if !ok {
				return
			}
			d.onInviteResponse(res)
		case err, ok := <-tx.Errors():
			if !ok {
				return
			}
			d.onInviteError(err)
		case <-d.done:
			return
		}
	}
}

func (d *Dialog) onInviteResponse(res sip.Response) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State() == StateTerminated {
		return
	}

	if to, ok := res.To(); ok {
		if tag, ok := to.Params.Get("tag"); ok && tag != nil {
			d.remoteTag = tag.String()
		}
	}

	switch {
	case res.IsProvisional():
		// 100 不改变呼叫状态
		if res.StatusCode() != sip.StatusTrying && d.State() == StateTrying {
			d.spin(dialogInputProvisional)
		}
	case res.IsSuccess():
		d.onInviteAccepted(res)
	default:
		d.onInviteRejected(res)
	}
}

func (d *Dialog) onInviteAccepted(res sip.Response) {
	// 2xx 的 ACK 是带新 branch 的独立事务, 绕过原事务直接发
	if _, err := d.txl.Send(res.CreateAck()); err != nil {
		logger.Warnf("[dialog] -> %s send ACK failed: %s", d.callID, err)
	}

	if d.cancelRequested {
		// CANCEL 与 2xx 赛跑且 2xx 先到: 礼貌终结, ACK 之后立即 BYE
		d.reason = "cancelled"
		if err := d.sendBye(); err != nil {
			logger.Warnf("[dialog] -> %s courtesy BYE failed: %s", d.callID, err)
		}
		d.spin(dialogInputTerminate)
		return
	}

	answer, err := media.ParseDescription([]byte(res.Body()))
	if err != nil {
		d.failEstablished(err, "bad answer sdp")
		return
	}

	codec, err := d.codecs.Negotiate(d.codecs.PayloadTypes(), answer.PayloadTypes)
	if err != nil {
		d.failEstablished(err, "no common media")
		return
	}

	d.session.SetCodec(codec)
	if err := d.session.SetRemote(answer.Host, answer.Port); err != nil {
		d.failEstablished(err, "bad media address")
		return
	}
	d.session.Start()

	d.codec = codec
	d.spin(dialogInputAccept)
}

// 呼叫已被对端接受但本端无法建立媒体: BYE 终结
func (d *Dialog) failEstablished(err error, reason string) {
	d.termErr = err
	d.reason = reason
	if byeErr := d.sendBye(); byeErr != nil {
		logger.Warnf("[dialog] -> %s teardown BYE failed: %s", d.callID, byeErr)
	}
	d.spin(dialogInputTerminate)
}

func (d *Dialog) onInviteRejected(res sip.Response) {
	if d.State() == StateTerminating && res.StatusCode() == sip.StatusRequestTerminated {
		// CANCEL 之后的 487, 正常取消路径
		d.reason = "cancelled"
		d.spin(dialogInputReject)
		return
	}

	d.termErr = &PeerRejectedError{Code: res.StatusCode(), Reason: res.Reason()}
	d.reason = fmt.Sprintf("rejected: %d %s", res.StatusCode(), res.Reason())
	d.spin(dialogInputReject)
}

func (d *Dialog) onInviteError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State() == StateTerminated {
		return
	}

	if _, ok := err.(*transaction.TxTimeoutError); ok {
		d.termErr = ErrTransactionTimeout
		d.reason = "timeout"
	} else {
		d.termErr = err
		d.reason = "transport error"
	}

	d.spin(dialogInputTimeout)
}

// 被叫: 消费 INVITE 服务端事务的 ACK/CANCEL/错误
func (d *Dialog) runUAS() {
	for {
		select {
		case req, ok := <-d.serverTx.AckRequest():
			if !ok {
				return
			}
			d.onAck(req)
		case req, ok := <-d.serverTx.CancelRequest():
			if !ok {
				return
			}
			d.onCancel(req)
		case err, ok := <-d.serverTx.Errors():
			if !ok {
				return
			}
			d.onServerError(err)
		case <-d.done:
			return
		}
	}
}

// onAck 对端确认 200, 呼叫接通
// 2xx 的 ACK 不匹配原事务, 由上层按 Call-ID 路由到这里
func (d *Dialog) onAck(_ sip.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.uac || d.session == nil {
		return
	}
	switch d.State() {
	case StateTrying, StateRinging:
	default:
		return
	}

	d.session.Start()
	d.spin(dialogInputAccept)
}

// onCancel 对端取消呼入: 原 INVITE 回 487 后终结
// CANCEL 本身的 200 由事务层负责
func (d *Dialog) onCancel(_ sip.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.State() {
	case StateTrying, StateRinging:
	default:
		return
	}

	res := d.invite.CreateResponseReason(sip.StatusRequestTerminated, "Request Terminated")
	if err := d.serverTx.SendResponse(res); err != nil {
		logger.Warnf("[dialog] -> %s send 487 failed: %s", d.callID, err)
	}

	d.reason = "cancelled by peer"
	d.spin(dialogInputReject)
}

func (d *Dialog) onServerError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State() == StateTerminated {
		return
	}

	if _, ok := err.(*transaction.TxTimeoutError); ok {
		d.termErr = ErrTransactionTimeout
		d.reason = "timeout"
	} else {
		d.termErr = err
		d.reason = "transport error"
	}

	d.spin(dialogInputTimeout)
}

// onBye 对端挂断: 回 200 并终结
func (d *Dialog) onBye(req sip.Request, tx sip.ServerTransaction) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res := req.CreateResponseReason(sip.StatusOK, "OK")
	if err := tx.SendResponse(res); err != nil {
		logger.Warnf("[dialog] -> %s answer BYE failed: %s", d.callID, err)
	}

	if d.State() == StateTerminated {
		return
	}

	d.reason = "hangup by peer"
	d.spin(dialogInputBye)
}

// -------------------------------------------
// 内部工具
// -------------------------------------------

// sendBye 发送会话内 BYE, 调用方需持有 d.mu
func (d *Dialog) sendBye() error {
	bye := d.newInDialogRequest(sip.BYE)

	tx, err := d.txl.Send(bye)
	if err != nil {
		return err
	}

	if clientTx, ok := tx.(sip.ClientTransaction); ok {
		go d.consumeBye(clientTx)
	}

	return nil
}

func (d *Dialog) consumeBye(tx sip.ClientTransaction) {
	for {
		select {
		case res, ok := <-tx.Responses():
			if !ok {
				return
			}
			if res.IsProvisional() {
				continue
			}
			d.mu.Lock()
			d.spin(dialogInputTerminate)
			d.mu.Unlock()
			return
		case err, ok := <-tx.Errors():
			if !ok {
				return
			}
			d.mu.Lock()
			if d.termErr == nil {
				if _, isTimeout := err.(*transaction.TxTimeoutError); isTimeout {
					d.termErr = ErrTransactionTimeout
				} else {
					d.termErr = err
				}
			}
			d.spin(dialogInputTerminate)
			d.mu.Unlock()
			return
		case <-d.done:
			return
		}
	}
}

// newInDialogRequest 构造会话内请求, CSeq 递增, 调用方需持有 d.mu
func (d *Dialog) newInDialogRequest(method sip.RequestMethod) sip.Request {
	d.cseq++

	req := sip.CreateSimpleRequest(method, d.remoteAddr)
	req.AddHeader(sip.DefaultViaHeader())

	from := &sip.FromHeader{Address: d.localURI, Params: sip.NewParams()}
	from.Params.Add("tag", sip.String{Str: d.localTag})
	req.AddHeader(from)

	to := &sip.ToHeader{Address: d.remoteURI, Params: sip.NewParams()}
	if d.remoteTag != "" {
		to.Params.Add("tag", sip.String{Str: d.remoteTag})
	}
	req.AddHeader(to)

	callID := sip.CallID(d.callID)
	req.AddHeader(&callID)
	req.AddHeader(&sip.CSeq{SeqNo: d.cseq, MethodName: method})
	req.AddHeader(sip.DefaultMaxForwards())

	return req
}

func (d *Dialog) setState(state State, reason string) {
	atomic.StoreInt32(&d.state, int32(state))

	if d.notify != nil {
		d.notify(d, state, reason)
	}
}

// spin 驱动状态机, 调用方需持有 d.mu
func (d *Dialog) spin(input fsm.Input) {
	if err := d.fsm.Spin(input); err != nil {
		logger.Errorf("[dialog] -> %s fsm spin failed: %s", d.callID, err)
	}
}

// -------------------------------------------
// FSM
// -------------------------------------------

func (d *Dialog) initFSM() {
	// Idle
	dialogStateDefIdle := fsm.State{
		Index: dialogStateIdle,
		Outcomes: map[fsm.Input]fsm.Outcome{
			dialogInputInvite:      {State: dialogStateTrying, Action: d.actionTrying},
			dialogInputProvisional: {State: dialogStateIdle, Action: fsm.NO_ACTION},
			dialogInputAccept:      {State: dialogStateIdle, Action: fsm.NO_ACTION},
			dialogInputReject:      {State: dialogStateTerminated, Action: d.actionTerminate},
			dialogInputCancel:      {State: dialogStateIdle, Action: fsm.NO_ACTION},
			dialogInputHangup:      {State: dialogStateIdle, Action: fsm.NO_ACTION},
			dialogInputBye:         {State: dialogStateTerminated, Action: d.actionTerminate},
			dialogInputTimeout:     {State: dialogStateTerminated, Action: d.actionTerminate},
			dialogInputTerminate:   {State: dialogStateTerminated, Action: d.actionTerminate},
		},
	}

	// Trying
	dialogStateDefTrying := fsm.State{
		Index: dialogStateTrying,
		Outcomes: map[fsm.Input]fsm.Outcome{
			dialogInputInvite:      {State: dialogStateTrying, Action: fsm.NO_ACTION},
			dialogInputProvisional: {State: dialogStateRinging, Action: d.actionRinging},
			dialogInputAccept:      {State: dialogStateConnected, Action: d.actionConnected},
			dialogInputReject:      {State: dialogStateTerminated, Action: d.actionTerminate},
			dialogInputCancel:      {State: dialogStateTerminating, Action: d.actionTerminating},
			dialogInputHangup:      {State: dialogStateTrying, Action: fsm.NO_ACTION},
			dialogInputBye:         {State: dialogStateTerminated, Action: d.actionTerminate},
			dialogInputTimeout:     {State: dialogStateTerminated, Action: d.actionTerminate},
			dialogInputTerminate:   {State: dialogStateTerminated, Action: d.actionTerminate},
		},
	}

	// Ringing
	dialogStateDefRinging := fsm.State{
		Index: dialogStateRinging,
		Outcomes: map[fsm.Input]fsm.Outcome{
			dialogInputInvite:      {State: dialogStateRinging, Action: fsm.NO_ACTION},
			dialogInputProvisional: {State: dialogStateRinging, Action: fsm.NO_ACTION},
			dialogInputAccept:      {State: dialogStateConnected, Action: d.actionConnected},
			dialogInputReject:      {State: dialogStateTerminated, Action: d.actionTerminate},
			dialogInputCancel:      {State: dialogStateTerminating, Action: d.actionTerminating},
			dialogInputHangup:      {State: dialogStateRinging, Action: fsm.NO_ACTION},
			dialogInputBye:         {State: dialogStateTerminated, Action: d.actionTerminate},
			dialogInputTimeout:     {State: dialogStateTerminated, Action: d.actionTerminate},
			dialogInputTerminate:   {State: dialogStateTerminated, Action: d.actionTerminate},
		},
	}

	// Connected
	dialogStateDefConnected := fsm.State{
		Index: dialogStateConnected,
		Outcomes: map[fsm.Input]fsm.Outcome{
			dialogInputInvite:      {State: dialogStateConnected, Action: fsm.NO_ACTION},
			dialogInputProvisional: {State: dialogStateConnected, Action: fsm.NO_ACTION},
			dialogInputAccept:      {State: dialogStateConnected, Action: fsm.NO_ACTION},
			dialogInputReject:      {State: dialogStateConnected, Action: fsm.NO_ACTION},
			dialogInputCancel:      {State: dialogStateConnected, Action: fsm.NO_ACTION},
			dialogInputHangup:      {State: dialogStateTerminating, Action: d.actionTerminating},
			dialogInputBye:         {State: dialogStateTerminated, Action: d.actionTerminate},
			dialogInputTimeout:     {State: dialogStateTerminated, Action: d.actionTerminate},
			dialogInputTerminate:   {State: dialogStateTerminated, Action: d.actionTerminate},
		},
	}

	// Terminating
	dialogStateDefTerminating := fsm.State{
		Index: dialogStateTerminating,
		Outcomes: map[fsm.Input]fsm.Outcome{
			dialogInputInvite:      {State: dialogStateTerminating, Action: fsm.NO_ACTION},
			dialogInputProvisional: {State: dialogStateTerminating, Action: fsm.NO_ACTION},
			dialogInputAccept:      {State: dialogStateTerminating, Action: fsm.NO_ACTION},
			dialogInputReject:      {State: dialogStateTerminated, Action: d.actionTerminate},
			dialogInputCancel:      {State: dialogStateTerminating, Action: fsm.NO_ACTION},
			dialogInputHangup:      {State: dialogStateTerminating, Action: fsm.NO_ACTION},
			dialogInputBye:         {State: dialogStateTerminated, Action: d.actionTerminate},
			dialogInputTimeout:     {State: dialogStateTerminated, Action: d.actionTerminate},
			dialogInputTerminate:   {State: dialogStateTerminated, Action: d.actionTerminate},
		},
	}

	// Terminated
	dialogStateDefTerminated := fsm.State{
		Index: dialogStateTerminated,
		Outcomes: map[fsm.Input]fsm.Outcome{
			dialogInputInvite:      {State: dialogStateTerminated, Action: fsm.NO_ACTION},
			dialogInputProvisional: {State: dialogStateTerminated, Action: fsm.NO_ACTION},
			dialogInputAccept:      {State: dialogStateTerminated, Action: fsm.NO_ACTION},
			dialogInputReject:      {State: dialogStateTerminated, Action: fsm.NO_ACTION},
			dialogInputCancel:      {State: dialogStateTerminated, Action: fsm.NO_ACTION},
			dialogInputHangup:      {State: dialogStateTerminated, Action: fsm.NO_ACTION},
			dialogInputBye:         {State: dialogStateTerminated, Action: fsm.NO_ACTION},
			dialogInputTimeout:     {State: dialogStateTerminated, Action: fsm.NO_ACTION},
			dialogInputTerminate:   {State: dialogStateTerminated, Action: fsm.NO_ACTION},
		},
	}

	fsm_, err := fsm.Define(
		dialogStateDefIdle,
		dialogStateDefTrying,
		dialogStateDefRinging,
		dialogStateDefConnected,
		dialogStateDefTerminating,
		dialogStateDefTerminated,
	)
	if err != nil {
		logger.Errorf("[dialog] -> define FSM failed: %s", err)
		return
	}

	d.fsm = fsm_
}

func (d *Dialog) actionTrying() fsm.Input {
	d.setState(StateTrying, "")
	return fsm.NO_INPUT
}

func (d *Dialog) actionRinging() fsm.Input {
	d.setState(StateRinging, "")
	return fsm.NO_INPUT
}

func (d *Dialog) actionConnected() fsm.Input {
	d.connectedAt = time.Now()
	d.setState(StateConnected, "")
	return fsm.NO_INPUT
}

func (d *Dialog) actionTerminating() fsm.Input {
	d.setState(StateTerminating, d.reason)
	return fsm.NO_INPUT
}

func (d *Dialog) actionTerminate() fsm.Input {
	// 先同步拆除媒体, 再对外宣布 Terminated
	if d.session != nil {
		if err := d.session.Close(); err != nil {
			logger.Warnf("[dialog] -> %s close media session failed: %s", d.callID, err)
		}
		d.session = nil
	}

	d.terminatedAt = time.Now()
	d.termOnce.Do(func() {
		close(d.done)
	})

	d.setState(StateTerminated, d.reason)
	return fsm.NO_INPUT
}
