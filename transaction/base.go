package transaction

import (
	"time"

	"github.com/discoviking/fsm"
)

// RFC 3261 附录 A 的默认定时器基准值
// 重传退避常量属于策略而非协议, 通过 Timing 注入, 不在代码里写死
const (
	DefaultT1      = 500 * time.Millisecond
	DefaultT2      = 4 * time.Second
	DefaultT4      = 5 * time.Second
	DefaultTime1xx = 200 * time.Millisecond
)

// Timing 定义事务层的重传/超时基准
// 零值字段会被替换为 RFC 3261 的默认值
type Timing struct {
	// T1: 重传初始间隔(往返时间估计值)
	T1 time.Duration
	// T2: 非 INVITE 请求与 INVITE 响应的重传间隔上限
	T2 time.Duration
	// T4: 网络中消息的最大残留时间
	T4 time.Duration
	// Time1xx: 服务端事务自动发送 100 Trying 之前的等待时间
	Time1xx time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		T1:      DefaultT1,
		T2:      DefaultT2,
		T4:      DefaultT4,
		Time1xx: DefaultTime1xx,
	}
}

func (t Timing) normalize() Timing {
	if t.T1 <= 0 {
		t.T1 = DefaultT1
	}
	if t.T2 <= 0 {
		t.T2 = DefaultT2
	}
	if t.T4 <= 0 {
		t.T4 = DefaultT4
	}
	if t.Time1xx <= 0 {
		t.Time1xx = DefaultTime1xx
	}
	return t
}

// RFC 3261 17.1.1.2 / 17.1.2.2 / 17.2.1 / 17.2.2 派生定时器
func (t Timing) TimeA() time.Duration { return t.T1 }      // INVITE 重传间隔(起始值, 每次翻倍)
func (t Timing) TimeB() time.Duration { return 64 * t.T1 } // INVITE 事务绝对超时
func (t Timing) TimeD() time.Duration { return 64 * t.T1 } // Completed 状态吸收重复终响应
func (t Timing) TimeE() time.Duration { return t.T1 }      // 非 INVITE 重传间隔(翻倍, 上限 T2)
func (t Timing) TimeF() time.Duration { return 64 * t.T1 } // 非 INVITE 事务绝对超时
func (t Timing) TimeG() time.Duration { return t.T1 }      // INVITE 终响应重传间隔
func (t Timing) TimeH() time.Duration { return 64 * t.T1 } // 等待 ACK 超时
func (t Timing) TimeI() time.Duration { return t.T4 }      // Confirmed 状态吸收重复 ACK
func (t Timing) TimeJ() time.Duration { return 64 * t.T1 } // 非 INVITE 服务端吸收重复请求
func (t Timing) TimeK() time.Duration { return t.T4 }      // 非 INVITE 客户端吸收重复响应

// 客户端事务状态机状态 FSM States
const (
	clientStateCalling = iota
	clientStateProceeding
	clientStateCompleted
	clientStateTerminated
)

// FSM Inputs
// 状态机改变状态事件
const (
	clientInput1xx fsm.Input = iota
	clientInput2xx
	clientInput300Plus
	clientInputTimerA
	clientInputTimerB
	clientInputTimerD
	clientInputTransportErr
	clientInputDelete
)

// 服务端事务状态机状态 FSM States
const (
	serverStateTrying = iota
	serverStateProceeding
	serverStateCompleted
	serverStateConfirmed
	serverStateTerminated
)

// FSM Inputs
// 状态机改变状态事件
const (
	serverInputRequest fsm.Input = iota
	serverInputAck
	serverInputCancel
	serverInputUser1xx
	serverInputUser2xx
	serverInputUser300Plus
	serverInputTimerG
	serverInputTimerH
	serverInputTimerI
	serverInputTimerJ
	serverInputTransportErr
	serverInputDelete
)
