package dialog

import "github.com/discoviking/fsm"

// 会话层: 一通呼叫的生命周期管理
// 信令事务由 transaction 层驱动, 媒体由 media 层承载,
// 本层只负责把两者按呼叫状态机粘合起来

// State 呼叫状态
type State int32

const (
	StateIdle State = iota
	StateTrying
	StateRinging
	StateConnected
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateTrying:
		return "Trying"
	case StateRinging:
		return "Ringing"
	case StateConnected:
		return "Connected"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// FSM States
const (
	dialogStateIdle = iota
	dialogStateTrying
	dialogStateRinging
	dialogStateConnected
	dialogStateTerminating
	dialogStateTerminated
)

// FSM Inputs
const (
	dialogInputInvite fsm.Input = iota
	dialogInputProvisional
	dialogInputAccept
	dialogInputReject
	dialogInputCancel
	dialogInputHangup
	dialogInputBye
	dialogInputTimeout
	dialogInputTerminate
)
