package dialog

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/zenghr0820/gvoip/media"
	"github.com/zenghr0820/gvoip/sip"
)

var (
	// ErrInvalidStateForOperation 当前状态不允许该操作
	ErrInvalidStateForOperation = errors.New("dialog: operation not allowed in current state")
	// ErrAlreadyTerminated 会话已终结
	ErrAlreadyTerminated = errors.New("dialog: already terminated")
	// ErrTransactionTimeout 信令事务超时导致呼叫失败
	ErrTransactionTimeout = errors.New("dialog: transaction timeout")

	// 媒体协商失败与资源耗尽复用 media 包的哨兵, 上层统一用 errors.Is 判断
	ErrNoCommonMedia     = media.ErrNoCommonMedia
	ErrResourceExhausted = media.ErrResourceExhausted
)

// PeerRejectedError 对端以最终失败应答拒绝了呼叫
type PeerRejectedError struct {
	Code   sip.StatusCode
	Reason string
}

func (err *PeerRejectedError) Error() string {
	return fmt.Sprintf("dialog: peer rejected call: %d %s", err.Code, err.Reason)
}
