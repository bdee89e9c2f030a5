package sip

import "fmt"

// ValidateMessage 校验消息是否携带必需的头部
// RFC 3261 8.1.1: Call-ID、CSeq、From、To、Via(含 branch) 缺一不可
// 缺失视为格式错误, 消息应被丢弃, 不进入事务层
func ValidateMessage(msg Message) error {
	if _, ok := msg.CallID(); !ok {
		return &MalformedMessageError{
			Err: fmt.Errorf("missing required 'Call-ID' header"),
			Msg: msg.String(),
		}
	}
	if _, ok := msg.CSeq(); !ok {
		return &MalformedMessageError{
			Err: fmt.Errorf("missing required 'CSeq' header"),
			Msg: msg.String(),
		}
	}
	if _, ok := msg.From(); !ok {
		return &MalformedMessageError{
			Err: fmt.Errorf("missing required 'From' header"),
			Msg: msg.String(),
		}
	}
	if _, ok := msg.To(); !ok {
		return &MalformedMessageError{
			Err: fmt.Errorf("missing required 'To' header"),
			Msg: msg.String(),
		}
	}

	viaHop, ok := msg.ViaHop()
	if !ok {
		return &MalformedMessageError{
			Err: fmt.Errorf("missing required 'Via' header"),
			Msg: msg.String(),
		}
	}
	if branch, ok := viaHop.Params.Get("branch"); !ok || branch == nil || branch.String() == "" {
		return &MalformedMessageError{
			Err: fmt.Errorf("missing branch parameter on top 'Via' header"),
			Msg: msg.String(),
		}
	}

	// 声明长度与实际消息体不一致同样视为格式错误
	if contentLength, ok := msg.ContentLength(); ok {
		if int(*contentLength) != len(msg.Body()) {
			return &MalformedMessageError{
				Err: fmt.Errorf("content-length %d does not match body length %d",
					int(*contentLength), len(msg.Body())),
				Msg: msg.String(),
			}
		}
	}

	return nil
}
