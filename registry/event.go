package registry

import "sync"

// 通话状态事件转发
// 发布端永不阻塞: 订阅者消费不过来时丢弃最旧的事件

// 每个订阅者的事件积压上限
const subscriberBacklog = 64

// Event 通话状态变化通知
type Event struct {
	// 会话句柄(Call-ID)
	Handle string
	// 主叫
	From string
	// 被叫
	To string
	// 新状态
	State string
	// 终止原因等补充信息
	Reason string
}

type relay struct {
	mu     sync.Mutex
	subs   []chan Event
	closed bool
}

// Subscribe 订阅通话状态事件
// 返回的通道在 Registry 关闭后关闭
func (reg *Registry) Subscribe() <-chan Event {
	return reg.relay.subscribe()
}

// Publish 向所有订阅者广播事件, 不阻塞发布方
func (reg *Registry) Publish(event Event) {
	reg.relay.publish(event)
}

func (r *relay) subscribe() <-chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := make(chan Event, subscriberBacklog)
	if r.closed {
		close(sub)
		return sub
	}

	r.subs = append(r.subs, sub)
	return sub
}

func (r *relay) publish(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	for _, sub := range r.subs {
		select {
		case sub <- event:
		default:
			// 积压满: 腾掉最旧的一条再放入
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- event:
			default:
			}
		}
	}
}

func (r *relay) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	for _, sub := range r.subs {
		close(sub)
	}
	r.subs = nil
}
