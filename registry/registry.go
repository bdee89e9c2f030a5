package registry

import (
	"sync"
	"time"

	"github.com/zenghr0820/gvoip/logger"
)

// 会话注册表: 通话索引 + 账号联系地址绑定
// 只做索引, 从不改变会话状态

// Dialog 注册表存储的会话句柄, 由上层会话实现
type Dialog interface {
	CallID() string
}

// ContactBinding 账号的一条联系地址绑定
type ContactBinding struct {
	// 联系地址 host:port
	Address string
	// 过期时刻, 到期由后台清理
	Expiry time.Time
}

// 后台清理扫描周期
const janitorInterval = time.Second

func NewRegistry() *Registry {
	reg := &Registry{
		dialogs:  make(map[string]Dialog),
		contacts: make(map[string][]ContactBinding),
		cancel:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	go reg.janitor()

	return reg
}

type Registry struct {
	mu       sync.RWMutex
	dialogs  map[string]Dialog
	contacts map[string][]ContactBinding

	relay relay

	cancel    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// PutDialog 登记会话, 同 Call-ID 覆盖
func (reg *Registry) PutDialog(dialog Dialog) {
	if dialog == nil || dialog.CallID() == "" {
		return
	}

	reg.mu.Lock()
	reg.dialogs[dialog.CallID()] = dialog
	reg.mu.Unlock()
}

// FindDialog 按 Call-ID 查找会话
func (reg *Registry) FindDialog(callID string) (Dialog, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	dialog, ok := reg.dialogs[callID]
	return dialog, ok
}

// RemoveDialog 注销会话
func (reg *Registry) RemoveDialog(callID string) {
	reg.mu.Lock()
	delete(reg.dialogs, callID)
	reg.mu.Unlock()
}

// ListActive 返回当前登记的所有会话
func (reg *Registry) ListActive() []Dialog {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	dialogs := make([]Dialog, 0, len(reg.dialogs))
	for _, dialog := range reg.dialogs {
		dialogs = append(dialogs, dialog)
	}
	return dialogs
}

// RegisterContact 创建/刷新账号的联系地址绑定
// ttl <= 0 表示立即注销该地址
func (reg *Registry) RegisterContact(account, address string, ttl time.Duration) {
	if account == "" || address == "" {
		return
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	bindings := reg.contacts[account]
	// 同地址刷新
	for i := range bindings {
		if bindings[i].Address == address {
			if ttl <= 0 {
				reg.contacts[account] = append(bindings[:i], bindings[i+1:]...)
				if len(reg.contacts[account]) == 0 {
					delete(reg.contacts, account)
				}
			} else {
				bindings[i].Expiry = time.Now().Add(ttl)
			}
			return
		}
	}

	if ttl <= 0 {
		return
	}

	reg.contacts[account] = append(bindings, ContactBinding{
		Address: address,
		Expiry:  time.Now().Add(ttl),
	})
}

// ResolveContacts 返回账号当前未过期的联系地址
func (reg *Registry) ResolveContacts(account string) []ContactBinding {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	now := time.Now()
	var alive []ContactBinding
	for _, binding := range reg.contacts[account] {
		if binding.Expiry.After(now) {
			alive = append(alive, binding)
		}
	}
	return alive
}

// Close 停止后台清理并关闭事件转发
func (reg *Registry) Close() {
	reg.closeOnce.Do(func() {
		close(reg.cancel)
		<-reg.done

		reg.relay.close()
	})
}

// 后台过期清理
func (reg *Registry) janitor() {
	defer close(reg.done)

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-reg.cancel:
			return
		case <-ticker.C:
			reg.sweep(time.Now())
		}
	}
}

func (reg *Registry) sweep(now time.Time) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for account, bindings := range reg.contacts {
		alive := bindings[:0]
		for _, binding := range bindings {
			if binding.Expiry.After(now) {
				alive = append(alive, binding)
			} else {
				logger.Debugf("[registry] -> contact %s of %s expired", binding.Address, account)
			}
		}

		if len(alive) == 0 {
			delete(reg.contacts, account)
		} else {
			reg.contacts[account] = alive
		}
	}
}
