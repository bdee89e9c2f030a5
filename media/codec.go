package media

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// 媒体层错误定义
var (
	// 双方编解码偏好没有交集
	ErrNoCommonMedia = errors.New("media: no common codec between offer and answer")
	// 本地媒体端口耗尽
	ErrResourceExhausted = errors.New("media: rtp port range exhausted")
	// 会话已关闭
	ErrSessionClosed = errors.New("media: session closed")
)

// Codec 音频编解码器描述
// Encode/Decode 以 16bit PCM 采样为交换格式
type Codec interface {
	// RTP 负载类型 RFC 3551 - 6
	PayloadType() uint8
	// 编码名称, 比如 PCMU / PCMA
	Name() string
	// 采样时钟
	ClockRate() uint32
	// 单帧采样数(决定 RTP 时间戳步进)
	SamplesPerFrame() uint32
	Encode(pcm []int16) ([]byte, error)
	Decode(payload []byte) ([]int16, error)
}

// Registry 按负载类型登记编解码器, 并保留登记顺序作为本端偏好顺序
type Registry struct {
	mu     sync.RWMutex
	codecs map[uint8]Codec
	// 偏好顺序(登记顺序)
	order []uint8
}

// NewRegistry 创建带 G.711 µ-law/A-law 的默认注册表
func NewRegistry() *Registry {
	reg := &Registry{
		codecs: make(map[uint8]Codec),
	}
	reg.Register(NewPCMU())
	reg.Register(NewPCMA())
	return reg
}

// NewEmptyRegistry 创建空注册表, 由调用方自行登记
func NewEmptyRegistry() *Registry {
	return &Registry{
		codecs: make(map[uint8]Codec),
	}
}

// Register 登记编解码器, 重复登记同一负载类型会覆盖但不改变偏好位置
func (reg *Registry) Register(codec Codec) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	pt := codec.PayloadType()
	if _, ok := reg.codecs[pt]; !ok {
		reg.order = append(reg.order, pt)
	}
	reg.codecs[pt] = codec
}

// Get 按负载类型取出编解码器
func (reg *Registry) Get(payloadType uint8) (Codec, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	codec, ok := reg.codecs[payloadType]
	return codec, ok
}

// PayloadTypes 返回本端偏好顺序的负载类型列表
func (reg *Registry) PayloadTypes() []uint8 {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]uint8, len(reg.order))
	copy(out, reg.order)
	return out
}

// Negotiate 按发起方(offered)的偏好顺序选择双方都支持的第一个编解码器
// 没有交集返回 ErrNoCommonMedia
func (reg *Registry) Negotiate(offered, answered []uint8) (Codec, error) {
	answerSet := make(map[uint8]struct{}, len(answered))
	for _, pt := range answered {
		answerSet[pt] = struct{}{}
	}

	for _, pt := range offered {
		if _, ok := answerSet[pt]; !ok {
			continue
		}
		if codec, ok := reg.Get(pt); ok {
			return codec, nil
		}
	}

	return nil, errors.Wrap(ErrNoCommonMedia,
		fmt.Sprintf("offered %v answered %v", offered, answered))
}
