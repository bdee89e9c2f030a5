package media

import (
	"fmt"
	"math/rand"
	"net"
	"sync"

	"github.com/pion/rtp"
	"github.com/pkg/errors"

	"github.com/zenghr0820/gvoip/logger"
)

const (
	// RTP 默认端口区间
	DefaultPortMin = 10000
	DefaultPortMax = 20000

	readBufferSize = 1500
)

// PortAllocator 管理本地 RTP 端口区间
// RTP 习惯使用偶数端口(奇数留给 RTCP)
type PortAllocator struct {
	mu   sync.Mutex
	min  int
	max  int
	used map[int]bool
}

func NewPortAllocator(min, max int) *PortAllocator {
	if min <= 0 || max <= min {
		min, max = DefaultPortMin, DefaultPortMax
	}
	// 对齐到偶数
	if min%2 != 0 {
		min++
	}

	return &PortAllocator{
		min:  min,
		max:  max,
		used: make(map[int]bool),
	}
}

// allocate 绑定区间内第一个可用的偶数端口
// 区间耗尽返回 ErrResourceExhausted
func (pa *PortAllocator) allocate(host string) (*net.UDPConn, int, error) {
	pa.mu.Lock()
	defer pa.mu.Unlock()

	for port := pa.min; port <= pa.max; port += 2 {
		if pa.used[port] {
			continue
		}

		conn, err := net.ListenUDP("udp", &net.UDPAddr{
			IP:   net.ParseIP(host),
			Port: port,
		})
		if err != nil {
			// 被系统其他进程占用, 继续向后找
			continue
		}

		pa.used[port] = true
		return conn, port, nil
	}

	return nil, 0, errors.Wrap(ErrResourceExhausted,
		fmt.Sprintf("range %d-%d", pa.min, pa.max))
}

func (pa *PortAllocator) release(port int) {
	pa.mu.Lock()
	delete(pa.used, port)
	pa.mu.Unlock()
}

// FrameSink 解码后 PCM 帧的接收回调
type FrameSink func(pcm []int16)

// Session 一条 RTP 音频会话
// 出向: PCM -> 编码 -> RTP 打包发送, 序列号逐包 +1 并在 0xFFFF 回绕,
// 时间戳按编解码器单帧采样数步进
// 入向: 读包 -> 抖动缓冲重排 -> 解码 -> FrameSink
type Session struct {
	codec     Codec
	conn      *net.UDPConn
	localPort int
	allocator *PortAllocator

	mu        sync.Mutex
	remote    *net.UDPAddr
	sink      FrameSink
	ssrc      uint32
	seq       uint16
	timestamp uint32

	jitter *JitterBuffer

	started   bool
	cancel    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSession 分配本地端口并创建会话, 不启动收包
func NewSession(host string, codec Codec, allocator *PortAllocator, jitterWindow int) (*Session, error) {
	if codec == nil {
		return nil, errors.New("media: nil codec")
	}
	if allocator == nil {
		allocator = NewPortAllocator(DefaultPortMin, DefaultPortMax)
	}

	conn, port, err := allocator.allocate(host)
	if err != nil {
		return nil, err
	}

	s := &Session{
		codec:     codec,
		conn:      conn,
		localPort: port,
		allocator: allocator,
		ssrc:      rand.Uint32(),
		seq:       uint16(rand.Uint32()),
		timestamp: rand.Uint32(),
		jitter:    NewJitterBuffer(jitterWindow),
		cancel:    make(chan struct{}),
	}

	logger.Debugf("[media_session] -> rtp session bound on %s:%d codec %s",
		host, port, codec.Name())

	return s, nil
}

func (s *Session) LocalPort() int {
	return s.localPort
}

func (s *Session) Codec() Codec {
	return s.codec
}

// SetCodec 在协商完成后替换编解码器, 只能在 Start 之前调用
// 发起方需要先绑定端口发 offer, 拿到应答才知道最终编解码器
func (s *Session) SetCodec(codec Codec) {
	s.mu.Lock()
	s.codec = codec
	s.mu.Unlock()
}

// SetRemote 设置对端媒体地址(来自 SDP 应答)
func (s *Session) SetRemote(host string, port int) error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return errors.Wrap(err, "media: resolve remote rtp address")
	}

	s.mu.Lock()
	s.remote = addr
	s.mu.Unlock()

	return nil
}

// OnFrame 注册解码帧回调
func (s *Session) OnFrame(sink FrameSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// Start 启动收包循环
func (s *Session) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop()
}

// SendFrame 编码并发送一帧 PCM
func (s *Session) SendFrame(pcm []int16) error {
	select {
	case <-s.cancel:
		return ErrSessionClosed
	default:
	}

	s.mu.Lock()
	remote := s.remote
	s.mu.Unlock()

	if remote == nil {
		return errors.New("media: remote address not set")
	}

	payload, err := s.codec.Encode(pcm)
	if err != nil {
		return err
	}

	s.mu.Lock()
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    s.codec.PayloadType(),
			SequenceNumber: s.seq,
			Timestamp:      s.timestamp,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}
	// 0xFFFF 自然回绕
	s.seq++
	s.timestamp += s.codec.SamplesPerFrame()
	s.mu.Unlock()

	raw, err := pkt.Marshal()
	if err != nil {
		return errors.Wrap(err, "media: marshal rtp packet")
	}

	if _, err := s.conn.WriteToUDP(raw, remote); err != nil {
		return errors.Wrap(err, "media: write rtp packet")
	}

	return nil
}

// JitterStats 返回入向抖动缓冲统计
func (s *Session) JitterStats() JitterStats {
	return s.jitter.Stats()
}

// Close 停止收包, 关闭套接字并归还端口
// 幂等, 可安全多次调用
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.cancel)

		if err := s.conn.Close(); err != nil {
			logger.Warnf("[media_session] -> close rtp socket failed: %s", err)
		}

		s.wg.Wait()
		s.allocator.release(s.localPort)

		logger.Debugf("[media_session] -> rtp session on port %d closed", s.localPort)
	})

	return nil
}

func (s *Session) readLoop() {
	defer s.wg.Done()

	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-s.cancel:
			return
		default:
		}

		num, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.cancel:
			default:
				logger.Warnf("[media_session] -> rtp read failed: %s", err)
			}
			return
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(append([]byte{}, buf[:num]...)); err != nil {
			logger.Debugf("[media_session] -> drop invalid rtp packet: %s", err)
			continue
		}

		// 非协商负载类型直接丢弃
		if pkt.PayloadType != s.codec.PayloadType() {
			continue
		}

		s.jitter.Push(pkt)
		s.drainJitter()
	}
}

func (s *Session) drainJitter() {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()

	for {
		pkt, ok := s.jitter.Pop()
		if !ok {
			return
		}

		if sink == nil {
			continue
		}

		pcm, err := s.codec.Decode(pkt.Payload)
		if err != nil {
			logger.Debugf("[media_session] -> decode failed: %s", err)
			continue
		}

		sink(pcm)
	}
}
