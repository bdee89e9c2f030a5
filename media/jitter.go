package media

import (
	"container/heap"
	"sync"

	"github.com/pion/rtp"
)

// JitterBuffer 有界乱序重排缓冲
// 按序列号维护一个窗口: 窗口内的乱序包在释放前重新排序,
// 早于已释放水位(horizon)的包直接丢弃并计入丢包
type JitterBuffer struct {
	mu      sync.Mutex
	window  int
	packets seqHeap
	// 下一个待释放的序列号, started 后生效
	horizon uint16
	// 已观察到的最大序列号
	highest uint16
	started bool
	stats   JitterStats
}

// JitterStats 抖动缓冲统计
type JitterStats struct {
	// 收到的包总数
	Received uint64
	// 按序释放的包数
	Delivered uint64
	// 窗口内乱序到达的包数
	Reordered uint64
	// 判定丢失的包数(含晚于水位到达的包)
	Lost uint64
	// 晚于水位到达被丢弃的包数
	Late uint64
	// 重复序列号被丢弃的包数
	Duplicate uint64
}

type seqHeap []*rtp.Packet

func (h seqHeap) Len() int { return len(h) }
func (h seqHeap) Less(i, j int) bool {
	return isSeqNewer(h[j].SequenceNumber, h[i].SequenceNumber)
}
func (h seqHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *seqHeap) Push(x interface{}) {
	*h = append(*h, x.(*rtp.Packet))
}

func (h *seqHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// NewJitterBuffer 创建容量为 window 个包的缓冲
func NewJitterBuffer(window int) *JitterBuffer {
	if window <= 0 {
		window = 10
	}

	jb := &JitterBuffer{
		window:  window,
		packets: make(seqHeap, 0, window),
	}
	heap.Init(&jb.packets)

	return jb
}

// Push 收包入缓冲
// 晚于水位的包被丢弃并计入 Lost/Late, 永远不会被释放
func (jb *JitterBuffer) Push(pkt *rtp.Packet) {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	jb.stats.Received++

	if !jb.started {
		jb.started = true
		jb.horizon = pkt.SequenceNumber
		jb.highest = pkt.SequenceNumber
		heap.Push(&jb.packets, pkt)
		return
	}

	// 早于已释放水位: 丢弃计损
	if isSeqNewer(jb.horizon, pkt.SequenceNumber) {
		jb.stats.Late++
		jb.stats.Lost++
		return
	}

	// UDP 重传导致的窗口内重复: 丢弃, 不计损
	for _, buffered := range jb.packets {
		if buffered.SequenceNumber == pkt.SequenceNumber {
			jb.stats.Duplicate++
			return
		}
	}

	if isSeqNewer(jb.highest, pkt.SequenceNumber) {
		// 水位之上但乱序到达, 窗口内重排
		jb.stats.Reordered++
	} else {
		jb.highest = pkt.SequenceNumber
	}

	heap.Push(&jb.packets, pkt)
}

// Pop 取出下一个可释放的包
// 序列号连续时立即释放; 存在空洞时, 只有窗口占满才跳过空洞(空洞计入 Lost)
func (jb *JitterBuffer) Pop() (*rtp.Packet, bool) {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	return jb.pop(false)
}

// Flush 不再等待空洞补齐, 按序吐出剩余所有包
func (jb *JitterBuffer) Flush() []*rtp.Packet {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	var out []*rtp.Packet
	for {
		pkt, ok := jb.pop(true)
		if !ok {
			break
		}
		out = append(out, pkt)
	}
	return out
}

func (jb *JitterBuffer) pop(force bool) (*rtp.Packet, bool) {
	for len(jb.packets) > 0 {
		head := jb.packets[0]

		// 已释放序列号的残留副本: 丢弃, 不得当作空洞扣住后继包
		if isSeqNewer(jb.horizon, head.SequenceNumber) {
			heap.Pop(&jb.packets)
			jb.stats.Duplicate++
			continue
		}

		if head.SequenceNumber == jb.horizon {
			heap.Pop(&jb.packets)
			jb.horizon++
			jb.stats.Delivered++
			return head, true
		}

		// 空洞: 窗口未满且非强制时继续等待
		if !force && len(jb.packets) < jb.window {
			return nil, false
		}

		// 放弃等待, 空洞计入丢包
		jb.stats.Lost += uint64(seqDiff(head.SequenceNumber, jb.horizon))
		jb.horizon = head.SequenceNumber
	}

	return nil, false
}

// Stats 返回统计快照
func (jb *JitterBuffer) Stats() JitterStats {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	return jb.stats
}

// Len 返回当前缓冲内的包数
func (jb *JitterBuffer) Len() int {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	return len(jb.packets)
}

// isSeqNewer 判断 seq1 是否比 seq2 新(考虑 16bit 回绕)
func isSeqNewer(seq1, seq2 uint16) bool {
	return ((seq1 > seq2) && (seq1-seq2 < 32768)) ||
		((seq1 < seq2) && (seq2-seq1 > 32768))
}

// seqDiff 计算序列号差值(考虑回绕)
func seqDiff(newer, older uint16) uint16 {
	if newer >= older {
		return newer - older
	}
	return newer + (^older + 1)
}
