package rf24

// Reassembler 处理驱动短读的帧重组器
// 驱动一次读满 32 字节且以同步字节对开头时直接透传；短读时累积字节，
// 按同步字节对齐后凑满一帧并通过解码校验才输出，否则跳过一个字节重新对齐。
type Reassembler struct {
	buf []byte
}

// NewReassembler 创建帧重组器
func NewReassembler() *Reassembler {
	return &Reassembler{buf: make([]byte, 0, FrameSize*2)}
}

// Feed 追加一次读取的数据，返回已凑齐的原始帧与因失步丢弃的字节数。
// 对齐快路径返回的帧直接引用 p，仅在下一次读取前有效。
func (r *Reassembler) Feed(p []byte) (frames [][]byte, discarded int) {
	if len(p) == 0 {
		return nil, 0
	}
	if len(r.buf) == 0 && len(p) == FrameSize && isSyncPair(p) {
		return [][]byte{p}, 0
	}
	r.buf = append(r.buf, p...)

	for {
		start := indexSync(r.buf)
		if start < 0 {
			// 保留末尾可能的半个同步对
			keep := 0
			if n := len(r.buf); n > 0 && validSync(r.buf[n-1]) {
				keep = 1
			}
			discarded += len(r.buf) - keep
			r.buf = append(r.buf[:0], r.buf[len(r.buf)-keep:]...)
			return frames, discarded
		}
		if start > 0 {
			discarded += start
			r.buf = append(r.buf[:0], r.buf[start:]...)
		}
		if len(r.buf) > offLength && int(r.buf[offLength]) > MaxPayloadSize {
			discarded++
			r.buf = append(r.buf[:0], r.buf[1:]...)
			continue
		}
		if len(r.buf) < FrameSize {
			return frames, discarded
		}
		if _, err := Decode(r.buf[:FrameSize]); err != nil {
			// 同步对可能是上一段残留字节，真实帧从后面开始
			discarded++
			r.buf = append(r.buf[:0], r.buf[1:]...)
			continue
		}
		frame := make([]byte, FrameSize)
		copy(frame, r.buf[:FrameSize])
		frames = append(frames, frame)
		r.buf = append(r.buf[:0], r.buf[FrameSize:]...)
		if len(r.buf) == 0 {
			return frames, discarded
		}
	}
}

// Pending 当前缓存的未成帧字节数
func (r *Reassembler) Pending() int { return len(r.buf) }

// Reset 丢弃缓存
func (r *Reassembler) Reset() { r.buf = r.buf[:0] }

func isSyncPair(b []byte) bool {
	return len(b) > 1 && b[0] == b[1] && validSync(b[0])
}

// indexSync 返回缓冲区中下一个同步字节对的位置
func indexSync(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == b[i+1] && validSync(b[i]) {
			return i
		}
	}
	return -1
}
