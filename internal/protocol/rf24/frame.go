package rf24

import "errors"

// Frame RF24 固定 32 字节帧
// 布局（多字节字段小端）：
// sync[1] | sync[1] | payloadLen[1] | checksumLE[2] | msgId[1] | targetLE[2] | cmd[1] | payload[0..23] | 填充0
type Frame struct {
	Sync      byte   // 同步字节（上行 0x24 / 下行 0x25）
	MessageID uint8  // 请求/响应关联号，256 回绕
	Target    uint16 // 目标/来源节点
	CommandID uint8  // 指令码
	Checksum  uint16 // 帧内携带的校验和
	Payload   []byte // 借用解码缓冲区，不得越过一次分发周期持有
}

const (
	FrameSize = 32

	offSync1    = 0
	offSync2    = 1
	offLength   = 2
	offChecksum = 3
	offMsgID    = 5
	offTarget   = 6
	offCommand  = 8

	// HeaderSize 负载前的固定头长度
	HeaderSize = 9

	// MaxPayloadSize 单帧负载上限（32 - 9）
	MaxPayloadSize = FrameSize - HeaderSize

	// SyncUplink 设备 -> 网关
	SyncUplink byte = 0x24
	// SyncDownlink 网关 -> 设备
	SyncDownlink byte = 0x25
)

var (
	ErrShortFrame      = errors.New("short frame")
	ErrBadSync         = errors.New("bad sync")
	ErrBadLength       = errors.New("bad payload length")
	ErrBadChecksum     = errors.New("bad checksum")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// IsUplink 判断是否为设备上行帧
func (f *Frame) IsUplink() bool { return f.Sync == SyncUplink }

// IsDownlink 判断是否为网关下行帧
func (f *Frame) IsDownlink() bool { return f.Sync == SyncDownlink }

// Clone 复制负载，返回可长期持有的帧
func (f Frame) Clone() Frame {
	out := f
	if f.Payload != nil {
		out.Payload = append([]byte(nil), f.Payload...)
	}
	return out
}

func validSync(b byte) bool {
	return b == SyncUplink || b == SyncDownlink
}
