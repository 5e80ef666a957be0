package command

import (
	"fmt"
	"sync/atomic"
)

// Message 已解码的上行消息
// Payload 可能引用读缓冲区，只在一次分发周期内有效；需要保留时调用 Clone。
type Message struct {
	MessageID uint8
	Target    uint16
	Plugin    Plugin
	Payload   []byte
}

// Opcode 指令码
func (m *Message) Opcode() uint8 { return m.Plugin.Opcode }

// Value 按 Plugin 的 Kind 解码负载
func (m *Message) Value() (any, error) { return m.Plugin.Decode(m.Payload) }

// Clone 深拷贝，脱离读缓冲区
func (m *Message) Clone() *Message {
	out := *m
	if m.Payload != nil {
		out.Payload = append([]byte(nil), m.Payload...)
	}
	return &out
}

func (m *Message) String() string {
	return fmt.Sprintf("msg_id=%d target=%d cmd=%s payload=%x", m.MessageID, m.Target, m.Plugin.Name, m.Payload)
}

// Sequence 消息号生成器，按 uint8 自然回绕（256）
type Sequence struct {
	n atomic.Uint32
}

// Next 返回下一个消息号
func (s *Sequence) Next() uint8 {
	return uint8(s.n.Add(1))
}
