package command

import (
	"encoding/binary"
	"fmt"
)

// OpSendError 保留指令码：协议层发送失败哨兵
const OpSendError uint8 = 0xFF

// Command 下行指令（不可变值）：指令码 + 已编码负载
type Command struct {
	id      uint8
	payload []byte
	isError bool
}

// SendError 发送失败哨兵，无法得到正常指令的路径统一使用它，避免空值判断
var SendError = Command{id: OpSendError, isError: true}

// Empty 空负载指令
func Empty(id uint8) Command {
	return Command{id: id}
}

// Int32 4 字节大端整数负载
func Int32(id uint8, v int32) Command {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return Command{id: id, payload: b}
}

// Int64 8 字节大端整数负载
func Int64(id uint8, v int64) Command {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return Command{id: id, payload: b}
}

// Bytes 原始负载（拷贝一份，调用方后续修改不影响指令）
func Bytes(id uint8, p []byte) Command {
	if len(p) == 0 {
		return Command{id: id}
	}
	return Command{id: id, payload: append([]byte(nil), p...)}
}

// ID 指令码
func (c Command) ID() uint8 { return c.id }

// Payload 负载副本
func (c Command) Payload() []byte {
	if len(c.payload) == 0 {
		return nil
	}
	return append([]byte(nil), c.payload...)
}

// Len 负载长度
func (c Command) Len() int { return len(c.payload) }

// IsError 是否为发送失败哨兵
func (c Command) IsError() bool { return c.isError }

// AppendPayload 将负载追加到 dst，编码帧时避免额外拷贝
func (c Command) AppendPayload(dst []byte) []byte { return append(dst, c.payload...) }

func (c Command) String() string {
	if c.isError {
		return "SEND_ERROR"
	}
	return fmt.Sprintf("cmd=0x%02X len=%d", c.id, len(c.payload))
}
