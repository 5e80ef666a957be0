package command

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/taoyao-code/rf24-gateway/internal/protocol/rf24"
)

var (
	ErrUnresolvedOpcode = errors.New("unresolved opcode")
	ErrDuplicateOpcode  = errors.New("duplicate opcode")
	ErrReservedOpcode   = errors.New("reserved opcode")
	ErrPayloadKind      = errors.New("payload does not match kind")
)

// Kind 负载解码方式
type Kind uint8

const (
	KindRaw Kind = iota
	KindEmpty
	KindInt32
	KindInt64
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	default:
		return "raw"
	}
}

// ParseKind 解析目录文件中的负载类型名
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "raw", "bytes":
		return KindRaw, nil
	case "empty", "none":
		return KindEmpty, nil
	case "int", "int32":
		return KindInt32, nil
	case "long", "int64":
		return KindInt64, nil
	}
	return KindRaw, fmt.Errorf("unknown payload kind %q", s)
}

// Handler 收到该指令时的处理函数，返回需要回复的指令
type Handler func(msg *Message) Command

// Plugin 指令码描述：名称 + 负载解码方式 + 可选处理函数
type Plugin struct {
	Opcode  uint8
	Name    string
	Kind    Kind
	Handler Handler
}

// Decode 按 Kind 解码负载
func (p Plugin) Decode(payload []byte) (any, error) {
	switch p.Kind {
	case KindEmpty:
		if len(payload) != 0 {
			return nil, fmt.Errorf("%w: %s wants empty, got %d bytes", ErrPayloadKind, p.Name, len(payload))
		}
		return nil, nil
	case KindInt32:
		if len(payload) != 4 {
			return nil, fmt.Errorf("%w: %s wants 4 bytes, got %d", ErrPayloadKind, p.Name, len(payload))
		}
		return int32(binary.BigEndian.Uint32(payload)), nil
	case KindInt64:
		if len(payload) != 8 {
			return nil, fmt.Errorf("%w: %s wants 8 bytes, got %d", ErrPayloadKind, p.Name, len(payload))
		}
		return int64(binary.BigEndian.Uint64(payload)), nil
	default:
		return append([]byte(nil), payload...), nil
	}
}

// Registry 指令码 -> Plugin 映射，启动时由显式注册列表构建，之后只读
type Registry struct {
	plugins map[uint8]Plugin
}

// NewRegistry 构建注册表（重复或保留指令码报错）
func NewRegistry(plugins ...Plugin) (*Registry, error) {
	r := &Registry{plugins: make(map[uint8]Plugin, len(plugins))}
	for _, p := range plugins {
		if p.Opcode == OpSendError {
			return nil, fmt.Errorf("%w: 0x%02X (%s)", ErrReservedOpcode, p.Opcode, p.Name)
		}
		if prev, ok := r.plugins[p.Opcode]; ok {
			return nil, fmt.Errorf("%w: 0x%02X (%s, %s)", ErrDuplicateOpcode, p.Opcode, prev.Name, p.Name)
		}
		if p.Name == "" {
			p.Name = fmt.Sprintf("CMD_0x%02X", p.Opcode)
		}
		r.plugins[p.Opcode] = p
	}
	return r, nil
}

// Lookup 查找指令码
func (r *Registry) Lookup(opcode uint8) (Plugin, bool) {
	if r == nil {
		return Plugin{}, false
	}
	p, ok := r.plugins[opcode]
	return p, ok
}

// Name 指令码名称，未注册时返回十六进制
func (r *Registry) Name(opcode uint8) string {
	if opcode == OpSendError {
		return "SEND_ERROR"
	}
	if p, ok := r.Lookup(opcode); ok {
		return p.Name
	}
	return fmt.Sprintf("0x%02X", opcode)
}

// Len 已注册指令数
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.plugins)
}

// Plugins 按指令码排序返回全部注册项
func (r *Registry) Plugins() []Plugin {
	if r == nil {
		return nil
	}
	out := make([]Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Opcode < out[j].Opcode })
	return out
}

// Resolve 将已校验的帧解析为消息，未注册的指令码返回 ErrUnresolvedOpcode
func (r *Registry) Resolve(f rf24.Frame) (*Message, error) {
	p, ok := r.Lookup(f.CommandID)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnresolvedOpcode, f.CommandID)
	}
	return &Message{
		MessageID: f.MessageID,
		Target:    f.Target,
		Plugin:    p,
		Payload:   f.Payload,
	}, nil
}

// Execute 执行消息对应的处理函数；无处理函数时返回 SendError
func (r *Registry) Execute(msg *Message) Command {
	if msg == nil || msg.Plugin.Handler == nil {
		return SendError
	}
	return msg.Plugin.Handler(msg)
}
