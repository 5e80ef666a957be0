package command

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// 内置指令码（设备固件约定）
const (
	OpPing               uint8 = 0x01
	OpGetTime            uint8 = 0x02
	OpSetDelay           uint8 = 0x03
	OpGetPinMode         uint8 = 0x04
	OpSetPinMode         uint8 = 0x05
	OpGetPinValue        uint8 = 0x06
	OpSetPinValue        uint8 = 0x07
	OpSetPinValueBulk    uint8 = 0x08
	OpPinValueRequest    uint8 = 0x09
	OpRemovePinRequest   uint8 = 0x0A
	OpHandlerWhenPinOp   uint8 = 0x0B
	OpRemoveHandlerPinOp uint8 = 0x0C
	OpStatus             uint8 = 0x10
)

// DefaultPlugins 内置指令表
func DefaultPlugins() []Plugin {
	return []Plugin{
		{Opcode: OpPing, Name: "PING", Kind: KindEmpty},
		{Opcode: OpGetTime, Name: "GET_TIME", Kind: KindInt64},
		{Opcode: OpSetDelay, Name: "SET_DELAY", Kind: KindInt32},
		{Opcode: OpGetPinMode, Name: "GET_PIN_MODE", Kind: KindRaw},
		{Opcode: OpSetPinMode, Name: "SET_PIN_MODE", Kind: KindRaw},
		{Opcode: OpGetPinValue, Name: "GET_PIN_VALUE", Kind: KindRaw},
		{Opcode: OpSetPinValue, Name: "SET_PIN_VALUE", Kind: KindRaw},
		{Opcode: OpSetPinValueBulk, Name: "SET_PIN_VALUE_BULK", Kind: KindRaw},
		{Opcode: OpPinValueRequest, Name: "GET_PIN_VALUE_REQUEST", Kind: KindRaw},
		{Opcode: OpRemovePinRequest, Name: "REMOVE_GET_PIN_VALUE_REQUEST", Kind: KindRaw},
		{Opcode: OpHandlerWhenPinOp, Name: "HANDLER_REQUEST_WHEN_PIN_VALUE_OP_THAN", Kind: KindRaw},
		{Opcode: OpRemoveHandlerPinOp, Name: "REMOVE_HANDLER_REQUEST_WHEN_PIN_VALUE_OP_THAN", Kind: KindRaw},
		{Opcode: OpStatus, Name: "STATUS", Kind: KindRaw},
	}
}

// catalogFile 指令目录文件格式
//
//	commands:
//	  - opcode: 0x20
//	    name: READ_TEMPERATURE
//	    payload: int32
type catalogFile struct {
	Commands []catalogEntry `yaml:"commands"`
}

type catalogEntry struct {
	Opcode  int    `yaml:"opcode"`
	Name    string `yaml:"name"`
	Payload string `yaml:"payload"`
}

// LoadCatalog 从 YAML 文件加载指令目录
func LoadCatalog(path string) ([]Plugin, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read command catalog: %w", err)
	}
	return ParseCatalog(b)
}

// ParseCatalog 解析 YAML 指令目录
func ParseCatalog(b []byte) ([]Plugin, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("unmarshal command catalog: %w", err)
	}
	out := make([]Plugin, 0, len(f.Commands))
	for i, e := range f.Commands {
		if e.Opcode < 0 || e.Opcode > 0xFF {
			return nil, fmt.Errorf("command catalog entry %d: opcode %d out of range", i, e.Opcode)
		}
		kind, err := ParseKind(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("command catalog entry %d: %w", i, err)
		}
		out = append(out, Plugin{Opcode: uint8(e.Opcode), Name: e.Name, Kind: kind})
	}
	return out, nil
}

// Merge 以 override 覆盖 base 中同指令码的条目，保留 base 的处理函数
func Merge(base, override []Plugin) []Plugin {
	idx := make(map[uint8]int, len(base))
	out := make([]Plugin, 0, len(base)+len(override))
	for _, p := range base {
		idx[p.Opcode] = len(out)
		out = append(out, p)
	}
	for _, p := range override {
		if i, ok := idx[p.Opcode]; ok {
			if p.Handler == nil {
				p.Handler = out[i].Handler
			}
			out[i] = p
			continue
		}
		idx[p.Opcode] = len(out)
		out = append(out, p)
	}
	return out
}
