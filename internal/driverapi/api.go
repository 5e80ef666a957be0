package driverapi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Driver 收发器驱动能力接口，由外部硬件驱动实现（SPI/GPIO 寄存器操作不在本仓库内）。
// 驱动本身不保证半双工互斥，由调度器的状态机保证。
type Driver interface {
	Open() error
	Close() error

	SetChannel(ch uint8) error
	SetRetries(delay, count uint8) error
	SetCRCLength(l CRCLength) error
	SetPALevel(l PALevel) error
	SetDataRate(r DataRate) error

	// OpenReadingPipe slot 取值 1..MaxReadPipes
	OpenReadingPipe(slot uint8, addr Pipe) error
	OpenWritingPipe(addr Pipe) error
	StartListening() error
	StopListening() error

	Available() (bool, error)
	Read(buf []byte) (int, error)
	// Write 阻塞发送，返回对端是否确认（硬件自动重传耗尽后为 false）
	Write(buf []byte) (bool, error)
}

// MaxReadPipes 可同时打开的读管道数（slot 0 保留给自动应答）
const MaxReadPipes = 5

// CRCLength 硬件 CRC 长度
type CRCLength uint8

const (
	CRCDisabled CRCLength = iota
	CRC8
	CRC16
)

func (c CRCLength) String() string {
	switch c {
	case CRCDisabled:
		return "disabled"
	case CRC8:
		return "8"
	case CRC16:
		return "16"
	}
	return "CRCLength(" + strconv.Itoa(int(c)) + ")"
}

// PALevel 发射功率档位
type PALevel uint8

const (
	PAMin PALevel = iota
	PALow
	PAHigh
	PAMax
)

func (p PALevel) String() string {
	switch p {
	case PAMin:
		return "min"
	case PALow:
		return "low"
	case PAHigh:
		return "high"
	case PAMax:
		return "max"
	}
	return "PALevel(" + strconv.Itoa(int(p)) + ")"
}

// DataRate 空口速率
type DataRate uint8

const (
	Rate250Kbps DataRate = iota
	Rate1Mbps
	Rate2Mbps
)

func (r DataRate) String() string {
	switch r {
	case Rate250Kbps:
		return "250kbps"
	case Rate1Mbps:
		return "1mbps"
	case Rate2Mbps:
		return "2mbps"
	}
	return "DataRate(" + strconv.Itoa(int(r)) + ")"
}

// ParseCRCLength 解析配置值：disabled|8|16
func ParseCRCLength(s string) (CRCLength, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off", "0":
		return CRCDisabled, nil
	case "8", "crc8":
		return CRC8, nil
	case "16", "crc16":
		return CRC16, nil
	}
	return 0, fmt.Errorf("unknown crc length %q", s)
}

// ParsePALevel 解析配置值：min|low|high|max
func ParsePALevel(s string) (PALevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "min":
		return PAMin, nil
	case "low":
		return PALow, nil
	case "high":
		return PAHigh, nil
	case "max":
		return PAMax, nil
	}
	return 0, fmt.Errorf("unknown pa level %q", s)
}

// ParseDataRate 解析配置值：250kbps|1mbps|2mbps
func ParseDataRate(s string) (DataRate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "250kbps", "250k":
		return Rate250Kbps, nil
	case "1mbps", "1m":
		return Rate1Mbps, nil
	case "2mbps", "2m":
		return Rate2Mbps, nil
	}
	return 0, fmt.Errorf("unknown data rate %q", s)
}

// Pipe 40 位管道地址
type Pipe uint64

const pipeMask = 1<<40 - 1

var ErrBadPipe = errors.New("bad pipe address")

// ParsePipe 解析管道地址：不超过 5 个字符的名称（如 "1Node"，按小端装入 40 位）或 0x 前缀十六进制
func ParsePipe(s string) (Pipe, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrBadPipe)
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil || v > pipeMask {
			return 0, fmt.Errorf("%w: %q", ErrBadPipe, s)
		}
		return Pipe(v), nil
	}
	if len(s) > 5 {
		return 0, fmt.Errorf("%w: name %q longer than 5 bytes", ErrBadPipe, s)
	}
	var b [8]byte
	copy(b[:], s)
	return Pipe(binary.LittleEndian.Uint64(b[:])), nil
}

// MustParsePipe 用于常量地址
func MustParsePipe(s string) Pipe {
	p, err := ParsePipe(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Bytes 5 字节小端地址（驱动写寄存器时使用）
func (p Pipe) Bytes() [5]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(p))
	var out [5]byte
	copy(out[:], b[:5])
	return out
}

func (p Pipe) String() string {
	return fmt.Sprintf("0x%010X", uint64(p))
}
