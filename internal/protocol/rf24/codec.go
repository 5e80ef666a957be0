package rf24

import (
	"encoding/binary"
	"fmt"
)

// Encode 构造一帧下行数据（0x25 同步字节）
func Encode(messageID uint8, target uint16, commandID uint8, payload []byte) ([FrameSize]byte, error) {
	return EncodeWithSync(SyncDownlink, messageID, target, commandID, payload)
}

// EncodeUplink 构造一帧上行数据（0x24 同步字节），用于模拟设备
func EncodeUplink(messageID uint8, target uint16, commandID uint8, payload []byte) ([FrameSize]byte, error) {
	return EncodeWithSync(SyncUplink, messageID, target, commandID, payload)
}

// EncodeWithSync 按指定同步字节构造帧，未使用的尾部补 0
func EncodeWithSync(sync byte, messageID uint8, target uint16, commandID uint8, payload []byte) ([FrameSize]byte, error) {
	var buf [FrameSize]byte
	if !validSync(sync) {
		return buf, fmt.Errorf("%w: 0x%02X", ErrBadSync, sync)
	}
	if len(payload) > MaxPayloadSize {
		return buf, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	buf[offSync1] = sync
	buf[offSync2] = sync
	buf[offLength] = byte(len(payload))
	binary.LittleEndian.PutUint16(buf[offChecksum:], Checksum(messageID, target, commandID, payload))
	buf[offMsgID] = messageID
	binary.LittleEndian.PutUint16(buf[offTarget:], target)
	buf[offCommand] = commandID
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// Decode 解析一帧（严格校验：同步字节、长度、校验和）
// 返回帧的 Payload 直接引用 raw，不做拷贝。
func Decode(raw []byte) (Frame, error) {
	if len(raw) < HeaderSize {
		return Frame{}, ErrShortFrame
	}
	if raw[offSync1] != raw[offSync2] || !validSync(raw[offSync1]) {
		return Frame{}, ErrBadSync
	}
	n := int(raw[offLength])
	if n > MaxPayloadSize {
		return Frame{}, ErrBadLength
	}
	if len(raw) < HeaderSize+n {
		return Frame{}, ErrShortFrame
	}
	f := Frame{
		Sync:      raw[offSync1],
		Checksum:  binary.LittleEndian.Uint16(raw[offChecksum:]),
		MessageID: raw[offMsgID],
		Target:    binary.LittleEndian.Uint16(raw[offTarget:]),
		CommandID: raw[offCommand],
		Payload:   raw[HeaderSize : HeaderSize+n : HeaderSize+n],
	}
	if err := VerifyChecksum(&f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// DecodeUplink 解析设备上行帧，网关自身的下行同步字节视为失步
func DecodeUplink(raw []byte) (Frame, error) {
	f, err := Decode(raw)
	if err != nil {
		return Frame{}, err
	}
	if !f.IsUplink() {
		return Frame{}, fmt.Errorf("%w: downlink 0x%02X on receive", ErrBadSync, f.Sync)
	}
	return f, nil
}
