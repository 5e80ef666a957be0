package rf24

// checksumSeed 校验初值
const checksumSeed = 0xBEAF

// Checksum 计算帧校验和：
// (0xBEAF + msgId + target + cmd + Σ|int8(payload[i])|) & 0xFFFF
// 负载按有符号字节取绝对值累加，现网设备依赖此算法，不可改为无符号累加。
func Checksum(messageID uint8, target uint16, commandID uint8, payload []byte) uint16 {
	sum := checksumSeed + int(messageID) + int(target) + int(commandID)
	for _, b := range payload {
		v := int(int8(b))
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return uint16(sum & 0xFFFF)
}

// VerifyChecksum 校验帧内携带的校验和
func VerifyChecksum(f *Frame) error {
	if f.Checksum != Checksum(f.MessageID, f.Target, f.CommandID, f.Payload) {
		return ErrBadChecksum
	}
	return nil
}
