package radio

import (
	"fmt"

	"github.com/taoyao-code/rf24-gateway/internal/config"
	"github.com/taoyao-code/rf24-gateway/internal/driverapi"
)

const (
	DefaultChannel    uint8 = 0x4C
	DefaultRetryDelay uint8 = 15
	DefaultRetryCount uint8 = 15
	maxChannel        uint8 = 125
	maxRetryNibble    uint8 = 15
)

// Settings 射频参数，启动时一次性下发，运行期可通过写窗口重新下发
type Settings struct {
	Channel    uint8
	CRC        driverapi.CRCLength
	PALevel    driverapi.PALevel
	DataRate   driverapi.DataRate
	RetryDelay uint8
	RetryCount uint8
}

// DefaultSettings 与设备固件出厂参数一致
func DefaultSettings() Settings {
	return Settings{
		Channel:    DefaultChannel,
		CRC:        driverapi.CRC8,
		PALevel:    driverapi.PAMin,
		DataRate:   driverapi.Rate250Kbps,
		RetryDelay: DefaultRetryDelay,
		RetryCount: DefaultRetryCount,
	}
}

// Validate 检查取值范围
func (s Settings) Validate() error {
	if s.Channel > maxChannel {
		return fmt.Errorf("channel %d out of range 0..%d", s.Channel, maxChannel)
	}
	if s.RetryDelay > maxRetryNibble || s.RetryCount > maxRetryNibble {
		return fmt.Errorf("retry delay/count %d/%d out of range 0..%d", s.RetryDelay, s.RetryCount, maxRetryNibble)
	}
	return nil
}

// SettingsFromConfig 将配置文件中的字符串取值转换为 Settings
func SettingsFromConfig(cfg config.RadioConfig) (Settings, error) {
	s := DefaultSettings()
	if cfg.Channel < 0 || cfg.Channel > int(maxChannel) {
		return s, fmt.Errorf("radio.channel %d out of range", cfg.Channel)
	}
	s.Channel = uint8(cfg.Channel)
	if cfg.RetryDelay < 0 || cfg.RetryDelay > int(maxRetryNibble) || cfg.RetryCount < 0 || cfg.RetryCount > int(maxRetryNibble) {
		return s, fmt.Errorf("radio.retryDelay/retryCount %d/%d out of range", cfg.RetryDelay, cfg.RetryCount)
	}
	s.RetryDelay = uint8(cfg.RetryDelay)
	s.RetryCount = uint8(cfg.RetryCount)

	var err error
	if cfg.CRCLength != "" {
		if s.CRC, err = driverapi.ParseCRCLength(cfg.CRCLength); err != nil {
			return s, fmt.Errorf("radio.crcLength: %w", err)
		}
	}
	if cfg.PALevel != "" {
		if s.PALevel, err = driverapi.ParsePALevel(cfg.PALevel); err != nil {
			return s, fmt.Errorf("radio.paLevel: %w", err)
		}
	}
	if cfg.DataRate != "" {
		if s.DataRate, err = driverapi.ParseDataRate(cfg.DataRate); err != nil {
			return s, fmt.Errorf("radio.dataRate: %w", err)
		}
	}
	return s, s.Validate()
}

// ParsePipes 解析读管道列表
func ParsePipes(names []string) ([]driverapi.Pipe, error) {
	if len(names) > driverapi.MaxReadPipes {
		return nil, fmt.Errorf("%d read pipes, at most %d", len(names), driverapi.MaxReadPipes)
	}
	out := make([]driverapi.Pipe, 0, len(names))
	for _, n := range names {
		p, err := driverapi.ParsePipe(n)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
