package radio

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/taoyao-code/rf24-gateway/internal/driverapi"
)

// ErrInitialization 初始化失败（驱动打开或参数下发失败），子系统离线，不启动收发循环
var ErrInitialization = errors.New("radio initialization failed")

// InitError 记录失败的初始化步骤
type InitError struct {
	Step string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("radio init %s: %v", e.Step, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Is 使 errors.Is(err, ErrInitialization) 成立
func (e *InitError) Is(target error) bool { return target == ErrInitialization }

// Radio 已完成初始化的收发器句柄，由子系统实例持有并传给读写两个循环
type Radio struct {
	drv      driverapi.Driver
	logger   *zap.Logger
	mu       sync.Mutex
	settings Settings

	closeOnce sync.Once
	closeErr  error
}

// Open 打开驱动并下发参数；任一步失败返回 *InitError，并释放已打开的驱动
func Open(drv driverapi.Driver, s Settings, logger *zap.Logger) (*Radio, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if drv == nil {
		return nil, &InitError{Step: "open", Err: errors.New("no driver")}
	}
	if err := s.Validate(); err != nil {
		return nil, &InitError{Step: "settings", Err: err}
	}
	if err := drv.Open(); err != nil {
		return nil, &InitError{Step: "open", Err: err}
	}
	if err := apply(drv, s); err != nil {
		if cerr := drv.Close(); cerr != nil {
			logger.Warn("close driver after init failure", zap.Error(cerr))
		}
		return nil, err
	}
	logger.Info("radio initialized",
		zap.Uint8("channel", s.Channel),
		zap.Stringer("crc", s.CRC),
		zap.Stringer("pa_level", s.PALevel),
		zap.Stringer("data_rate", s.DataRate),
		zap.Uint8("retry_delay", s.RetryDelay),
		zap.Uint8("retry_count", s.RetryCount))
	return &Radio{drv: drv, logger: logger, settings: s}, nil
}

func apply(drv driverapi.Driver, s Settings) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"channel", func() error { return drv.SetChannel(s.Channel) }},
		{"retries", func() error { return drv.SetRetries(s.RetryDelay, s.RetryCount) }},
		{"crc_length", func() error { return drv.SetCRCLength(s.CRC) }},
		{"pa_level", func() error { return drv.SetPALevel(s.PALevel) }},
		{"data_rate", func() error { return drv.SetDataRate(s.DataRate) }},
	}
	for _, st := range steps {
		if err := st.fn(); err != nil {
			return &InitError{Step: st.name, Err: err}
		}
	}
	return nil
}

// Driver 底层驱动
func (r *Radio) Driver() driverapi.Driver { return r.drv }

// Settings 当前生效参数
func (r *Radio) Settings() Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// Apply 重新下发参数，调用方须持有收发器（处于写窗口内）
func (r *Radio) Apply(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := apply(r.drv, s); err != nil {
		return err
	}
	r.mu.Lock()
	r.settings = s
	r.mu.Unlock()
	r.logger.Info("radio settings applied",
		zap.Uint8("channel", s.Channel),
		zap.Stringer("crc", s.CRC),
		zap.Stringer("pa_level", s.PALevel),
		zap.Stringer("data_rate", s.DataRate))
	return nil
}

// Close 释放驱动，只执行一次
func (r *Radio) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.drv.Close()
		if r.closeErr != nil {
			r.logger.Warn("radio close failed", zap.Error(r.closeErr))
		}
	})
	return r.closeErr
}
