package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/taoyao-code/rf24-gateway/internal/command"
	cfgpkg "github.com/taoyao-code/rf24-gateway/internal/config"
	"github.com/taoyao-code/rf24-gateway/internal/driverapi"
	"github.com/taoyao-code/rf24-gateway/internal/link"
	"github.com/taoyao-code/rf24-gateway/internal/radio"
	"github.com/taoyao-code/rf24-gateway/internal/subscription"
)

// NewCommandRegistry 内置指令表合并目录文件（同指令码以目录为准）
func NewCommandRegistry(cfg cfgpkg.CommandsConfig, log *zap.Logger) (*command.Registry, error) {
	plugins := command.DefaultPlugins()
	if cfg.CatalogPath != "" {
		extra, err := command.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		plugins = command.Merge(plugins, extra)
		log.Info("command catalog loaded",
			zap.String("path", cfg.CatalogPath),
			zap.Int("entries", len(extra)))
	}
	reg, err := command.NewRegistry(plugins...)
	if err != nil {
		return nil, fmt.Errorf("command registry: %w", err)
	}
	return reg, nil
}

// LinkOptions 由配置组装调度器参数（不含观察者）
func LinkOptions(cfg *cfgpkg.Config) (link.Options, error) {
	readPipes, err := radio.ParsePipes(cfg.Radio.ReadPipes)
	if err != nil {
		return link.Options{}, fmt.Errorf("radio.readPipes: %w", err)
	}
	writePipe, err := driverapi.ParsePipe(cfg.Radio.WritePipe)
	if err != nil {
		return link.Options{}, fmt.Errorf("radio.writePipe: %w", err)
	}
	return link.Options{
		ReadPipes:         readPipes,
		WritePipe:         writePipe,
		PollInterval:      cfg.Link.PollInterval,
		ResponseTimeout:   cfg.Link.ResponseTimeout,
		QueueLimit:        cfg.Link.QueueLimit,
		TxRate:            cfg.Link.TxRate,
		TxBurst:           cfg.Link.TxBurst,
		ReplyWithHandlers: cfg.Link.ReplyWithHandlers,
	}, nil
}

// NewLink 打开收发器并创建调度器。
// 配置错误直接返回；驱动打开或参数下发失败时返回离线调度器，进程继续提供状态查询。
func NewLink(cfg cfgpkg.RadioConfig, cmds *command.Registry, subs *subscription.Registry, opts link.Options, log *zap.Logger) (*link.Scheduler, error) {
	settings, err := radio.SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	drv, err := radio.NewDriver(cfg.Driver, log.With(zap.String("driver", cfg.Driver)))
	if err != nil {
		initErr := &radio.InitError{Step: "driver", Err: err}
		log.Error("radio driver unavailable, running offline", zap.Error(initErr))
		return link.NewOffline(initErr, cmds, subs, log, opts), nil
	}

	r, err := radio.Open(drv, settings, log)
	if err != nil {
		log.Error("radio initialization failed, running offline", zap.Error(err))
		return link.NewOffline(err, cmds, subs, log, opts), nil
	}

	log.Info("radio initialized",
		zap.String("driver", cfg.Driver),
		zap.Uint8("channel", settings.Channel),
		zap.Stringer("pa_level", settings.PALevel),
		zap.Stringer("crc_length", settings.CRC),
		zap.Stringer("data_rate", settings.DataRate),
		zap.Strings("read_pipes", cfg.ReadPipes),
		zap.String("write_pipe", cfg.WritePipe))
	return link.New(r, cmds, subs, log, opts), nil
}
