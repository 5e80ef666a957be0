package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/rf24-gateway/internal/command"
	cfgpkg "github.com/taoyao-code/rf24-gateway/internal/config"
	"github.com/taoyao-code/rf24-gateway/internal/driverapi"
	"github.com/taoyao-code/rf24-gateway/internal/link"
	_ "github.com/taoyao-code/rf24-gateway/internal/radio/stub"
	"github.com/taoyao-code/rf24-gateway/internal/subscription"
)

func testConfig() *cfgpkg.Config {
	return &cfgpkg.Config{
		Radio: cfgpkg.RadioConfig{
			Driver:     "stub",
			Channel:    0x4C,
			CRCLength:  "8",
			PALevel:    "min",
			DataRate:   "250kbps",
			RetryDelay: 15,
			RetryCount: 15,
			ReadPipes:  []string{"1Node"},
			WritePipe:  "2Node",
		},
		Link: cfgpkg.LinkConfig{QueueLimit: 16, JournalBuffer: 8},
	}
}

func TestNewCommandRegistry(t *testing.T) {
	t.Run("仅内置", func(t *testing.T) {
		reg, err := NewCommandRegistry(cfgpkg.CommandsConfig{}, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, len(command.DefaultPlugins()), reg.Len())
	})

	t.Run("合并目录", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "commands.yaml")
		doc := "commands:\n  - opcode: 0x20\n    name: READ_TEMPERATURE\n    payload: int32\n  - opcode: 0x01\n    name: PING_V2\n    payload: empty\n"
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

		reg, err := NewCommandRegistry(cfgpkg.CommandsConfig{CatalogPath: path}, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, len(command.DefaultPlugins())+1, reg.Len())
		assert.Equal(t, "READ_TEMPERATURE", reg.Name(0x20))
		assert.Equal(t, "PING_V2", reg.Name(command.OpPing))
	})

	t.Run("目录文件不存在", func(t *testing.T) {
		_, err := NewCommandRegistry(cfgpkg.CommandsConfig{CatalogPath: "/nonexistent/commands.yaml"}, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestLinkOptions(t *testing.T) {
	cfg := testConfig()
	opts, err := LinkOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, []driverapi.Pipe{driverapi.MustParsePipe("1Node")}, opts.ReadPipes)
	assert.Equal(t, driverapi.MustParsePipe("2Node"), opts.WritePipe)
	assert.Equal(t, 16, opts.QueueLimit)

	cfg.Radio.WritePipe = "TooLongPipe"
	_, err = LinkOptions(cfg)
	assert.Error(t, err)
}

func TestNewLink(t *testing.T) {
	cmds, err := NewCommandRegistry(cfgpkg.CommandsConfig{}, zap.NewNop())
	require.NoError(t, err)

	t.Run("stub驱动在线", func(t *testing.T) {
		cfg := testConfig()
		opts, err := LinkOptions(cfg)
		require.NoError(t, err)
		s, err := NewLink(cfg.Radio, cmds, subscription.NewRegistry(), opts, zap.NewNop())
		require.NoError(t, err)
		require.NoError(t, s.Start(context.Background()))
		defer s.Stop()
		st := s.Status()
		assert.True(t, st.Online)
		assert.True(t, st.Running)
	})

	t.Run("未知驱动离线运行", func(t *testing.T) {
		cfg := testConfig()
		cfg.Radio.Driver = "spidev-missing"
		opts, err := LinkOptions(cfg)
		require.NoError(t, err)
		s, err := NewLink(cfg.Radio, cmds, nil, opts, zap.NewNop())
		require.NoError(t, err)
		assert.ErrorIs(t, s.Start(context.Background()), link.ErrOffline)
		assert.False(t, s.Status().Online)
		assert.Contains(t, s.Status().Message, "spidev-missing")
	})

	t.Run("配置越界直接报错", func(t *testing.T) {
		cfg := testConfig()
		cfg.Radio.Channel = 200
		_, err := NewLink(cfg.Radio, cmds, nil, link.Options{}, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestNewJournal(t *testing.T) {
	_, m := NewMetrics()
	assert.Nil(t, NewJournal(testConfig(), nil, nil, m, zap.NewNop()))
	assert.Nil(t, NewFrameLog(nil))
	assert.Nil(t, NewDeadLetterQueue(nil, cfgpkg.RedisConfig{}))
}

func TestNewMetrics(t *testing.T) {
	reg, m := NewMetrics()
	require.NotNil(t, reg)
	var _ link.Observer = m
	var _ subscription.Observer = m
}
