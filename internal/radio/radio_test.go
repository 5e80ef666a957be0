package radio_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/rf24-gateway/internal/config"
	"github.com/taoyao-code/rf24-gateway/internal/driverapi"
	"github.com/taoyao-code/rf24-gateway/internal/radio"
	"github.com/taoyao-code/rf24-gateway/internal/radio/stub"
)

func TestOpen_AppliesSettings(t *testing.T) {
	drv := stub.New()
	r, err := radio.Open(drv, radio.DefaultSettings(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"Open", "SetChannel", "SetRetries", "SetCRCLength", "SetPALevel", "SetDataRate"}, drv.Calls())
	assert.Equal(t, radio.DefaultSettings(), r.Settings())

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, drv.Closes())
}

func TestOpen_InitFailure(t *testing.T) {
	boom := errors.New("spi timeout")

	t.Run("打开失败", func(t *testing.T) {
		drv := stub.New(stub.WithFailOpen(boom))
		_, err := radio.Open(drv, radio.DefaultSettings(), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, radio.ErrInitialization)
		assert.ErrorIs(t, err, boom)
		var ie *radio.InitError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, "open", ie.Step)
		assert.Equal(t, 0, drv.Closes())
	})

	t.Run("参数下发失败释放驱动", func(t *testing.T) {
		drv := stub.New(stub.WithFailStep("SetPALevel", boom))
		_, err := radio.Open(drv, radio.DefaultSettings(), nil)
		var ie *radio.InitError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, "pa_level", ie.Step)
		assert.ErrorIs(t, err, radio.ErrInitialization)
		assert.Equal(t, 1, drv.Closes())
	})

	t.Run("参数越界", func(t *testing.T) {
		s := radio.DefaultSettings()
		s.Channel = 200
		_, err := radio.Open(stub.New(), s, nil)
		assert.ErrorIs(t, err, radio.ErrInitialization)
	})
}

func TestRadio_Apply(t *testing.T) {
	drv := stub.New()
	r, err := radio.Open(drv, radio.DefaultSettings(), nil)
	require.NoError(t, err)

	s := r.Settings()
	s.PALevel = driverapi.PAMax
	s.CRC = driverapi.CRC16
	require.NoError(t, r.Apply(s))
	assert.Equal(t, driverapi.PAMax, r.Settings().PALevel)
	assert.Equal(t, 2, drv.CountCalls("SetPALevel"))

	s.RetryCount = 16
	assert.Error(t, r.Apply(s))
	assert.Equal(t, driverapi.CRC16, r.Settings().CRC)
}

func TestSettingsFromConfig(t *testing.T) {
	s, err := radio.SettingsFromConfig(config.RadioConfig{
		Channel: 0x4C, CRCLength: "16", PALevel: "high", DataRate: "1mbps", RetryDelay: 5, RetryCount: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, driverapi.CRC16, s.CRC)
	assert.Equal(t, driverapi.PAHigh, s.PALevel)
	assert.Equal(t, driverapi.Rate1Mbps, s.DataRate)
	assert.Equal(t, uint8(5), s.RetryDelay)

	_, err = radio.SettingsFromConfig(config.RadioConfig{Channel: 300})
	assert.Error(t, err)
	_, err = radio.SettingsFromConfig(config.RadioConfig{Channel: 1, PALevel: "loud"})
	assert.Error(t, err)
}

func TestPipeManager_Idempotent(t *testing.T) {
	drv := stub.New()
	_, err := radio.Open(drv, radio.DefaultSettings(), nil)
	require.NoError(t, err)

	changes := 0
	pm := radio.NewPipeManager(drv, func() { changes++ })
	a := driverapi.MustParsePipe("1Node")
	b := driverapi.MustParsePipe("3Node")

	require.NoError(t, pm.SetReadPipes([]driverapi.Pipe{a}))
	assert.Equal(t, 1, pm.Reprograms())
	assert.Equal(t, 1, drv.CountCalls("OpenReadingPipe"))
	assert.True(t, drv.Listening())

	// 相同集合：不重新编程，只恢复监听
	require.NoError(t, drv.StopListening())
	require.NoError(t, pm.SetReadPipes([]driverapi.Pipe{a}))
	assert.Equal(t, 1, pm.Reprograms())
	assert.Equal(t, 1, drv.CountCalls("OpenReadingPipe"))
	assert.True(t, drv.Listening())

	// 不同集合：恰好重新编程一次
	require.NoError(t, pm.SetReadPipes([]driverapi.Pipe{a, b}))
	assert.Equal(t, 2, pm.Reprograms())
	assert.Equal(t, 3, drv.CountCalls("OpenReadingPipe"))
	assert.Equal(t, a, drv.ReadPipe(1))
	assert.Equal(t, b, drv.ReadPipe(2))
	assert.Equal(t, 2, changes)

	// 顺序不同也算变化
	require.NoError(t, pm.SetReadPipes([]driverapi.Pipe{b, a}))
	assert.Equal(t, 3, pm.Reprograms())
	assert.Equal(t, []driverapi.Pipe{b, a}, pm.Current())
	assert.Empty(t, drv.Violations())

	err = pm.SetReadPipes(make([]driverapi.Pipe, 6))
	assert.ErrorIs(t, err, radio.ErrTooManyPipes)
}

func TestPipeManager_TransmitOn(t *testing.T) {
	drv := stub.New()
	_, err := radio.Open(drv, radio.DefaultSettings(), nil)
	require.NoError(t, err)
	pm := radio.NewPipeManager(drv, nil)
	require.NoError(t, pm.SetReadPipes([]driverapi.Pipe{driverapi.MustParsePipe("1Node")}))

	w := driverapi.MustParsePipe("2Node")
	require.NoError(t, pm.TransmitOn(w, []byte{1, 2, 3}))
	assert.False(t, drv.Listening(), "发送后不自动恢复监听")
	assert.Equal(t, w, drv.WritePipe())
	assert.Equal(t, [][]byte{{1, 2, 3}}, drv.Writes())

	drv.DropNext(1)
	err = pm.TransmitOn(w, []byte{4})
	assert.ErrorIs(t, err, radio.ErrTransmitFailed)
	assert.Len(t, drv.Writes(), 1)
	assert.Empty(t, drv.Violations())
}

func TestParsePipe(t *testing.T) {
	p, err := driverapi.ParsePipe("1Node")
	require.NoError(t, err)
	assert.Equal(t, [5]byte{'1', 'N', 'o', 'd', 'e'}, p.Bytes())
	assert.Equal(t, driverapi.Pipe(0x65646F4E31), p)

	p, err = driverapi.ParsePipe("0xE8E8F0F0E1")
	require.NoError(t, err)
	assert.Equal(t, driverapi.Pipe(0xE8E8F0F0E1), p)

	for _, bad := range []string{"", "TooLongName", "0x1FFFFFFFFFF", "0xZZ"} {
		_, err := driverapi.ParsePipe(bad)
		assert.ErrorIs(t, err, driverapi.ErrBadPipe, bad)
	}

	pipes, err := radio.ParsePipes([]string{"1Node", "2Node"})
	require.NoError(t, err)
	assert.Len(t, pipes, 2)
	_, err = radio.ParsePipes([]string{"a", "b", "c", "d", "e", "f"})
	assert.Error(t, err)
}

func TestDriverRegistry(t *testing.T) {
	assert.Contains(t, radio.Drivers(), stub.Name)
	drv, err := radio.NewDriver(stub.Name, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, drv)

	_, err = radio.NewDriver("nope", nil)
	assert.Error(t, err)
	assert.Panics(t, func() { radio.RegisterDriver(stub.Name, func(*zap.Logger) (driverapi.Driver, error) { return nil, nil }) })
}
