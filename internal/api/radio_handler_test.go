package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/rf24-gateway/internal/api/middleware"
	"github.com/taoyao-code/rf24-gateway/internal/command"
	"github.com/taoyao-code/rf24-gateway/internal/driverapi"
	"github.com/taoyao-code/rf24-gateway/internal/link"
	"github.com/taoyao-code/rf24-gateway/internal/protocol/rf24"
	"github.com/taoyao-code/rf24-gateway/internal/radio"
	"github.com/taoyao-code/rf24-gateway/internal/radio/stub"
	"github.com/taoyao-code/rf24-gateway/internal/storage/pg"
	"github.com/taoyao-code/rf24-gateway/internal/storage/redis"
)

var _ Link = (*link.Scheduler)(nil)

type fakeFrames struct{ entries []pg.FrameLogEntry }

func (f *fakeFrames) Recent(_ context.Context, limit int) ([]pg.FrameLogEntry, error) {
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

type fakeDead struct{ letters []redis.DeadLetter }

func (f *fakeDead) Count(context.Context) (int64, error) { return int64(len(f.letters)), nil }

func (f *fakeDead) List(_ context.Context, n int64) ([]redis.DeadLetter, error) {
	if int(n) < len(f.letters) {
		return f.letters[:n], nil
	}
	return f.letters, nil
}

func newTestScheduler(t *testing.T, stubOpts ...stub.Option) (*link.Scheduler, *stub.Driver) {
	t.Helper()
	drv := stub.New(stubOpts...)
	r, err := radio.Open(drv, radio.DefaultSettings(), zap.NewNop())
	require.NoError(t, err)
	cmds, err := command.NewRegistry(command.DefaultPlugins()...)
	require.NoError(t, err)
	s := link.New(r, cmds, nil, zap.NewNop(), link.Options{
		ReadPipes:       []driverapi.Pipe{driverapi.MustParsePipe("1Node")},
		WritePipe:       driverapi.MustParsePipe("2Node"),
		PollInterval:    time.Millisecond,
		ResponseTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(s.Stop)
	require.NoError(t, s.Start(context.Background()))
	return s, drv
}

func newTestRouter(h *RadioHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRadioRoutes(r, h, middleware.AuthConfig{}, zap.NewNop())
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResp(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp struct {
		Code      int            `json:"code"`
		RequestID string         `json:"request_id"`
		Data      map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RequestID)
	return resp.Data
}

func TestRadioHandler_Status(t *testing.T) {
	s, _ := newTestScheduler(t)
	r := newTestRouter(NewRadioHandler(s, nil, nil, nil))

	w := doJSON(r, http.MethodGet, "/api/radio/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeResp(t, w)
	assert.Equal(t, true, data["online"])
	assert.Equal(t, "listening", data["state"])
	assert.Equal(t, float64(0x4C), data["channel"])
}

func TestRadioHandler_ListCommands(t *testing.T) {
	s, _ := newTestScheduler(t)
	r := newTestRouter(NewRadioHandler(s, nil, nil, nil))

	w := doJSON(r, http.MethodGet, "/api/radio/commands", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeResp(t, w)
	list, ok := data["commands"].([]any)
	require.True(t, ok)
	assert.Len(t, list, len(command.DefaultPlugins()))
	first := list[0].(map[string]any)
	assert.Equal(t, "PING", first["name"])
	assert.Equal(t, "empty", first["payload"])
}

func TestRadioHandler_SendCommand(t *testing.T) {
	s, drv := newTestScheduler(t)
	r := newTestRouter(NewRadioHandler(s, nil, nil, nil))

	t.Run("入队并发送", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/radio/commands", map[string]any{
			"opcode":     command.OpSetDelay,
			"target":     7,
			"value":      1500,
			"message_id": 42,
		})
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		data := decodeResp(t, w)
		assert.Equal(t, float64(42), data["message_id"])

		require.Eventually(t, func() bool { return len(drv.Writes()) == 1 }, time.Second, time.Millisecond)
		f, err := rf24.Decode(drv.Writes()[0])
		require.NoError(t, err)
		assert.Equal(t, uint8(42), f.MessageID)
		assert.Equal(t, uint16(7), f.Target)
		assert.Equal(t, command.OpSetDelay, f.CommandID)
		assert.Equal(t, []byte{0x00, 0x00, 0x05, 0xDC}, f.Payload)
		assert.Equal(t, driverapi.MustParsePipe("2Node"), drv.WritePipe())
	})

	t.Run("指定管道与原始负载", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/radio/commands", map[string]any{
			"opcode":      command.OpSetPinValue,
			"target":      8,
			"pipe":        "3Node",
			"payload_hex": "0d01",
		})
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		require.Eventually(t, func() bool { return len(drv.Writes()) == 2 }, time.Second, time.Millisecond)
		assert.Equal(t, driverapi.MustParsePipe("3Node"), drv.WritePipe())
	})

	bad := []struct {
		name string
		body map[string]any
	}{
		{"缺少opcode", map[string]any{"target": 1}},
		{"保留指令码", map[string]any{"opcode": 0xFF}},
		{"未注册指令码", map[string]any{"opcode": 0x7E}},
		{"int32缺少value", map[string]any{"opcode": command.OpSetDelay}},
		{"int32溢出", map[string]any{"opcode": command.OpSetDelay, "value": int64(1) << 40}},
		{"空负载指令带负载", map[string]any{"opcode": command.OpPing, "payload_hex": "01"}},
		{"负载过长", map[string]any{"opcode": command.OpStatus, "payload_hex": string(bytes.Repeat([]byte("ab"), rf24.MaxPayloadSize+1))}},
		{"非法hex", map[string]any{"opcode": command.OpStatus, "payload_hex": "zz"}},
		{"非法管道", map[string]any{"opcode": command.OpPing, "pipe": "TooLongName"}},
		{"消息号越界", map[string]any{"opcode": command.OpPing, "message_id": 300}},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/api/radio/commands", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestRadioHandler_SendRequest(t *testing.T) {
	t.Run("收到应答", func(t *testing.T) {
		s, _ := newTestScheduler(t, stub.WithEcho())
		r := newTestRouter(NewRadioHandler(s, nil, nil, nil))

		w := doJSON(r, http.MethodPost, "/api/radio/requests", map[string]any{
			"opcode": command.OpGetTime,
			"target": 3,
			"value":  1700000000,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		data := decodeResp(t, w)
		assert.Equal(t, "GET_TIME", data["name"])
		assert.Equal(t, float64(3), data["target"])
		assert.Equal(t, float64(1700000000), data["value"])
	})

	t.Run("超时", func(t *testing.T) {
		s, _ := newTestScheduler(t)
		r := newTestRouter(NewRadioHandler(s, nil, nil, nil))

		w := doJSON(r, http.MethodPost, "/api/radio/requests", map[string]any{"opcode": command.OpPing, "target": 3})
		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	})

	t.Run("请求不允许指定消息号", func(t *testing.T) {
		s, _ := newTestScheduler(t)
		r := newTestRouter(NewRadioHandler(s, nil, nil, nil))

		w := doJSON(r, http.MethodPost, "/api/radio/requests", map[string]any{"opcode": command.OpPing, "message_id": 1})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRadioHandler_Reconfigure(t *testing.T) {
	s, drv := newTestScheduler(t)
	r := newTestRouter(NewRadioHandler(s, nil, nil, nil))

	w := doJSON(r, http.MethodPut, "/api/radio/settings", map[string]any{
		"channel":     90,
		"crc_length":  "16",
		"pa_level":    "high",
		"data_rate":   "1mbps",
		"retry_delay": 5,
		"retry_count": 10,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeResp(t, w)
	assert.Equal(t, float64(90), data["channel"])
	assert.Equal(t, "high", data["pa_level"])
	assert.Equal(t, 2, drv.CountCalls("SetChannel"))

	w = doJSON(r, http.MethodPut, "/api/radio/settings", map[string]any{"channel": 126})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(r, http.MethodPut, "/api/radio/settings", map[string]any{"channel": 10, "pa_level": "loud"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPut, "/api/radio/pipes", map[string]any{"read_pipes": []string{"1Node", "3Node"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Eventually(t, func() bool { return drv.ReadPipe(2) == driverapi.MustParsePipe("3Node") }, time.Second, time.Millisecond)

	w = doJSON(r, http.MethodPut, "/api/radio/pipes", map[string]any{"read_pipes": []string{"a", "b", "c", "d", "e", "f"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, drv.Violations())
}

func TestRadioHandler_Offline(t *testing.T) {
	cmds, err := command.NewRegistry(command.DefaultPlugins()...)
	require.NoError(t, err)
	s := link.NewOffline(&radio.InitError{Step: "open", Err: errors.New("no spi device")}, cmds, nil, nil, link.Options{})
	r := newTestRouter(NewRadioHandler(s, nil, nil, nil))

	w := doJSON(r, http.MethodGet, "/api/radio/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeResp(t, w)
	assert.Equal(t, false, data["online"])
	assert.Equal(t, "offline", data["state"])

	w = doJSON(r, http.MethodPost, "/api/radio/commands", map[string]any{"opcode": command.OpPing})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = doJSON(r, http.MethodPost, "/api/radio/requests", map[string]any{"opcode": command.OpPing})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRadioHandler_History(t *testing.T) {
	s, _ := newTestScheduler(t)

	t.Run("未启用", func(t *testing.T) {
		r := newTestRouter(NewRadioHandler(s, nil, nil, nil))
		assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodGet, "/api/radio/frames", nil).Code)
		assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodGet, "/api/radio/dead-letters", nil).Code)
	})

	t.Run("帧流水与死信", func(t *testing.T) {
		frames := &fakeFrames{entries: []pg.FrameLogEntry{{ID: 2, Direction: "rx"}, {ID: 1, Direction: "tx"}}}
		dead := &fakeDead{letters: []redis.DeadLetter{{MessageID: 9, Error: "transmit failed"}}}
		r := newTestRouter(NewRadioHandler(s, frames, dead, nil))

		w := doJSON(r, http.MethodGet, "/api/radio/frames?limit=1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		data := decodeResp(t, w)
		assert.Len(t, data["frames"], 1)

		w = doJSON(r, http.MethodGet, "/api/radio/dead-letters", nil)
		require.Equal(t, http.StatusOK, w.Code)
		data = decodeResp(t, w)
		assert.Equal(t, float64(1), data["total"])
		assert.Len(t, data["dead_letters"], 1)
	})
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, http.StatusOK, classifyError(nil))
	assert.Equal(t, http.StatusServiceUnavailable, classifyError(link.ErrOffline))
	assert.Equal(t, http.StatusTooManyRequests, classifyError(link.ErrQueueFull))
	assert.Equal(t, http.StatusGatewayTimeout, classifyError(link.ErrResponseTimeout))
	assert.Equal(t, http.StatusBadRequest, classifyError(rf24.ErrPayloadTooLarge))
	assert.Equal(t, http.StatusInternalServerError, classifyError(errors.New("boom")))
}
