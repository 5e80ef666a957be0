package api

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/rf24-gateway/internal/command"
	"github.com/taoyao-code/rf24-gateway/internal/config"
	"github.com/taoyao-code/rf24-gateway/internal/driverapi"
	"github.com/taoyao-code/rf24-gateway/internal/link"
	"github.com/taoyao-code/rf24-gateway/internal/protocol/rf24"
	"github.com/taoyao-code/rf24-gateway/internal/radio"
	"github.com/taoyao-code/rf24-gateway/internal/storage/pg"
	"github.com/taoyao-code/rf24-gateway/internal/storage/redis"
)

// Link 链路操作（*link.Scheduler）
type Link interface {
	Status() link.Status
	Commands() *command.Registry
	NextMessageID() uint8
	Enqueue(cmd command.Command, target uint16, messageID uint8, pipe driverapi.Pipe) error
	EnqueueGlobal(cmd command.Command, target uint16, messageID uint8) error
	Request(ctx context.Context, cmd command.Command, target uint16, pipe driverapi.Pipe) (*command.Message, error)
	Reconfigure(ctx context.Context, settings radio.Settings) error
	SetReadPipes(ctx context.Context, pipes []driverapi.Pipe) error
}

// FrameHistory 帧流水查询（*pg.FrameLog），未启用数据库时为 nil
type FrameHistory interface {
	Recent(ctx context.Context, limit int) ([]pg.FrameLogEntry, error)
}

// DeadLetterStore 死信查询（*redis.DeadLetterQueue），未启用 Redis 时为 nil
type DeadLetterStore interface {
	Count(ctx context.Context) (int64, error)
	List(ctx context.Context, n int64) ([]redis.DeadLetter, error)
}

// StandardResponse 标准响应格式
type StandardResponse struct {
	Code      int         `json:"code"`           // 0=成功, >0=错误码
	Message   string      `json:"message"`        // 消息
	Data      interface{} `json:"data,omitempty"` // 业务数据
	RequestID string      `json:"request_id"`     // 请求追踪ID
	Timestamp int64       `json:"timestamp"`      // 时间戳
}

// CommandRequest 下发指令请求。负载按指令的负载类型取 value（int32/int64）或 payload_hex（raw）。
type CommandRequest struct {
	Opcode     *int   `json:"opcode" binding:"required"`
	Target     uint16 `json:"target"`
	Pipe       string `json:"pipe"`       // 为空时发往全局写管道
	MessageID  *int   `json:"message_id"` // 为空时自动分配
	Value      *int64 `json:"value"`
	PayloadHex string `json:"payload_hex"`
}

// SettingsRequest 射频参数
type SettingsRequest struct {
	Channel    int    `json:"channel" binding:"min=0,max=125"`
	CRCLength  string `json:"crc_length"`
	PALevel    string `json:"pa_level"`
	DataRate   string `json:"data_rate"`
	RetryDelay int    `json:"retry_delay" binding:"min=0,max=15"`
	RetryCount int    `json:"retry_count" binding:"min=0,max=15"`
}

// PipesRequest 读管道集合
type PipesRequest struct {
	ReadPipes []string `json:"read_pipes" binding:"required"`
}

// MessageView 上行消息
type MessageView struct {
	MessageID  uint8  `json:"message_id"`
	Target     uint16 `json:"target"`
	Opcode     uint8  `json:"opcode"`
	Name       string `json:"name"`
	PayloadHex string `json:"payload_hex,omitempty"`
	Value      any    `json:"value,omitempty"`
}

// CommandView 指令目录项
type CommandView struct {
	Opcode     uint8  `json:"opcode"`
	Name       string `json:"name"`
	Payload    string `json:"payload"`
	HasHandler bool   `json:"has_handler"`
}

// RadioHandler 射频链路管理接口
type RadioHandler struct {
	link   Link
	frames FrameHistory
	dead   DeadLetterStore
	logger *zap.Logger
}

// NewRadioHandler frames/dead 可为 nil
func NewRadioHandler(l Link, frames FrameHistory, dead DeadLetterStore, logger *zap.Logger) *RadioHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RadioHandler{link: l, frames: frames, dead: dead, logger: logger}
}

// GetStatus 链路状态
// @Router /api/radio/status [get]
func (h *RadioHandler) GetStatus(c *gin.Context) {
	h.ok(c, "ok", h.link.Status())
}

// ListCommands 指令目录
// @Router /api/radio/commands [get]
func (h *RadioHandler) ListCommands(c *gin.Context) {
	plugins := h.link.Commands().Plugins()
	out := make([]CommandView, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, CommandView{
			Opcode:     p.Opcode,
			Name:       p.Name,
			Payload:    p.Kind.String(),
			HasHandler: p.Handler != nil,
		})
	}
	h.ok(c, "ok", gin.H{"commands": out})
}

// SendCommand 指令入队（异步，返回分配的消息号）
// @Router /api/radio/commands [post]
func (h *RadioHandler) SendCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Sprintf("无效的请求: %v", err))
		return
	}
	cmd, err := buildCommand(h.link.Commands(), &req)
	if err != nil {
		h.fail(c, http.StatusBadRequest, err.Error())
		return
	}

	var id uint8
	if req.MessageID != nil {
		if *req.MessageID < 0 || *req.MessageID > math.MaxUint8 {
			h.fail(c, http.StatusBadRequest, "message_id out of range 0..255")
			return
		}
		id = uint8(*req.MessageID)
	} else {
		id = h.link.NextMessageID()
	}

	if req.Pipe == "" {
		err = h.link.EnqueueGlobal(cmd, req.Target, id)
	} else {
		var pipe driverapi.Pipe
		if pipe, err = driverapi.ParsePipe(req.Pipe); err != nil {
			h.fail(c, http.StatusBadRequest, err.Error())
			return
		}
		err = h.link.Enqueue(cmd, req.Target, id, pipe)
	}
	if err != nil {
		h.fail(c, classifyError(err), err.Error())
		return
	}

	h.logger.Info("command enqueued",
		zap.Uint8("msg_id", id),
		zap.Uint16("target", req.Target),
		zap.String("cmd", h.link.Commands().Name(cmd.ID())),
		zap.String("request_id", c.GetString("request_id")))
	c.JSON(http.StatusAccepted, StandardResponse{
		Code:    0,
		Message: "指令已入队",
		Data: gin.H{
			"message_id": id,
			"target":     req.Target,
			"opcode":     cmd.ID(),
		},
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now().Unix(),
	})
}

// SendRequest 发送指令并等待同消息号应答
// @Router /api/radio/requests [post]
func (h *RadioHandler) SendRequest(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Sprintf("无效的请求: %v", err))
		return
	}
	if req.MessageID != nil {
		h.fail(c, http.StatusBadRequest, "message_id is assigned by the gateway for requests")
		return
	}
	cmd, err := buildCommand(h.link.Commands(), &req)
	if err != nil {
		h.fail(c, http.StatusBadRequest, err.Error())
		return
	}
	pipe, err := h.resolvePipe(req.Pipe)
	if err != nil {
		h.fail(c, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.link.Request(c.Request.Context(), cmd, req.Target, pipe)
	if err != nil {
		h.logger.Warn("radio request failed",
			zap.Uint16("target", req.Target),
			zap.Uint8("opcode", cmd.ID()),
			zap.Error(err))
		h.fail(c, classifyError(err), err.Error())
		return
	}
	h.ok(c, "ok", messageView(msg))
}

// UpdateSettings 在下一个写窗口内重新下发射频参数
// @Router /api/radio/settings [put]
func (h *RadioHandler) UpdateSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Sprintf("无效的请求: %v", err))
		return
	}
	settings, err := radio.SettingsFromConfig(config.RadioConfig{
		Channel:    req.Channel,
		CRCLength:  req.CRCLength,
		PALevel:    req.PALevel,
		DataRate:   req.DataRate,
		RetryDelay: req.RetryDelay,
		RetryCount: req.RetryCount,
	})
	if err != nil {
		h.fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.link.Reconfigure(c.Request.Context(), settings); err != nil {
		h.fail(c, classifyError(err), err.Error())
		return
	}
	h.logger.Info("radio reconfigured",
		zap.Uint8("channel", settings.Channel),
		zap.Stringer("pa_level", settings.PALevel),
		zap.Stringer("data_rate", settings.DataRate))
	h.ok(c, "射频参数已更新", h.link.Status())
}

// UpdatePipes 替换读管道集合
// @Router /api/radio/pipes [put]
func (h *RadioHandler) UpdatePipes(c *gin.Context) {
	var req PipesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Sprintf("无效的请求: %v", err))
		return
	}
	pipes, err := radio.ParsePipes(req.ReadPipes)
	if err != nil {
		h.fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.link.SetReadPipes(c.Request.Context(), pipes); err != nil {
		h.fail(c, classifyError(err), err.Error())
		return
	}
	h.ok(c, "读管道已更新", h.link.Status())
}

// ListFrames 最近的收发帧流水
// @Router /api/radio/frames [get]
func (h *RadioHandler) ListFrames(c *gin.Context) {
	if h.frames == nil {
		h.fail(c, http.StatusNotFound, "frame log disabled")
		return
	}
	limit := queryInt(c, "limit", 50)
	entries, err := h.frames.Recent(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	h.ok(c, "ok", gin.H{"frames": entries})
}

// ListDeadLetters 发送失败的帧
// @Router /api/radio/dead-letters [get]
func (h *RadioHandler) ListDeadLetters(c *gin.Context) {
	if h.dead == nil {
		h.fail(c, http.StatusNotFound, "dead letter queue disabled")
		return
	}
	ctx := c.Request.Context()
	limit := queryInt(c, "limit", 50)
	total, err := h.dead.Count(ctx)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	list, err := h.dead.List(ctx, int64(limit))
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	h.ok(c, "ok", gin.H{"total": total, "dead_letters": list})
}

func (h *RadioHandler) resolvePipe(name string) (driverapi.Pipe, error) {
	if name == "" {
		return driverapi.ParsePipe(h.link.Status().WritePipe)
	}
	return driverapi.ParsePipe(name)
}

func (h *RadioHandler) ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, StandardResponse{
		Code:      0,
		Message:   message,
		Data:      data,
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now().Unix(),
	})
}

func (h *RadioHandler) fail(c *gin.Context, status int, message string) {
	c.JSON(status, StandardResponse{
		Code:      status,
		Message:   message,
		RequestID: c.GetString("request_id"),
		Timestamp: time.Now().Unix(),
	})
}

// buildCommand 按注册表中的负载类型组装下行指令
func buildCommand(reg *command.Registry, req *CommandRequest) (command.Command, error) {
	op := *req.Opcode
	if op < 0 || op > math.MaxUint8 {
		return command.SendError, fmt.Errorf("opcode %d out of range", op)
	}
	if uint8(op) == command.OpSendError {
		return command.SendError, fmt.Errorf("%w: 0x%02X", command.ErrReservedOpcode, op)
	}
	p, ok := reg.Lookup(uint8(op))
	if !ok {
		return command.SendError, fmt.Errorf("%w: 0x%02X", command.ErrUnresolvedOpcode, op)
	}

	switch p.Kind {
	case command.KindEmpty:
		if req.Value != nil || req.PayloadHex != "" {
			return command.SendError, fmt.Errorf("%s takes no payload", p.Name)
		}
		return command.Empty(p.Opcode), nil
	case command.KindInt32:
		if req.Value == nil {
			return command.SendError, fmt.Errorf("%s requires value", p.Name)
		}
		if *req.Value < math.MinInt32 || *req.Value > math.MaxInt32 {
			return command.SendError, fmt.Errorf("%s value %d overflows int32", p.Name, *req.Value)
		}
		return command.Int32(p.Opcode, int32(*req.Value)), nil
	case command.KindInt64:
		if req.Value == nil {
			return command.SendError, fmt.Errorf("%s requires value", p.Name)
		}
		return command.Int64(p.Opcode, *req.Value), nil
	default:
		payload, err := hex.DecodeString(req.PayloadHex)
		if err != nil {
			return command.SendError, fmt.Errorf("payload_hex: %w", err)
		}
		if len(payload) > rf24.MaxPayloadSize {
			return command.SendError, fmt.Errorf("%w: %d bytes", rf24.ErrPayloadTooLarge, len(payload))
		}
		return command.Bytes(p.Opcode, payload), nil
	}
}

func messageView(m *command.Message) MessageView {
	v := MessageView{
		MessageID:  m.MessageID,
		Target:     m.Target,
		Opcode:     m.Opcode(),
		Name:       m.Plugin.Name,
		PayloadHex: hex.EncodeToString(m.Payload),
	}
	switch m.Plugin.Kind {
	case command.KindInt32, command.KindInt64:
		if val, err := m.Value(); err == nil {
			v.Value = val
		}
	}
	return v
}

func classifyError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, link.ErrOffline), errors.Is(err, link.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, link.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, link.ErrResponseTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, link.ErrNotTransmittable), errors.Is(err, rf24.ErrPayloadTooLarge),
		errors.Is(err, radio.ErrTooManyPipes), errors.Is(err, driverapi.ErrBadPipe):
		return http.StatusBadRequest
	case errors.Is(err, radio.ErrInitialization):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
