package link

import (
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/rf24-gateway/internal/command"
	"github.com/taoyao-code/rf24-gateway/internal/protocol/rf24"
)

func (s *Scheduler) readLoop() {
	defer s.wg.Done()
	for {
		if !s.awaitListening() {
			return
		}
		got := s.pollOnce()
		if n := s.subs.Sweep(); n > 0 {
			s.logger.Debug("subscriptions expired", zap.Int("count", n))
		}
		if !got {
			s.idle()
		}
	}
}

// awaitListening 非 Listening 时确认暂停并阻塞等待恢复；返回 false 表示已停止
func (s *Scheduler) awaitListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.closed && s.state != Listening {
		if !s.readerPaused {
			s.readerPaused = true
			s.cond.Broadcast()
		}
		s.cond.Wait()
	}
	s.readerPaused = false
	return !s.closed
}

// idle 无数据时等待一个轮询周期，写循环请求暂停或停止时提前返回
func (s *Scheduler) idle() {
	t := time.NewTimer(s.opts.PollInterval)
	defer t.Stop()
	select {
	case <-s.stopCh:
	case <-s.pauseReq:
	case <-t.C:
	}
}

// pollOnce 读取一次驱动数据并处理其中完整的帧，返回是否读到数据
func (s *Scheduler) pollOnce() bool {
	ok, err := s.drv.Available()
	if err != nil {
		s.logger.Warn("radio available check failed", zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	n, err := s.drv.Read(s.buf[:])
	if err != nil {
		s.logger.Warn("radio read failed", zap.Error(err))
		return false
	}
	if n == 0 {
		return false
	}
	frames, discarded := s.reasm.Feed(s.buf[:n])
	if discarded > 0 {
		s.obs.FrameReceived("resync")
		s.logger.Warn("discarded bytes before frame sync", zap.Int("bytes", discarded))
	}
	for _, raw := range frames {
		s.handleFrame(raw)
	}
	return true
}

func (s *Scheduler) handleFrame(raw []byte) {
	f, err := rf24.DecodeUplink(raw)
	if err != nil {
		result := decodeResult(err)
		s.obs.FrameReceived(result)
		s.logger.Warn("frame decode failed",
			zap.String("result", result),
			zap.String("raw", hex.EncodeToString(raw)),
			zap.Error(err))
		s.journal(FrameEvent{Direction: DirRx, Result: result, Err: err.Error(), Payload: append([]byte(nil), raw...)})
		return
	}
	msg, err := s.commands.Resolve(f)
	if err != nil {
		s.obs.FrameReceived("unresolved")
		s.logger.Warn("frame dropped",
			zap.Uint8("msg_id", f.MessageID),
			zap.Uint16("target", f.Target),
			zap.Uint8("cmd", f.CommandID),
			zap.Error(err))
		s.journal(rxEvent(f, "unresolved", err))
		return
	}
	s.obs.FrameReceived("ok")
	s.journal(rxEvent(f, "ok", nil))

	if !s.subs.Dispatch(msg) {
		s.logger.Info("no subscriber for message",
			zap.Uint8("msg_id", msg.MessageID),
			zap.Uint16("target", msg.Target),
			zap.String("cmd", msg.Plugin.Name))
	}
	if s.opts.ReplyWithHandlers && msg.Plugin.Handler != nil {
		s.reply(msg)
	}
}

// reply 执行指令处理函数，把结果回发给来源节点
func (s *Scheduler) reply(msg *command.Message) {
	out := s.commands.Execute(msg)
	if out.IsError() {
		s.logger.Debug("handler produced send error", zap.String("cmd", msg.Plugin.Name))
		return
	}
	if err := s.EnqueueGlobal(out, msg.Target, msg.MessageID); err != nil {
		s.logger.Warn("enqueue handler reply failed", zap.String("cmd", msg.Plugin.Name), zap.Error(err))
	}
}

func decodeResult(err error) string {
	switch {
	case errors.Is(err, rf24.ErrBadSync):
		return "bad_sync"
	case errors.Is(err, rf24.ErrBadChecksum):
		return "bad_checksum"
	case errors.Is(err, rf24.ErrBadLength):
		return "bad_length"
	case errors.Is(err, rf24.ErrShortFrame):
		return "short"
	}
	return "error"
}

func rxEvent(f rf24.Frame, result string, err error) FrameEvent {
	ev := FrameEvent{
		Direction: DirRx,
		MessageID: f.MessageID,
		Target:    f.Target,
		CommandID: f.CommandID,
		Payload:   append([]byte(nil), f.Payload...),
		Result:    result,
	}
	if err != nil {
		ev.Err = err.Error()
	}
	return ev
}

func (s *Scheduler) journal(ev FrameEvent) {
	if s.opts.Journal == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = s.opts.Now()
	}
	s.opts.Journal.Record(ev)
}
