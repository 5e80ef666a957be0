package link

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/rf24-gateway/internal/protocol/rf24"
)

func (s *Scheduler) writeLoop() {
	defer s.wg.Done()
	for {
		first, ok := s.queue.take(s.stopCh)
		if !ok {
			return
		}
		if !s.pauseReader() {
			first.finish(ErrStopped)
			return
		}
		sent := s.drain(first)
		s.resume()
		s.obs.BatchDone(sent)
		s.obs.QueueDepth(s.queue.len())
		s.logger.Debug("batch drained", zap.Int("sent", sent))
	}
}

// pauseReader 请求读循环暂停并等待其确认，成功后进入 Draining
func (s *Scheduler) pauseReader() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setState(PausedForWrite)
	s.cond.Broadcast()
	select {
	case s.pauseReq <- struct{}{}:
	default:
	}
	for !s.readerPaused && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return false
	}
	s.setState(Draining)
	return true
}

// drain 处理已取出的元素，再非阻塞地取完队列中已有的元素；返回成功发送的帧数
func (s *Scheduler) drain(first *item) int {
	sent := 0
	for it := first; it != nil; {
		if s.isClosed() {
			it.finish(ErrStopped)
			return sent
		}
		if s.process(it) {
			sent++
		}
		next, ok := s.queue.poll()
		if !ok {
			break
		}
		it = next
	}
	return sent
}

func (s *Scheduler) process(it *item) bool {
	switch it.kind {
	case kindReconfigure:
		err := s.drv.StopListening()
		if err == nil {
			err = s.radio.Apply(it.settings)
		}
		if err != nil {
			s.logger.Error("radio reconfigure failed", zap.Error(err))
		}
		it.finish(err)
		return false
	case kindReadPipes:
		s.mu.Lock()
		s.readPipes = it.pipes
		s.mu.Unlock()
		it.finish(nil)
		return false
	}
	return s.transmit(it)
}

// transmit 发送单条指令；失败记录并投递死信，不中断本批
func (s *Scheduler) transmit(it *item) bool {
	ev := FrameEvent{
		Direction: DirTx,
		MessageID: it.messageID,
		Target:    it.target,
		CommandID: it.cmd.ID(),
		Payload:   it.cmd.Payload(),
		Pipe:      it.pipe,
	}
	frame, err := rf24.Encode(it.messageID, it.target, it.cmd.ID(), ev.Payload)
	if err == nil {
		err = s.pacer.wait(s.ctx)
		if err != nil && s.ctx.Err() != nil {
			// Stop 打断了限速等待，本帧未上空口，不算发送失败
			s.logger.Debug("transmit abandoned on stop",
				zap.Uint8("msg_id", it.messageID),
				zap.Uint16("target", it.target))
			it.finish(ErrStopped)
			return false
		}
	}
	if err == nil {
		err = s.pipes.TransmitOn(it.pipe, frame[:])
	}
	if err != nil {
		s.obs.FrameSent(false)
		s.logger.Error("transmit failed",
			zap.Uint8("msg_id", it.messageID),
			zap.Uint16("target", it.target),
			zap.String("cmd", s.commands.Name(it.cmd.ID())),
			zap.Stringer("pipe", it.pipe),
			zap.Duration("queued", s.opts.Now().Sub(it.enqueuedAt)),
			zap.Error(err))
		ev.Result = "failed"
		ev.Err = err.Error()
		ev.At = s.opts.Now()
		s.journal(ev)
		if s.opts.DeadLetters != nil {
			s.opts.DeadLetters.DeadLetter(ev)
		}
		return false
	}
	s.obs.FrameSent(true)
	ev.Result = "ok"
	s.journal(ev)
	return true
}

// resume 恢复原读管道集合（写管道可能已覆盖配置），再切回 Listening 唤醒读循环
func (s *Scheduler) resume() {
	s.mu.Lock()
	pipes := s.readPipes
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	if err := s.pipes.SetReadPipes(pipes); err != nil {
		s.logger.Error("restore read pipes failed", zap.Error(err))
	}

	s.mu.Lock()
	s.setState(Listening)
	s.cond.Broadcast()
	s.mu.Unlock()
}
