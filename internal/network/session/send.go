package session

import (
	"go.uber.org/zap"

	"github.com/lk2023060901/sslserver-go/internal/network"
)

// Send 同步发送数据，阻塞直到全部写出。
//
// 会话未握手或数据为空时返回 0；写失败会断开会话并返回 0。
func (s *Session) Send(data []byte) int {
	if !s.handshaked.Load() || len(data) == 0 {
		return 0
	}
	ch := s.current.Load()
	if ch == nil {
		return 0
	}

	n, err := ch.tls.Write(data)
	if n > 0 && s.live(ch) {
		s.bytesSent.Add(int64(n))
		s.stats.BytesSent.Add(int64(n))
	}
	if err != nil {
		if s.live(ch) {
			s.reportError(network.StageSend, err)
			s.Disconnect()
		}
		return 0
	}
	return n
}

// SendText 同步发送字符串。
func (s *Session) SendText(text string) int {
	return s.Send([]byte(text))
}

// SendAsync 将数据追加到发送队列后立即返回。
//
// 会话未握手时返回 false；空数据直接返回 true。同一会话的多次调用按调用顺序写出。
// data 会被拷贝，调用返回后即可复用。
func (s *Session) SendAsync(data []byte) bool {
	if !s.handshaked.Load() {
		return false
	}
	if len(data) == 0 {
		return true
	}

	s.sendMu.Lock()
	// 断开流程在清空缓冲区之前已经清除了握手标记
	if !s.handshaked.Load() {
		s.sendMu.Unlock()
		return false
	}
	sendRequired := s.sendMain.IsEmpty() && s.sendFlush.IsEmpty()
	s.sendMain.Append(data)
	s.bytesPending.Store(int64(s.sendMain.Size()))
	ch := s.current.Load()
	s.sendMu.Unlock()

	if !sendRequired {
		return true
	}
	if err := s.pool.Go(func() { s.trySend(ch) }); err != nil {
		s.Logger().Warn("submit send failed", zap.Error(err))
		s.Disconnect()
		return false
	}
	return true
}

// SendAsyncText 异步发送字符串。
func (s *Session) SendAsyncText(text string) bool {
	return s.SendAsync([]byte(text))
}

// trySend 在没有写操作进行中时发起一次写。
//
// flush 为空时先与 main 交换，交换后仍为空说明队列已经写完，触发 OnEmpty。
func (s *Session) trySend(ch *channel) {
	s.sendMu.Lock()
	if !s.live(ch) || !s.handshaked.Load() || s.sending {
		s.sendMu.Unlock()
		return
	}

	if s.sendFlush.IsEmpty() {
		s.sendMain, s.sendFlush = s.sendFlush, s.sendMain
		s.flushOffset = 0
		s.bytesPending.Store(0)
		s.bytesSending.Add(int64(s.sendFlush.Size()))
	}
	if s.sendFlush.IsEmpty() {
		s.sendMu.Unlock()
		s.handler.OnEmpty(s)
		return
	}

	s.sending = true
	chunk := s.sendFlush.Bytes()[s.flushOffset:]
	s.sendMu.Unlock()

	n, err := ch.tls.Write(chunk)
	s.processSend(ch, n, err)
}

func (s *Session) processSend(ch *channel, n int, err error) {
	s.sendMu.Lock()
	if !s.live(ch) {
		s.sendMu.Unlock()
		return
	}
	if n > 0 {
		s.flushOffset += n
		s.bytesSending.Sub(int64(n))
		s.bytesSent.Add(int64(n))
		s.stats.BytesSent.Add(int64(n))
		if s.flushOffset == s.sendFlush.Size() {
			s.sendFlush.Clear()
			s.flushOffset = 0
		}
	}
	s.sending = false
	s.sendMu.Unlock()

	if err != nil {
		s.reportError(network.StageSend, err)
		s.Disconnect()
		return
	}
	s.trySend(ch)
}
